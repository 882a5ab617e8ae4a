package blockcodec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, data []byte, level int) {
	t.Helper()
	compressed, err := Compress(data, level)
	require.NoError(t, err)

	got, err := Decompress(compressed, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(got, data))
}

func TestRoundTripEmpty(t *testing.T) {
	roundTrip(t, nil, 1)
	roundTrip(t, []byte{}, 6)
}

func TestRoundTripZeros(t *testing.T) {
	roundTrip(t, make([]byte, 1<<20), 1)
	roundTrip(t, make([]byte, 1<<20), 9)
}

func TestRoundTripUniformByte(t *testing.T) {
	buf := make([]byte, 1<<18)
	for i := range buf {
		buf[i] = 0x42
	}
	roundTrip(t, buf, 3)
}

func TestRoundTripRandom(t *testing.T) {
	buf := make([]byte, 1<<20)
	rand.New(rand.NewSource(4)).Read(buf)
	roundTrip(t, buf, 1)
	roundTrip(t, buf, 12)
}

func TestRoundTripZipfianText(t *testing.T) {
	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
	r := rand.New(rand.NewSource(5))
	z := rand.NewZipf(r, 1.5, 1, uint64(len(words)-1))
	var buf bytes.Buffer
	for buf.Len() < 1<<20 {
		buf.WriteString(words[z.Uint64()])
		buf.WriteByte(' ')
	}
	roundTrip(t, buf.Bytes(), 5)
}

func TestDecompressRejectsWrongLength(t *testing.T) {
	data := bytes.Repeat([]byte("payload"), 1000)
	compressed, err := Compress(data, 1)
	require.NoError(t, err)

	_, err = Decompress(compressed, len(data)+1)
	require.Error(t, err)
}

func TestDecompressRejectsEmptyForNonzeroOriginal(t *testing.T) {
	_, err := Decompress(nil, 10)
	require.Error(t, err)
}

func TestDecompressRejectsUnknownTag(t *testing.T) {
	_, err := Decompress([]byte{0x7F, 1, 2, 3}, 3)
	require.Error(t, err)
}
