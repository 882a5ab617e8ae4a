package instruction

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCopyRoundTrip(t *testing.T) {
	op := Copy(1<<40, 1<<20)
	buf := Encode(nil, op)
	require.Len(t, buf, op.EncodedSize())

	got, rest, err := Decode(buf)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, op, got)
}

func TestInsertRoundTrip(t *testing.T) {
	bytes := make([]byte, 1024)
	rand.New(rand.NewSource(3)).Read(bytes)
	op := Insert(bytes)
	buf := Encode(nil, op)

	got, rest, err := Decode(buf)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, op.Kind, got.Kind)
	require.Equal(t, op.Bytes, got.Bytes)
}

func TestInsertEmptyRoundTrip(t *testing.T) {
	op := Insert(nil)
	buf := Encode(nil, op)
	got, rest, err := Decode(buf)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Empty(t, got.Bytes)
}

func TestUnknownOpcode(t *testing.T) {
	_, _, err := Decode([]byte{0xFF, 1, 2, 3})
	require.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestTruncatedFrames(t *testing.T) {
	_, _, err := Decode([]byte{byte(OpCopy), 1, 2})
	require.ErrorIs(t, err, ErrTruncated)

	_, _, err = Decode([]byte{byte(OpInsert), 10, 0, 0, 0, 1, 2})
	require.ErrorIs(t, err, ErrTruncated)

	_, _, err = Decode(nil)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeAllMixedStream(t *testing.T) {
	var buf []byte
	buf = Encode(buf, Copy(100, 50))
	buf = Encode(buf, Insert([]byte("hello")))
	buf = Encode(buf, Copy(0, 4096))

	ops, err := DecodeAll(buf)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	require.Equal(t, uint64(100), ops[0].Offset)
	require.Equal(t, []byte("hello"), ops[1].Bytes)
	require.Equal(t, uint32(4096), ops[2].Length)
}

// TestDecodeAllGoldenProgram diffs a decoded instruction stream against a
// hand-built golden slice; cmp.Diff's structural output pinpoints which
// field of which Op diverges, which testify's Equal failure message (a
// single flattened %+v dump) doesn't do as clearly for a slice of structs
// holding both scalars and byte slices.
func TestDecodeAllGoldenProgram(t *testing.T) {
	var buf []byte
	buf = Encode(buf, Copy(0, 16))
	buf = Encode(buf, Insert([]byte("patched")))
	buf = Encode(buf, Copy(23, 9))

	ops, err := DecodeAll(buf)
	require.NoError(t, err)

	want := []Op{
		Copy(0, 16),
		Insert([]byte("patched")),
		Copy(23, 9),
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("decoded program mismatch (-want +got):\n%s", diff)
	}
}
