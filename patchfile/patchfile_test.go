package patchfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// seekBuffer adapts a bytes.Buffer-like growable byte slice to
// io.WriteSeeker, for exercising Writer without touching a real file.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if int64(len(s.buf)) < end {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(len(s.buf)) + offset
	}
	return s.pos, nil
}

func writePatch(t *testing.T, header Header, blocks [][]byte) *seekBuffer {
	t.Helper()
	sb := &seekBuffer{}
	w, err := NewWriter(sb, header)
	require.NoError(t, err)
	for i, b := range blocks {
		require.NoError(t, w.WriteBlock(i, uint32(len(b)), b))
	}
	require.NoError(t, w.Finalize(header.OldSHA256, header.NewSHA256))
	return sb
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	header := Header{
		Version:   Version,
		BlockSize: 64,
		OldSize:   12,
		NewSize:   15,
		NumBlocks: 2,
	}
	blocks := [][]byte{[]byte("first-block-payload"), []byte("second")}
	sb := writePatch(t, header, blocks)

	r, err := Open(bytes.NewReader(sb.buf), int64(len(sb.buf)))
	require.NoError(t, err)
	require.Equal(t, 2, r.NumBlocks())
	require.Equal(t, header.OldSize, r.Header().OldSize)

	for i, want := range blocks {
		size, payload, err := r.ReadBlock(i)
		require.NoError(t, err)
		require.Equal(t, uint32(len(want)), size)
		require.Equal(t, want, payload)
	}
}

func TestOffsetsMonotonicIncreasing(t *testing.T) {
	header := Header{Version: Version, NumBlocks: 3}
	sb := writePatch(t, header, [][]byte{{1, 2, 3}, {4, 5}, {6}})

	r, err := Open(bytes.NewReader(sb.buf), int64(len(sb.buf)))
	require.NoError(t, err)
	prev := r.BlockOffset(0)
	for i := 1; i < r.NumBlocks(); i++ {
		require.Greater(t, r.BlockOffset(i), prev)
		prev = r.BlockOffset(i)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	header := Header{Version: Version, NumBlocks: 0}
	buf := header.Bytes()
	buf[0] = 'X'
	_, err := ParseHeader(buf)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	header := Header{Version: 99, NumBlocks: 0}
	buf := header.Bytes()
	_, err := ParseHeader(buf)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	_, err := Open(bytes.NewReader(make([]byte, 10)), 10)
	require.ErrorIs(t, err, ErrTruncatedHeader)
}

func TestOpenRejectsTamperedBlockOffset(t *testing.T) {
	header := Header{Version: Version, NumBlocks: 1}
	sb := writePatch(t, header, [][]byte{{1, 2, 3, 4}})

	// Corrupt the single offset-table entry to point past EOF.
	tamperedAt := HeaderSize
	sb.buf[tamperedAt] = 0xFF
	sb.buf[tamperedAt+1] = 0xFF
	sb.buf[tamperedAt+2] = 0xFF
	sb.buf[tamperedAt+3] = 0xFF

	_, err := Open(bytes.NewReader(sb.buf), int64(len(sb.buf)))
	require.ErrorIs(t, err, ErrBadBlockOffset)
}

func TestWriteBlockRejectsOutOfOrder(t *testing.T) {
	sb := &seekBuffer{}
	w, err := NewWriter(sb, Header{Version: Version, NumBlocks: 2})
	require.NoError(t, err)
	err = w.WriteBlock(1, 0, nil)
	require.Error(t, err)
}

func TestNoBlocksPatch(t *testing.T) {
	header := Header{Version: Version, OldSize: 5, NewSize: 0, NumBlocks: 0}
	sb := writePatch(t, header, nil)

	r, err := Open(bytes.NewReader(sb.buf), int64(len(sb.buf)))
	require.NoError(t, err)
	require.Equal(t, 0, r.NumBlocks())
}
