package patchfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader provides random access to a patch file's header, block-offset
// table, and block payloads, backed by any io.ReaderAt — a mapped file, a
// plain *os.File, or an in-memory buffer in tests.
type Reader struct {
	ra      io.ReaderAt
	size    int64
	header  Header
	offsets []uint64
}

// Open validates the header and loads the block-offset table from ra,
// which spans size bytes.
func Open(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < HeaderSize {
		return nil, ErrTruncatedHeader
	}
	headBuf := make([]byte, HeaderSize)
	if _, err := readFullAt(ra, headBuf, 0); err != nil {
		return nil, fmt.Errorf("patchfile: read header: %w", err)
	}
	header, err := ParseHeader(headBuf)
	if err != nil {
		return nil, err
	}

	tableSize := int64(8) * int64(header.NumBlocks)
	if size < HeaderSize+tableSize {
		return nil, ErrTruncatedTable
	}
	tableBuf := make([]byte, tableSize)
	if tableSize > 0 {
		if _, err := readFullAt(ra, tableBuf, HeaderSize); err != nil {
			return nil, fmt.Errorf("patchfile: read offset table: %w", err)
		}
	}

	offsets := make([]uint64, header.NumBlocks)
	dataStart := uint64(HeaderSize + tableSize)
	prev := dataStart
	for i := range offsets {
		off := binary.LittleEndian.Uint64(tableBuf[i*8:])
		if off < prev || off >= uint64(size) {
			return nil, fmt.Errorf("%w: block %d offset %d", ErrBadBlockOffset, i, off)
		}
		offsets[i] = off
		prev = off
	}

	return &Reader{ra: ra, size: size, header: header, offsets: offsets}, nil
}

// Header returns the patch's decoded header.
func (r *Reader) Header() Header { return r.header }

// NumBlocks returns the number of blocks in the patch.
func (r *Reader) NumBlocks() int { return len(r.offsets) }

// BlockOffset returns the absolute file offset of block i's payload.
func (r *Reader) BlockOffset(i int) uint64 { return r.offsets[i] }

// ReadBlock reads and returns block i's declared original size and its
// compressed payload bytes, without decompressing them.
func (r *Reader) ReadBlock(i int) (originalSize uint32, compressed []byte, err error) {
	if i < 0 || i >= len(r.offsets) {
		return 0, nil, fmt.Errorf("patchfile: block index %d out of range", i)
	}
	off := int64(r.offsets[i])
	if off+8 > r.size {
		return 0, nil, ErrTruncatedPayload
	}
	head := make([]byte, 8)
	if _, err := readFullAt(r.ra, head, off); err != nil {
		return 0, nil, fmt.Errorf("%w: block %d header: %v", ErrTruncatedPayload, i, err)
	}
	originalSize = binary.LittleEndian.Uint32(head[0:4])
	compressedSize := binary.LittleEndian.Uint32(head[4:8])

	if off+8+int64(compressedSize) > r.size {
		return 0, nil, fmt.Errorf("%w: block %d declares %d bytes past end of file", ErrTruncatedPayload, i, compressedSize)
	}
	compressed = make([]byte, compressedSize)
	if compressedSize > 0 {
		if _, err := readFullAt(r.ra, compressed, off+8); err != nil {
			return 0, nil, fmt.Errorf("%w: block %d payload: %v", ErrTruncatedPayload, i, err)
		}
	}
	return originalSize, compressed, nil
}

func readFullAt(ra io.ReaderAt, buf []byte, off int64) (int, error) {
	n, err := ra.ReadAt(buf, off)
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	return n, err
}
