package patchfile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer emits a patch file: header, a placeholder block-offset table,
// then block payloads in ascending block-index order, finally seeking
// back to rewrite the header (with the final hashes) and backfill the
// offset table.
//
// Writer expects WriteBlock calls in strictly ascending block-index
// order — the diff engine's job, not this package's, is to reorder
// results that complete out of order (spec §5: "the patch file writer
// emits blocks in strictly ascending block-index order regardless of
// completion order").
type Writer struct {
	w         io.WriteSeeker
	header    Header
	offsets   []uint64
	nextBlock int
	pos       int64
}

// NewWriter writes header and a zeroed offset table to w, and returns a
// Writer ready to receive block payloads via WriteBlock.
func NewWriter(w io.WriteSeeker, header Header) (*Writer, error) {
	if _, err := w.Write(header.Bytes()); err != nil {
		return nil, fmt.Errorf("patchfile: write header: %w", err)
	}
	tableBytes := make([]byte, 8*int(header.NumBlocks))
	if len(tableBytes) > 0 {
		if _, err := w.Write(tableBytes); err != nil {
			return nil, fmt.Errorf("patchfile: write offset table placeholder: %w", err)
		}
	}
	return &Writer{
		w:       w,
		header:  header,
		offsets: make([]uint64, header.NumBlocks),
		pos:     int64(HeaderSize) + int64(len(tableBytes)),
	}, nil
}

// WriteBlock appends block index's payload: {original_size, compressed_size,
// compressed bytes}. index must equal the index of the previous call plus
// one (0 for the first call).
func (wr *Writer) WriteBlock(index int, originalSize uint32, compressed []byte) error {
	if index != wr.nextBlock {
		return fmt.Errorf("patchfile: WriteBlock called out of order: got %d, want %d", index, wr.nextBlock)
	}
	if index >= len(wr.offsets) {
		return fmt.Errorf("patchfile: block index %d out of range (num_blocks=%d)", index, len(wr.offsets))
	}

	var head [8]byte
	binary.LittleEndian.PutUint32(head[0:4], originalSize)
	binary.LittleEndian.PutUint32(head[4:8], uint32(len(compressed)))

	wr.offsets[index] = uint64(wr.pos)
	if _, err := wr.w.Write(head[:]); err != nil {
		return fmt.Errorf("patchfile: write block %d header: %w", index, err)
	}
	if len(compressed) > 0 {
		if _, err := wr.w.Write(compressed); err != nil {
			return fmt.Errorf("patchfile: write block %d payload: %w", index, err)
		}
	}
	wr.pos += int64(len(head)) + int64(len(compressed))
	wr.nextBlock++
	return nil
}

// Finalize rewrites the header with oldSHA256/newSHA256 and backfills the
// block-offset table. The header is rewritten on every call, whether or
// not the hashes changed.
func (wr *Writer) Finalize(oldSHA256, newSHA256 [32]byte) error {
	if wr.nextBlock != len(wr.offsets) {
		return fmt.Errorf("patchfile: finalize called after %d/%d blocks written", wr.nextBlock, len(wr.offsets))
	}

	wr.header.OldSHA256 = oldSHA256
	wr.header.NewSHA256 = newSHA256

	if _, err := wr.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("patchfile: seek to header: %w", err)
	}
	if _, err := wr.w.Write(wr.header.Bytes()); err != nil {
		return fmt.Errorf("patchfile: rewrite header: %w", err)
	}

	tableBuf := make([]byte, 8*len(wr.offsets))
	for i, off := range wr.offsets {
		binary.LittleEndian.PutUint64(tableBuf[i*8:], off)
	}
	if len(tableBuf) > 0 {
		if _, err := wr.w.Write(tableBuf); err != nil {
			return fmt.Errorf("patchfile: backfill offset table: %w", err)
		}
	}

	if _, err := wr.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("patchfile: seek to end: %w", err)
	}
	return nil
}
