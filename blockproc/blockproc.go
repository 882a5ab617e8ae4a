// Package blockproc turns one new-file block into a compressed
// instruction stream: the unit of work the diff engine hands to its
// worker pool (spec §4.6).
package blockproc

import (
	"fmt"

	"github.com/openclaw/bindelta/blockcodec"
	"github.com/openclaw/bindelta/blockindex"
	"github.com/openclaw/bindelta/instruction"
	"github.com/openclaw/bindelta/matcher"
)

// MinMatchLength is the shortest matcher result the processor accepts as a
// COPY; shorter runs are cheaper to encode as literals. A match that runs
// past the block's end is cut at the block boundary, so the last COPY of a
// block can be shorter than this.
const MinMatchLength = 16

// Result is one processed block, ready to hand to patchfile.Writer.
type Result struct {
	Index          int
	OriginalSize   uint32
	Compressed     []byte
	BytesCopied    uint64
	BytesInserted  uint64
}

// Options configures how a block is matched and compressed.
type Options struct {
	// Window is the window width of the fallback scan used when no index
	// is supplied, and so the minimum match length that scan reports. With
	// an index, the index's own window width applies instead.
	Window int
	// CompressionLevel is passed through to blockcodec.Compress.
	CompressionLevel int
	// FallbackSearchWindow bounds the scan when Index is nil.
	FallbackSearchWindow int
}

// Process implements the per-block algorithm: starting at the block's
// first byte, repeatedly ask the matcher for the longest run at the
// current position. A sufficiently long match becomes a COPY and
// advances past it; otherwise the byte at the current position joins a
// run of pending literals. The pending run flushes as an INSERT when a
// match is found, when the block ends, or when it reaches
// instruction.InsertSoftCap bytes, whichever comes first.
func Process(old, newBuf []byte, blockIndex, blockStart, blockEnd int, idx *blockindex.Index, opts Options) (Result, error) {
	if blockStart < 0 || blockEnd > len(newBuf) || blockStart > blockEnd {
		return Result{}, fmt.Errorf("blockproc: invalid block range [%d,%d) in %d-byte input", blockStart, blockEnd, len(newBuf))
	}

	var ops []instruction.Op
	var literalStart = -1
	var copied, inserted uint64

	flushLiteral := func(end int) {
		if literalStart < 0 {
			return
		}
		for literalStart < end {
			chunkEnd := literalStart + instruction.InsertSoftCap
			if chunkEnd > end {
				chunkEnd = end
			}
			ops = append(ops, instruction.Insert(newBuf[literalStart:chunkEnd]))
			inserted += uint64(chunkEnd - literalStart)
			literalStart = chunkEnd
		}
		literalStart = -1
	}

	pos := blockStart
	for pos < blockEnd {
		match, found := findMatch(old, newBuf, pos, idx, opts)
		if found && match.Length >= MinMatchLength {
			flushLiteral(pos)
			length := match.Length
			if remaining := uint32(blockEnd - pos); length > remaining {
				length = remaining
			}
			ops = append(ops, instruction.Copy(match.OldOffset, length))
			copied += uint64(length)
			pos += int(length)
			continue
		}
		if literalStart < 0 {
			literalStart = pos
		}
		pos++
	}
	flushLiteral(blockEnd)

	var raw []byte
	for _, op := range ops {
		raw = instruction.Encode(raw, op)
	}

	compressed, err := blockcodec.Compress(raw, opts.CompressionLevel)
	if err != nil {
		return Result{}, fmt.Errorf("blockproc: block %d: %w", blockIndex, err)
	}

	return Result{
		Index:         blockIndex,
		OriginalSize:  uint32(len(raw)),
		Compressed:    compressed,
		BytesCopied:   copied,
		BytesInserted: inserted,
	}, nil
}

func findMatch(old, newBuf []byte, pos int, idx *blockindex.Index, opts Options) (matcher.Match, bool) {
	if idx != nil {
		return matcher.FindLongestMatch(old, newBuf, pos, idx)
	}
	return matcher.FindLongestMatchFallback(old, newBuf, pos, opts.Window, opts.FallbackSearchWindow)
}
