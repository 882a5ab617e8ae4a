// Package blockcodec compresses and decompresses block instruction streams
// using raw LZ4 block framing: no magic, no checksums, no trailing
// padding. The patch container already records original and compressed
// sizes around each payload (patchfile), so the library's own frame
// envelope would be redundant overhead. A single leading tag byte
// distinguishes an LZ4-compressed payload from a stored-raw one (LZ4
// reports 0 for incompressible input, so raw fallback needs an
// unambiguous marker rather than a length heuristic).
package blockcodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

const (
	tagLZ4 byte = 0
	tagRaw byte = 1
)

// ErrMalformed is wrapped into every Decompress failure: an unrecognized
// tag, a truncated or corrupted LZ4 frame, or a length that doesn't match
// the declared original size.
var ErrMalformed = errors.New("blockcodec: malformed payload")

// fastHashTableSize comfortably covers the hash table size pierrec/lz4's
// fast-mode CompressBlock requires; the function rejects undersized tables
// outright, so erring large is free and safe.
const fastHashTableSize = 1 << 17

var hashTablePool = sync.Pool{
	New: func() any {
		return make([]int, fastHashTableSize)
	},
}

const (
	MinLevel = 1
	MaxLevel = 12
	fastMax  = 3
)

// Compress compresses src at the given level: 1-3 select LZ4's fast mode,
// 4-12 select HC mode with the level itself used as the search depth. An
// empty input always round-trips to an empty output.
func Compress(src []byte, level int) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, 1+lz4.CompressBlockBound(len(src)))
	dst[0] = tagLZ4

	var n int
	var err error
	if level <= fastMax {
		table := hashTablePool.Get().([]int)
		defer hashTablePool.Put(table)
		for i := range table {
			table[i] = 0
		}
		n, err = lz4.CompressBlock(src, dst[1:], table)
	} else {
		depth := level
		if depth > MaxLevel {
			depth = MaxLevel
		}
		n, err = lz4.CompressBlockHC(src, dst[1:], depth)
	}
	if err != nil {
		return nil, fmt.Errorf("blockcodec: compress: %w", err)
	}
	if n == 0 {
		// LZ4 reports 0 for incompressible input; store it verbatim.
		out := make([]byte, 1+len(src))
		out[0] = tagRaw
		copy(out[1:], src)
		return out, nil
	}
	return dst[:1+n], nil
}

// Decompress decompresses compressed, which must yield exactly
// originalSize bytes. It returns an error if compressed is malformed or
// decompresses to a different length.
func Decompress(compressed []byte, originalSize int) ([]byte, error) {
	if originalSize == 0 {
		if len(compressed) != 0 {
			return nil, fmt.Errorf("%w: non-empty payload for zero-length original", ErrMalformed)
		}
		return []byte{}, nil
	}
	if len(compressed) == 0 {
		return nil, fmt.Errorf("%w: empty payload for %d-byte original", ErrMalformed, originalSize)
	}

	tag, body := compressed[0], compressed[1:]
	switch tag {
	case tagRaw:
		if len(body) != originalSize {
			return nil, fmt.Errorf("%w: stored payload is %d bytes, want %d", ErrMalformed, len(body), originalSize)
		}
		out := make([]byte, originalSize)
		copy(out, body)
		return out, nil
	case tagLZ4:
		dst := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if n != originalSize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrMalformed, n, originalSize)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload tag 0x%02x", ErrMalformed, tag)
	}
}
