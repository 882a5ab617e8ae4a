package patchfile

import (
	"encoding/hex"
	"io"
)

// Info is a read-only summary of a patch file's header, useful for
// introspection without mapping the old file or executing any block (spec
// §6 get_patch_info, extended per the original implementation's
// header-only inspection path).
type Info struct {
	Version      uint16
	BlockSize    uint32
	OldSize      uint64
	NewSize      uint64
	NumBlocks    int
	PatchSize    int64
	OldSHA256Hex string
	NewSHA256Hex string
}

// ReadInfo opens and validates just enough of the patch at ra (size bytes
// long) to describe it, without reading any block payload.
func ReadInfo(ra io.ReaderAt, size int64) (Info, error) {
	r, err := Open(ra, size)
	if err != nil {
		return Info{}, err
	}
	h := r.Header()
	return Info{
		Version:      h.Version,
		BlockSize:    h.BlockSize,
		OldSize:      h.OldSize,
		NewSize:      h.NewSize,
		NumBlocks:    r.NumBlocks(),
		PatchSize:    size,
		OldSHA256Hex: hex.EncodeToString(h.OldSHA256[:]),
		NewSHA256Hex: hex.EncodeToString(h.NewSHA256[:]),
	}, nil
}
