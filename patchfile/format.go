// Package patchfile implements the on-disk patch container: a fixed
// header, a block-offset table, and a sequence of compressed block
// payloads, each record little-endian per the container layout (spec §6).
package patchfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the first four bytes of every patch file.
var Magic = [4]byte{'U', 'E', 'B', 'D'}

// Version is the only header version this package writes or accepts.
const Version uint16 = 1

// HeaderSize is the fixed, packed size of Header on disk.
const HeaderSize = 100

var (
	ErrInvalidMagic       = errors.New("patchfile: invalid magic")
	ErrUnsupportedVersion = errors.New("patchfile: unsupported version")
	ErrTruncatedHeader    = errors.New("patchfile: truncated header")
	ErrTruncatedTable     = errors.New("patchfile: truncated block-offset table")
	ErrBadBlockOffset     = errors.New("patchfile: block offset out of range")
	ErrTruncatedPayload   = errors.New("patchfile: truncated block payload")
)

// Header is the 100-byte fixed header at the start of every patch file.
type Header struct {
	Version   uint16
	Flags     uint16
	BlockSize uint32
	OldSize   uint64
	NewSize   uint64
	NumBlocks uint32
	OldSHA256 [32]byte
	NewSHA256 [32]byte
}

// Bytes serializes h into its 100-byte on-disk form.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[12:20], h.OldSize)
	binary.LittleEndian.PutUint64(buf[20:28], h.NewSize)
	binary.LittleEndian.PutUint32(buf[28:32], h.NumBlocks)
	// bytes 32:36 are the reserved field, left zero.
	copy(buf[36:68], h.OldSHA256[:])
	copy(buf[68:100], h.NewSHA256[:])
	return buf
}

// ParseHeader validates and decodes a 100-byte header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	if *(*[4]byte)(buf[0:4]) != Magic {
		return Header{}, ErrInvalidMagic
	}
	var h Header
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, h.Version, Version)
	}
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.BlockSize = binary.LittleEndian.Uint32(buf[8:12])
	h.OldSize = binary.LittleEndian.Uint64(buf[12:20])
	h.NewSize = binary.LittleEndian.Uint64(buf[20:28])
	h.NumBlocks = binary.LittleEndian.Uint32(buf[28:32])
	copy(h.OldSHA256[:], buf[36:68])
	copy(h.NewSHA256[:], buf[68:100])
	return h, nil
}
