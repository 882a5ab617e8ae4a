// Package instruction encodes and decodes the COPY/INSERT instruction
// stream that makes up a block's reconstruction program.
package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode tags an instruction frame.
type Opcode byte

const (
	OpCopy   Opcode = 0x00
	OpInsert Opcode = 0x01
)

// InsertSoftCap is the recommended maximum length of a single INSERT
// instruction; producers split longer literal runs across multiple
// instructions, but consumers accept any length that fits in a uint32 and
// remains within the stream.
const InsertSoftCap = 65536

// ErrUnknownOpcode is returned by Decode when a frame's leading byte does
// not match a known opcode.
var ErrUnknownOpcode = errors.New("instruction: unknown opcode")

// ErrTruncated is returned when a frame is cut short of its declared length.
var ErrTruncated = errors.New("instruction: truncated frame")

// Op is a single COPY or INSERT instruction. Exactly one of the two
// payloads is meaningful, selected by Kind; this mirrors a tagged sum type
// rather than a base class with virtual dispatch.
type Op struct {
	Kind   Opcode
	Offset uint64 // COPY only
	Length uint32 // COPY only
	Bytes  []byte // INSERT only
}

// Copy constructs a COPY instruction.
func Copy(offset uint64, length uint32) Op {
	return Op{Kind: OpCopy, Offset: offset, Length: length}
}

// Insert constructs an INSERT instruction. bytes is retained, not copied.
func Insert(bytes []byte) Op {
	return Op{Kind: OpInsert, Bytes: bytes}
}

// EncodedSize returns the number of bytes Encode will append for op.
func (op Op) EncodedSize() int {
	switch op.Kind {
	case OpCopy:
		return 1 + 8 + 4
	case OpInsert:
		return 1 + 4 + len(op.Bytes)
	default:
		return 0
	}
}

// Encode appends op's wire frame to dst and returns the extended slice.
//
//	COPY:   0x00 ∥ offset_le:u64 ∥ length_le:u32
//	INSERT: 0x01 ∥ length_le:u32 ∥ bytes[length]
func Encode(dst []byte, op Op) []byte {
	switch op.Kind {
	case OpCopy:
		var frame [13]byte
		frame[0] = byte(OpCopy)
		binary.LittleEndian.PutUint64(frame[1:9], op.Offset)
		binary.LittleEndian.PutUint32(frame[9:13], op.Length)
		return append(dst, frame[:]...)
	case OpInsert:
		var head [5]byte
		head[0] = byte(OpInsert)
		binary.LittleEndian.PutUint32(head[1:5], uint32(len(op.Bytes)))
		dst = append(dst, head[:]...)
		return append(dst, op.Bytes...)
	default:
		panic(fmt.Sprintf("instruction: cannot encode opcode %d", op.Kind))
	}
}

// Decode parses a single instruction from the front of src, returning the
// instruction and the unconsumed remainder of src.
func Decode(src []byte) (Op, []byte, error) {
	if len(src) < 1 {
		return Op{}, nil, ErrTruncated
	}
	switch Opcode(src[0]) {
	case OpCopy:
		if len(src) < 13 {
			return Op{}, nil, ErrTruncated
		}
		offset := binary.LittleEndian.Uint64(src[1:9])
		length := binary.LittleEndian.Uint32(src[9:13])
		return Copy(offset, length), src[13:], nil
	case OpInsert:
		if len(src) < 5 {
			return Op{}, nil, ErrTruncated
		}
		length := binary.LittleEndian.Uint32(src[1:5])
		end := 5 + int(length)
		if end < 5 || len(src) < end {
			return Op{}, nil, ErrTruncated
		}
		return Insert(src[5:end]), src[end:], nil
	default:
		return Op{}, nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, src[0])
	}
}

// DecodeAll parses every instruction in src, in order. It returns
// ErrTruncated or ErrUnknownOpcode on malformed input.
func DecodeAll(src []byte) ([]Op, error) {
	var ops []Op
	for len(src) > 0 {
		op, rest, err := Decode(src)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		src = rest
	}
	return ops, nil
}
