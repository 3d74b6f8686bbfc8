// Package wire implements a hand-rolled protobuf wire-format codec:
// unsigned/zig-zag varints, field-key decode, packed repeated scalar
// fields (with optional running-delta accumulation), and
// length-delimited byte slices. It intentionally does not depend on a
// generated protobuf message type so that callers can recover the byte
// offset of every individual wire value — the block indexer
// (internal/blockindex) needs exactly that to record per-element
// offsets without re-encoding anything.
package wire

import (
	"errors"
	"fmt"
)

// ErrMalformedVarint is returned when a varint does not terminate within
// 10 bytes, or would read past the end of the buffer.
var ErrMalformedVarint = errors.New("pbf: malformed varint")

// ErrFieldOverrun is returned when a length-delimited field's declared
// length would read past the end of its containing buffer.
var ErrFieldOverrun = errors.New("pbf: field overrun")

const maxVarintBytes = 10

// WireType is the low 3 bits of a protobuf field key.
type WireType uint8

const (
	WireVarint          WireType = 0
	WireFixed64         WireType = 1
	WireLengthDelimited WireType = 2
	WireFixed32         WireType = 5
)

// Uvarint decodes an unsigned varint starting at offset, returning the
// value and the offset of the next byte after it.
func Uvarint(buf []byte, offset int) (uint64, int, error) {
	var (
		result uint64
		shift  uint
	)

	for i := 0; i < maxVarintBytes; i++ {
		pos := offset + i
		if pos >= len(buf) {
			return 0, 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedVarint, offset)
		}

		b := buf[pos]
		result |= uint64(b&0x7f) << shift

		if b&0x80 == 0 {
			return result, pos + 1, nil
		}

		shift += 7
	}

	return 0, 0, fmt.Errorf("%w: does not terminate within %d bytes", ErrMalformedVarint, maxVarintBytes)
}

// Varint decodes a plain (non-zig-zag) signed varint, i.e. protobuf's
// int32/int64 scalar encoding.
func Varint(buf []byte, offset int) (int64, int, error) {
	u, next, err := Uvarint(buf, offset)
	return int64(u), next, err
}

// ZigZag decodes a zig-zag encoded signed varint, i.e. protobuf's
// sint32/sint64 scalar encoding: (n>>1) XOR -(n&1).
func ZigZag(buf []byte, offset int) (int64, int, error) {
	u, next, err := Uvarint(buf, offset)
	if err != nil {
		return 0, 0, err
	}

	return int64(u>>1) ^ -int64(u&1), next, nil
}

// DecodeZigZag un-zig-zags an already-decoded unsigned value. Exposed
// separately so packed-delta readers can decode each element without
// repeating the varint scan.
func DecodeZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// Key decodes a field key varint into its field number and wire type.
func Key(buf []byte, offset int) (field int, wt WireType, next int, err error) {
	v, next, err := Uvarint(buf, offset)
	if err != nil {
		return 0, 0, 0, err
	}

	return int(v >> 3), WireType(v & 7), next, nil
}

// Bytes decodes a length-delimited field: a varint length followed by that
// many raw bytes. Returns the slice (a view into buf, not a copy) and the
// offset of the next byte after it.
func Bytes(buf []byte, offset int) ([]byte, int, error) {
	length, next, err := Uvarint(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	end := next + int(length)
	if end > len(buf) || end < next {
		return nil, 0, fmt.Errorf("%w: length %d at offset %d exceeds buffer of %d bytes", ErrFieldOverrun, length, next, len(buf))
	}

	return buf[next:end], end, nil
}

// Skip advances past a single field value of the given wire type, without
// interpreting it. Used to silently skip unknown fields so decoders stay
// forward-compatible with message additions.
func Skip(buf []byte, offset int, wt WireType) (int, error) {
	switch wt {
	case WireVarint:
		_, next, err := Uvarint(buf, offset)
		return next, err
	case WireFixed64:
		if offset+8 > len(buf) {
			return 0, fmt.Errorf("%w: fixed64 at offset %d", ErrFieldOverrun, offset)
		}

		return offset + 8, nil
	case WireLengthDelimited:
		_, next, err := Bytes(buf, offset)
		return next, err
	case WireFixed32:
		if offset+4 > len(buf) {
			return 0, fmt.Errorf("%w: fixed32 at offset %d", ErrFieldOverrun, offset)
		}

		return offset + 4, nil
	default:
		return 0, fmt.Errorf("pbf: unsupported wire type %d at offset %d", wt, offset)
	}
}

// PackedVarints decodes a packed repeated varint field (a length-delimited
// field whose payload is a back-to-back sequence of varints) into plain
// int64 values, with no delta accumulation.
func PackedVarints(buf []byte, offset int) ([]int64, int, error) {
	payload, next, err := Bytes(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	var out []int64

	pos := 0
	for pos < len(payload) {
		v, n, err := Varint(payload, pos)
		if err != nil {
			return nil, 0, err
		}

		out = append(out, v)
		pos = n
	}

	return out, next, nil
}

// PackedUint32 is PackedVarints narrowed to uint32, used for the key/value
// string-table index arrays (packed uint32 local string ids).
func PackedUint32(buf []byte, offset int) ([]uint32, int, error) {
	payload, next, err := Bytes(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	var out []uint32

	pos := 0
	for pos < len(payload) {
		v, n, err := Uvarint(payload, pos)
		if err != nil {
			return nil, 0, err
		}

		out = append(out, uint32(v))
		pos = n
	}

	return out, next, nil
}

// PackedEnum decodes a packed repeated enum field (unsigned varints, no
// delta) into plain int32 values.
func PackedEnum(buf []byte, offset int) ([]int32, int, error) {
	payload, next, err := Bytes(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	var out []int32

	pos := 0
	for pos < len(payload) {
		v, n, err := Uvarint(payload, pos)
		if err != nil {
			return nil, 0, err
		}

		out = append(out, int32(v))
		pos = n
	}

	return out, next, nil
}

// PackedDeltaSint64 decodes a packed repeated sint64 field with running
// delta accumulation, i.e. OSM's standard encoding for node refs, member
// ids, and dense-node id/lat/lon arrays.
func PackedDeltaSint64(buf []byte, offset int) ([]int64, int, error) {
	payload, next, err := Bytes(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	var (
		out   []int64
		accum int64
	)

	pos := 0
	for pos < len(payload) {
		u, n, err := Uvarint(payload, pos)
		if err != nil {
			return nil, 0, err
		}

		accum += DecodeZigZag(u)
		out = append(out, accum)
		pos = n
	}

	return out, next, nil
}
