// Package blobio decodes the file-level framing of a PBF file: the
// fixed-size blob-header length prefix, the BlobHeader, the Blob itself,
// and the compression it carries. It decodes both BlobHeader and Blob by
// hand with internal/wire rather than a generated protobuf message, for
// the same reason internal/wire exists — the block indexer built on top
// needs raw byte offsets, not a re-encodable message tree.
package blobio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/chourmo/osmdata/internal/core"
	"github.com/chourmo/osmdata/internal/errs"
	"github.com/chourmo/osmdata/internal/wire"
)

// BlobType distinguishes the two kinds of top-level blob a PBF file
// carries.
type BlobType int

const (
	BlobUnknown BlobType = iota
	BlobHeader
	BlobData
)

func blobTypeOf(s string) BlobType {
	switch s {
	case "OSMHeader":
		return BlobHeader
	case "OSMData":
		return BlobData
	default:
		return BlobUnknown
	}
}

// Blob is one decompressed OSMHeader or OSMData blob: its type and its
// decompressed payload. It does not carry its position in the file.
type Blob struct {
	Type    BlobType
	Payload []byte
}

// ReadBlob reads and decompresses the next blob from r: a 4-byte
// big-endian header length, the BlobHeader itself, and the Blob payload
// it announces. Returns io.EOF (unwrapped) when r is exhausted cleanly
// between blobs.
func ReadBlob(r io.Reader) (Blob, error) {
	typ, raw, _, _, err := ReadFramed(r, 0)
	if err != nil {
		return Blob{}, err
	}

	payload, err := decodeBlob(raw)
	if err != nil {
		return Blob{}, err
	}

	return Blob{Type: typ, Payload: payload}, nil
}

// ReadFramed reads the next blob's framing from r without decompressing
// it, returning the blob's type, its raw (possibly compressed) payload
// bytes, and the byte range ([dataStart, dataEnd)) that payload occupies
// in the file, given the file offset the caller is at before this call
// (cursor). The block indexer uses the byte range to re-seek straight to
// a block's raw bytes on the second pass, skipping the blob header. Callers
// that don't need random access later (cursor == 0 and range discarded) can
// ignore dataStart/dataEnd, as ReadBlob does.
func ReadFramed(r io.Reader, cursor int64) (typ BlobType, raw []byte, dataStart, dataEnd int64, err error) {
	headerBuf := core.NewPooledBuffer()
	defer headerBuf.Close()

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		if err == io.EOF {
			return 0, nil, 0, 0, io.EOF
		}

		return 0, nil, 0, 0, fmt.Errorf("osmdata: reading blob header length: %w", err)
	}

	if _, err := io.CopyN(headerBuf, r, int64(headerLen)); err != nil {
		return 0, nil, 0, 0, fmt.Errorf("%w: blob header: %v", errs.ErrTruncated, err)
	}

	typeStr, dataSize, err := decodeBlobHeader(headerBuf.Bytes())
	if err != nil {
		return 0, nil, 0, 0, err
	}

	blobType := blobTypeOf(typeStr)
	if blobType == BlobUnknown {
		return 0, nil, 0, 0, fmt.Errorf("osmdata: unrecognized blob type %q", typeStr)
	}

	dataBuf := core.NewPooledBuffer()
	defer dataBuf.Close()

	if _, err := io.CopyN(dataBuf, r, dataSize); err != nil {
		return 0, nil, 0, 0, fmt.Errorf("%w: blob payload: %v", errs.ErrTruncated, err)
	}

	raw = make([]byte, dataBuf.Len())
	copy(raw, dataBuf.Bytes())

	dataStart = cursor + 4 + int64(headerLen)
	dataEnd = dataStart + int64(len(raw))

	return blobType, raw, dataStart, dataEnd, nil
}

// DecodeDataBlob decompresses a raw Blob message payload, as returned by
// ReadFramed, into the primitive-block bytes it wraps. Exposed separately
// from ReadBlob so the second query pass can decompress a blob it
// re-read by byte range without re-walking the blob header.
func DecodeDataBlob(raw []byte) ([]byte, error) {
	return decodeBlob(raw)
}

// decodeBlobHeader walks a BlobHeader message: field 1 = type (string),
// field 3 = datasize (int32). Field 2 (indexdata) is skipped silently,
// per the OSM PBF spec, since this decoder never needs it.
func decodeBlobHeader(buf []byte) (typ string, dataSize int64, err error) {
	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return "", 0, fmt.Errorf("osmdata: decoding blob header: %w", err)
		}

		offset = next

		switch field {
		case 1:
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return "", 0, fmt.Errorf("osmdata: decoding blob header type: %w", err)
			}

			typ = string(b)
			offset = next
		case 3:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return "", 0, fmt.Errorf("osmdata: decoding blob header datasize: %w", err)
			}

			dataSize = v
			offset = next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return "", 0, fmt.Errorf("osmdata: skipping blob header field %d: %w", field, err)
			}
		}
	}

	return typ, dataSize, nil
}

// Compression identifies which Blob data field was present.
type Compression int

const (
	CompressionRaw  Compression = 1
	CompressionZlib Compression = 3
	CompressionLzma Compression = 4
	CompressionLz4  Compression = 6
	CompressionZstd Compression = 7
)

// DecodeDataBlobDiscriminator decompresses a raw Blob message payload,
// same as DecodeDataBlob, and additionally reports which compression
// discriminator the blob used, so a block index entry can record it
// alongside the byte range.
func DecodeDataBlobDiscriminator(raw []byte) ([]byte, Compression, error) {
	return decodeBlobWithDiscriminator(raw)
}

// decodeBlob walks a Blob message and returns its decompressed payload.
// Field discriminators per the OSM PBF spec: 1 = raw bytes, 2 = raw_size
// (int32, the decompressed length, present alongside any compressed
// variant), 3 = zlib_data, 4 = lzma_data, 6 = lz4_data, 7 = zstd_data.
func decodeBlob(buf []byte) ([]byte, error) {
	payload, _, err := decodeBlobWithDiscriminator(buf)
	return payload, err
}

func decodeBlobWithDiscriminator(buf []byte) ([]byte, Compression, error) {
	var (
		raw      []byte
		zlibData []byte
		rawSize  int64
		hasRaw   bool
		hasZlib  bool
		unsup    int
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("osmdata: decoding blob: %w", err)
		}

		offset = next

		switch field {
		case 1:
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return nil, 0, fmt.Errorf("osmdata: decoding blob raw data: %w", err)
			}

			raw, offset, hasRaw = b, next, true
		case 2:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return nil, 0, fmt.Errorf("osmdata: decoding blob raw_size: %w", err)
			}

			rawSize, offset = v, next
		case 3:
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return nil, 0, fmt.Errorf("osmdata: decoding blob zlib_data: %w", err)
			}

			zlibData, offset, hasZlib = b, next, true
		case 4, 6, 7:
			unsup = field

			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, 0, fmt.Errorf("osmdata: skipping blob field %d: %w", field, err)
			}
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, 0, fmt.Errorf("osmdata: skipping blob field %d: %w", field, err)
			}
		}
	}

	switch {
	case hasRaw:
		return raw, CompressionRaw, nil
	case hasZlib:
		payload, err := inflate(zlibData, rawSize)
		return payload, CompressionZlib, err
	case unsup != 0:
		return nil, 0, fmt.Errorf("%w: field %d", errs.ErrUnsupportedCompression, unsup)
	default:
		return nil, 0, fmt.Errorf("%w: blob has no data field", errs.ErrUnsupportedCompression)
	}
}

func inflate(zlibData []byte, rawSize int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(zlibData))
	if err != nil {
		return nil, fmt.Errorf("osmdata: opening zlib stream: %w", err)
	}
	defer r.Close()

	out := core.NewPooledBuffer()
	defer out.Close()

	if rawSize > 0 {
		out.Grow(int(rawSize) + bytes.MinRead)
	}

	if _, err := out.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("osmdata: inflating zlib blob: %w", err)
	}

	if rawSize > 0 && int64(out.Len()) != rawSize {
		return nil, fmt.Errorf("osmdata: inflated blob is %d bytes, header declared %d", out.Len(), rawSize)
	}

	// Copy out of the pooled buffer before it's returned to the pool.
	payload := make([]byte, out.Len())
	copy(payload, out.Bytes())

	return payload, nil
}
