package blobio_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata/internal/blobio"
	"github.com/chourmo/osmdata/internal/errs"
)

func encodeUvarint(v uint64) []byte {
	var buf []byte
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func fieldKey(field int, wt int) []byte {
	return encodeUvarint(uint64(field)<<3 | uint64(wt))
}

func lengthDelimited(field int, payload []byte) []byte {
	buf := fieldKey(field, 2)
	buf = append(buf, encodeUvarint(uint64(len(payload)))...)

	return append(buf, payload...)
}

// buildBlobHeader encodes a minimal BlobHeader: field 1 = type, field 3 =
// datasize.
func buildBlobHeader(typ string, dataSize int) []byte {
	buf := lengthDelimited(1, []byte(typ))
	buf = append(buf, fieldKey(3, 0)...)
	buf = append(buf, encodeUvarint(uint64(dataSize))...)

	return buf
}

func writeFramed(w *bytes.Buffer, headerBuf, blobBuf []byte) {
	binary.Write(w, binary.BigEndian, uint32(len(headerBuf)))
	w.Write(headerBuf)
	w.Write(blobBuf)
}

func TestReadBlobRaw(t *testing.T) {
	payload := []byte("hello osm data")
	blobBuf := lengthDelimited(1, payload)
	headerBuf := buildBlobHeader("OSMData", len(blobBuf))

	var file bytes.Buffer
	writeFramed(&file, headerBuf, blobBuf)

	b, err := blobio.ReadBlob(&file)
	require.NoError(t, err)
	assert.Equal(t, blobio.BlobData, b.Type)
	assert.Equal(t, payload, b.Payload)
}

func TestReadFramedRangeAndReplay(t *testing.T) {
	payload := []byte("replayable block bytes")
	blobBuf := lengthDelimited(1, payload)
	headerBuf := buildBlobHeader("OSMData", len(blobBuf))

	var file bytes.Buffer
	writeFramed(&file, headerBuf, blobBuf)

	typ, raw, start, end, err := blobio.ReadFramed(&file, 0)
	require.NoError(t, err)
	assert.Equal(t, blobio.BlobData, typ)
	assert.Equal(t, int64(len(blobBuf)), end-start)
	assert.Equal(t, blobBuf, raw)

	decoded, err := blobio.DecodeDataBlob(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestReadBlobZlib(t *testing.T) {
	raw := bytes.Repeat([]byte("abcdefgh"), 100)

	var compressed bytes.Buffer

	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var blobBuf []byte
	blobBuf = append(blobBuf, fieldKey(2, 0)...)
	blobBuf = append(blobBuf, encodeUvarint(uint64(len(raw)))...)
	blobBuf = append(blobBuf, lengthDelimited(3, compressed.Bytes())...)

	headerBuf := buildBlobHeader("OSMData", len(blobBuf))

	var file bytes.Buffer
	writeFramed(&file, headerBuf, blobBuf)

	b, err := blobio.ReadBlob(&file)
	require.NoError(t, err)
	assert.Equal(t, raw, b.Payload)
}

func TestReadBlobUnsupportedCompression(t *testing.T) {
	blobBuf := lengthDelimited(4, []byte("fake lzma"))
	headerBuf := buildBlobHeader("OSMData", len(blobBuf))

	var file bytes.Buffer
	writeFramed(&file, headerBuf, blobBuf)

	_, err := blobio.ReadBlob(&file)
	assert.ErrorIs(t, err, errs.ErrUnsupportedCompression)
}

func TestReadBlobTruncated(t *testing.T) {
	headerBuf := buildBlobHeader("OSMData", 100)

	var file bytes.Buffer
	writeFramed(&file, headerBuf, []byte("short"))

	_, err := blobio.ReadBlob(&file)
	assert.ErrorIs(t, err, errs.ErrTruncated)
}

func TestReadBlobEOF(t *testing.T) {
	_, err := blobio.ReadBlob(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeHeader(t *testing.T) {
	var buf []byte

	bbox := fieldKey(1, 0)
	_ = bbox

	var bboxPayload []byte
	bboxPayload = append(bboxPayload, fieldKey(1, 0)...) // left
	bboxPayload = append(bboxPayload, encodeUvarint(zigzagEncode(-100))...)
	bboxPayload = append(bboxPayload, fieldKey(2, 0)...) // right
	bboxPayload = append(bboxPayload, encodeUvarint(zigzagEncode(100))...)
	bboxPayload = append(bboxPayload, fieldKey(3, 0)...) // top
	bboxPayload = append(bboxPayload, encodeUvarint(zigzagEncode(500000000))...)
	bboxPayload = append(bboxPayload, fieldKey(4, 0)...) // bottom
	bboxPayload = append(bboxPayload, encodeUvarint(zigzagEncode(-500000000))...)

	buf = append(buf, lengthDelimited(1, bboxPayload)...)
	buf = append(buf, lengthDelimited(4, []byte("DenseNodes"))...)
	buf = append(buf, lengthDelimited(16, []byte("osmdata-test"))...)

	h, err := blobio.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"DenseNodes"}, h.RequiredFeatures)
	assert.Equal(t, "osmdata-test", h.WritingProgram)
	require.NotNil(t, h.BoundingBox)
	assert.InDelta(t, 0.5, float64(h.BoundingBox.Top), 1e-9)
}

func TestDecodeHeaderUnsupportedFeature(t *testing.T) {
	buf := lengthDelimited(4, []byte("Has_Metadata"))

	_, err := blobio.DecodeHeader(buf)
	assert.ErrorIs(t, err, errs.ErrUnsupportedFeature)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}
