package wire_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata/internal/wire"
)

func encodeUvarint(v uint64) []byte {
	var buf []byte
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func TestUvarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 35, ^uint64(0)} {
		buf := encodeUvarint(v)
		got, next, err := wire.Uvarint(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(buf), next)
	}
}

func TestUvarintMalformed(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}
	_, _, err := wire.Uvarint(buf, 0)
	assert.ErrorIs(t, err, wire.ErrMalformedVarint)

	_, _, err = wire.Uvarint([]byte{0x80}, 0)
	assert.ErrorIs(t, err, wire.ErrMalformedVarint)
}

// zigzagEncode mirrors DecodeZigZag in reverse, for test fixtures only.
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func TestZigZagRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		v := int64(r.Uint64())
		buf := encodeUvarint(zigzagEncode(v))
		got, _, err := wire.ZigZag(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestKey(t *testing.T) {
	// field 2, wire type 2 (length-delimited) => (2<<3)|2 = 18
	buf := encodeUvarint(18)
	field, wt, next, err := wire.Key(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, field)
	assert.Equal(t, wire.WireLengthDelimited, wt)
	assert.Equal(t, len(buf), next)
}

func TestBytes(t *testing.T) {
	payload := []byte("OSMHeader")
	buf := append(encodeUvarint(uint64(len(payload))), payload...)

	got, next, err := wire.Bytes(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, len(buf), next)
}

func TestBytesOverrun(t *testing.T) {
	buf := append(encodeUvarint(10), []byte("short")...)
	_, _, err := wire.Bytes(buf, 0)
	assert.ErrorIs(t, err, wire.ErrFieldOverrun)
}

func TestPackedDeltaSint64(t *testing.T) {
	deltas := []int64{5, -2, 10, -10}
	var payload []byte
	for _, d := range deltas {
		payload = append(payload, encodeUvarint(zigzagEncode(d))...)
	}

	buf := append(encodeUvarint(uint64(len(payload))), payload...)

	got, next, err := wire.PackedDeltaSint64(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), next)
	assert.Equal(t, []int64{5, 3, 13, 3}, got)
}

func TestPackedUint32(t *testing.T) {
	values := []uint32{0, 1, 300, 70000}
	var payload []byte
	for _, v := range values {
		payload = append(payload, encodeUvarint(uint64(v))...)
	}

	buf := append(encodeUvarint(uint64(len(payload))), payload...)

	got, _, err := wire.PackedUint32(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestSkipVarint(t *testing.T) {
	buf := encodeUvarint(123456)
	next, err := wire.Skip(buf, 0, wire.WireVarint)
	require.NoError(t, err)
	assert.Equal(t, len(buf), next)
}
