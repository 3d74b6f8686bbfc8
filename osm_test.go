package osmdata_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata"
	"github.com/chourmo/osmdata/model"
)

// --- synthetic PBF byte builders, same encoding helpers as
// internal/blockindex's own end-to-end test, duplicated here since they
// are unexported in that package.

func encodeUvarint(v uint64) []byte {
	var buf []byte
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func fieldKey(field int, wt int) []byte {
	return encodeUvarint(uint64(field)<<3 | uint64(wt))
}

func lengthDelimited(field int, payload []byte) []byte {
	buf := fieldKey(field, 2)
	buf = append(buf, encodeUvarint(uint64(len(payload)))...)

	return append(buf, payload...)
}

func varintField(field int, v uint64) []byte {
	buf := fieldKey(field, 0)
	return append(buf, encodeUvarint(v)...)
}

func packedDeltaSint64(field int, deltas []int64) []byte {
	var payload []byte
	for _, d := range deltas {
		payload = append(payload, encodeUvarint(zigzagEncode(d))...)
	}

	return lengthDelimited(field, payload)
}

func packedVarints(field int, vals []uint64) []byte {
	var payload []byte
	for _, v := range vals {
		payload = append(payload, encodeUvarint(v)...)
	}

	return lengthDelimited(field, payload)
}

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

// buildFixture assembles a one-block synthetic PBF file: local string
// table ["", "building", "yes", "type", "multipolygon", "outer"], a
// DenseNodes group of three nodes (ids 10/15/20, all at 0,0, node 10
// tagged building=yes), a way (id 100, tagged building=yes, a closed
// 4-ref ring over those three nodes so it classifies as an area via
// internal/rules.IsAreaKeyAnyValue's "building" entry), and a relation
// (id 900, tagged type=multipolygon, one outer member referencing the
// way) — every primitive kind in a single PrimitiveGroup.
func buildFixture(t *testing.T) string {
	t.Helper()

	headerPayload := lengthDelimited(4, []byte("DenseNodes"))
	headerBlobBuf := lengthDelimited(1, headerPayload)
	headerHeaderBuf := buildBlobHeader("OSMHeader", len(headerBlobBuf))

	var denseBuf []byte
	denseBuf = append(denseBuf, packedDeltaSint64(1, []int64{10, 5, 5})...)  // ids: 10, 15, 20
	denseBuf = append(denseBuf, packedDeltaSint64(8, []int64{0, 0, 0})...)   // lat
	denseBuf = append(denseBuf, packedDeltaSint64(9, []int64{0, 0, 0})...)   // lon
	denseBuf = append(denseBuf, packedVarints(10, []uint64{1, 2, 0, 0, 0})...) // kv: node 10 building=yes, nodes 15/20 untagged

	var wayBuf []byte
	wayBuf = append(wayBuf, varintField(1, 100)...)
	wayBuf = append(wayBuf, packedVarints(2, []uint64{1})...) // keys: building
	wayBuf = append(wayBuf, packedVarints(3, []uint64{2})...) // vals: yes
	wayBuf = append(wayBuf, packedDeltaSint64(8, []int64{10, 5, 5, -10})...) // refs: 10,15,20,10

	var relBuf []byte
	relBuf = append(relBuf, varintField(1, 900)...)
	relBuf = append(relBuf, packedVarints(2, []uint64{3})...) // keys: type
	relBuf = append(relBuf, packedVarints(3, []uint64{4})...) // vals: multipolygon
	relBuf = append(relBuf, packedVarints(8, []uint64{5})...) // roles: outer
	relBuf = append(relBuf, packedDeltaSint64(9, []int64{100})...) // memids: way 100
	relBuf = append(relBuf, packedVarints(10, []uint64{1})...)     // types: way

	var groupBuf []byte
	groupBuf = append(groupBuf, lengthDelimited(2, denseBuf)...)
	groupBuf = append(groupBuf, lengthDelimited(3, wayBuf)...)
	groupBuf = append(groupBuf, lengthDelimited(4, relBuf)...)

	var blockBuf []byte
	for _, s := range []string{"", "building", "yes", "type", "multipolygon", "outer"} {
		blockBuf = append(blockBuf, lengthDelimited(1, []byte(s))...)
	}
	blockBuf = append(blockBuf, lengthDelimited(2, groupBuf)...)

	dataBlobBuf := lengthDelimited(1, blockBuf)
	dataHeaderBuf := buildBlobHeader("OSMData", len(dataBlobBuf))

	var file bytes.Buffer
	writeFramed(&file, headerHeaderBuf, headerBlobBuf)
	writeFramed(&file, dataHeaderBuf, dataBlobBuf)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.pbf")
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o600))

	return path
}

func TestOpenAndInfo(t *testing.T) {
	o, err := osmdata.Open(buildFixture(t))
	require.NoError(t, err)
	defer o.Close()

	info := o.Info()
	assert.Equal(t, []string{"DenseNodes"}, info.Header.RequiredFeatures)
	assert.Equal(t, int64(3), info.NodeCount)
	assert.Equal(t, int64(1), info.WayCount)
	assert.Equal(t, int64(1), info.RelationCount)
	assert.Equal(t, 1, info.BlockCount)
	assert.Equal(t, 6, info.StringCount)
	assert.Equal(t, 3, info.CoordCount)
}

func TestQueryNodesReturnsAllThreeWithTags(t *testing.T) {
	o, err := osmdata.Open(buildFixture(t))
	require.NoError(t, err)
	defer o.Close()

	q := osmdata.NewQuery()
	q.Nodes = true
	q.KeepFirst = false

	table, err := o.Query(q)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	ids := []int64{table.Rows[0].OSMID, table.Rows[1].OSMID, table.Rows[2].OSMID}
	assert.Equal(t, []int64{10, 15, 20}, ids)
	assert.Equal(t, "yes", table.Rows[0].Tags["building"])
	assert.Empty(t, table.Rows[1].Tags)
}

func TestQueryWaysWithGeometryClassifiesClosedRingAsArea(t *testing.T) {
	o, err := osmdata.Open(buildFixture(t))
	require.NoError(t, err)
	defer o.Close()

	q := osmdata.NewQuery()
	q.Ways = true
	q.Geometry = true
	q.KeepFirst = false

	table, err := o.Query(q)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, int64(100), row.OSMID)
	assert.Equal(t, model.Way, row.Type)
	require.Len(t, row.Polygons, 1)
	require.Len(t, row.Polygons[0].Rings, 1)
	assert.Len(t, row.Polygons[0].Rings[0], 4)
}

func TestQueryRelationsWithGeometryExpandsMemberWay(t *testing.T) {
	o, err := osmdata.Open(buildFixture(t))
	require.NoError(t, err)
	defer o.Close()

	q := osmdata.NewQuery()
	q.Relations = true
	q.Geometry = true
	q.KeepFirst = false

	table, err := o.Query(q)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, int64(900), row.OSMID)
	assert.Equal(t, model.Relation, row.Type)
	assert.Equal(t, "multipolygon", row.Tags["type"])
	require.Len(t, row.Polygons, 1)
	require.Len(t, row.Polygons[0].Rings, 1)
	assert.Len(t, row.Polygons[0].Rings[0], 4)
}
