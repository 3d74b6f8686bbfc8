// Package blockindex implements the first pass over a PBF file: it walks
// every OSMData block once, records the byte offset and length of every
// node/way/relation/dense-node group element so the query pass can
// re-decode only the elements a compiled predicate actually needs, and
// accumulates the file-wide node coordinate cache and global string
// table along the way.
package blockindex

import (
	"fmt"
	"io"

	"github.com/chourmo/osmdata/internal/blobio"
	"github.com/chourmo/osmdata/internal/coordcache"
	"github.com/chourmo/osmdata/internal/strtable"
	"github.com/chourmo/osmdata/internal/wire"
	"github.com/chourmo/osmdata/model"
)

// ElementOffset locates a single node/way/relation element within its
// block's decompressed payload.
type ElementOffset struct {
	ID     int64
	Offset int
	Length int
}

// BlockEntry is one OSMData block's index record.
type BlockEntry struct {
	// Start/End is the byte range of the raw (possibly compressed) Blob
	// payload within the file, for second-pass re-read via io.ReaderAt.
	Start, End int64

	Compression blobio.Compression

	// StringRemap maps this block's local string ids to the global
	// table built by Builder.
	StringRemap []int32

	// Empty reports that this block's local string table carries no
	// user-meaningful strings: every entry is "", "source", or
	// "source:date". A tag-filtered query can never match such a block.
	Empty bool

	Granularity     int32
	DateGranularity int32
	LatOffset       int64
	LonOffset       int64

	Nodes     []ElementOffset
	Ways      []ElementOffset
	Relations []ElementOffset

	HasDense            bool
	DenseOffset         int
	DenseLength         int
	DenseGroupNodeCount int
}

// Index is the complete first-pass result: one entry per OSMData block,
// plus the merged coordinate cache and string table built while scanning.
type Index struct {
	Blocks  []BlockEntry
	Header  model.Header
	Coords  *coordcache.Cache
	Strings []string

	NodeCount     int64
	WayCount      int64
	RelationCount int64
}

// Build performs the first pass over r, an io.Reader positioned at the
// start of a PBF file.
func Build(r io.Reader) (*Index, error) {
	var (
		entries  []BlockEntry
		header   model.Header
		haveHead bool
		strs     = strtable.NewBuilder()
		coords   coordcache.Builder
		nodeN    int64
		wayN     int64
		relN     int64
	)

	cursor := int64(0)

	for {
		typ, raw, start, end, err := blobio.ReadFramed(r, cursor)
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		cursor = end

		switch typ {
		case blobio.BlobHeader:
			payload, err := blobio.DecodeDataBlob(raw)
			if err != nil {
				return nil, err
			}

			header, err = blobio.DecodeHeader(payload)
			if err != nil {
				return nil, err
			}

			haveHead = true
		case blobio.BlobData:
			payload, compression, err := blobio.DecodeDataBlobDiscriminator(raw)
			if err != nil {
				return nil, err
			}

			entry, n, w, rel, err := indexBlock(payload, strs, &coords)
			if err != nil {
				return nil, err
			}

			entry.Start, entry.End, entry.Compression = start, end, compression
			entries = append(entries, entry)

			nodeN += n
			wayN += w
			relN += rel
		}
	}

	if !haveHead {
		return nil, fmt.Errorf("osmdata: file has no OSMHeader block")
	}

	return &Index{
		Blocks:        entries,
		Header:        header,
		Coords:        coords.Build(),
		Strings:       strs.Strings(),
		NodeCount:     nodeN,
		WayCount:      wayN,
		RelationCount: relN,
	}, nil
}

// indexBlock walks one decompressed PrimitiveBlock's top-level fields:
// field 1 = string table, 2 = primitive group, 17/18/19/20 =
// granularity/date-granularity/lat-offset/lon-offset.
func indexBlock(buf []byte, strs *strtable.Builder, coords *coordcache.Builder) (BlockEntry, int64, int64, int64, error) {
	entry := BlockEntry{Granularity: 100, DateGranularity: 1000}

	var (
		local             [][]byte
		groupBufs         [][]byte
		groupBases        []int
		nodeN, wayN, relN int64
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return BlockEntry{}, 0, 0, 0, fmt.Errorf("osmdata: decoding primitive block: %w", err)
		}

		offset = next

		switch field {
		case 1:
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, fmt.Errorf("osmdata: decoding string table entry: %w", err)
			}

			local = append(local, b)
			offset = next
		case 2:
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, fmt.Errorf("osmdata: decoding primitive group: %w", err)
			}

			groupBufs = append(groupBufs, b)
			groupBases = append(groupBases, next-len(b))
			offset = next
		case 17:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, err
			}

			entry.Granularity = int32(v)
			offset = next
		case 18:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, err
			}

			entry.DateGranularity = int32(v)
			offset = next
		case 19:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, err
			}

			entry.LatOffset = v
			offset = next
		case 20:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, err
			}

			entry.LonOffset = v
			offset = next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return BlockEntry{}, 0, 0, 0, fmt.Errorf("osmdata: skipping primitive block field %d: %w", field, err)
			}
		}
	}

	entry.StringRemap = strs.Merge(local)
	entry.Empty = isEmptyStringTable(local)

	for i, g := range groupBufs {
		n, w, rel, err := indexGroup(g, groupBases[i], &entry, entry.Granularity, entry.LatOffset, entry.LonOffset, coords)
		if err != nil {
			return BlockEntry{}, 0, 0, 0, err
		}

		nodeN += n
		wayN += w
		relN += rel
	}

	return entry, nodeN, wayN, relN, nil
}

// noiseStrings are the string-table entries that carry no user-meaningful
// tag information: the mandatory empty first entry, and the two metadata
// keys osmium and similar tools stamp on otherwise-untagged blocks.
var noiseStrings = map[string]bool{
	"":            true,
	"source":      true,
	"source:date": true,
}

// isEmptyStringTable reports whether local holds nothing but noiseStrings.
func isEmptyStringTable(local [][]byte) bool {
	for _, s := range local {
		if !noiseStrings[string(s)] {
			return false
		}
	}

	return true
}

// indexGroup walks one PrimitiveGroup's top-level fields: 1 = node, 2 =
// dense-nodes, 3 = way, 4 = relation. base is this group's own byte
// offset within the block's decompressed payload, so every recorded
// ElementOffset/DenseOffset ends up relative to the whole block, not
// just this group — the query pass re-decodes a block once and slices
// straight into its payload, with no need to re-split it into groups.
func indexGroup(buf []byte, base int, entry *BlockEntry, granularity int32, latOffset, lonOffset int64, coords *coordcache.Builder) (nodeN, wayN, relN int64, err error) {
	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("osmdata: decoding primitive group: %w", err)
		}

		offset = next

		switch field {
		case 1: // node
			start := offset

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("osmdata: decoding node: %w", err)
			}

			id, err := peekNodeID(b)
			if err != nil {
				return 0, 0, 0, err
			}

			entry.Nodes = append(entry.Nodes, ElementOffset{ID: id, Offset: base + start, Length: next - start})
			offset = next
			nodeN++
		case 2: // dense nodes
			start := offset

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("osmdata: decoding dense nodes: %w", err)
			}

			count, err := indexDenseNodes(b, granularity, latOffset, lonOffset, coords)
			if err != nil {
				return 0, 0, 0, err
			}

			entry.HasDense = true
			entry.DenseOffset = base + start
			entry.DenseLength = next - start
			entry.DenseGroupNodeCount = count

			offset = next
			nodeN += int64(count)
		case 3: // way
			start := offset

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("osmdata: decoding way: %w", err)
			}

			id, err := peekElementID(b)
			if err != nil {
				return 0, 0, 0, err
			}

			entry.Ways = append(entry.Ways, ElementOffset{ID: id, Offset: base + start, Length: next - start})
			offset = next
			wayN++
		case 4: // relation
			start := offset

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("osmdata: decoding relation: %w", err)
			}

			id, err := peekElementID(b)
			if err != nil {
				return 0, 0, 0, err
			}

			entry.Relations = append(entry.Relations, ElementOffset{ID: id, Offset: base + start, Length: next - start})
			offset = next
			relN++
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("osmdata: skipping primitive group field %d: %w", field, err)
			}
		}
	}

	return nodeN, wayN, relN, nil
}

// peekNodeID and peekElementID scan just far enough into an element's
// bytes to find field 1 (id), without decoding the rest; the indexer
// only needs the id to key its offset table, not the full element.
func peekElementID(buf []byte) (int64, error) {
	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return 0, err
		}

		offset = next

		if field == 1 && wt == wire.WireVarint {
			id, _, err := wire.Varint(buf, offset)
			return id, err
		}

		offset, err = wire.Skip(buf, offset, wt)
		if err != nil {
			return 0, err
		}
	}

	return 0, fmt.Errorf("osmdata: element has no id field")
}

func peekNodeID(buf []byte) (int64, error) {
	return peekElementID(buf)
}

// indexDenseNodes decodes the delta-encoded id/lat/lon arrays of a dense
// group, appending each node's coordinate to the cache builder, and
// returns how many nodes the group contains. It does not decode tags or
// metadata — those are the query pass's job, once it knows this group
// survives the compiled predicate.
func indexDenseNodes(buf []byte, granularity int32, latOffset, lonOffset int64, coords *coordcache.Builder) (int, error) {
	var (
		ids        []int64
		lats, lons []int64
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return 0, fmt.Errorf("osmdata: decoding dense nodes: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return 0, fmt.Errorf("osmdata: decoding dense node ids: %w", err)
			}

			ids, offset = v, next
		case 8:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return 0, fmt.Errorf("osmdata: decoding dense node lat: %w", err)
			}

			lats, offset = v, next
		case 9:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return 0, fmt.Errorf("osmdata: decoding dense node lon: %w", err)
			}

			lons, offset = v, next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return 0, fmt.Errorf("osmdata: skipping dense nodes field %d: %w", field, err)
			}
		}
	}

	for i := range ids {
		lat := model.ToDegrees(latOffset, granularity, lats[i])
		lon := model.ToDegrees(lonOffset, granularity, lons[i])
		coords.Add(ids[i], float32(lon), float32(lat))
	}

	return len(ids), nil
}
