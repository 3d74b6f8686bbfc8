// Package osmdata parses OpenStreetMap PBF files in two passes: Open
// walks every block once to index element offsets, cache node
// coordinates, and merge string tables; Query re-reads only the blocks a
// compiled predicate can't rule out, decodes the elements it asks for,
// and materializes them into a frame.Table.
package osmdata

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/destel/rill"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/chourmo/osmdata/frame"
	"github.com/chourmo/osmdata/internal/blobio"
	"github.com/chourmo/osmdata/internal/blockindex"
	"github.com/chourmo/osmdata/internal/compile"
	"github.com/chourmo/osmdata/internal/errs"
	"github.com/chourmo/osmdata/internal/pack"
	"github.com/chourmo/osmdata/internal/primitive"
	"github.com/chourmo/osmdata/internal/wire"
	"github.com/chourmo/osmdata/model"
)

// DefaultWorkers is the default number of blocks decoded concurrently
// during a query.
func DefaultWorkers() int {
	cpus := runtime.GOMAXPROCS(-1)
	if cpus > 1 {
		return cpus - 1
	}

	return 1
}

// options holds construction-time tuning knobs.
type options struct {
	workers  int
	progress bool
}

// Option configures how Open sets up an OSM.
type Option func(*options)

// WithWorkers sets how many blocks a query decodes concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithProgress reports Open's first-pass scan progress on stderr as a
// byte-count bar, the way cmd/osmdata's info command uses it.
func WithProgress() Option {
	return func(o *options) {
		o.progress = true
	}
}

// OSM is an opened PBF file: its first-pass index, global string table,
// and node coordinate cache, ready for repeated queries.
type OSM struct {
	file    *os.File
	index   *blockindex.Index
	lookup  map[string]int32
	workers int
}

// Open validates path has a .pbf extension, then reads the file once to
// build its block index, string table, and node coordinate cache.
func Open(path string, opts ...Option) (*OSM, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pbf") {
		return nil, fmt.Errorf("%w: %s", errs.ErrBadExtension, path)
	}

	o := &options{workers: DefaultWorkers()}
	for _, opt := range opts {
		opt(o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("osmdata: opening %s: %w", path, err)
	}

	var scan io.Reader = f

	var bar *pb.ProgressBar

	if o.progress {
		if fi, statErr := f.Stat(); statErr == nil {
			bar = pb.New(int(fi.Size())).SetUnits(pb.U_BYTES_DEC)
			bar.Output = os.Stderr
			bar.Start()

			scan = bar.NewProxyReader(f)
		}
	}

	idx, err := blockindex.Build(scan)
	if bar != nil {
		bar.Output = nil
		bar.NotPrint = true
		bar.Finish()
		fmt.Fprint(os.Stderr, "\033[2K\r")
	}

	if err != nil {
		f.Close()

		if errors.Is(err, errs.ErrTruncated) || errors.Is(err, errs.ErrUnsupportedFeature) ||
			errors.Is(err, errs.ErrUnsupportedCompression) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %s: %v", errs.ErrNotPBF, path, err)
	}

	lookup := make(map[string]int32, len(idx.Strings))
	for id, s := range idx.Strings {
		lookup[s] = int32(id)
	}

	return &OSM{file: f, index: idx, lookup: lookup, workers: o.workers}, nil
}

// Close releases the underlying file.
func (o *OSM) Close() error {
	return o.file.Close()
}

// Summary reports cache sizes and header contents, the information
// Open's single pass already gathered without a further query.
type Summary struct {
	Header        model.Header
	NodeCount     int64
	WayCount      int64
	RelationCount int64
	BlockCount    int
	StringCount   int
	CoordCount    int
}

// Info returns a Summary of the opened file.
func (o *OSM) Info() Summary {
	return Summary{
		Header:        o.index.Header,
		NodeCount:     o.index.NodeCount,
		WayCount:      o.index.WayCount,
		RelationCount: o.index.RelationCount,
		BlockCount:    len(o.index.Blocks),
		StringCount:   len(o.index.Strings),
		CoordCount:    o.index.Coords.Len(),
	}
}

func (o *OSM) stringLookup(s string) (int32, bool) {
	id, ok := o.lookup[s]
	return id, ok
}

// Query runs q against the opened file and materializes a frame.Table.
// When q asks for relation geometry and a relation's members reference
// ways, a second query restricted to those way ids resolves their node
// refs; the second query's own way rows are discarded, and only the
// resolved node-ref array survives.
func (o *OSM) Query(q *Query) (*frame.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	result, err := o.run(q.toInput())
	if err != nil {
		return nil, err
	}

	var extraWayNodes map[int64][]int64

	if q.Relations && q.Geometry {
		if wayIDs := relationWayIDs(result); len(wayIDs) > 0 {
			wq := compile.Input{
				Ways:   true,
				WayIDs: wayIDs,
				Tags:   []string{},
			}

			wResult, err := o.run(wq)
			if err != nil {
				return nil, err
			}

			extraWayNodes = frame.WayNodes(wResult)
		}
	}

	return frame.Build(result, extraWayNodes, o.index.Strings, o.index.Coords, q.Geometry, q.Topology), nil
}

// relationWayIDs collects every way id referenced as a relation member
// across result, deduplicated.
func relationWayIDs(result pack.Result) []int64 {
	seen := make(map[int64]bool)

	for _, m := range result.Members {
		if result.Identifiers[m.Row].Type != model.Relation {
			continue
		}

		if m.Type != model.Way {
			continue
		}

		seen[m.MemberID] = true
	}

	if len(seen) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	return ids
}

// run compiles in, decodes every surviving block concurrently, and
// merges the results in file order.
func (o *OSM) run(in compile.Input) (pack.Result, error) {
	c := compile.Compile(in, compile.DefaultAreaTables(), o.stringLookup)

	var entries []blockindex.BlockEntry

	for _, entry := range o.index.Blocks {
		if compile.SkipBlock(entry, c) {
			continue
		}

		entries = append(entries, entry)
	}

	blocks, err := o.decodeAll(entries, c)
	if err != nil {
		return pack.Result{}, err
	}

	return pack.Merge(blocks), nil
}

// decodeAll decodes every entry concurrently, up to o.workers at a time.
// The full block list is already known here, so each worker writes its
// rill.Try envelope directly into its own slot of a pre-sized slice
// instead of round-robin channel fan-out/fan-in: no ordering
// reconstruction is needed afterward.
func (o *OSM) decodeAll(entries []blockindex.BlockEntry, c *compile.Compiled) ([]*pack.Block, error) {
	slots := make([]rill.Try[*pack.Block], len(entries))

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, entry blockindex.BlockEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			b, err := o.decodeBlock(entry, c)
			if err != nil {
				slog.Error("osmdata: decoding block failed", "error", err)
			}

			slots[i] = rill.Try[*pack.Block]{Value: b, Error: err}
		}(i, entry)
	}

	wg.Wait()

	blocks := make([]*pack.Block, 0, len(entries))

	for _, s := range slots {
		if s.Error != nil {
			return nil, s.Error
		}

		blocks = append(blocks, s.Value)
	}

	return blocks, nil
}

// decodeBlock re-reads one block's raw bytes, decompresses it, and
// decodes every element the compiled query still wants, applying the
// NodeIDs/WayIDs restriction that primitive.Context itself does not
// enforce: Node/Way are filtered before decode since their id sits at
// a known offset in blockindex's record, Dense nodes only after decode
// since the delta chain can't be entered mid-group.
func (o *OSM) decodeBlock(entry blockindex.BlockEntry, c *compile.Compiled) (*pack.Block, error) {
	raw := make([]byte, entry.End-entry.Start)
	if _, err := o.file.ReadAt(raw, entry.Start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("osmdata: re-reading block at %d: %w", entry.Start, err)
	}

	payload, _, err := blobio.DecodeDataBlobDiscriminator(raw)
	if err != nil {
		return nil, err
	}

	ctx := &primitive.Context{
		Remap:           entry.StringRemap,
		Query:           c,
		Strings:         o.index.Strings,
		DateGranularity: entry.DateGranularity,
	}

	block := pack.NewBlock()

	if c.Nodes {
		for _, eo := range entry.Nodes {
			if c.NodeIDs != nil && !c.NodeIDs[eo.ID] {
				continue
			}

			b, _, err := wire.Bytes(payload, eo.Offset)
			if err != nil {
				return nil, err
			}

			n, err := ctx.Node(b)
			if err != nil {
				return nil, err
			}

			if n != nil {
				block.AddNode(n)
			}
		}

		if entry.HasDense {
			b, _, err := wire.Bytes(payload, entry.DenseOffset)
			if err != nil {
				return nil, err
			}

			nodes, err := ctx.Dense(b)
			if err != nil {
				return nil, err
			}

			for _, n := range nodes {
				if c.NodeIDs != nil && !c.NodeIDs[n.ID] {
					continue
				}

				block.AddNode(n)
			}
		}
	}

	if c.Ways {
		for _, eo := range entry.Ways {
			if c.WayIDs != nil && !c.WayIDs[eo.ID] {
				continue
			}

			b, _, err := wire.Bytes(payload, eo.Offset)
			if err != nil {
				return nil, err
			}

			w, err := ctx.Way(b)
			if err != nil {
				return nil, err
			}

			if w != nil {
				block.AddWay(w)
			}
		}
	}

	if c.Relations {
		for _, eo := range entry.Relations {
			b, _, err := wire.Bytes(payload, eo.Offset)
			if err != nil {
				return nil, err
			}

			r, err := ctx.Relation(b)
			if err != nil {
				return nil, err
			}

			if r != nil {
				block.AddRelation(r)
			}
		}
	}

	return block, nil
}
