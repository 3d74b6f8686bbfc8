// Package frame materializes a merged pack.Result, plus the geometry/
// topology assembled from its member rows, into the row-oriented shape
// a caller actually consumes: one Row per surviving element, tags
// unstacked into a map, and (when requested) a resolved point,
// linestring, or polygon set. Package geometry works entirely in node
// ids; frame is where ids are finally resolved to coordinates, since it
// is also the layer that merges plain node points in alongside
// relation/way geometry.
package frame

import (
	"sort"

	"github.com/chourmo/osmdata/internal/coordcache"
	"github.com/chourmo/osmdata/internal/geometry"
	"github.com/chourmo/osmdata/internal/pack"
	"github.com/chourmo/osmdata/model"
)

// Polygon is one outer ring plus its holes, each resolved to
// coordinates.
type Polygon struct {
	Rings [][]coordcache.Point
}

// Row is one output element: its id, kind, optional metadata, tag map,
// and whichever one of Point/Line/Polygons was asked for and applies to
// this element's geometry class.
type Row struct {
	OSMID int64
	Type  model.EntityType
	Info  model.Info
	Tags  map[string]string

	Point    *coordcache.Point
	Line     []coordcache.Point
	Polygons []Polygon
}

// Segment is one topology-mode linestring: a slice of a relation's way
// network split at a shared node, carrying the owning relation's id and
// its resolved endpoint node ids.
type Segment struct {
	OSMID          int64
	Points         []coordcache.Point
	Source, Target int64
}

// Table is the final materialized result: Rows sorted by osm id (the
// last step of the pipeline), and, in topology mode, the segment set
// instead of per-relation Line/Polygons.
type Table struct {
	Rows     []Row
	Segments []Segment
}

// Build projects a merged Result into a Table. geometry/topology mirror
// the originating Query's flags: geometry resolves node points, way
// lines/rings, and relation points/lines/areas. With topology set, rows
// get no Point/Line/Polygons at all; instead relation member ways are
// split into segments in Table.Segments. extraWayNodes supplements result's own way refs with ways
// fetched only to resolve relation member geometry (the caller's
// secondary ways-only query, restricted to the member ids a relation
// query turned up) — those ways never become output rows themselves, so
// they arrive as a plain node-id index rather than another Result.
func Build(result pack.Result, extraWayNodes map[int64][]int64, strings []string, coords *coordcache.Cache, useGeometry, useTopology bool) *Table {
	wayNodes := wayNodeIndex(result)
	for id, nodes := range extraWayNodes {
		if _, ok := wayNodes[id]; !ok {
			wayNodes[id] = nodes
		}
	}

	wayGeoms := wayGeomIndex(result)
	tags := tagsIndex(result, strings)

	rows := make([]Row, len(result.Identifiers))

	for row, id := range result.Identifiers {
		r := Row{
			OSMID: id.ID,
			Type:  id.Type,
			Info:  id.Info,
			Tags:  tags[row],
		}

		if useGeometry && !useTopology {
			switch id.Type {
			case model.Node:
				if p, ok := coords.Lookup(id.ID); ok {
					r.Point = &p
				}
			case model.Way:
				switch wayGeoms[row] {
				case model.GeomLine:
					r.Line = resolvePoints(wayNodes[id.ID], coords)
				case model.GeomArea:
					r.Polygons = []Polygon{{Rings: [][]coordcache.Point{resolvePoints(wayNodes[id.ID], coords)}}}
				}
			}
		}

		rows[row] = r
	}

	var segments []Segment

	switch {
	case useTopology:
		for _, seg := range geometry.AssembleTopology(result.Members, wayNodes) {
			segments = append(segments, Segment{
				OSMID:  result.Identifiers[seg.Row].ID,
				Points: resolvePoints(seg.Points, coords),
				Source: seg.Source,
				Target: seg.Target,
			})
		}
	case useGeometry:
		for _, p := range geometry.AssemblePoints(result.Members, coords) {
			pt := p.Point
			rows[p.Row].Point = &pt
		}

		for _, l := range geometry.AssembleLines(result.Members, wayNodes) {
			rows[l.Row].Line = resolvePoints(l.Points, coords)
		}

		for _, a := range geometry.AssembleAreas(result.Members, wayNodes) {
			rows[a.Row].Polygons = convertPolygons(a.Polygons, coords)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].OSMID < rows[j].OSMID })
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].OSMID < segments[j].OSMID })

	return &Table{Rows: rows, Segments: segments}
}

// WayNodes collects every way's ordered node-ref list, keyed by way id,
// from the member rows its own AddWay call produced. Exposed so a
// ways-only result fetched purely to resolve relation member geometry
// can be turned into the same shape Build's extraWayNodes expects.
func WayNodes(result pack.Result) map[int64][]int64 {
	return wayNodeIndex(result)
}

// wayNodeIndex collects every way's ordered node-ref list, keyed by way
// id, from the member rows its own AddWay call produced.
func wayNodeIndex(result pack.Result) map[int64][]int64 {
	out := make(map[int64][]int64)

	row := -1
	var nodes []int64

	flush := func() {
		if row >= 0 && result.Identifiers[row].Type == model.Way {
			out[result.Identifiers[row].ID] = nodes
		}
	}

	for _, m := range result.Members {
		if m.Row != row {
			flush()
			row = m.Row
			nodes = nil
		}

		nodes = append(nodes, m.MemberID)
	}

	flush()

	return out
}

// wayGeomIndex reports the geometry class recorded against each way
// row (every member row a way owns repeats the way's own Geom).
func wayGeomIndex(result pack.Result) map[int]model.GeomClass {
	out := make(map[int]model.GeomClass)

	for _, m := range result.Members {
		if result.Identifiers[m.Row].Type == model.Way {
			out[m.Row] = m.Geom
		}
	}

	return out
}

// tagsIndex unstacks (row, key, value) tag triples into one string map
// per row.
func tagsIndex(result pack.Result, strings []string) map[int]map[string]string {
	out := make(map[int]map[string]string)

	for _, t := range result.Tags {
		m, ok := out[t.Row]
		if !ok {
			m = make(map[string]string)
			out[t.Row] = m
		}

		m[strings[t.Key]] = strings[t.Value]
	}

	return out
}

func resolvePoints(ids []int64, coords *coordcache.Cache) []coordcache.Point {
	out := make([]coordcache.Point, 0, len(ids))

	for _, id := range ids {
		if p, ok := coords.Lookup(id); ok {
			out = append(out, p)
		}
	}

	return out
}

func convertPolygons(polys []geometry.Polygon, coords *coordcache.Cache) []Polygon {
	out := make([]Polygon, len(polys))

	for i, p := range polys {
		rings := make([][]coordcache.Point, len(p.Rings))
		for j, r := range p.Rings {
			rings[j] = resolvePoints(r.Nodes, coords)
		}

		out[i] = Polygon{Rings: rings}
	}

	return out
}
