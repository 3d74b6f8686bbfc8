// Package geometry assembles relation member rows into points,
// linestrings, and ring-ordered polygons/multipolygons, plus a
// segmented-topology mode that splits way networks at shared nodes.
// Node ids are carried through as int64; coordinate lookup against the
// file-wide cache happens here only for point geometry — linestrings,
// areas, and topology segments are resolved to coordinates later, by
// the frame layer, since it also needs to merge plain node rows.
package geometry

import (
	"github.com/chourmo/osmdata/internal/coordcache"
	"github.com/chourmo/osmdata/internal/pack"
	"github.com/chourmo/osmdata/model"
)

// PointResult is one relation member resolved to a coordinate. Present
// for completeness: the current relation classifier never assigns
// GeomPoint (multipolygon and route relations are always area or
// line), so this path is currently unreachable from primitive
// decoding, but the assembler handles it the way the rest of the
// pipeline handles every geometry class.
type PointResult struct {
	Row   int
	Point coordcache.Point
}

// LineResult is one relation's assembled linestring: its member ways'
// node lists concatenated in member order.
type LineResult struct {
	Row    int
	Points []int64
}

// Ring is a single closed node sequence with the role it was built
// from ("outer" for simple and traversed-outer rings, "inner" for
// traversed-inner rings).
type Ring struct {
	Role  string
	Nodes []int64
}

// Polygon is one outer ring plus any inner rings classified as its
// holes.
type Polygon struct {
	Rings []Ring
}

// AreaResult is one relation's assembled polygon set: a single entry
// is a polygon, more than one makes it a multipolygon.
type AreaResult struct {
	Row      int
	Polygons []Polygon
}

// TopologySegment is one linestring segment of a way network, split at
// shared nodes.
type TopologySegment struct {
	Row            int
	Points         []int64
	Source, Target int64
}

// AssemblePoints resolves each GeomPoint-classified member to its node
// coordinate.
func AssemblePoints(members []pack.Member, coords *coordcache.Cache) []PointResult {
	var out []PointResult

	for _, group := range groupByRow(members) {
		row := group[0].Row

		for _, m := range group {
			if m.Geom != model.GeomPoint {
				continue
			}

			if p, ok := coords.Lookup(m.MemberID); ok {
				out = append(out, PointResult{Row: row, Point: p})
			}
		}
	}

	return out
}

// AssembleLines concatenates each GeomLine relation's member way node
// lists, in member order, under the relation's row.
func AssembleLines(members []pack.Member, ways map[int64][]int64) []LineResult {
	var out []LineResult

	for _, group := range groupByRow(members) {
		row := group[0].Row

		var points []int64

		for _, m := range group {
			if m.Type != model.Way || m.Geom != model.GeomLine {
				continue
			}

			points = append(points, ways[m.MemberID]...)
		}

		if len(points) == 0 {
			continue
		}

		out = append(out, LineResult{Row: row, Points: points})
	}

	return out
}

// wayRef is one open (non-closed) member way awaiting ring traversal:
// its node list plus the first/last node (_s, _t in the source
// algorithm) used to chain it to its neighbors.
type wayRef struct {
	Role  string
	Nodes []int64
	S, T  int64
}

// orderedMember is one step of a completed ring traversal: which way,
// and whether it's walked forward (1) or reversed (-1).
type orderedMember struct {
	idx int
	dir int
}

// AssembleAreas runs the ring-ordering and polygon assembly procedure
// over each relation's GeomArea member ways:
//
//  1. A member whose role is neither "outer" nor "inner" ("simple
//     area") becomes its own ring directly.
//  2. A closed outer/inner way (first node == last node) becomes its
//     own ring directly.
//  3. The remaining open outer/inner ways are chained by shared
//     endpoint, per role, into rings via traverseOpenWays.
//  4. Complex-ring drop rule: if a relation ends up with more than one
//     outer ring AND more than one inner ring, the inner rings are
//     dropped — matching inners to enclosing outers would need a
//     point-in-polygon test this package doesn't perform, so the
//     ambiguous case is discarded rather than guessed at.
//  5. Every ring is closed (first node appended if unequal to last).
//  6. Rings are grouped into polygons: a single outer ring takes every
//     surviving inner ring as its holes; multiple outer rings each
//     start their own polygon, with any surviving inner rings
//     attached to the last outer ring (again no point-in-polygon
//     matching — see DESIGN.md).
func AssembleAreas(members []pack.Member, ways map[int64][]int64) []AreaResult {
	var out []AreaResult

	for _, group := range groupByRow(members) {
		row := group[0].Row

		var rings []Ring

		var openOuter, openInner []wayRef

		for _, m := range group {
			if m.Type != model.Way || m.Geom != model.GeomArea {
				continue
			}

			nodes := ways[m.MemberID]
			if len(nodes) == 0 {
				continue
			}

			if m.Role != "outer" && m.Role != "inner" {
				rings = append(rings, closeRing(Ring{Role: "outer", Nodes: cloneNodes(nodes)}))
				continue
			}

			s, t := nodes[0], nodes[len(nodes)-1]
			if s == t {
				rings = append(rings, closeRing(Ring{Role: m.Role, Nodes: cloneNodes(nodes)}))
				continue
			}

			wr := wayRef{Role: m.Role, Nodes: nodes, S: s, T: t}
			if m.Role == "outer" {
				openOuter = append(openOuter, wr)
			} else {
				openInner = append(openInner, wr)
			}
		}

		for _, traversal := range []struct {
			role string
			ways []wayRef
		}{{"outer", openOuter}, {"inner", openInner}} {
			for _, ordered := range traverseOpenWays(traversal.ways) {
				rings = append(rings, closeRing(Ring{
					Role:  traversal.role,
					Nodes: buildRingNodes(traversal.ways, ordered),
				}))
			}
		}

		if len(rings) == 0 {
			continue
		}

		var outerRings, innerRings []Ring
		for _, r := range rings {
			if r.Role == "outer" {
				outerRings = append(outerRings, r)
			} else {
				innerRings = append(innerRings, r)
			}
		}

		if len(outerRings) > 1 && len(innerRings) > 1 {
			innerRings = nil
		}

		polys := buildPolygons(outerRings, innerRings)
		if len(polys) == 0 {
			continue
		}

		out = append(out, AreaResult{Row: row, Polygons: polys})
	}

	return out
}

// traverseOpenWays chains a set of open ways sharing endpoints into
// one or more rings. It is the iterative form of the ring-ordering
// procedure: an explicit traversed-flags array and a "current open
// node" cursor, never recursion. Starting from an arbitrary untraversed
// way, it repeatedly looks for a neighbor whose start matches the
// current node (walked forward) or whose end matches it (walked
// reversed); when no neighbor is found the ring is closed off and a
// new one starts from any remaining untraversed way.
func traverseOpenWays(ways []wayRef) [][]orderedMember {
	n := len(ways)
	if n == 0 {
		return nil
	}

	traversed := make([]bool, n)
	remaining := n

	var rings [][]orderedMember

	for remaining > 0 {
		start := -1
		for i, done := range traversed {
			if !done {
				start = i
				break
			}
		}

		if start == -1 {
			break
		}

		traversed[start] = true
		remaining--

		ring := []orderedMember{{idx: start, dir: 1}}
		current := ways[start].T

		for {
			next := -1
			dir := 1

			for i, done := range traversed {
				if done {
					continue
				}

				if ways[i].S == current {
					next, dir = i, 1
					break
				}
			}

			if next == -1 {
				for i, done := range traversed {
					if done {
						continue
					}

					if ways[i].T == current {
						next, dir = i, -1
						break
					}
				}
			}

			if next == -1 {
				break
			}

			traversed[next] = true
			remaining--
			ring = append(ring, orderedMember{idx: next, dir: dir})

			if dir == 1 {
				current = ways[next].T
			} else {
				current = ways[next].S
			}
		}

		rings = append(rings, ring)
	}

	return rings
}

// buildRingNodes concatenates a completed traversal's node sequences,
// reversing any way walked backward and dropping the duplicated
// connecting node between consecutive members.
func buildRingNodes(ways []wayRef, ordered []orderedMember) []int64 {
	var nodes []int64

	for i, om := range ordered {
		seq := ways[om.idx].Nodes
		if om.dir == -1 {
			seq = reversed(seq)
		}

		if i > 0 {
			seq = seq[1:]
		}

		nodes = append(nodes, seq...)
	}

	return nodes
}

func reversed(nodes []int64) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}

	return out
}

func closeRing(r Ring) Ring {
	if len(r.Nodes) == 0 {
		return r
	}

	if r.Nodes[0] != r.Nodes[len(r.Nodes)-1] {
		r.Nodes = append(r.Nodes, r.Nodes[0])
	}

	return r
}

func cloneNodes(nodes []int64) []int64 {
	out := make([]int64, len(nodes))
	copy(out, nodes)

	return out
}

// buildPolygons groups outer/inner rings (already drop-ruled) into
// polygons. A single outer ring owns every surviving inner ring as its
// holes. With multiple outer rings, each starts its own polygon and
// any surviving inner rings attach to the last one — there is no
// point-in-polygon match to place them more precisely.
func buildPolygons(outer, inner []Ring) []Polygon {
	if len(outer) == 0 {
		return nil
	}

	if len(outer) == 1 {
		return []Polygon{{Rings: append([]Ring{outer[0]}, inner...)}}
	}

	polys := make([]Polygon, len(outer))
	for i, o := range outer {
		polys[i] = Polygon{Rings: []Ring{o}}
	}

	if len(inner) > 0 {
		last := &polys[len(polys)-1]
		last.Rings = append(last.Rings, inner...)
	}

	return polys
}

// AssembleTopology splits each relation's member ways into segments at
// shared nodes: every way contributes at least one segment (a way's
// first node always starts a new segment), and any node visited by
// more than one member that falls strictly inside a way — not at that
// way's own start or end, where the way boundary already splits the
// sequence — further splits it at that point, duplicating the shared
// node so each emitted segment owns its own source/target.
func AssembleTopology(members []pack.Member, ways map[int64][]int64) []TopologySegment {
	var out []TopologySegment

	for _, group := range groupByRow(members) {
		row := group[0].Row

		var wayMembers []pack.Member
		for _, m := range group {
			if m.Type == model.Way {
				wayMembers = append(wayMembers, m)
			}
		}

		if len(wayMembers) == 0 {
			continue
		}

		counts := make(map[int64]int)
		for _, m := range wayMembers {
			seen := make(map[int64]bool)
			for _, n := range ways[m.MemberID] {
				seen[n] = true
			}
			for n := range seen {
				counts[n]++
			}
		}

		var cur []int64
		first := true

		emit := func() {
			if len(cur) == 0 {
				return
			}

			out = append(out, TopologySegment{
				Row:    row,
				Points: cur,
				Source: cur[0],
				Target: cur[len(cur)-1],
			})
		}

		for _, m := range wayMembers {
			nodes := ways[m.MemberID]

			for ni, n := range nodes {
				interiorShared := counts[n] > 1 && ni > 0 && ni < len(nodes)-1

				switch {
				case first:
					cur = []int64{n}
					first = false
				case interiorShared:
					cur = append(cur, n)
					emit()
					cur = []int64{n}
				case ni == 0:
					emit()
					cur = []int64{n}
				default:
					cur = append(cur, n)
				}
			}
		}

		emit()
		cur = nil
	}

	return out
}

// groupByRow splits a row-ordered member slice into consecutive runs
// sharing the same owning row. Members are always appended in owning-
// row order (within a block, and Merge only shifts row numbers by a
// constant per block), so a single forward pass suffices.
func groupByRow(members []pack.Member) [][]pack.Member {
	var groups [][]pack.Member

	var cur []pack.Member

	for i, m := range members {
		if i > 0 && m.Row != members[i-1].Row {
			groups = append(groups, cur)
			cur = nil
		}

		cur = append(cur, m)
	}

	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups
}
