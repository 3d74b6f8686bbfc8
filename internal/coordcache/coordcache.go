// Package coordcache holds the file-wide node coordinate cache: a
// sorted-by-id table of node (lon, lat) pairs, built once while indexing
// and then used read-only by geometry assembly. The indexer fills it from
// DenseNodes groups only; nodes stored as plain Node messages are not
// cached. Coordinates are stored as float32 since PBF's nanodegree
// precision exceeds what a single-precision float preserves anyway, and
// each cached coordinate is stored exactly once regardless of how many
// ways reference it.
package coordcache

import "sort"

// Point is a single node's coordinate, decoded from nanodegrees to
// decimal degrees.
type Point struct {
	Lon float32
	Lat float32
}

// Builder accumulates (id, lon, lat) triples while the file is indexed.
// Its zero value is ready to use.
type Builder struct {
	ids    []int64
	points []Point
}

// Add records one node's coordinate. Builder does not deduplicate —
// callers append exactly once per node seen while indexing.
func (b *Builder) Add(id int64, lon, lat float32) {
	b.ids = append(b.ids, id)
	b.points = append(b.points, Point{Lon: lon, Lat: lat})
}

// Len reports how many coordinates have been added so far.
func (b *Builder) Len() int {
	return len(b.ids)
}

// Build sorts the accumulated coordinates by node id and returns an
// immutable Cache ready for lookups. The Builder must not be reused
// afterward.
func (b *Builder) Build() *Cache {
	order := make([]int, len(b.ids))
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(i, j int) bool { return b.ids[order[i]] < b.ids[order[j]] })

	c := &Cache{
		ids:    make([]int64, len(order)),
		points: make([]Point, len(order)),
	}

	for dst, src := range order {
		c.ids[dst] = b.ids[src]
		c.points[dst] = b.points[src]
	}

	return c
}

// Cache is an immutable, sorted-by-id node coordinate table supporting
// binary-search lookup.
type Cache struct {
	ids    []int64
	points []Point
}

// Lookup returns the coordinate for a node id, and whether it was found.
func (c *Cache) Lookup(id int64) (Point, bool) {
	i := sort.Search(len(c.ids), func(i int) bool { return c.ids[i] >= id })
	if i < len(c.ids) && c.ids[i] == id {
		return c.points[i], true
	}

	return Point{}, false
}

// Len reports the number of cached node coordinates.
func (c *Cache) Len() int {
	return len(c.ids)
}
