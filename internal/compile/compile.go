// Package compile translates a user-level query into the global
// string-table integer domain the primitive parsers operate in: every
// tag key/value string the query references is resolved to its global
// id (strings absent from the file drop silently), and tag:value pairs
// are packed into 64-bit (key<<32|value) integers for O(1) set
// membership checks while parsing.
package compile

import (
	"golang.org/x/exp/maps"

	"github.com/chourmo/osmdata/internal/blockindex"
	"github.com/chourmo/osmdata/internal/rules"
	"github.com/chourmo/osmdata/model"
)

// Input is a plain-data mirror of the root package's Query, passed in by
// value so this package never needs to import the root package (which
// imports compile, and would otherwise cycle).
type Input struct {
	Nodes, Ways, Relations bool

	MustTags []string

	Keep      map[string][]string
	Exclude   map[string][]string
	KeepFirst bool

	// Tags is nil for "all tags", an explicit empty slice for "no
	// tags", or else an explicit projection list.
	Tags []string

	NodeIDs []int64
	WayIDs  []int64

	// RelationType lists member-kind names ("node", "way", "relation").
	RelationType []string

	Metadata bool
	Geometry bool
	Topology bool
}

// Lookup resolves a literal string to its global string-table id.
type Lookup func(s string) (int32, bool)

// pairKey packs a key/value global-id pair the same way the element
// walk does: key<<32 | value.
func pairKey(key, val int32) uint64 {
	return uint64(uint32(key))<<32 | uint64(uint32(val))
}

// Compiled is a query translated into the global integer domain, ready
// to test against a decoded element's tag arrays.
type Compiled struct {
	Nodes, Ways, Relations bool

	GetTags  bool
	NoTagVal bool

	// MustTagsConfigured is true when the query set a MustTags filter at
	// all, even if none of its keys resolved against the string table —
	// this is the "is not None" distinction the tag/value validator
	// needs, independent of whether MustTags ends up empty.
	MustTagsConfigured bool
	MustTags           map[int32]bool

	// KeepConfigured/ExclConfigured mirror MustTagsConfigured for the
	// Keep/Exclude filters.
	KeepConfigured bool
	ExclConfigured bool

	KeepPairs  map[uint64]bool
	KeepKeyAny map[int32]bool
	ExclPairs  map[uint64]bool
	ExclKeyAny map[int32]bool
	KeepFirst  bool

	// TagsAll is true when every tag should be emitted. TagsNone is
	// true when no tag should be emitted. Otherwise TagKeys lists
	// exactly the global key ids to project.
	TagsAll  bool
	TagsNone bool
	TagKeys  map[int32]bool

	NodeIDs map[int64]bool
	WayIDs  map[int64]bool

	RelationTypes map[model.EntityType]bool

	Metadata bool
	Geometry bool
	Topology bool

	AreaNoPairs       map[uint64]bool
	IsAreaPairs       map[uint64]bool
	NotAreaPairs      map[uint64]bool
	IsAreaKey         map[int32]bool
	IsAreaKeyAnyValue map[int32]bool
	RelationAreaVals  map[int32]bool
	RelationLineVals  map[int32]bool

	// relevantStrings is every global string id this query could
	// possibly reference, used by SkipBlock to tell whether a block's
	// string table shares anything with the query at all.
	relevantStrings map[int32]bool
}

// AreaTables is the fixed area-classification vocabulary, resolved once
// against the global string table alongside the user's query.
type AreaTables struct {
	AreaNo             map[string][]string
	IsArea             map[string][]string
	NotArea            map[string][]string
	IsAreaKeyAnyValue  []string
	RelationAreaVals   []string
	RelationLineVals   []string
}

// DefaultAreaTables builds an AreaTables from the fixed tables in
// internal/rules.
func DefaultAreaTables() AreaTables {
	return AreaTables{
		AreaNo:            rules.AreaNo,
		IsArea:            rules.IsArea,
		NotArea:           rules.NotArea,
		IsAreaKeyAnyValue: rules.IsAreaKeyAnyValue,
		RelationAreaVals:  rules.RelationArea,
		RelationLineVals:  rules.RelationLineString,
	}
}

// Compile resolves in against lookup (typically a strtable.Builder's
// Lookup method) and the fixed area tables, producing a Compiled query.
func Compile(in Input, tables AreaTables, lookup Lookup) *Compiled {
	c := &Compiled{
		Nodes:     in.Nodes,
		Ways:      in.Ways,
		Relations: in.Relations,
		KeepFirst: in.KeepFirst,
		Metadata:  in.Metadata,
		Geometry:  in.Geometry,
		Topology:  in.Topology,
	}

	c.MustTagsConfigured = in.MustTags != nil
	c.KeepConfigured = in.Keep != nil
	c.ExclConfigured = in.Exclude != nil
	c.NoTagVal = !c.MustTagsConfigured && !c.KeepConfigured && !c.ExclConfigured

	c.MustTags = resolveKeySet(in.MustTags, lookup)

	c.KeepPairs, c.KeepKeyAny, _ = resolveFilter(in.Keep, lookup)
	c.ExclPairs, c.ExclKeyAny, _ = resolveFilter(in.Exclude, lookup)

	switch {
	case in.Tags == nil:
		c.TagsAll = true
	case len(in.Tags) == 0:
		c.TagsNone = true
	default:
		c.TagKeys = resolveKeySet(in.Tags, lookup)
	}

	c.GetTags = c.TagsAll || !c.TagsNone || len(in.Keep) > 0 || len(in.Exclude) > 0 || len(in.MustTags) > 0 || in.Geometry

	if in.NodeIDs != nil {
		c.NodeIDs = make(map[int64]bool, len(in.NodeIDs))
		for _, id := range in.NodeIDs {
			c.NodeIDs[id] = true
		}
	}

	if in.WayIDs != nil {
		c.WayIDs = make(map[int64]bool, len(in.WayIDs))
		for _, id := range in.WayIDs {
			c.WayIDs[id] = true
		}
	}

	if in.RelationType != nil {
		c.RelationTypes = make(map[model.EntityType]bool, len(in.RelationType))

		for _, name := range in.RelationType {
			switch name {
			case "node":
				c.RelationTypes[model.Node] = true
			case "way":
				c.RelationTypes[model.Way] = true
			case "relation":
				c.RelationTypes[model.Relation] = true
			}
		}
	}

	var isAreaKeys, notAreaKeys map[int32]bool

	c.AreaNoPairs, _, _ = resolveFilter(tables.AreaNo, lookup)
	c.IsAreaPairs, _, isAreaKeys = resolveFilter(tables.IsArea, lookup)
	c.NotAreaPairs, _, notAreaKeys = resolveFilter(tables.NotArea, lookup)
	c.IsAreaKeyAnyValue = resolveKeySet(tables.IsAreaKeyAnyValue, lookup)

	c.IsAreaKey = make(map[int32]bool)
	for k := range isAreaKeys {
		c.IsAreaKey[k] = true
	}

	for k := range notAreaKeys {
		c.IsAreaKey[k] = true
	}

	for k := range c.IsAreaKeyAnyValue {
		c.IsAreaKey[k] = true
	}

	c.RelationAreaVals = resolveKeySet(tables.RelationAreaVals, lookup)
	c.RelationLineVals = resolveKeySet(tables.RelationLineVals, lookup)

	c.relevantStrings = c.buildRelevantStrings()

	return c
}

// buildRelevantStrings unions every global id this query could possibly
// test against: filter keys/values, tag projection keys, and the fixed
// area-classification tables. SkipBlock uses it to reject a block whose
// string table shares nothing with the query before paying to re-decode
// it.
func (c *Compiled) buildRelevantStrings() map[int32]bool {
	out := make(map[int32]bool)

	addKeys := func(set map[int32]bool) {
		for _, k := range maps.Keys(set) {
			out[k] = true
		}
	}

	addPairs := func(pairs map[uint64]bool) {
		for _, p := range maps.Keys(pairs) {
			key, val := unpackPair(p)
			out[key] = true
			out[val] = true
		}
	}

	addKeys(c.MustTags)
	addKeys(c.KeepKeyAny)
	addKeys(c.ExclKeyAny)
	addKeys(c.TagKeys)
	addPairs(c.KeepPairs)
	addPairs(c.ExclPairs)
	addPairs(c.AreaNoPairs)
	addPairs(c.IsAreaPairs)
	addPairs(c.NotAreaPairs)
	addKeys(c.IsAreaKey)
	addKeys(c.IsAreaKeyAnyValue)
	addKeys(c.RelationAreaVals)
	addKeys(c.RelationLineVals)

	return out
}

func unpackPair(p uint64) (key, val int32) {
	return int32(uint32(p >> 32)), int32(uint32(p))
}

func resolveKeySet(strs []string, lookup Lookup) map[int32]bool {
	if strs == nil {
		return nil
	}

	out := make(map[int32]bool, len(strs))

	for _, s := range strs {
		if id, ok := lookup(s); ok {
			out[id] = true
		}
	}

	return out
}

// resolveFilter splits a key:value-list filter into a pair set (key has
// explicit values) and a key-any set (empty value list — any value of
// this key matches). allKeys is every key in the filter that
// resolved against lookup, regardless of whether its value list was
// empty — used to build the area-classification key set.
func resolveFilter(filter map[string][]string, lookup Lookup) (pairs map[uint64]bool, keyAny map[int32]bool, allKeys map[int32]bool) {
	if len(filter) == 0 {
		return nil, nil, nil
	}

	pairs = make(map[uint64]bool)
	keyAny = make(map[int32]bool)
	allKeys = make(map[int32]bool)

	for k, vs := range filter {
		key, ok := lookup(k)
		if !ok {
			continue
		}

		allKeys[key] = true

		if len(vs) == 0 {
			keyAny[key] = true
			continue
		}

		for _, v := range vs {
			val, ok := lookup(v)
			if !ok {
				continue
			}

			pairs[pairKey(key, val)] = true
		}
	}

	if len(pairs) == 0 {
		pairs = nil
	}

	if len(keyAny) == 0 {
		keyAny = nil
	}

	return pairs, keyAny, allKeys
}

// PairKey packs a resolved key/value global-id pair, exported for the
// primitive parsers that build an element's own tag-pair set to test
// against a Compiled query.
func PairKey(key, val int32) uint64 {
	return pairKey(key, val)
}

// SkipBlock reports whether entry can be rejected without re-decoding
// and re-parsing its elements: either it holds no offsets for the
// element kinds the query reads, its string table shares nothing with
// the query's tag vocabulary, a required MustTags key is entirely
// absent from the block, or the Keep filter cannot possibly match
// anything in the block and Exclude can't rescue it.
func SkipBlock(entry blockindex.BlockEntry, c *Compiled) bool {
	hasType := (c.Nodes && (len(entry.Nodes) > 0 || entry.HasDense)) ||
		(c.Ways && len(entry.Ways) > 0) ||
		(c.Relations && len(entry.Relations) > 0)

	if !hasType {
		return true
	}

	if !c.NoTagVal && entry.Empty {
		return true
	}

	present := presentSet(entry.StringRemap)

	if c.GetTags && len(c.relevantStrings) > 0 && !intersects(present, c.relevantStrings) {
		return true
	}

	if c.MustTagsConfigured {
		found := 0

		for id := range c.MustTags {
			if present[id] {
				found++
			}
		}

		if found != len(c.MustTags) {
			return true
		}
	}

	if c.KeepConfigured {
		keepPossible := anyPairPresent(c.KeepPairs, present) || anyKeyPresent(c.KeepKeyAny, present)

		if !keepPossible && (!c.ExclConfigured || !c.KeepFirst) {
			return true
		}
	}

	return false
}

func presentSet(remap []int32) map[int32]bool {
	out := make(map[int32]bool, len(remap))
	for _, id := range remap {
		out[id] = true
	}

	return out
}

func intersects(a, b map[int32]bool) bool {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}

	for id := range small {
		if large[id] {
			return true
		}
	}

	return false
}

func anyKeyPresent(keys map[int32]bool, present map[int32]bool) bool {
	for k := range keys {
		if present[k] {
			return true
		}
	}

	return false
}

func anyPairPresent(pairs map[uint64]bool, present map[int32]bool) bool {
	for p := range pairs {
		key, val := unpackPair(p)
		if present[key] && present[val] {
			return true
		}
	}

	return false
}
