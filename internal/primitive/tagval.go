package primitive

import (
	"github.com/chourmo/osmdata/internal/compile"
	"github.com/chourmo/osmdata/model"
)

// validateTag reports whether setValues shares anything with reference,
// treating a nil reference as "no restriction" and an empty (but
// configured) setValues as always failing. Used for the MustTags check,
// which runs as soon as an element's keys are decoded so a rejected
// element never pays to decode its values.
func validateTag(setValues, reference map[int32]bool) bool {
	if reference == nil {
		return true
	}

	if len(setValues) == 0 {
		return false
	}

	return intersectsKeys(setValues, reference)
}

// validateTagVal applies the Keep/Exclude/MustTags predicate to a fully
// decoded element. haveTags distinguishes "this element carries no tags
// submessage at all" from "it has an empty one"; tagSet is the set of
// global key ids present, tags/vals are the parallel global key/value
// arrays.
func validateTagVal(q *compile.Compiled, haveTags bool, tagSet map[int32]bool, tags, vals []int32) bool {
	if !haveTags && q.MustTagsConfigured {
		return false
	}

	if q.NoTagVal || !haveTags || len(tags) == 0 {
		return !q.KeepFirst
	}

	var packed map[uint64]bool
	if q.KeepConfigured || q.ExclConfigured {
		packed = packTagVal(tags, vals)
	}

	keepMatches := false
	if q.KeepConfigured {
		keepMatches = intersectsPairs(q.KeepPairs, packed) || intersectsKeys(q.KeepKeyAny, tagSet)
	}

	exclMatches := false
	if q.ExclConfigured {
		exclMatches = intersectsPairs(q.ExclPairs, packed) || intersectsKeys(q.ExclKeyAny, tagSet)
	}

	if q.KeepFirst {
		return keepMatches && !exclMatches
	}

	return !exclMatches || keepMatches
}

// filterTags projects the decoded tag arrays down to what the query
// asked to keep: nothing, everything, or an explicit key list.
func filterTags(q *compile.Compiled, keys, vals []int32) []Tag {
	if q.TagsNone || keys == nil {
		return nil
	}

	out := make([]Tag, 0, len(keys))

	for i, k := range keys {
		if q.TagsAll || q.TagKeys[k] {
			out = append(out, Tag{Key: k, Value: vals[i]})
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// isArea applies the fixed area-classification tables to a way's tags:
// an explicit area=no pair always wins, then an explicit is-area pair,
// then an explicit not-area pair, then (last resort) any value of a
// key that's configured to count regardless of its value.
func isArea(q *compile.Compiled, tagSet map[int32]bool, tags, vals []int32) bool {
	if len(q.IsAreaKey) == 0 {
		return false
	}

	pairs := make(map[uint64]bool)

	for i, t := range tags {
		if q.IsAreaKey[t] {
			pairs[compile.PairKey(t, vals[i])] = true
		}
	}

	if len(q.AreaNoPairs) > 0 && intersectsPairs(q.AreaNoPairs, pairs) {
		return false
	}

	if len(q.IsAreaPairs) > 0 && intersectsPairs(q.IsAreaPairs, pairs) {
		return true
	}

	if len(q.NotAreaPairs) > 0 && intersectsPairs(q.NotAreaPairs, pairs) {
		return false
	}

	return len(q.IsAreaKeyAnyValue) > 0 && intersectsKeys(q.IsAreaKeyAnyValue, tagSet)
}

// isClosedWay reports whether a way's first and last node refs match,
// the precondition for classifying it as a ring rather than a line.
func isClosedWay(refs []int64) bool {
	return len(refs) > 0 && refs[0] == refs[len(refs)-1]
}

// wayGeotype classifies a way's geometry: a single-ref way degenerates
// to nothing, a short or open ref list is always a line, and a closed
// ring of at least 4 refs is an area only when isArea agrees.
func wayGeotype(q *compile.Compiled, haveTags bool, tagSet map[int32]bool, tags, vals []int32, refs []int64) model.GeomClass {
	if !haveTags || !q.Geometry {
		return model.GeomNone
	}

	switch {
	case len(refs) < 2:
		return model.GeomNone
	case len(refs) < 4:
		return model.GeomLine
	case !isClosedWay(refs):
		return model.GeomLine
	case isArea(q, tagSet, tags, vals):
		return model.GeomArea
	default:
		return model.GeomLine
	}
}

// relGeotype classifies a relation's geometry from its own tags, not
// its members': a relation with a node or relation member is never
// assembled into geometry (only way members are), and otherwise the
// tag values decide line vs. area vs. none.
func relGeotype(q *compile.Compiled, haveTags bool, vals []int32, types []int32) model.GeomClass {
	if !q.Geometry || !haveTags {
		return model.GeomNone
	}

	for _, t := range types {
		if model.EntityType(t) == model.Node || model.EntityType(t) == model.Relation {
			return model.GeomNone
		}
	}

	valSet := toSet(vals)

	switch {
	case intersectsKeys(q.RelationLineVals, valSet):
		return model.GeomLine
	case intersectsKeys(q.RelationAreaVals, valSet):
		return model.GeomArea
	default:
		return model.GeomNone
	}
}

func packTagVal(tags, vals []int32) map[uint64]bool {
	out := make(map[uint64]bool, len(tags))

	for i, t := range tags {
		out[compile.PairKey(t, vals[i])] = true
	}

	return out
}

func intersectsKeys(a, b map[int32]bool) bool {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}

	for k := range small {
		if large[k] {
			return true
		}
	}

	return false
}

func intersectsPairs(a, b map[uint64]bool) bool {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}

	for k := range small {
		if large[k] {
			return true
		}
	}

	return false
}
