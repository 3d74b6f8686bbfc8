package compile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata/internal/blockindex"
	"github.com/chourmo/osmdata/internal/compile"
	"github.com/chourmo/osmdata/internal/strtable"
	"github.com/chourmo/osmdata/model"
)

func buildLookup(t *testing.T, strs ...string) (compile.Lookup, map[string]int32) {
	t.Helper()

	b := strtable.NewBuilder()
	ids := make(map[string]int32, len(strs))

	for _, s := range strs {
		remap := b.Merge([][]byte{[]byte(s)})
		ids[s] = remap[0]
	}

	return b.Lookup, ids
}

func TestCompileKeepPairsAndKeyAny(t *testing.T) {
	lookup, ids := buildLookup(t, "highway", "residential", "leisure")

	in := compile.Input{
		Ways: true,
		Keep: map[string][]string{
			"highway": {"residential"},
			"leisure": {},
		},
	}

	c := compile.Compile(in, compile.AreaTables{}, lookup)

	assert.True(t, c.Ways)
	require.NotNil(t, c.KeepPairs)
	assert.True(t, c.KeepPairs[compile.PairKey(ids["highway"], ids["residential"])])
	require.NotNil(t, c.KeepKeyAny)
	assert.True(t, c.KeepKeyAny[ids["leisure"]])
}

func TestCompileUnresolvedStringsDropSilently(t *testing.T) {
	lookup, _ := buildLookup(t, "highway")

	in := compile.Input{
		Ways: true,
		Keep: map[string][]string{"highway": {"residential"}},
	}

	c := compile.Compile(in, compile.AreaTables{}, lookup)

	assert.Nil(t, c.KeepPairs)
	assert.Nil(t, c.KeepKeyAny)
}

func TestCompileTagsProjectionModes(t *testing.T) {
	lookup, ids := buildLookup(t, "name", "ref")

	all := compile.Compile(compile.Input{Tags: nil}, compile.AreaTables{}, lookup)
	assert.True(t, all.TagsAll)

	none := compile.Compile(compile.Input{Tags: []string{}}, compile.AreaTables{}, lookup)
	assert.True(t, none.TagsNone)

	some := compile.Compile(compile.Input{Tags: []string{"name"}}, compile.AreaTables{}, lookup)
	assert.False(t, some.TagsAll)
	assert.False(t, some.TagsNone)
	assert.True(t, some.TagKeys[ids["name"]])
}

func TestCompileRelationTypesUseMemberEnumNotStrings(t *testing.T) {
	lookup, _ := buildLookup(t, "node", "way")

	in := compile.Input{Relations: true, RelationType: []string{"way", "relation"}}
	c := compile.Compile(in, compile.AreaTables{}, lookup)

	assert.True(t, c.RelationTypes[model.Way])
	assert.True(t, c.RelationTypes[model.Relation])
	assert.False(t, c.RelationTypes[model.Node])
}

func TestCompileAreaTables(t *testing.T) {
	lookup, ids := buildLookup(t, "area", "no", "building", "highway")

	tables := compile.AreaTables{
		AreaNo:            map[string][]string{"area": {"no"}},
		IsArea:            map[string][]string{"building": {}},
		NotArea:           map[string][]string{"highway": {}},
		IsAreaKeyAnyValue: []string{"building"},
	}

	c := compile.Compile(compile.Input{Ways: true}, tables, lookup)

	assert.True(t, c.AreaNoPairs[compile.PairKey(ids["area"], ids["no"])])
	assert.True(t, c.IsAreaKeyAnyValue[ids["building"]])
	assert.True(t, c.IsAreaKey[ids["building"]])
	assert.True(t, c.IsAreaKey[ids["highway"]])
}

func TestSkipBlockNoMatchingElementType(t *testing.T) {
	lookup, _ := buildLookup(t)
	c := compile.Compile(compile.Input{Ways: true}, compile.AreaTables{}, lookup)

	entry := blockindex.BlockEntry{Nodes: []blockindex.ElementOffset{{ID: 1}}}

	assert.True(t, compile.SkipBlock(entry, c))
}

func TestSkipBlockDenseCountsAsNodePresence(t *testing.T) {
	lookup, _ := buildLookup(t)
	c := compile.Compile(compile.Input{Nodes: true}, compile.AreaTables{}, lookup)

	entry := blockindex.BlockEntry{HasDense: true}

	assert.False(t, compile.SkipBlock(entry, c))
}

func TestSkipBlockStringTableDisjointFromQuery(t *testing.T) {
	lookup, ids := buildLookup(t, "highway", "name")

	in := compile.Input{Ways: true, Tags: []string{"name"}}
	c := compile.Compile(in, compile.AreaTables{}, lookup)

	entry := blockindex.BlockEntry{
		Ways:        []blockindex.ElementOffset{{ID: 1}},
		StringRemap: []int32{ids["highway"]},
	}

	assert.True(t, compile.SkipBlock(entry, c))

	entry.StringRemap = []int32{ids["highway"], ids["name"]}
	assert.False(t, compile.SkipBlock(entry, c))
}

func TestSkipBlockMustTagsRequiresAllPresent(t *testing.T) {
	lookup, ids := buildLookup(t, "highway", "name")

	in := compile.Input{Ways: true, MustTags: []string{"highway", "name"}}
	c := compile.Compile(in, compile.AreaTables{}, lookup)

	entry := blockindex.BlockEntry{
		Ways:        []blockindex.ElementOffset{{ID: 1}},
		StringRemap: []int32{ids["highway"]},
	}

	assert.True(t, compile.SkipBlock(entry, c))

	entry.StringRemap = []int32{ids["highway"], ids["name"]}
	assert.False(t, compile.SkipBlock(entry, c))
}

func TestSkipBlockKeepImpossibleWithoutExcludeRescue(t *testing.T) {
	lookup, ids := buildLookup(t, "highway", "residential", "building")

	in := compile.Input{
		Ways:      true,
		Keep:      map[string][]string{"highway": {"residential"}},
		KeepFirst: true,
	}
	c := compile.Compile(in, compile.AreaTables{}, lookup)

	entry := blockindex.BlockEntry{
		Ways:        []blockindex.ElementOffset{{ID: 1}},
		StringRemap: []int32{ids["building"]},
	}

	assert.True(t, compile.SkipBlock(entry, c))

	// Even with exclude configured and keep_first false, a block is still
	// skipped while the keep filter itself cannot match anything in it —
	// exclude only rescues per-element, it never substitutes for keep at
	// the block level.
	in.Exclude = map[string][]string{"building": {}}
	in.KeepFirst = false
	c = compile.Compile(in, compile.AreaTables{}, lookup)
	assert.True(t, compile.SkipBlock(entry, c))

	// Once the block's string table can actually satisfy the keep filter,
	// the block is no longer skippable.
	entry.StringRemap = []int32{ids["highway"], ids["residential"]}
	assert.False(t, compile.SkipBlock(entry, c))
}
