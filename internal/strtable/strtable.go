// Package strtable merges the per-block local string tables a PBF file
// carries into one global, deduplicated, ordered table, and produces the
// local-to-global remap arrays each block needs once merged.
package strtable

// Builder accumulates strings across every block in first-seen order and
// deduplicates them. Ordering is stable (first occurrence in the file
// wins its position) rather than Python's original set-based approach,
// so that two runs over the same file produce the same global table.
type Builder struct {
	index   map[string]int32
	strings []string
}

func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int32)}
}

// Merge registers one block's local string table (the raw strings found
// in order of field 1 occurrences within the block) and returns a remap
// array: remap[localID] = globalID.
func (b *Builder) Merge(local [][]byte) []int32 {
	remap := make([]int32, len(local))

	for i, s := range local {
		remap[i] = b.intern(string(s))
	}

	return remap
}

func (b *Builder) intern(s string) int32 {
	if id, ok := b.index[s]; ok {
		return id
	}

	id := int32(len(b.strings))
	b.index[s] = id
	b.strings = append(b.strings, s)

	return id
}

// Strings returns the merged global string table, indexed by global id.
// The returned slice must not be mutated.
func (b *Builder) Strings() []string {
	return b.strings
}

// Lookup returns the global id of a string, if it was seen while
// merging. Used by the query compiler to translate a user's tag key/value
// strings into the global integer domain.
func (b *Builder) Lookup(s string) (int32, bool) {
	id, ok := b.index[s]
	return id, ok
}
