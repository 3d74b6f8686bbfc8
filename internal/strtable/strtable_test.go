package strtable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata/internal/strtable"
)

func TestMergeDedupAndRemap(t *testing.T) {
	b := strtable.NewBuilder()

	remap1 := b.Merge([][]byte{[]byte(""), []byte("highway"), []byte("residential")})
	remap2 := b.Merge([][]byte{[]byte(""), []byte("residential"), []byte("name")})

	assert.Equal(t, []int32{0, 1, 2}, remap1)
	assert.Equal(t, []int32{0, 2, 3}, remap2)

	assert.Equal(t, []string{"", "highway", "residential", "name"}, b.Strings())
}

func TestLookup(t *testing.T) {
	b := strtable.NewBuilder()
	b.Merge([][]byte{[]byte("highway")})

	id, ok := b.Lookup("highway")
	require.True(t, ok)
	assert.Equal(t, int32(0), id)

	_, ok = b.Lookup("missing")
	assert.False(t, ok)
}
