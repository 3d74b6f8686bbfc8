package pack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chourmo/osmdata/internal/pack"
	"github.com/chourmo/osmdata/internal/primitive"
	"github.com/chourmo/osmdata/model"
)

func TestBlockAddNodeAppendsTagsAtItsRow(t *testing.T) {
	b := pack.NewBlock()

	b.AddNode(&primitive.NodeResult{ID: 1, Tags: []primitive.Tag{{Key: 10, Value: 20}}})
	b.AddNode(&primitive.NodeResult{ID: 2})

	require.Len(t, b.Identifiers, 2)
	assert.Equal(t, int64(1), b.Identifiers[0].ID)
	assert.Equal(t, model.Node, b.Identifiers[0].Type)

	require.Len(t, b.Tags, 1)
	assert.Equal(t, 0, b.Tags[0].Row)
	assert.EqualValues(t, 10, b.Tags[0].Key)

	assert.Empty(t, b.Members)
}

func TestBlockAddWayProducesOneMemberPerRef(t *testing.T) {
	b := pack.NewBlock()

	b.AddWay(&primitive.WayResult{
		ID:   100,
		Refs: []int64{1, 2, 3},
		Geom: model.GeomLine,
	})

	require.Len(t, b.Identifiers, 1)
	require.Len(t, b.Members, 3)

	for i, ref := range []int64{1, 2, 3} {
		assert.Equal(t, 0, b.Members[i].Row)
		assert.Equal(t, ref, b.Members[i].MemberID)
		assert.Equal(t, model.Node, b.Members[i].Type)
		assert.Equal(t, model.GeomLine, b.Members[i].Geom)
		assert.Empty(t, b.Members[i].Role)
	}
}

func TestBlockAddRelationCarriesMemberRoleAndType(t *testing.T) {
	b := pack.NewBlock()

	b.AddRelation(&primitive.RelationResult{
		ID: 5,
		Members: []model.Member{
			{ID: 9, Type: model.Way, Role: "outer"},
		},
		Geom: model.GeomArea,
	})

	require.Len(t, b.Members, 1)
	assert.EqualValues(t, 9, b.Members[0].MemberID)
	assert.Equal(t, model.Way, b.Members[0].Type)
	assert.Equal(t, "outer", b.Members[0].Role)
	assert.Equal(t, model.GeomArea, b.Members[0].Geom)
}

func TestMergeShiftsRowsByRunningIdentifierCount(t *testing.T) {
	b1 := pack.NewBlock()
	b1.AddNode(&primitive.NodeResult{ID: 1, Tags: []primitive.Tag{{Key: 1, Value: 1}}})
	b1.AddNode(&primitive.NodeResult{ID: 2})

	b2 := pack.NewBlock()
	b2.AddWay(&primitive.WayResult{ID: 10, Refs: []int64{1, 2}, Tags: []primitive.Tag{{Key: 2, Value: 2}}})

	res := pack.Merge([]*pack.Block{b1, b2})

	require.Len(t, res.Identifiers, 3)
	assert.Equal(t, int64(1), res.Identifiers[0].ID)
	assert.Equal(t, int64(2), res.Identifiers[1].ID)
	assert.Equal(t, int64(10), res.Identifiers[2].ID)

	require.Len(t, res.Tags, 2)
	assert.Equal(t, 0, res.Tags[0].Row)
	assert.Equal(t, 2, res.Tags[1].Row, "b2's way is identifier row 2 after b1's two nodes shift it")

	require.Len(t, res.Members, 2)
	assert.Equal(t, 2, res.Members[0].Row)
	assert.Equal(t, 2, res.Members[1].Row)
}

func TestMergePreservesFileOrderAcrossEmptyBlocks(t *testing.T) {
	empty := pack.NewBlock()

	b := pack.NewBlock()
	b.AddNode(&primitive.NodeResult{ID: 42})

	res := pack.Merge([]*pack.Block{empty, b, pack.NewBlock()})

	require.Len(t, res.Identifiers, 1)
	assert.Equal(t, int64(42), res.Identifiers[0].ID)
}
