// Package pack assembles decoded primitives into the three row sets the
// frame layer projects into output: an identifier row per surviving
// node/way/relation, a tag row per (element, key, value) triple, and a
// member row per way node-ref / relation member. Block decodes happen
// independently (and potentially concurrently); Merge concatenates a
// set of per-block results in file order, shifting each block's row
// indices by the running identifier count so every Tag.Row/Member.Row
// indexes correctly into the final, merged Identifiers slice.
package pack

import (
	"github.com/chourmo/osmdata/internal/primitive"
	"github.com/chourmo/osmdata/model"
)

// Identifier is one surviving element: its id, kind, and (when the
// query set Metadata) version/timestamp/changeset/uid/user.
type Identifier struct {
	ID   int64
	Type model.EntityType
	Info model.Info
}

// Tag is one (element, key, value) triple, both ids in the global
// string-table domain. Row indexes Identifiers.
type Tag struct {
	Row   int
	Key   int32
	Value int32
}

// Member is one way node-ref or relation member. Row indexes
// Identifiers (the owning way/relation); MemberID/Type describe the
// referenced node/way/relation; Role is empty for way node-refs (a
// way's refs carry no role) and the resolved role string for relation
// members; Geom is the owning way/relation's geometry classification,
// repeated on every member row so the geometry assembler can group by
// it without a second lookup.
type Member struct {
	Row      int
	MemberID int64
	Type     model.EntityType
	Role     string
	Geom     model.GeomClass
}

// Block holds one block's locally-indexed rows: Tag.Row and Member.Row
// are 0-based into this block's own Identifiers, not yet shifted into
// the merged frame.
type Block struct {
	Identifiers []Identifier
	Tags        []Tag
	Members     []Member
}

// NewBlock returns an empty Block ready to accumulate one block's
// surviving primitives.
func NewBlock() *Block {
	return &Block{}
}

// AddNode appends a decoded node. Nodes never contribute member rows.
func (b *Block) AddNode(n *primitive.NodeResult) {
	row := len(b.Identifiers)
	b.Identifiers = append(b.Identifiers, Identifier{ID: n.ID, Type: model.Node, Info: n.Info})
	b.addTags(row, n.Tags)
}

// AddWay appends a decoded way, plus one Member row per node ref (role
// left empty; a way's own node refs carry no role).
func (b *Block) AddWay(w *primitive.WayResult) {
	row := len(b.Identifiers)
	b.Identifiers = append(b.Identifiers, Identifier{ID: w.ID, Type: model.Way, Info: w.Info})
	b.addTags(row, w.Tags)

	for _, ref := range w.Refs {
		b.Members = append(b.Members, Member{Row: row, MemberID: ref, Type: model.Node, Geom: w.Geom})
	}
}

// AddRelation appends a decoded relation, plus one Member row per
// relation member.
func (b *Block) AddRelation(r *primitive.RelationResult) {
	row := len(b.Identifiers)
	b.Identifiers = append(b.Identifiers, Identifier{ID: r.ID, Type: model.Relation, Info: r.Info})
	b.addTags(row, r.Tags)

	for _, m := range r.Members {
		b.Members = append(b.Members, Member{
			Row:      row,
			MemberID: int64(m.ID),
			Type:     m.Type,
			Role:     m.Role,
			Geom:     r.Geom,
		})
	}
}

func (b *Block) addTags(row int, tags []primitive.Tag) {
	for _, t := range tags {
		b.Tags = append(b.Tags, Tag{Row: row, Key: t.Key, Value: t.Value})
	}
}

// Result is the file-wide merged row set, ready for the frame layer.
type Result struct {
	Identifiers []Identifier
	Tags        []Tag
	Members     []Member
}

// Merge concatenates blocks in the given (file) order, shifting each
// block's row indices by the running identifier count so the returned
// Result's Tag/Member rows index correctly into its own Identifiers.
func Merge(blocks []*Block) Result {
	var total int
	for _, b := range blocks {
		total += len(b.Identifiers)
	}

	var tagTotal, memberTotal int
	for _, b := range blocks {
		tagTotal += len(b.Tags)
		memberTotal += len(b.Members)
	}

	out := Result{
		Identifiers: make([]Identifier, 0, total),
		Tags:        make([]Tag, 0, tagTotal),
		Members:     make([]Member, 0, memberTotal),
	}

	offset := 0

	for _, b := range blocks {
		for _, t := range b.Tags {
			out.Tags = append(out.Tags, Tag{Row: t.Row + offset, Key: t.Key, Value: t.Value})
		}

		for _, m := range b.Members {
			out.Members = append(out.Members, Member{
				Row:      m.Row + offset,
				MemberID: m.MemberID,
				Type:     m.Type,
				Role:     m.Role,
				Geom:     m.Geom,
			})
		}

		out.Identifiers = append(out.Identifiers, b.Identifiers...)
		offset += len(b.Identifiers)
	}

	return out
}
