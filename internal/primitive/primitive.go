// Package primitive decodes individual node/way/relation/dense-node
// elements out of a block's raw bytes, applying a compiled query's
// tag/id predicate as it goes so that rejected elements never allocate
// past their id. Every tag key/value string id here is block-local; a
// Context first translates it through the block's StringRemap into the
// global domain compile.Compiled operates in.
package primitive

import (
	"fmt"
	"time"

	"github.com/chourmo/osmdata/internal/compile"
	"github.com/chourmo/osmdata/internal/wire"
	"github.com/chourmo/osmdata/model"
)

// Tag is a decoded key/value pair in the global string-table domain;
// callers resolve it to actual strings using the file's global string
// table.
type Tag struct {
	Key   int32
	Value int32
}

// Context carries the per-block state every element decoder needs:
// the local-to-global string remap, the compiled query, and the global
// string table for fields that are materialized immediately rather
// than deferred to the tag matrix (role, username).
type Context struct {
	Remap           []int32
	Query           *compile.Compiled
	Strings         []string
	DateGranularity int32
}

func (c *Context) global(local uint32) int32 {
	if int(local) >= len(c.Remap) {
		return -1
	}

	return c.Remap[local]
}

func (c *Context) globalString(local int32) string {
	if local < 0 || int(local) >= len(c.Strings) {
		return ""
	}

	return c.Strings[local]
}

// NodeResult is one decoded node surviving the compiled query.
type NodeResult struct {
	ID   int64
	Tags []Tag
	Info model.Info
}

// WayResult is one decoded way surviving the compiled query.
type WayResult struct {
	ID   int64
	Tags []Tag
	Refs []int64
	Info model.Info
	Geom model.GeomClass
}

// RelationResult is one decoded relation surviving the compiled query.
type RelationResult struct {
	ID      int64
	Tags    []Tag
	Members []model.Member
	Info    model.Info
	Geom    model.GeomClass
}

// Node decodes one Node message (spec field numbers: 1=id, 2=keys,
// 3=vals, 4=info), returning nil if the compiled query rejects it.
func (c *Context) Node(buf []byte) (*NodeResult, error) {
	var (
		id             int64
		keys, vals     []uint32
		haveTags       bool
		info           model.Info
		haveInfo       bool
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding node: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return nil, err
			}

			id, offset = v, next
		case 2:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			keys, offset, haveTags = v, next, true

			if !validateTag(c.tagKeySet(keys), c.Query.MustTags) {
				return nil, nil
			}
		case 3:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			vals, offset = v, next
		case 4:
			if !c.Query.Metadata {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return nil, err
			}

			info, err = c.decodeInfo(b)
			if err != nil {
				return nil, err
			}

			haveInfo = true
			offset = next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	gkeys, gvals := c.toGlobalTags(keys, vals)
	tagSet := toSet(gkeys)

	if !validateTagVal(c.Query, haveTags, tagSet, gkeys, gvals) {
		return nil, nil
	}

	if !haveInfo {
		info = model.Info{}
	}

	return &NodeResult{
		ID:   id,
		Tags: filterTags(c.Query, gkeys, gvals),
		Info: info,
	}, nil
}

// Way decodes one Way message (1=id, 2=keys, 3=vals, 4=info, 8=refs).
func (c *Context) Way(buf []byte) (*WayResult, error) {
	var (
		id             int64
		keys, vals     []uint32
		refs           []int64
		haveTags       bool
		info           model.Info
		haveInfo       bool
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding way: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return nil, err
			}

			id, offset = v, next
		case 2:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			keys, offset, haveTags = v, next, true

			if !validateTag(c.tagKeySet(keys), c.Query.MustTags) {
				return nil, nil
			}
		case 3:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			vals, offset = v, next
		case 4:
			if !c.Query.Metadata {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return nil, err
			}

			info, err = c.decodeInfo(b)
			if err != nil {
				return nil, err
			}

			haveInfo = true
			offset = next
		case 8:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			refs, offset = v, next

			if len(refs) < 2 {
				return nil, nil
			}
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	gkeys, gvals := c.toGlobalTags(keys, vals)
	tagSet := toSet(gkeys)

	if !validateTagVal(c.Query, haveTags, tagSet, gkeys, gvals) {
		return nil, nil
	}

	if !haveInfo {
		info = model.Info{}
	}

	return &WayResult{
		ID:   id,
		Tags: filterTags(c.Query, gkeys, gvals),
		Refs: refs,
		Info: info,
		Geom: wayGeotype(c.Query, haveTags, tagSet, gkeys, gvals, refs),
	}, nil
}

// Relation decodes one Relation message (1=id, 2=keys, 3=vals, 4=info,
// 8=roles_sid, 9=memids, 10=types).
func (c *Context) Relation(buf []byte) (*RelationResult, error) {
	var (
		id                     int64
		keys, vals             []uint32
		roles                  []int32
		memids                 []int64
		types                  []int32
		haveTags               bool
		info                   model.Info
		haveInfo               bool
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding relation: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return nil, err
			}

			id, offset = v, next
		case 2:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			keys, offset, haveTags = v, next, true

			if !validateTag(c.tagKeySet(keys), c.Query.MustTags) {
				return nil, nil
			}
		case 3:
			if !c.Query.GetTags {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			v, next, err := wire.PackedUint32(buf, offset)
			if err != nil {
				return nil, err
			}

			vals, offset = v, next
		case 4:
			if !c.Query.Metadata {
				offset, err = wire.Skip(buf, offset, wt)
				if err != nil {
					return nil, err
				}

				continue
			}

			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return nil, err
			}

			info, err = c.decodeInfo(b)
			if err != nil {
				return nil, err
			}

			haveInfo = true
			offset = next
		case 8:
			v, next, err := wire.PackedEnum(buf, offset)
			if err != nil {
				return nil, err
			}

			roles, offset = v, next
		case 9:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			memids, offset = v, next
		case 10:
			v, next, err := wire.PackedEnum(buf, offset)
			if err != nil {
				return nil, err
			}

			types, offset = v, next

			if !matchRelationTypes(types, c.Query.RelationTypes) {
				return nil, nil
			}
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	gkeys, gvals := c.toGlobalTags(keys, vals)
	tagSet := toSet(gkeys)

	if !validateTagVal(c.Query, haveTags, tagSet, gkeys, gvals) {
		return nil, nil
	}

	if !haveInfo {
		info = model.Info{}
	}

	return &RelationResult{
		ID:      id,
		Tags:    filterTags(c.Query, gkeys, gvals),
		Members: c.decodeMembers(memids, types, roles),
		Info:    info,
		Geom:    relGeotype(c.Query, haveTags, gvals, types),
	}, nil
}

func (c *Context) decodeMembers(memids []int64, types, roles []int32) []model.Member {
	members := make([]model.Member, len(memids))

	for i := range memids {
		m := model.Member{ID: model.ID(memids[i])}
		if i < len(types) {
			m.Type = model.EntityType(types[i])
		}

		if i < len(roles) {
			m.Role = c.globalString(c.global(uint32(roles[i])))
		}

		members[i] = m
	}

	return members
}

func (c *Context) decodeInfo(buf []byte) (model.Info, error) {
	var info model.Info

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return info, fmt.Errorf("osmdata: decoding info: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return info, err
			}

			info.Version = int32(v)
			offset = next
		case 2:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return info, err
			}

			info.Timestamp = time.UnixMilli(v * int64(c.DateGranularity)).UTC()
			offset = next
		case 3:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return info, err
			}

			info.Changeset = v
			offset = next
		case 4:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return info, err
			}

			info.UID = model.UID(v)
			offset = next
		case 5:
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return info, err
			}

			info.User = c.globalString(c.global(uint32(v)))
			offset = next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return info, err
			}
		}
	}

	return info, nil
}

func (c *Context) tagKeySet(localKeys []uint32) map[int32]bool {
	if len(localKeys) == 0 {
		return nil
	}

	out := make(map[int32]bool, len(localKeys))
	for _, k := range localKeys {
		out[c.global(k)] = true
	}

	return out
}

func (c *Context) toGlobalTags(localKeys, localVals []uint32) (keys, vals []int32) {
	if localKeys == nil {
		return nil, nil
	}

	keys = make([]int32, len(localKeys))
	vals = make([]int32, len(localKeys))

	for i := range localKeys {
		keys[i] = c.global(localKeys[i])
		vals[i] = c.global(localVals[i])
	}

	return keys, vals
}

func toSet(ids []int32) map[int32]bool {
	if ids == nil {
		return nil
	}

	out := make(map[int32]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}

	return out
}

// matchRelationTypes mirrors the member-type (not tag-value) relation
// filter: nil means no restriction. A relation with no members never
// matches a configured filter; otherwise at least one member's type
// enum must be in the wanted set.
func matchRelationTypes(types []int32, want map[model.EntityType]bool) bool {
	if want == nil {
		return true
	}

	if len(types) == 0 {
		return false
	}

	for _, t := range types {
		if want[model.EntityType(t)] {
			return true
		}
	}

	return false
}
