package primitive

import (
	"fmt"
	"time"

	"github.com/chourmo/osmdata/internal/wire"
	"github.com/chourmo/osmdata/model"
)

// Dense decodes one DenseNodes group (field numbers: 1=ids delta, 5=dense
// info, 8/9=lat/lon delta — skipped here since internal/coordcache
// already holds every node's coordinate from the first pass, 10=flat
// keys_vals array) into the nodes that survive the compiled query.
//
// Tag presence is a group-wide property: if the keys_vals field is
// absent, every node in the group has no tags at all. Per-node tag
// lists are 0-terminated runs within the shared array.
func (c *Context) Dense(buf []byte) ([]*NodeResult, error) {
	var (
		ids      []int64
		kv       []uint32
		infoBuf  []byte
		haveInfo bool
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding dense nodes: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			ids, offset = v, next
		case 5:
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

			infoBuf, haveInfo, offset = b, true, next
		case 10:
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

			kv, offset = v, next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	var (
		infos []model.Info
		err   error
	)

	if haveInfo {
		infos, err = c.decodeDenseInfo(infoBuf, len(ids))
		if err != nil {
			return nil, err
		}
	}

	haveTags := kv != nil
	keys, vals := splitDenseTags(kv, len(ids))

	out := make([]*NodeResult, 0, len(ids))

	for i, id := range ids {
		if !validateTag(c.tagKeySet(keys[i]), c.Query.MustTags) {
			continue
		}

		gkeys, gvals := c.toGlobalTags(keys[i], vals[i])
		tagSet := toSet(gkeys)

		if !validateTagVal(c.Query, haveTags, tagSet, gkeys, gvals) {
			continue
		}

		var info model.Info
		if haveInfo && i < len(infos) {
			info = infos[i]
		}

		out = append(out, &NodeResult{
			ID:   id,
			Tags: filterTags(c.Query, gkeys, gvals),
			Info: info,
		})
	}

	return out, nil
}

// splitDenseTags splits the flat, 0-terminated keys_vals array into each
// node's own key/value runs. n is the node count from the id array,
// which governs how many runs are expected regardless of how many
// sentinels actually appear in kv.
func splitDenseTags(kv []uint32, n int) (keys, vals [][]uint32) {
	keys = make([][]uint32, n)
	vals = make([][]uint32, n)

	pos := 0

	for i := 0; i < n; i++ {
		var ks, vs []uint32

		for pos < len(kv) && kv[pos] != 0 {
			ks = append(ks, kv[pos])
			vs = append(vs, kv[pos+1])
			pos += 2
		}

		keys[i] = ks
		vals[i] = vs

		if pos < len(kv) {
			pos++
		}
	}

	return keys, vals
}

// decodeDenseInfo decodes a DenseInfo submessage (1=version packed, no
// delta; 2=timestamp/3=changeset/4=uid/5=user_sid packed with running
// delta) into one model.Info per node, in id-array order.
func (c *Context) decodeDenseInfo(buf []byte, n int) ([]model.Info, error) {
	var (
		versions                          []int32
		timestamps, changesets, uids, sids []int64
	)

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding dense info: %w", err)
		}

		offset = next

		switch field {
		case 1:
			v, next, err := wire.PackedEnum(buf, offset)
			if err != nil {
				return nil, err
			}

			versions, offset = v, next
		case 2:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			timestamps, offset = v, next
		case 3:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			changesets, offset = v, next
		case 4:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			uids, offset = v, next
		case 5:
			v, next, err := wire.PackedDeltaSint64(buf, offset)
			if err != nil {
				return nil, err
			}

			sids, offset = v, next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return nil, err
			}
		}
	}

	infos := make([]model.Info, n)

	for i := 0; i < n; i++ {
		var info model.Info

		if i < len(versions) {
			info.Version = versions[i]
		}

		if i < len(timestamps) {
			info.Timestamp = time.UnixMilli(timestamps[i] * int64(c.DateGranularity)).UTC()
		}

		if i < len(changesets) {
			info.Changeset = changesets[i]
		}

		if i < len(uids) {
			info.UID = model.UID(uids[i])
		}

		if i < len(sids) {
			info.User = c.globalString(c.global(uint32(sids[i])))
		}

		infos[i] = info
	}

	return infos, nil
}
