package osmdata

import (
	"fmt"

	"github.com/chourmo/osmdata/internal/compile"
	"github.com/chourmo/osmdata/internal/errs"
	"github.com/chourmo/osmdata/internal/rules"
)

// Query describes what to extract from an OSM object: which element
// kinds to read, which tags must or must not be present, which ids to
// restrict to, and what extra columns (metadata, geometry, topology) to
// materialize.
type Query struct {
	Nodes     bool
	Ways      bool
	Relations bool

	// MustTags requires at least one of these keys on a result object.
	MustTags []string

	// Keep and Exclude are tag:value-list filters. An empty value list
	// for a key means "any value of this key". KeepFirst controls
	// precedence when both match: true evaluates Keep then Exclude (an
	// object must match Keep, and Exclude wins when both match), false
	// evaluates Exclude then Keep (Keep rescues an otherwise-excluded
	// object).
	Keep      map[string][]string
	Exclude   map[string][]string
	KeepFirst bool

	// Tags lists which tag columns to emit; nil means all tags, an
	// explicit empty slice means no tags.
	Tags []string

	// NodeIDs and WayIDs restrict node/way queries to exactly these
	// ids; nil means no restriction.
	NodeIDs []int64
	WayIDs  []int64

	// RelationType restricts relations to those containing at least one
	// member of one of these kinds ("node", "way", "relation"); nil
	// means no restriction. An empty (non-nil) slice is invalid.
	RelationType []string

	Metadata bool
	Geometry bool

	// Topology splits the member ways of each returned relation into
	// segments at shared nodes, adding Source/Target node ids to each
	// segment. Way rows are not split on their own: a query without
	// Relations yields no segments. Requires Ways and Geometry.
	Topology bool
}

// NewQuery returns a Query with Tags defaulting to "all tags" (nil) and
// KeepFirst defaulting to true.
func NewQuery() *Query {
	return &Query{KeepFirst: true}
}

// WithDefaults applies a named preset ("highways"/"buildings"/"pois") on
// top of the current query, appending rather than replacing any
// tag/keep/exclude fields already set.
func (q *Query) WithDefaults(name string) error {
	preset, ok := rules.Presets[name]
	if !ok {
		return fmt.Errorf("%w: unknown default %q", errs.ErrInvalidQuery, name)
	}

	q.Nodes = q.Nodes || preset.Nodes
	q.Ways = q.Ways || preset.Ways
	q.Relations = q.Relations || preset.Relations
	q.Geometry = q.Geometry || preset.Geometry

	q.AppendTags(preset.Tags)
	q.AppendKeep(preset.Keep)
	q.AppendExclude(preset.Exclude)

	if len(preset.RelationTypes) > 0 {
		q.RelationType = appendUniqueStrings(q.RelationType, preset.RelationTypes)
	}

	return nil
}

// AppendTags unions more tag columns into the projection. Passing nil
// leaves an existing "all tags" selection (Tags == nil) untouched.
func (q *Query) AppendTags(tags []string) {
	if len(tags) == 0 {
		return
	}

	if q.Tags == nil {
		q.Tags = append([]string(nil), tags...)
		return
	}

	q.Tags = appendUniqueStrings(q.Tags, tags)
}

// AppendKeep unions a filter into Keep: for a key already present, the
// value lists are merged (unless either is the "any value" empty list,
// which then wins).
func (q *Query) AppendKeep(filter map[string][]string) {
	q.Keep = mergeFilter(q.Keep, filter)
}

// AppendExclude unions a filter into Exclude, same merge rule as
// AppendKeep.
func (q *Query) AppendExclude(filter map[string][]string) {
	q.Exclude = mergeFilter(q.Exclude, filter)
}

func mergeFilter(dst, src map[string][]string) map[string][]string {
	if len(src) == 0 {
		return dst
	}

	if dst == nil {
		dst = make(map[string][]string, len(src))
	}

	for k, v := range src {
		if len(v) == 0 {
			dst[k] = []string{}
			continue
		}

		existing, ok := dst[k]
		if !ok {
			dst[k] = append([]string(nil), v...)
			continue
		}

		if len(existing) == 0 {
			continue // already "any value"
		}

		dst[k] = appendUniqueStrings(existing, v)
	}

	return dst
}

func appendUniqueStrings(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}

	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}

	return dst
}

// Validate checks the invariants enforced at construction time: Topology
// requires Ways and Geometry, Keep/Exclude precedence cannot be
// contradictory, and RelationType cannot be an explicit empty (as
// opposed to nil) slice.
func (q *Query) Validate() error {
	if q.Topology && (!q.Ways || !q.Geometry) {
		return fmt.Errorf("%w: topology requires ways and geometry", errs.ErrInvalidQuery)
	}

	if q.Keep == nil && q.Exclude != nil && q.KeepFirst {
		return fmt.Errorf("%w: keep cannot be nil when keep_first is true and exclude is set", errs.ErrInvalidQuery)
	}

	if q.Exclude == nil && q.Keep != nil && !q.KeepFirst {
		return fmt.Errorf("%w: exclude cannot be nil when keep_first is false and keep is set", errs.ErrInvalidQuery)
	}

	if q.RelationType != nil && len(q.RelationType) == 0 {
		return fmt.Errorf("%w: relation_type cannot be an empty list", errs.ErrInvalidQuery)
	}

	return nil
}

// toInput mirrors q into compile.Input's plain-data shape, the form
// internal/compile actually consumes (it cannot import this package
// without cycling back through it).
func (q *Query) toInput() compile.Input {
	return compile.Input{
		Nodes:        q.Nodes,
		Ways:         q.Ways,
		Relations:    q.Relations,
		MustTags:     q.MustTags,
		Keep:         q.Keep,
		Exclude:      q.Exclude,
		KeepFirst:    q.KeepFirst,
		Tags:         q.Tags,
		NodeIDs:      q.NodeIDs,
		WayIDs:       q.WayIDs,
		RelationType: q.RelationType,
		Metadata:     q.Metadata,
		Geometry:     q.Geometry,
		Topology:     q.Topology,
	}
}

