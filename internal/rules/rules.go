// Package rules holds the fixed tag tables the query compiler and
// primitive parsers use for way/relation area-vs-line classification, and
// the named Query presets built on top of them. These tables are not
// part of the wire format; they encode the same common OSM
// area-heuristic conventions every PBF consumer carries (the ones
// "osmium area_type" and similar tools ship with).
package rules

// IsArea lists key/value pairs that mark a closed way as an area
// regardless of any other tag on it except area=no (AreaNo). A key with an
// empty value list contributes no pair; such keys count as area only
// through IsAreaKeyAnyValue.
var IsArea = map[string][]string{
	"area":     {"yes"},
	"landuse":  {},
	"natural":  {"water", "wetland", "wood", "scrub", "heath", "grassland", "beach", "sand", "bare_rock", "glacier"},
	"amenity":  {"parking", "school", "hospital", "university", "marketplace"},
	"leisure":  {},
	"building": {},
}

// AreaNo is the explicit escape hatch (area=no) that always overrides
// every other area signal on a way back to "line".
var AreaNo = map[string][]string{"area": {"no"}}

// NotArea lists key/value pairs that mark a closed way as a line even
// though it closes on itself (e.g. a roundabout or a coastline).
var NotArea = map[string][]string{
	"highway": {
		"motorway", "trunk", "primary", "secondary", "tertiary",
		"unclassified", "residential", "service", "track", "path",
		"footway", "cycleway", "bridleway", "steps", "pedestrian",
		"living_street", "road",
	},
	"natural":  {"coastline", "tree_row", "cliff"},
	"waterway": {"river", "stream", "canal", "drain", "ditch"},
	"barrier":  {"fence", "wall", "hedge"},
}

// IsAreaKeyAnyValue lists keys whose mere presence (any value) on a
// closed way marks it as an area.
var IsAreaKeyAnyValue = []string{
	"building", "building:part", "landuse", "leisure", "natural",
	"amenity", "aeroway", "harbour", "historic", "man_made",
	"military", "office", "place", "power", "public_transport",
	"shop", "sport", "tourism", "water", "wetland",
}

// RelationArea lists tag values that mark a relation as a polygon
// assembly (e.g. a "type" tag of "multipolygon"). Matched against every
// value on the relation, not just its "type" tag.
var RelationArea = []string{"multipolygon", "boundary"}

// RelationLineString lists tag values that mark a relation as a
// route/linestring assembly rather than a polygon.
var RelationLineString = []string{"route", "waterway"}

// Preset is a named bundle of Query field overrides.
type Preset struct {
	Ways          bool
	Nodes         bool
	Relations     bool
	Geometry      bool
	Tags          []string
	Keep          map[string][]string
	Exclude       map[string][]string
	RelationTypes []string
}

// Presets are the named query starting points a caller can request via
// Query.WithDefaults.
var Presets = map[string]Preset{
	"highways": {
		Ways:     true,
		Geometry: true,
		Tags:     []string{"highway", "name", "ref", "lanes", "maxspeed", "oneway", "surface"},
		Keep:     map[string][]string{"highway": {}},
	},
	"buildings": {
		Ways:     true,
		Relations: true,
		Geometry: true,
		Tags:     []string{"building", "building:levels", "name", "addr:housenumber", "addr:street"},
		Keep:     map[string][]string{"building": {}},
	},
	"pois": {
		Nodes:    true,
		Geometry: true,
		Tags:     []string{"amenity", "shop", "name", "cuisine", "opening_hours"},
		Keep: map[string][]string{
			"amenity": {},
			"shop":    {},
		},
	},
}
