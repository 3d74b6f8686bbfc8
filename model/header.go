package model

import "time"

// Header is the contents of a PBF file's OSMHeader blob.
type Header struct {
	BoundingBox                      *BoundingBox
	RequiredFeatures                 []string
	OptionalFeatures                 []string
	WritingProgram                   string
	Source                           string
	OsmosisReplicationTimestamp      time.Time
	OsmosisReplicationSequenceNumber int64
	OsmosisReplicationBaseURL        string
}

// SupportedFeatures is the allow-list of required features this decoder
// understands: anything else in a header's required-feature list is
// fatal at load time (ErrUnsupportedFeature).
var SupportedFeatures = map[string]bool{
	"OsmSchema-V0.6": true,
	"DenseNodes":     true,
}
