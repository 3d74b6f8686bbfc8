// Package errs holds the sentinel error values shared across the decode
// pipeline, so that every layer can wrap the same underlying values with
// errors.Is-compatible %w chains, and the root package can re-export
// them without creating an import cycle with the internal packages that
// need to return them.
package errs

import "errors"

var (
	// ErrNotPBF / ErrBadExtension: input file is not a .pbf.
	ErrNotPBF       = errors.New("osmdata: not a PBF file")
	ErrBadExtension = errors.New("osmdata: file does not have a .pbf extension")

	// ErrTruncated: the file ends in the middle of a framed message.
	ErrTruncated = errors.New("osmdata: truncated PBF stream")

	// ErrUnsupportedCompression: a blob uses a compression this
	// implementation does not decode (only raw and zlib are supported).
	ErrUnsupportedCompression = errors.New("osmdata: unsupported blob compression")

	// ErrUnsupportedFeature: the OSMHeader lists a required feature
	// outside {"OsmSchema-V0.6", "DenseNodes"}.
	ErrUnsupportedFeature = errors.New("osmdata: unsupported required feature")

	// ErrInvalidQuery: a Query constraint was violated (topology without
	// ways+geometry, contradictory keep/exclude with keep_first).
	ErrInvalidQuery = errors.New("osmdata: invalid query")
)
