package blobio

import (
	"fmt"
	"time"

	"github.com/chourmo/osmdata/internal/errs"
	"github.com/chourmo/osmdata/internal/wire"
	"github.com/chourmo/osmdata/model"
)

// DecodeHeader walks a decompressed OSMHeader payload into model.Header,
// validating that every required feature is one this decoder understands.
func DecodeHeader(buf []byte) (model.Header, error) {
	var h model.Header

	offset := 0

	for offset < len(buf) {
		field, wt, next, err := wire.Key(buf, offset)
		if err != nil {
			return model.Header{}, fmt.Errorf("osmdata: decoding header block: %w", err)
		}

		offset = next

		switch field {
		case 1: // bbox
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding header bbox: %w", err)
			}

			bbox, err := decodeHeaderBBox(b)
			if err != nil {
				return model.Header{}, err
			}

			h.BoundingBox = bbox
			offset = next
		case 4: // required_features, repeated string
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding required feature: %w", err)
			}

			h.RequiredFeatures = append(h.RequiredFeatures, string(b))
			offset = next
		case 5: // optional_features, repeated string
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding optional feature: %w", err)
			}

			h.OptionalFeatures = append(h.OptionalFeatures, string(b))
			offset = next
		case 16: // writingprogram
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding writingprogram: %w", err)
			}

			h.WritingProgram = string(b)
			offset = next
		case 17: // source
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding source: %w", err)
			}

			h.Source = string(b)
			offset = next
		case 32: // osmosis_replication_timestamp
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding replication timestamp: %w", err)
			}

			h.OsmosisReplicationTimestamp = time.Unix(v, 0).UTC()
			offset = next
		case 33: // osmosis_replication_sequence_number
			v, next, err := wire.Varint(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding replication sequence number: %w", err)
			}

			h.OsmosisReplicationSequenceNumber = v
			offset = next
		case 34: // osmosis_replication_base_url
			b, next, err := wire.Bytes(buf, offset)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: decoding replication base url: %w", err)
			}

			h.OsmosisReplicationBaseURL = string(b)
			offset = next
		default:
			offset, err = wire.Skip(buf, offset, wt)
			if err != nil {
				return model.Header{}, fmt.Errorf("osmdata: skipping header field %d: %w", field, err)
			}
		}
	}

	for _, f := range h.RequiredFeatures {
		if !model.SupportedFeatures[f] {
			return model.Header{}, fmt.Errorf("%w: %q", errs.ErrUnsupportedFeature, f)
		}
	}

	return h, nil
}

// decodeHeaderBBox walks a HeaderBBox message: field 1=left, 2=right,
// 3=top, 4=bottom, all sint64 nanodegrees (granularity 1, offset 0).
func decodeHeaderBBox(buf []byte) (*model.BoundingBox, error) {
	b := model.InitialBoundingBox()

	offset := 0

	for offset < len(buf) {
		field, _, next, err := wire.Key(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding header bbox: %w", err)
		}

		offset = next

		v, next, err := wire.ZigZag(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("osmdata: decoding header bbox field %d: %w", field, err)
		}

		offset = next

		switch field {
		case 1:
			b.Left = model.ToDegrees(0, 1, v)
		case 2:
			b.Right = model.ToDegrees(0, 1, v)
		case 3:
			b.Top = model.ToDegrees(0, 1, v)
		case 4:
			b.Bottom = model.ToDegrees(0, 1, v)
		}
	}

	return b, nil
}
