package model

import "fmt"

// BoundingBox is a WGS84 bounding box in decimal degrees.
type BoundingBox struct {
	Top    Degrees
	Left   Degrees
	Bottom Degrees
	Right  Degrees
}

// InitialBoundingBox creates a BoundingBox holding the degenerate sentinel
// extent decodeHeaderBBox starts from before a header's four bbox fields
// (each optional on the wire) overwrite it field by field.
func InitialBoundingBox() *BoundingBox {
	return &BoundingBox{
		Top:    MinLat,
		Left:   MaxLon,
		Bottom: MaxLat,
		Right:  MinLon,
	}
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("[(%s, %s) (%s, %s)]", b.Top, b.Left, b.Bottom, b.Right)
}
