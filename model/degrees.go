// Package model contains the shared value types for OpenStreetMap PBF
// decoding: coordinates, identifiers, entity kinds and header metadata.
package model

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
)

const (
	coordinatesPerDegree = 1e-9
	radiansPerPi          = 180
	minutesPerDegree      = 60
	secondsPerDegree      = 3600
	half                  = 0.5
)

// Degrees is the decimal degree representation of a longitude or latitude.
type Degrees float64

// Angle represents a 1D angle in radians.
type Angle s1.Angle

// Epsilon is a precision used when comparing Degrees or Angles.
type Epsilon float64

const (
	MaxLat Degrees = 90.0
	MaxLon Degrees = 180.0
	MinLat Degrees = -90.0
	MinLon Degrees = -180.0

	Radian Degrees = (radiansPerPi / math.Pi)

	E5 Epsilon = 1e-5
	E6 Epsilon = 1e-6
	E7 Epsilon = 1e-7
	E9 Epsilon = 1e-9
)

// Angle returns the equivalent s1.Angle.
func (d Degrees) Angle() Angle { return Angle(float64(d) * float64(s1.Degree)) }

func (d Degrees) String() string {
	sign := ""
	if d < 0 {
		sign = "-"
	}

	val := math.Abs(float64(d))
	degrees := int(math.Floor(val))
	minutes := int(math.Floor(minutesPerDegree * (val - float64(degrees))))
	seconds := secondsPerDegree * (val - float64(degrees) - (float64(minutes) / minutesPerDegree))

	return fmt.Sprintf("%s%d° %d' %.3f\"", sign, degrees, minutes, seconds)
}

// EqualWithin checks if two degrees are within a specific epsilon.
func (d Degrees) EqualWithin(o Degrees, eps Epsilon) bool {
	return round(float64(d)/float64(eps))-round(float64(o)/float64(eps)) == 0
}

// EqualWithin checks if two angles are within a specific epsilon.
func (d Angle) EqualWithin(o Angle, eps Epsilon) bool {
	return round(float64(d)/float64(eps))-round(float64(o)/float64(eps)) == 0
}

// ToDegrees converts a nanodegree-scale coordinate into Degrees, given the
// block's lat/lon offset and granularity.
func ToDegrees(offset int64, granularity int32, coordinate int64) Degrees {
	return coordinatesPerDegree * Degrees(offset+(int64(granularity)*coordinate))
}

func round(val float64) int64 {
	if val < 0 {
		return int64(val - half)
	}

	return int64(val + half)
}
