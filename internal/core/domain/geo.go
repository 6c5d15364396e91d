package domain

import (
	"errors"
	"math"
)

// ErrInvalidCoordinate is returned for non-finite or out-of-range positions.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a geographic position in WGS 84 degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and inside the lat/lng domain.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// LocalPoint is a position in an origin-relative planar frame, in meters.
// X grows eastward, Z grows southward.
type LocalPoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}
