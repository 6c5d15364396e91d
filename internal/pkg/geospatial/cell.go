package geospatial

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// GeocellLevel is the s2 level stamped on stored notes (cells of roughly 150m).
const GeocellLevel = 16

// LeafCell returns the s2 leaf cell containing c.
func LeafCell(c domain.Coordinate) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng))
}

// CellToken returns the GeocellLevel token for c.
func CellToken(c domain.Coordinate) string {
	return LeafCell(c).Parent(GeocellLevel).ToToken()
}

// CoverRadius returns a set of s2 cells that together contain every point
// within radiusM of center.
func CoverRadius(center domain.Coordinate, radiusM float64, maxCells int) s2.CellUnion {
	if maxCells <= 0 {
		maxCells = 8
	}
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lng))
	// slightly widened so points on the boundary survive float rounding
	cp := s2.CapFromCenterAngle(p, s1.Angle(radiusM*1.001/EarthRadiusM+1e-9))

	rc := &s2.RegionCoverer{MinLevel: 4, MaxLevel: 20, MaxCells: maxCells}
	return rc.Covering(cp)
}
