package usecases

import (
	"fmt"
	"math"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

// FrameTarget is a geographic point to place in a local frame.
type FrameTarget struct {
	ID       string            `json:"id"`
	Location domain.Coordinate `json:"location"`
}

// PlacedTarget is a target expressed in the local frame of an origin.
type PlacedTarget struct {
	ID         string            `json:"id"`
	Point      domain.LocalPoint `json:"point"`
	DistanceM  float64           `json:"distance_m"`
	BearingDeg float64           `json:"bearing_deg"`
}

// FrameService places notes around a viewer for AR rendering.
type FrameService struct{}

// NewFrameService creates a new FrameService.
func NewFrameService() *FrameService {
	return &FrameService{}
}

// Project converts every target into origin-relative meters. Targets with an
// invalid location are skipped.
func (s *FrameService) Project(origin domain.Coordinate, targets []FrameTarget) ([]PlacedTarget, error) {
	if !origin.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	if math.Abs(origin.Lat) == 90 {
		return nil, geospatial.ErrPolarOrigin
	}

	out := make([]PlacedTarget, 0, len(targets))
	for _, t := range targets {
		if !t.Location.Valid() {
			continue
		}
		out = append(out, PlacedTarget{
			ID:         t.ID,
			Point:      geospatial.ToLocal(origin, t.Location),
			DistanceM:  geospatial.DistanceMeters(origin, t.Location),
			BearingDeg: geospatial.BearingDegrees(origin, t.Location),
		})
	}
	return out, nil
}

// Unproject maps a local point back to geographic coordinates.
func (s *FrameService) Unproject(origin domain.Coordinate, p domain.LocalPoint) (domain.Coordinate, error) {
	if !origin.Valid() {
		return domain.Coordinate{}, domain.ErrInvalidCoordinate
	}
	if !geospatial.Finite(p.X) || !geospatial.Finite(p.Z) {
		return domain.Coordinate{}, fmt.Errorf("local point must be finite: %w", domain.ErrInvalidCoordinate)
	}
	return geospatial.ToGeoChecked(origin, p)
}
