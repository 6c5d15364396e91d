package geospatial_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

const roundTripTolerance = 1e-9

func TestToLocal_Axes(t *testing.T) {
	origin := domain.Coordinate{Lat: 0, Lng: 0}

	east := geospatial.ToLocal(origin, domain.Coordinate{Lat: 0, Lng: 1e-5})
	assert.Greater(t, east.X, 0.0)
	assert.InDelta(t, 0, east.Z, 1e-12)

	north := geospatial.ToLocal(origin, domain.Coordinate{Lat: 1e-5, Lng: 0})
	assert.Less(t, north.Z, 0.0)
	assert.InDelta(t, 0, north.X, 1e-12)
}

func TestToLocal_OneMeterNorthEast(t *testing.T) {
	p := geospatial.ToLocal(domain.Coordinate{}, domain.Coordinate{Lat: 0.000008983, Lng: 0.000008983})
	assert.InDelta(t, 1.0, p.X, 1e-3)
	assert.InDelta(t, -1.0, p.Z, 1e-3)
}

func TestToGeo_RoundTrip(t *testing.T) {
	origin := domain.Coordinate{Lat: 0, Lng: 0}
	target := domain.Coordinate{Lat: 0.000008983, Lng: 0.000008983}

	got := geospatial.ToGeo(origin, geospatial.ToLocal(origin, target))
	assert.InDelta(t, target.Lat, got.Lat, roundTripTolerance)
	assert.InDelta(t, target.Lng, got.Lng, roundTripTolerance)
}

func TestToGeo_RoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	origins := []domain.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 43.263, Lng: -2.935},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 64.1466, Lng: -21.9426},
		{Lat: -77.85, Lng: 166.67},
	}

	for _, origin := range origins {
		for i := 0; i < 500; i++ {
			// targets up to ~300m away in any direction
			dist := rng.Float64() * 300
			theta := rng.Float64() * 2 * math.Pi
			p := domain.LocalPoint{X: dist * math.Sin(theta), Z: -dist * math.Cos(theta)}
			target := geospatial.ToGeo(origin, p)

			got := geospatial.ToGeo(origin, geospatial.ToLocal(origin, target))
			require.InDelta(t, target.Lat, got.Lat, roundTripTolerance, "origin %+v target %+v", origin, target)
			require.InDelta(t, target.Lng, got.Lng, roundTripTolerance, "origin %+v target %+v", origin, target)
		}
	}
}

func TestToLocal_MatchesHaversineAtShortRange(t *testing.T) {
	origin := domain.Coordinate{Lat: 43.263, Lng: -2.935}
	target := domain.Coordinate{Lat: 43.2635, Lng: -2.9345}

	p := geospatial.ToLocal(origin, target)
	planar := math.Hypot(p.X, p.Z)
	assert.InDelta(t, geospatial.DistanceMeters(origin, target), planar, 0.05)
}

func TestToLocal_AcrossAntimeridian(t *testing.T) {
	origin := domain.Coordinate{Lat: 10, Lng: 179.9995}
	target := domain.Coordinate{Lat: 10.0001, Lng: -179.9995}

	p := geospatial.ToLocal(origin, target)
	assert.Greater(t, p.X, 0.0)
	assert.Less(t, p.X, 200.0)

	got := geospatial.ToGeo(origin, p)
	assert.InDelta(t, target.Lat, got.Lat, roundTripTolerance)
	assert.InDelta(t, target.Lng, got.Lng, roundTripTolerance)
}

func TestToGeoChecked_PolarOrigin(t *testing.T) {
	origin := domain.Coordinate{Lat: 90, Lng: 12}
	got, err := geospatial.ToGeoChecked(origin, domain.LocalPoint{X: 5, Z: 5})
	require.ErrorIs(t, err, geospatial.ErrPolarOrigin)
	assert.Equal(t, 12.0, got.Lng)
	assert.False(t, math.IsInf(got.Lat, 0) || math.IsNaN(got.Lat))

	unchecked := geospatial.ToGeo(origin, domain.LocalPoint{X: 5, Z: 5})
	assert.Equal(t, got, unchecked)
}
