package geospatial

import (
	"errors"
	"math"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// ErrPolarOrigin is returned when a local frame is anchored at a pole, where the
// east-west scale factor collapses to zero.
var ErrPolarOrigin = errors.New("local frame origin at a pole is not supported")

const polarCosEpsilon = 1e-12

// ToLocal projects target into the planar frame centered on origin using an
// equirectangular approximation. Only accurate up to a few hundred meters.
func ToLocal(origin, target domain.Coordinate) domain.LocalPoint {
	dLng := wrapLng(target.Lng - origin.Lng)
	dLat := target.Lat - origin.Lat

	return domain.LocalPoint{
		X: ToRadians(dLng) * EarthRadiusM * math.Cos(ToRadians(origin.Lat)),
		Z: -ToRadians(dLat) * EarthRadiusM,
	}
}

// ToGeo is the inverse of ToLocal for the same origin. At a polar origin the
// east offset cannot be inverted and the origin longitude is kept.
func ToGeo(origin domain.Coordinate, p domain.LocalPoint) domain.Coordinate {
	c, _ := ToGeoChecked(origin, p)
	return c
}

// ToGeoChecked is ToGeo that reports ErrPolarOrigin instead of silently
// dropping the east offset.
func ToGeoChecked(origin domain.Coordinate, p domain.LocalPoint) (domain.Coordinate, error) {
	lat := origin.Lat - ToDegrees(p.Z/EarthRadiusM)

	cosLat := math.Cos(ToRadians(origin.Lat))
	if math.Abs(cosLat) < polarCosEpsilon {
		return domain.Coordinate{Lat: lat, Lng: origin.Lng}, ErrPolarOrigin
	}

	lng := origin.Lng + ToDegrees(p.X/(EarthRadiusM*cosLat))
	if lng > 180 || lng < -180 {
		lng = wrapLng(lng)
	}
	return domain.Coordinate{Lat: lat, Lng: lng}, nil
}

// wrapLng folds a longitude delta into [-180,180).
func wrapLng(deg float64) float64 {
	d := math.Mod(deg+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
