package geospatial

import (
	"math"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// EarthRadiusM is the mean Earth radius in meters.
const EarthRadiusM = 6371000.0

const metersPerDegree = 111320.0

// DistanceMeters calculates the great-circle distance in meters between two points.
// Non-finite inputs yield NaN.
func DistanceMeters(a, b domain.Coordinate) float64 {
	dLat := ToRadians(b.Lat - a.Lat)
	dLng := ToRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(ToRadians(a.Lat))*math.Cos(ToRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	// rounding can push h marginally outside [0,1] for antipodal points
	h = math.Min(math.Max(h, 0), 1)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// BearingDegrees returns the initial compass bearing from one point to another,
// in [0,360) with 0 = north and clockwise positive. Coincident or non-finite
// points yield 0.
func BearingDegrees(from, to domain.Coordinate) float64 {
	phi1 := ToRadians(from.Lat)
	phi2 := ToRadians(to.Lat)
	dLng := ToRadians(to.Lng - from.Lng)

	y := math.Sin(dLng) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLng)

	deg := NormalizeDegrees(ToDegrees(math.Atan2(y, x)))
	if math.IsNaN(deg) {
		return 0
	}
	return deg
}

// AngularDifference returns the shortest arc between two compass angles in
// degrees, in [0,180]. The result is NaN if either input is non-finite.
func AngularDifference(a, b float64) float64 {
	d := math.Mod(b-a+180, 360)
	if d < 0 {
		d += 360
	}
	return math.Abs(d - 180)
}

// NormalizeDegrees folds an angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
// Latitudes are clamped to the poles; longitudes may extend past ±180 when the box
// straddles the antimeridian (see LngRanges). Near the poles the box spans every longitude.
func BoundingBox(center domain.Coordinate, radiusMeters float64) domain.Bounds {
	latDelta := radiusMeters / metersPerDegree
	minLat := math.Max(center.Lat-latDelta, -90)
	maxLat := math.Min(center.Lat+latDelta, 90)

	cosLat := math.Cos(ToRadians(center.Lat))
	if minLat <= -90 || maxLat >= 90 || cosLat < 1e-9 {
		return domain.Bounds{MinLat: minLat, MinLng: -180, MaxLat: maxLat, MaxLng: 180}
	}

	lngDelta := radiusMeters / (metersPerDegree * cosLat)
	if lngDelta >= 180 {
		return domain.Bounds{MinLat: minLat, MinLng: -180, MaxLat: maxLat, MaxLng: 180}
	}

	return domain.Bounds{
		MinLat: minLat,
		MinLng: center.Lng - lngDelta,
		MaxLat: maxLat,
		MaxLng: center.Lng + lngDelta,
	}
}

// LngRanges splits the longitude span of b into one or two ranges inside [-180,180].
func LngRanges(b domain.Bounds) [][2]float64 {
	switch {
	case b.MinLng < -180:
		return [][2]float64{{b.MinLng + 360, 180}, {-180, b.MaxLng}}
	case b.MaxLng > 180:
		return [][2]float64{{b.MinLng, 180}, {-180, b.MaxLng - 360}}
	default:
		return [][2]float64{{b.MinLng, b.MaxLng}}
	}
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
