// Package geo holds the small amount of spherical and planar geometry the
// map engine needs: distances, bearings, interpolation and bounds.
package geo

import "math"

const earthRadiusMeters = 6371000

// equalMargin matches the tolerance the map widget uses when comparing
// two positions.
const equalMargin = 1e-9

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Equal reports whether p and q are the same position within a 1e-9 degree margin.
func (p Point) Equal(q Point) bool {
	return math.Abs(p.Lat-q.Lat) <= equalMargin && math.Abs(p.Lng-q.Lng) <= equalMargin
}

// Haversine calculates the distance between two points in meters
func Haversine(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaPhi := (b.Lat - a.Lat) * math.Pi / 180
	deltaLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Bearing calculates the bearing from a to b in degrees (0-360)
func Bearing(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaLambda := (b.Lng - a.Lng) * math.Pi / 180

	x := math.Sin(deltaLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	bearing := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// Interpolate linearly interpolates between two points.
// Good enough for the short hops a marker makes between two polls.
func Interpolate(start, end Point, fraction float64) Point {
	return Point{
		Lat: start.Lat + (end.Lat-start.Lat)*fraction,
		Lng: start.Lng + (end.Lng-start.Lng)*fraction,
	}
}

// PathLength calculates the total length of a polyline in meters
func PathLength(coords []Point) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1], coords[i])
	}
	return total
}

// Clamp constrains a value between min and max
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Valid checks that a coordinate is present and inside WGS84 bounds.
// A zero latitude or longitude is what an unset numeric field decodes to,
// so it is treated as missing.
func Valid(lat, lng float64) bool {
	if lat == 0 || lng == 0 {
		return false
	}
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Bounds is an axis-aligned box around a set of points.
type Bounds struct {
	SouthWest Point `json:"southWest"`
	NorthEast Point `json:"northEast"`
}

// BoundsOf returns the box around coords and false when coords is empty.
func BoundsOf(coords []Point) (Bounds, bool) {
	if len(coords) == 0 {
		return Bounds{}, false
	}
	b := Bounds{SouthWest: coords[0], NorthEast: coords[0]}
	for _, p := range coords[1:] {
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	}
	return b, true
}
