// README: Pure geographic helpers (haversine distance, interpolation, rounding).
package route

import (
	"math"

	"delitrack/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b types.Point) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// PositionOnRoute interpolates linearly between start and end; pct is 0..100.
func PositionOnRoute(start, end types.Point, pct float64) types.Point {
	t := pct / 100
	return types.Point{
		Lat: start.Lat + (end.Lat-start.Lat)*t,
		Lng: start.Lng + (end.Lng-start.Lng)*t,
	}
}

func roundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

func roundMinutes(min float64) int {
	return int(math.Round(min))
}
