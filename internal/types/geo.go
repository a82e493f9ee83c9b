// README: Common value objects shared across modules (identifiers, coordinates).
package types

import "fmt"

// ID identifies an order, a connection or any other tracked entity.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is inside the lat/lng ranges and is not the
// null island placeholder many devices report before their first fix.
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LngLat renders the point in the "lng,lat" order used by the directions proxy.
func (p Point) LngLat() string {
	return fmt.Sprintf("%f,%f", p.Lng, p.Lat)
}

// LatLng renders the point in the "lat,lng" order used by Google Maps requests.
func (p Point) LatLng() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lng)
}
