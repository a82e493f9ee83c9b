package route

import (
	"unicode/utf16"

	"delitrack/internal/types"
)

// EstimateCoordinates folds a 32-bit hash of the address into a small offset
// north-east of origin. It is an approximation for orders without stored
// coordinates, not geocoding: the same string always lands on the same point.
func EstimateCoordinates(origin types.Point, address string) types.Point {
	var h int32
	for _, cu := range utf16.Encode([]rune(address)) {
		h = h*31 + int32(cu)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	offset := float64(abs%1000) / 50000
	return types.Point{
		Lat: origin.Lat + 0.01 + offset,
		Lng: origin.Lng + 0.015 + offset,
	}
}
