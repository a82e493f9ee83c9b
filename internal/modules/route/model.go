// README: Route engine value objects and provider contracts.
package route

import (
	"context"
	"errors"

	"delitrack/internal/types"
)

var (
	ErrNoRoute        = errors.New("no route found")
	ErrBadResponse    = errors.New("malformed directions response")
	ErrUpstreamStatus = errors.New("directions upstream returned an error status")
	ErrNoProvider     = errors.New("no directions provider configured")
	ErrPlaceNotFound  = errors.New("place not found")
)

// Result is a renderable path plus the human-facing distance and duration.
type Result struct {
	Points      []types.Point `json:"points"`
	DistanceKm  float64       `json:"distance_km"`
	DurationMin int           `json:"duration_min"`
	// Fallback is set when the path is the straight-line estimate.
	Fallback bool `json:"fallback"`
}

// Directions is the raw answer of a road-network lookup before rounding.
type Directions struct {
	Points          []types.Point
	DistanceMeters  float64
	DurationSeconds float64
}

// DirectionsProvider performs a road-network lookup between two coordinates.
type DirectionsProvider interface {
	Directions(ctx context.Context, start, end types.Point) (Directions, error)
}

// PlaceResolver resolves a named place (e.g. the restaurant) to a coordinate.
type PlaceResolver interface {
	PlaceLocation(ctx context.Context, placeID string) (types.Point, error)
}
