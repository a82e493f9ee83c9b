package route

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"delitrack/internal/types"
)

// RestaurantLocator resolves the restaurant's named place once and caches it.
// A failed lookup falls back to the configured coordinate and is retried on
// the next call.
type RestaurantLocator struct {
	resolver PlaceResolver
	placeID  string
	fallback types.Point
	logger   zerolog.Logger

	mu       sync.Mutex
	resolved *types.Point
}

func NewRestaurantLocator(resolver PlaceResolver, placeID string, fallback types.Point, logger zerolog.Logger) *RestaurantLocator {
	return &RestaurantLocator{resolver: resolver, placeID: placeID, fallback: fallback, logger: logger}
}

func (l *RestaurantLocator) Coordinates(ctx context.Context) types.Point {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resolved != nil {
		return *l.resolved
	}
	if l.resolver == nil || l.placeID == "" {
		return l.fallback
	}
	p, err := l.resolver.PlaceLocation(ctx, l.placeID)
	if err != nil {
		l.logger.Warn().Err(err).Str("place", l.placeID).Msg("restaurant place lookup failed, using stored coordinates")
		return l.fallback
	}
	l.resolved = &p
	return p
}
