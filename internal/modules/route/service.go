// README: Route engine computes renderable paths with a straight-line fallback.
package route

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"delitrack/internal/observability"
	"delitrack/internal/types"
)

// DefaultMinutesPerKm is the flat-speed placeholder used by the fallback.
const DefaultMinutesPerKm = 3.0

type Engine struct {
	provider     DirectionsProvider
	restaurant   types.Point
	minutesPerKm float64
	logger       zerolog.Logger
}

type Options struct {
	Provider     DirectionsProvider
	Restaurant   types.Point
	MinutesPerKm float64
	Logger       zerolog.Logger
}

func NewEngine(opts Options) *Engine {
	mpk := opts.MinutesPerKm
	if mpk <= 0 {
		mpk = DefaultMinutesPerKm
	}
	return &Engine{
		provider:     opts.Provider,
		restaurant:   opts.Restaurant,
		minutesPerKm: mpk,
		logger:       opts.Logger,
	}
}

// ComputeRoute never fails: a lookup error degrades to the two-point line with
// a haversine distance, so the caller always has something to draw.
func (e *Engine) ComputeRoute(ctx context.Context, start, end types.Point) Result {
	if e.provider == nil {
		return e.fallback(start, end, ErrNoProvider)
	}

	began := time.Now()
	d, err := e.provider.Directions(ctx, start, end)
	observability.ObserveRouteLatency(began)
	if err == nil && len(d.Points) < 2 {
		err = ErrNoRoute
	}
	if err != nil {
		if ctx.Err() != nil {
			// superseded or abandoned by the caller; not a provider failure
			e.logger.Debug().Err(err).Msg("directions lookup canceled")
			return e.Fallback(start, end)
		}
		return e.fallback(start, end, err)
	}

	return Result{
		Points:      d.Points,
		DistanceKm:  roundKm(d.DistanceMeters / 1000),
		DurationMin: roundMinutes(d.DurationSeconds / 60),
	}
}

// Fallback is the straight-line estimate between start and end.
func (e *Engine) Fallback(start, end types.Point) Result {
	km := DistanceKm(start, end)
	return Result{
		Points:      []types.Point{start, end},
		DistanceKm:  roundKm(km),
		DurationMin: roundMinutes(km * e.minutesPerKm),
		Fallback:    true,
	}
}

func (e *Engine) fallback(start, end types.Point, cause error) Result {
	reason := fallbackReason(cause)
	observability.RouteFallbacks.WithLabelValues(reason).Inc()
	e.logger.Warn().
		Err(cause).
		Str("reason", reason).
		Stringer("start", start).
		Stringer("end", end).
		Msg("directions lookup failed, using straight-line route")
	return e.Fallback(start, end)
}

// GeocodeAddress approximates a coordinate for an address string relative to
// the restaurant. See EstimateCoordinates.
func (e *Engine) GeocodeAddress(address string) types.Point {
	return EstimateCoordinates(e.restaurant, address)
}

func (e *Engine) Restaurant() types.Point {
	return e.restaurant
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrNoProvider):
		return "no_provider"
	case errors.Is(err, ErrNoRoute):
		return "empty"
	case errors.Is(err, ErrBadResponse):
		return "malformed"
	case errors.Is(err, ErrUpstreamStatus):
		return "upstream_status"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
