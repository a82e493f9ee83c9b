// README: Map adapter: keeps rider marker, route line and viewport in sync and absorbs rendering failures.
package mapview

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"delitrack/internal/observability"
	"delitrack/internal/types"
)

const (
	DefaultLoadTimeout = 5 * time.Second
	DefaultPadding     = 80
)

type Options struct {
	LoadTimeout time.Duration
	Padding     int
	Logger      zerolog.Logger
}

// Adapter owns one map and everything drawn on it. Rendering errors are
// logged and counted; the failing element is simply not shown.
type Adapter struct {
	loader      *Loader
	loadTimeout time.Duration
	padding     int
	logger      zerolog.Logger

	mu        sync.Mutex
	m         Map
	elements  []Element
	rider     Element
	route     Element
	destroyed bool
}

func NewAdapter(loader *Loader, opts Options) *Adapter {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Padding <= 0 {
		opts.Padding = DefaultPadding
	}
	return &Adapter{loader: loader, loadTimeout: opts.LoadTimeout, padding: opts.Padding, logger: opts.Logger}
}

// CreateMap loads the SDK if needed and creates the map. It waits for the
// map's load event but gives up waiting after the load timeout and carries
// on with the map as is.
func (a *Adapter) CreateMap(ctx context.Context, containerID string, center types.Point, zoom int) error {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	sdk, err := a.loader.Load(ctx)
	if err != nil {
		a.renderFailed("load", err)
		return err
	}
	m, err := sdk.NewMap(ctx, containerID, center, zoom)
	if err != nil {
		a.renderFailed("create", err)
		return err
	}

	timer := time.NewTimer(a.loadTimeout)
	defer timer.Stop()
	select {
	case <-m.Loaded():
	case <-timer.C:
		a.logger.Warn().Str("container", containerID).Dur("timeout", a.loadTimeout).Msg("map load timeout, continuing")
	case <-ctx.Done():
		_ = m.Remove()
		return ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		_ = m.Remove()
		return ErrDestroyed
	}
	if a.m != nil {
		a.clearLocked()
	}
	a.m = m
	return nil
}

// PlaceMarker adds a static marker. It returns nil when the marker could not be drawn.
func (a *Adapter) PlaceMarker(p types.Point, style MarkerStyle) Element {
	a.mu.Lock()
	defer a.mu.Unlock()
	el := a.addMarkerLocked(p, style)
	if el != nil {
		a.elements = append(a.elements, el)
	}
	return el
}

// UpdateRiderMarker moves the rider by removing the old marker and drawing a new one.
func (a *Adapter) UpdateRiderMarker(p types.Point) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rider != nil {
		a.removeLocked("rider", a.rider)
		a.rider = nil
	}
	a.rider = a.addMarkerLocked(p, StyleRider)
}

// DrawRoute replaces the current route line. It returns nil when nothing was
// drawn; the previous line is removed either way.
func (a *Adapter) DrawRoute(points []types.Point, color string) Element {
	if color == "" {
		color = RouteColor
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.route != nil {
		a.removeLocked("route", a.route)
		a.route = nil
	}
	if !a.readyLocked("route") {
		return nil
	}
	if len(points) < 2 {
		a.renderFailed("route", ErrTooFewPoints)
		return nil
	}
	el, err := a.m.AddPolyline(points, color, RouteWeight, RouteOpacity)
	if err != nil {
		a.renderFailed("route", err)
		return nil
	}
	a.route = el
	return el
}

// FitBounds frames all points with the configured padding.
func (a *Adapter) FitBounds(points []types.Point) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(points) == 0 || !a.readyLocked("fit_bounds") {
		return
	}
	if err := a.m.FitBounds(points, a.padding); err != nil {
		a.renderFailed("fit_bounds", err)
	}
}

// Destroy removes every element and the map. Calling it again is a no-op.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.destroyed = true
	a.clearLocked()
}

func (a *Adapter) clearLocked() {
	for _, el := range a.elements {
		a.removeLocked("marker", el)
	}
	if a.rider != nil {
		a.removeLocked("rider", a.rider)
	}
	if a.route != nil {
		a.removeLocked("route", a.route)
	}
	if a.m != nil {
		if err := a.m.Remove(); err != nil {
			a.renderFailed("destroy", err)
		}
	}
	a.m, a.rider, a.route, a.elements = nil, nil, nil, nil
}

func (a *Adapter) addMarkerLocked(p types.Point, style MarkerStyle) Element {
	if !a.readyLocked("marker") {
		return nil
	}
	el, err := a.m.AddMarker(p, style)
	if err != nil {
		a.renderFailed("marker", err)
		return nil
	}
	return el
}

func (a *Adapter) removeLocked(op string, el Element) {
	if err := el.Remove(); err != nil {
		a.renderFailed(op+"_remove", err)
	}
}

func (a *Adapter) readyLocked(op string) bool {
	if a.m != nil {
		return true
	}
	if !a.destroyed {
		a.renderFailed(op, ErrNoMap)
	}
	return false
}

func (a *Adapter) renderFailed(op string, err error) {
	observability.RenderErrors.WithLabelValues(op).Inc()
	a.logger.Warn().Err(err).Str("op", op).Msg("map rendering failed")
}
