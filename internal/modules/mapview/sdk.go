// README: Map SDK abstraction and marker/route styles used by the tracking views.
package mapview

import (
	"context"
	"errors"
	"sync"

	"delitrack/internal/types"
)

var (
	ErrNoMap        = errors.New("map not created")
	ErrTooFewPoints = errors.New("a route needs at least two points")
	ErrDestroyed    = errors.New("map destroyed")
)

// MarkerStyle is the visual identity of a marker.
type MarkerStyle struct {
	Kind  string `json:"kind"`
	Color string `json:"color"`
	Title string `json:"title"`
}

var (
	StyleRestaurant  = MarkerStyle{Kind: "restaurant", Color: "#F97316", Title: "Restaurant"}
	StyleDestination = MarkerStyle{Kind: "destination", Color: "#22C55E", Title: "Delivery Address"}
	StyleRider       = MarkerStyle{Kind: "rider", Color: "#3B82F6", Title: "Delivery Partner"}
)

// Route line defaults.
const (
	RouteColor   = "#FF6B00"
	RouteWeight  = 5
	RouteOpacity = 0.9
	DefaultZoom  = 14
)

// SDK creates maps. It is obtained once through a Loader.
type SDK interface {
	NewMap(ctx context.Context, containerID string, center types.Point, zoom int) (Map, error)
}

// Map is one rendered map instance.
type Map interface {
	// Loaded is closed when the map finished its initial render.
	Loaded() <-chan struct{}
	AddMarker(p types.Point, style MarkerStyle) (Element, error)
	AddPolyline(points []types.Point, color string, weight int, opacity float64) (Element, error)
	FitBounds(points []types.Point, padding int) error
	Remove() error
}

// Element is a marker or a polyline on a map.
type Element interface {
	Remove() error
}

// Loader loads the SDK at most once; a failed load is retried by the next caller.
type Loader struct {
	load func(ctx context.Context) (SDK, error)

	mu  sync.Mutex
	sdk SDK
}

func NewLoader(load func(ctx context.Context) (SDK, error)) *Loader {
	return &Loader{load: load}
}

// StaticLoader wraps an SDK that needs no loading.
func StaticLoader(sdk SDK) *Loader {
	return &Loader{sdk: sdk}
}

func (l *Loader) Load(ctx context.Context) (SDK, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sdk != nil {
		return l.sdk, nil
	}
	sdk, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.sdk = sdk
	return sdk, nil
}
