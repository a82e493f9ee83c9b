// README: Tracking consumer states, views and the collaborators a consumer drives.
package tracking

import (
	"context"
	"errors"

	"delitrack/internal/modules/mapview"
	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/types"
)

var (
	ErrAlreadyStarted = errors.New("tracking already started")
	ErrStopped        = errors.New("tracking stopped")
)

type State int

const (
	StateIdle State = iota
	StateMapReady
	StateLive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMapReady:
		return "map_ready"
	case StateLive:
		return "live"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Variant selects the admin dashboard or customer page behaviour.
type Variant string

const (
	VariantAdmin    Variant = "admin"
	VariantCustomer Variant = "customer"
)

// Subscription delivers room messages until it is closed or the connection
// drops, at which point Messages is closed.
type Subscription interface {
	Messages() <-chan relay.Message
	Close() error
}

// Feed joins an order's tracking room.
type Feed interface {
	Subscribe(ctx context.Context, orderID string) (Subscription, error)
}

type FeedFunc func(ctx context.Context, orderID string) (Subscription, error)

func (f FeedFunc) Subscribe(ctx context.Context, orderID string) (Subscription, error) {
	return f(ctx, orderID)
}

type Router interface {
	ComputeRoute(ctx context.Context, start, end types.Point) route.Result
}

// Map is the rendering surface; *mapview.Adapter implements it.
type Map interface {
	CreateMap(ctx context.Context, containerID string, center types.Point, zoom int) error
	PlaceMarker(p types.Point, style mapview.MarkerStyle) mapview.Element
	UpdateRiderMarker(p types.Point)
	DrawRoute(points []types.Point, color string) mapview.Element
	FitBounds(points []types.Point)
	Destroy()
}

// View is a snapshot of what the consumer shows.
type View struct {
	OrderID     string        `json:"orderId"`
	Variant     Variant       `json:"variant"`
	State       State         `json:"state"`
	Connected   bool          `json:"connected"`
	Status      string        `json:"status,omitempty"`
	StatusText  string        `json:"statusText,omitempty"`
	Progress    int           `json:"progress"`
	Restaurant  types.Point   `json:"restaurant"`
	Destination types.Point   `json:"destination"`
	Rider       *types.Point  `json:"rider,omitempty"`
	LastUpdate  int64         `json:"lastUpdate,omitempty"`
	Route       *route.Result `json:"route,omitempty"`
	Notice      string        `json:"notice,omitempty"`
}
