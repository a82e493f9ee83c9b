// README: Order service resolves delivery destinations and forwards status changes to tracking rooms.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/types"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrBadRequest    = errors.New("bad request")
	ErrUnknownStatus = errors.New("unknown order status")
	ErrNoStore       = errors.New("order lookup is not configured")
)

// Finder looks an order up by id or order number.
type Finder interface {
	Get(ctx context.Context, key string) (*Order, error)
}

// Geocoder estimates a coordinate for a free-form address.
type Geocoder interface {
	GeocodeAddress(address string) types.Point
}

// StatusNotifier pushes status changes to everyone tracking the order.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, u relay.StatusUpdate) error
}

type RestaurantSource interface {
	Coordinates(ctx context.Context) types.Point
}

type Service struct {
	finder      Finder
	geocoder    Geocoder
	notifier    StatusNotifier
	restaurant  RestaurantSource
	defaultDest types.Point
	logger      zerolog.Logger
}

type Options struct {
	Finder      Finder
	Geocoder    Geocoder
	Notifier    StatusNotifier
	Restaurant  RestaurantSource
	DefaultDest types.Point
	Logger      zerolog.Logger
}

func NewService(opts Options) *Service {
	return &Service{
		finder:      opts.Finder,
		geocoder:    opts.Geocoder,
		notifier:    opts.Notifier,
		restaurant:  opts.Restaurant,
		defaultDest: opts.DefaultDest,
		logger:      opts.Logger,
	}
}

func (s *Service) Get(ctx context.Context, key string) (*Order, error) {
	if key == "" {
		return nil, ErrBadRequest
	}
	if s.finder == nil {
		return nil, ErrNoStore
	}
	return s.finder.Get(ctx, key)
}

// Destination picks, in order: the coordinate saved with the address, an
// estimate from the joined address text, the configured default.
func (s *Service) Destination(o *Order) types.Point {
	if o == nil || o.DeliveryAddress == nil {
		return s.defaultDest
	}
	if p, ok := o.DeliveryAddress.Coordinates(); ok {
		return p
	}
	full := o.DeliveryAddress.Full()
	if full == "" || s.geocoder == nil {
		return s.defaultDest
	}
	return s.geocoder.GeocodeAddress(full)
}

// NotifyStatus forwards a status change into the order's tracking room. When
// the order can be looked up, the room is the order's tracking key; otherwise
// key is used as given.
func (s *Service) NotifyStatus(ctx context.Context, key string, status Status) error {
	if key == "" {
		return ErrBadRequest
	}
	if !status.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if s.notifier == nil {
		return errors.New("status notifier is not configured")
	}

	room := key
	if s.finder != nil {
		o, err := s.finder.Get(ctx, key)
		switch {
		case err == nil:
			room = o.TrackingKey()
		case errors.Is(err, ErrNotFound):
			s.logger.Debug().Str("order", key).Msg("status for unknown order, forwarding as given")
		default:
			return err
		}
	}

	return s.notifier.NotifyStatus(ctx, relay.StatusUpdate{OrderID: room, Status: string(status)})
}

// TrackingInfo is what a tracking page needs before the first live sample.
type TrackingInfo struct {
	OrderID     types.ID    `json:"orderId"`
	OrderNumber int64       `json:"orderNumber,omitempty"`
	Room        string      `json:"room"`
	Status      Status      `json:"status"`
	StatusText  string      `json:"statusText"`
	Progress    int         `json:"progress"`
	Restaurant  types.Point `json:"restaurant"`
	Destination types.Point `json:"destination"`
	ShowRoute   bool        `json:"showRoute"`
}

func (s *Service) Tracking(ctx context.Context, key string) (TrackingInfo, error) {
	o, err := s.Get(ctx, key)
	if err != nil {
		return TrackingInfo{}, err
	}
	info := TrackingInfo{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Room:        o.TrackingKey(),
		Status:      o.Status,
		StatusText:  o.Status.Text(),
		Progress:    route.ProgressForStatus(string(o.Status)),
		Destination: s.Destination(o),
		ShowRoute:   o.Status.ShowsRoute(),
	}
	if s.restaurant != nil {
		info.Restaurant = s.restaurant.Coordinates(ctx)
	}
	return info, nil
}
