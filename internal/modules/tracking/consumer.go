// README: Tracking consumer: shows the rider, the remaining route and order progress for one order.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"delitrack/internal/modules/mapview"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/observability"
	"delitrack/internal/types"
	"delitrack/internal/wsclient"
)

const (
	CustomerZoom = 13
	reconnecting = "Live tracking unavailable, reconnecting"
	mapFailed    = "Map failed to load"
)

type Options struct {
	Variant     Variant
	OrderID     string
	ContainerID string
	Restaurant  types.Point
	Destination types.Point
	// Status is the order status known when tracking starts.
	Status        string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Logger        zerolog.Logger
	// OnChange receives a fresh View after every visible change. Calls are serialized.
	OnChange func(View)
}

type Consumer struct {
	feed   Feed
	router Router
	m      Map
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	view     View
	seq      uint64
	cancelRt context.CancelFunc
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	notifyMu sync.Mutex
	stopOnce sync.Once
}

func New(feed Feed, router Router, m Map, opts Options) *Consumer {
	if opts.Variant == "" {
		opts.Variant = VariantAdmin
	}
	c := &Consumer{
		feed:   feed,
		router: router,
		m:      m,
		opts:   opts,
		logger: opts.Logger.With().Str("order_id", opts.OrderID).Str("variant", string(opts.Variant)).Logger(),
	}
	c.view = View{
		OrderID:     opts.OrderID,
		Variant:     opts.Variant,
		State:       StateIdle,
		Restaurant:  opts.Restaurant,
		Destination: opts.Destination,
	}
	if opts.Variant == VariantCustomer {
		c.setStatusLocked(opts.Status)
	}
	return c
}

// Start creates the map with the static markers, then joins the order's room
// in the background. The returned error is only about the lifecycle; a map
// that fails to render leaves the consumer running without a map.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.view.State {
	case StateTerminated:
		c.mu.Unlock()
		return ErrStopped
	case StateIdle:
	default:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.view.State = StateMapReady
	c.mu.Unlock()

	center, zoom := c.opts.Restaurant, mapview.DefaultZoom
	if c.opts.Variant == VariantCustomer {
		center = route.PositionOnRoute(c.opts.Restaurant, c.opts.Destination, 50)
		zoom = CustomerZoom
	}
	if err := c.m.CreateMap(ctx, c.opts.ContainerID, center, zoom); err != nil {
		c.logger.Warn().Err(err).Msg("map unavailable, tracking without map")
		c.mu.Lock()
		c.view.Notice = mapFailed
		c.mu.Unlock()
	}
	c.m.PlaceMarker(c.opts.Restaurant, mapview.StyleRestaurant)
	c.m.PlaceMarker(c.opts.Destination, mapview.StyleDestination)
	c.m.FitBounds([]types.Point{c.opts.Restaurant, c.opts.Destination})

	c.mu.Lock()
	if c.view.State == StateTerminated {
		c.mu.Unlock()
		return ErrStopped
	}
	drawInitial := c.opts.Variant == VariantCustomer && order.Status(c.view.Status).ShowsRoute()
	if drawInitial {
		c.routeLocked(runCtx, c.opts.Restaurant)
	}
	c.wg.Add(1)
	c.mu.Unlock()
	c.changed()

	go c.run(runCtx)
	return nil
}

// Stop leaves the room and destroys the map. It is safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.view.State = StateTerminated
		c.view.Connected = false
		cancel := c.cancel
		if c.cancelRt != nil {
			c.cancelRt()
		}
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		c.m.Destroy()
		c.changed()
	})
}

func (c *Consumer) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	if v.Rider != nil {
		p := *v.Rider
		v.Rider = &p
	}
	if v.Route != nil {
		r := *v.Route
		v.Route = &r
	}
	return v
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	backoff := wsclient.Backoff{Base: c.opts.ReconnectBase, Max: c.opts.ReconnectMax}

	for {
		sub, err := c.feed.Subscribe(ctx, c.opts.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("join tracking room failed")
			c.disconnected()
			if !backoff.Sleep(ctx.Done()) {
				return
			}
			continue
		}

		backoff.Reset()
		c.connected()
		dropped := c.consume(ctx, sub)
		_ = sub.Close()
		if !dropped {
			return
		}
		c.logger.Info().Msg("tracking connection dropped")
		c.disconnected()
		if !backoff.Sleep(ctx.Done()) {
			return
		}
	}
}

// consume reports true when the subscription ended on its own.
func (c *Consumer) consume(ctx context.Context, sub Subscription) bool {
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return false
		case m, ok := <-msgs:
			if !ok {
				return ctx.Err() == nil
			}
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m relay.Message) {
	switch m.Event {
	case relay.EventDeliveryPosition:
		c.onSample(ctx, m.Sample)
	case relay.EventStatusUpdate:
		c.onStatus(ctx, m.Status)
	}
}

func (c *Consumer) onSample(ctx context.Context, s types.PositionSample) {
	if s.OrderID != c.opts.OrderID {
		return
	}
	p := s.Point()
	if !p.Valid() {
		return
	}

	c.mu.Lock()
	if c.view.State == StateTerminated || s.Timestamp < c.view.LastUpdate {
		c.mu.Unlock()
		return
	}
	// the first accepted sample is what makes the view live
	if c.view.State == StateMapReady {
		c.view.State = StateLive
	}
	c.view.Rider = &p
	c.view.LastUpdate = s.Timestamp
	c.mu.Unlock()

	c.m.UpdateRiderMarker(p)

	c.mu.Lock()
	c.routeLocked(ctx, p)
	c.mu.Unlock()
	c.changed()
}

func (c *Consumer) onStatus(ctx context.Context, u relay.StatusUpdate) {
	if c.opts.Variant != VariantCustomer || u.OrderID != c.opts.OrderID {
		return
	}
	c.mu.Lock()
	if c.view.State == StateTerminated {
		c.mu.Unlock()
		return
	}
	prev := c.view.Status
	c.setStatusLocked(u.Status)
	if u.Status == string(order.StatusOutForDelivery) && prev != u.Status && c.view.Rider == nil {
		c.routeLocked(ctx, c.opts.Restaurant)
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Consumer) setStatusLocked(status string) {
	c.view.Status = status
	c.view.StatusText = order.Status(status).Text()
	c.view.Progress = route.ProgressForStatus(status)
}

// routeLocked starts a route computation from start to the destination and
// supersedes any computation still in flight. Only the newest one is drawn.
func (c *Consumer) routeLocked(ctx context.Context, start types.Point) {
	if c.cancelRt != nil {
		c.cancelRt()
	}
	c.seq++
	seq := c.seq
	rctx, cancel := context.WithCancel(ctx)
	c.cancelRt = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		res := c.router.ComputeRoute(rctx, start, c.opts.Destination)
		c.applyRoute(seq, res)
	}()
}

func (c *Consumer) applyRoute(seq uint64, res route.Result) {
	c.mu.Lock()
	if seq != c.seq || c.view.State == StateTerminated {
		c.mu.Unlock()
		observability.StaleRoutes.Inc()
		c.logger.Debug().Uint64("seq", seq).Msg("discarding superseded route")
		return
	}
	c.view.Route = &res
	// drawing under the lock keeps a newer route from being painted over
	if c.m.DrawRoute(res.Points, mapview.RouteColor) == nil {
		c.logger.Debug().Int("points", len(res.Points)).Msg("route not drawn")
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Consumer) connected() {
	c.mu.Lock()
	if c.view.State != StateTerminated {
		c.view.Connected = true
		if c.view.Notice == reconnecting {
			c.view.Notice = ""
		}
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Consumer) disconnected() {
	c.mu.Lock()
	if c.view.State != StateTerminated {
		c.view.Connected = false
		c.view.Notice = reconnecting
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Consumer) changed() {
	if c.opts.OnChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.opts.OnChange(c.View())
}
