// README: Geolocation source: watches the device position and forwards it to the relay with a keep-alive re-send.
package geosource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"delitrack/internal/observability"
	"delitrack/internal/types"
)

const DefaultKeepAlive = 5 * time.Second

type Options struct {
	// KeepAlive is the interval at which the last known fix is re-sent.
	KeepAlive time.Duration
	Logger    zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// Source turns device fixes into position samples for a single order.
type Source struct {
	watcher   Watcher
	publisher Publisher
	keepAlive time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	current *run
	last    *types.Point
	onError func(error)
	wg      sync.WaitGroup

	sent atomic.Int64
}

type run struct {
	orderID string
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(watcher Watcher, publisher Publisher, opts Options) *Source {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Source{
		watcher:   watcher,
		publisher: publisher,
		keepAlive: opts.KeepAlive,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// OnError registers the handler that receives fatal source errors. Tracking
// has already stopped when it runs; use UserMessage for display text.
func (s *Source) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start begins watching the device and forwarding samples for orderID.
func (s *Source) Start(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrMissingOrder
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{orderID: orderID}
	r.ctx, r.cancel = context.WithCancel(ctx)
	s.current = r
	s.last = nil
	s.mu.Unlock()

	s.sent.Store(0)
	s.wg.Add(2)
	go s.watch(r)
	go s.keepAliveLoop(r)

	s.logger.Info().
		Str("order_id", orderID).
		Dur("keep_alive", s.keepAlive).
		Msg("location sharing started")
	return nil
}

// Stop cancels the watch and the keep-alive ticker. Safe to call any number
// of times, including after a fatal error already stopped the source.
func (s *Source) Stop() {
	if s.halt() {
		s.logger.Info().Msg("location sharing stopped")
	}
	s.wg.Wait()
}

func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// LastKnown is the most recent valid fix of the current run.
func (s *Source) LastKnown() (types.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return types.Point{}, false
	}
	return *s.last, true
}

// Sent is the number of samples forwarded since the last Start.
func (s *Source) Sent() int64 {
	return s.sent.Load()
}

// halt cancels the current run without waiting for its goroutines, so it can
// be called from inside them.
func (s *Source) halt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.cancel()
	s.current = nil
	return true
}

func (s *Source) watch(r *run) {
	defer s.wg.Done()

	err := s.watcher.Watch(r.ctx, func(f Fix) { s.handleFix(r, f) })
	if err == nil || r.ctx.Err() != nil {
		return
	}

	observability.SourceErrors.WithLabelValues(errorKind(err)).Inc()
	s.logger.Error().Err(err).Str("order_id", r.orderID).Msg("location watch failed, stopping")

	s.mu.Lock()
	stillCurrent := s.current == r
	handler := s.onError
	s.mu.Unlock()
	if !stillCurrent {
		return
	}
	s.halt()
	if handler != nil {
		handler(err)
	}
}

func (s *Source) handleFix(r *run, f Fix) {
	if !f.Point.Valid() {
		s.logger.Debug().Stringer("point", f.Point).Msg("ignoring invalid fix")
		return
	}
	s.mu.Lock()
	if s.current != r {
		s.mu.Unlock()
		return
	}
	p := f.Point
	s.last = &p
	s.mu.Unlock()

	s.publish(r, p)
}

func (s *Source) keepAliveLoop(r *run) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p, ok := s.LastKnown(); ok {
				s.publish(r, p)
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (s *Source) publish(r *run, p types.Point) {
	if r.ctx.Err() != nil {
		return
	}
	sample := types.PositionSample{
		OrderID:   r.orderID,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.publisher.Publish(r.ctx, sample); err != nil {
		observability.PublishFailures.Inc()
		s.logger.Warn().Err(err).Str("order_id", r.orderID).Msg("failed to publish location")
		return
	}
	s.sent.Add(1)
	s.logger.Debug().
		Str("order_id", r.orderID).
		Float64("lat", p.Lat).
		Float64("lng", p.Lng).
		Msg("location sent")
}
