// README: Relay service dispatches websocket events into rooms and serves in-process subscribers.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"delitrack/internal/types"
)

type Service struct {
	registry *RoomRegistry
	broker   Broker
	logger   zerolog.Logger
	queueLen int
}

func NewService(registry *RoomRegistry, broker Broker, queueLen int, logger zerolog.Logger) *Service {
	if queueLen <= 0 {
		queueLen = 32
	}
	return &Service{registry: registry, broker: broker, queueLen: queueLen, logger: logger}
}

func (s *Service) Registry() *RoomRegistry { return s.registry }

// ServeConn runs a websocket client until it disconnects, then removes it
// from every room it joined.
func (s *Service) ServeConn(ctx context.Context, c *Conn) {
	s.logger.Debug().Str("conn_id", c.ID()).Msg("client connected")
	defer func() {
		s.registry.Leave(c.ID())
		s.logger.Debug().Str("conn_id", c.ID()).Msg("client disconnected")
	}()
	c.Serve(ctx, s.Handle)
}

// Handle dispatches one inbound frame from sub.
func (s *Service) Handle(ctx context.Context, c *Conn, env Envelope) error {
	return s.dispatch(ctx, c, env)
}

func (s *Service) dispatch(ctx context.Context, sub Subscriber, env Envelope) error {
	switch env.Event {
	case EventDeliveryJoin:
		var req JoinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return s.registry.JoinPublisher(req.OrderID, sub.ID())

	case EventDeliveryLocation:
		var sample types.PositionSample
		if err := decode(env, &sample); err != nil {
			return err
		}
		if sample.OrderID == "" {
			return ErrMissingOrder
		}
		if !sample.Point().Valid() {
			return ErrInvalidSample
		}
		_, err := s.broker.PublishSample(ctx, sample)
		return err

	case EventTrackingJoin:
		var req JoinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return s.registry.Join(req.OrderID, sub)

	case EventTrackingLeave:
		var req JoinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		s.registry.LeaveRoom(req.OrderID, sub.ID())
		return nil

	case EventStatusUpdate:
		var u StatusUpdate
		if err := decode(env, &u); err != nil {
			return err
		}
		return s.NotifyStatus(ctx, u)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// NotifyStatus forwards an order status change into the order's room.
func (s *Service) NotifyStatus(ctx context.Context, u StatusUpdate) error {
	if u.OrderID == "" {
		return ErrMissingOrder
	}
	n, err := s.broker.PublishStatus(ctx, u)
	if err != nil {
		return err
	}
	s.logger.Info().Str("order_id", u.OrderID).Str("status", u.Status).Int("receivers", n).Msg("status update forwarded")
	return nil
}

func decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Event, err)
	}
	return nil
}

// Subscribe joins an in-process subscriber to the order's room. The
// subscription ends when ctx is done or Close is called.
func (s *Service) Subscribe(ctx context.Context, orderID string) (*LocalSubscription, error) {
	sub := &LocalSubscription{
		id:       "local-" + uuid.NewString(),
		ch:       make(chan Message, s.queueLen),
		done:     make(chan struct{}),
		registry: s.registry,
	}
	if err := s.registry.Join(orderID, sub); err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// LocalSubscription is a room subscriber living in the relay process.
type LocalSubscription struct {
	id       string
	ch       chan Message
	done     chan struct{}
	registry *RoomRegistry
	once     sync.Once
}

func (l *LocalSubscription) ID() string { return l.id }

func (l *LocalSubscription) Deliver(m Message) bool {
	select {
	case l.ch <- m:
		return true
	default:
		return false
	}
}

// Messages is closed after Close.
func (l *LocalSubscription) Messages() <-chan Message { return l.ch }

func (l *LocalSubscription) Close() error {
	l.once.Do(func() {
		// after Leave returns no room holds l, so nothing can send on ch
		l.registry.Leave(l.id)
		close(l.ch)
		close(l.done)
	})
	return nil
}
