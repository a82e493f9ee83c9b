package wsclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"delitrack/internal/modules/relay"
	"delitrack/internal/types"
)

// Publisher keeps a rider connection to the relay open, announcing the order
// with delivery:join on every (re)connect. Publish never blocks on a dial:
// while disconnected it fails fast with ErrNotConnected.
type Publisher struct {
	client  *Client
	orderID string
	backoff Backoff

	mu sync.Mutex
	ws *websocket.Conn

	ready chan struct{}
	once  sync.Once
}

func (c *Client) NewPublisher(orderID string, reconnectBase, reconnectMax time.Duration) *Publisher {
	return &Publisher{
		client:  c,
		orderID: orderID,
		backoff: Backoff{Base: reconnectBase, Max: reconnectMax},
		ready:   make(chan struct{}),
	}
}

// Ready is closed after the first successful join.
func (p *Publisher) Ready() <-chan struct{} { return p.ready }

// Run maintains the connection until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	logger := p.client.logger.With().Str("order_id", p.orderID).Logger()
	for {
		ws, err := p.client.dial(ctx)
		if err == nil {
			err = p.join(ws)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := p.backoff.Next()
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("relay connect failed")
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		p.backoff.Reset()
		logger.Info().Msg("joined relay as publisher")
		p.once.Do(func() { close(p.ready) })

		p.drain(ctx, ws)
		p.mu.Lock()
		p.ws = nil
		p.mu.Unlock()
		ws.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Msg("relay connection lost, reconnecting")
	}
}

func (p *Publisher) join(ws *websocket.Conn) error {
	frame, err := relay.Encode(relay.EventDeliveryJoin, relay.JoinRequest{OrderID: p.orderID})
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		ws.Close()
		return err
	}
	p.ws = ws
	return nil
}

// drain reads (and discards) server frames so pings are answered and a
// dropped connection is noticed.
func (p *Publisher) drain(ctx context.Context, ws *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *Publisher) Publish(_ context.Context, sample types.PositionSample) error {
	frame, err := relay.Encode(relay.EventDeliveryLocation, sample)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ws == nil {
		return ErrNotConnected
	}
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return p.ws.WriteMessage(websocket.TextMessage, frame)
}
