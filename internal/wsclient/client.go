// README: Websocket client for the position relay, used by riders and remote trackers.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"delitrack/internal/modules/relay"
)

var ErrNotConnected = errors.New("relay not connected")

const writeWait = 10 * time.Second

// Client dials the relay's /ws endpoint.
type Client struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger zerolog.Logger
}

func New(url string, logger zerolog.Logger) *Client {
	return &Client{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", c.url, err)
	}
	return ws, nil
}

// Subscription is a remote room membership. Messages is closed when the
// connection drops or Close is called; callers reconnect by subscribing again.
type Subscription struct {
	ws   *websocket.Conn
	ch   chan relay.Message
	once sync.Once
	mu   sync.Mutex
}

// Subscribe connects and joins the order's room as a tracker.
func (c *Client) Subscribe(ctx context.Context, orderID string) (*Subscription, error) {
	ws, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	s := &Subscription{ws: ws, ch: make(chan relay.Message, 32)}
	if err := s.write(relay.EventTrackingJoin, relay.JoinRequest{OrderID: orderID}); err != nil {
		ws.Close()
		return nil, err
	}
	go s.readLoop(c.logger.With().Str("order_id", orderID).Logger())
	return s, nil
}

func (s *Subscription) Messages() <-chan relay.Message { return s.ch }

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		err = s.ws.Close()
	})
	return err
}

func (s *Subscription) write(event string, data any) error {
	frame, err := relay.Encode(event, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

func (s *Subscription) readLoop(logger zerolog.Logger) {
	defer close(s.ch)
	defer s.ws.Close()
	for {
		_, frame, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("relay connection lost")
			}
			return
		}
		m, err := relay.DecodeMessage(frame)
		if err != nil {
			if m.Event == relay.EventError {
				logger.Warn().RawJSON("frame", frame).Msg("relay reported an error")
			}
			continue
		}
		// readers that fall behind lose the oldest view of the rider, never the connection
		select {
		case s.ch <- m:
		default:
			logger.Warn().Str("event", m.Event).Msg("subscriber slow, message dropped")
		}
	}
}
