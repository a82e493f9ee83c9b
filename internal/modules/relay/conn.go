package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"delitrack/internal/observability"
)

const maxMessageSize = 4096

type ConnOptions struct {
	SendBuffer int
	PongWait   time.Duration
	WriteWait  time.Duration
	// Rate and Burst cap inbound frames per second.
	Rate  float64
	Burst int
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.Rate <= 0 {
		o.Rate = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	return o
}

// Handler processes one inbound frame. A returned error is sent back to the
// client as an error event.
type Handler func(ctx context.Context, c *Conn, env Envelope) error

// Conn is one websocket client of the relay. It is a Subscriber: room
// messages are queued on a bounded buffer drained by the write pump.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	opts    ConnOptions
	logger  zerolog.Logger
}

func NewConn(ws *websocket.Conn, opts ConnOptions, logger zerolog.Logger) *Conn {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		opts:    opts,
		logger:  logger.With().Str("conn_id", id).Logger(),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Deliver(m Message) bool {
	frame, err := m.Frame()
	if err != nil {
		c.logger.Error().Err(err).Msg("encode room message")
		return false
	}
	return c.trySend(frame)
}

// SendError queues an error event for the client.
func (c *Conn) SendError(err error) {
	frame, _ := Encode(EventError, ErrorMessage{Message: err.Error()})
	c.trySend(frame)
}

func (c *Conn) trySend(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Serve runs the pumps until the client goes away or ctx is done.
func (c *Conn) Serve(ctx context.Context, handle Handler) {
	observability.RelayConnections.Inc()
	defer observability.RelayConnections.Dec()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()

	c.readPump(ctx, handle)
	c.close()
	wg.Wait()
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) readPump(ctx context.Context, handle Handler) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if !c.limiter.Allow() {
			observability.SamplesDropped.WithLabelValues("rate_limited").Inc()
			c.SendError(ErrRateLimited)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.SendError(err)
			continue
		}
		if err := handle(ctx, c, env); err != nil {
			c.logger.Debug().Err(err).Str("event", env.Event).Msg("frame rejected")
			c.SendError(err)
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	pingPeriod := (c.opts.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.opts.WriteWait))
			return
		case <-c.done:
			return
		}
	}
}
