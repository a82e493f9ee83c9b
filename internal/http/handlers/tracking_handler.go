// README: Websocket endpoints for the position relay and server-rendered tracking scenes.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"delitrack/internal/modules/mapview"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/modules/tracking"
)

const (
	sceneWriteWait  = 10 * time.Second
	scenePongWait   = 60 * time.Second
	scenePingPeriod = (scenePongWait * 9) / 10
)

type TrackingHandlerDeps struct {
	Relay          *relay.Service
	Orders         *order.Service
	Engine         *route.Engine
	ConnOptions    relay.ConnOptions
	MapOptions     mapview.Options
	ReconnectBase  time.Duration
	ReconnectMax   time.Duration
	AllowedOrigins []string
	Logger         zerolog.Logger
}

type TrackingHandler struct {
	deps     TrackingHandlerDeps
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewTrackingHandler(deps TrackingHandlerDeps) *TrackingHandler {
	h := &TrackingHandler{deps: deps, logger: deps.Logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *TrackingHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.deps.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.deps.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Room reports how many subscribers are watching an order.
func (h *TrackingHandler) Room(c *gin.Context) {
	id := c.Param("orderId")
	if !isValidKey(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	reg := h.deps.Relay.Registry()
	writeJSON(c, http.StatusOK, gin.H{
		"orderId":      id,
		"subscribers":  reg.RoomSize(id),
		"hasPublisher": reg.HasPublisher(id),
	})
}

// ServeWS upgrades to the relay protocol and serves the connection until it closes.
func (h *TrackingHandler) ServeWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := relay.NewConn(ws, h.deps.ConnOptions, h.logger)
	h.deps.Relay.ServeConn(c.Request.Context(), conn)
}

type sceneFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Scene runs a tracking consumer on the server and streams its map as
// GeoJSON ("scene" frames) together with its view ("view" frames).
func (h *TrackingHandler) Scene(c *gin.Context) {
	id := c.Param("orderId")
	if !isValidKey(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	variant := tracking.Variant(c.DefaultQuery("view", string(tracking.VariantCustomer)))
	if variant != tracking.VariantAdmin && variant != tracking.VariantCustomer {
		writeError(c, http.StatusBadRequest, "view must be admin or customer")
		return
	}

	info, err := h.deps.Orders.Tracking(c.Request.Context(), id)
	if errors.Is(err, order.ErrNoStore) {
		info = order.TrackingInfo{
			Room:        id,
			Restaurant:  h.deps.Engine.Restaurant(),
			Destination: h.deps.Orders.Destination(nil),
		}
	} else if err != nil {
		writeOrderError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// one pending frame per kind; newer frames replace older ones
	scenes := make(chan *geojson.FeatureCollection, 1)
	views := make(chan tracking.View, 1)

	sdk := &mapview.SceneSDK{OnChange: func(_ string, fc *geojson.FeatureCollection) {
		replace(scenes, fc)
	}}
	adapter := mapview.NewAdapter(mapview.StaticLoader(sdk), h.deps.MapOptions)
	consumer := tracking.New(tracking.RelayFeed(h.deps.Relay), h.deps.Engine, adapter, tracking.Options{
		Variant:       variant,
		OrderID:       info.Room,
		ContainerID:   "scene-" + info.Room,
		Restaurant:    info.Restaurant,
		Destination:   info.Destination,
		Status:        string(info.Status),
		ReconnectBase: h.deps.ReconnectBase,
		ReconnectMax:  h.deps.ReconnectMax,
		Logger:        h.logger,
		OnChange:      func(v tracking.View) { replace(views, v) },
	})
	defer consumer.Stop()

	go h.readUntilClosed(ws, cancel)

	if err := consumer.Start(ctx); err != nil {
		h.logger.Warn().Err(err).Str("order_id", id).Msg("scene consumer did not start")
		return
	}

	ping := time.NewTicker(scenePingPeriod)
	defer ping.Stop()
	for {
		var frame sceneFrame
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case fc := <-scenes:
			frame = sceneFrame{Event: "scene", Data: fc}
		case v := <-views:
			frame = sceneFrame{Event: "view", Data: v}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(sceneWriteWait)); err != nil {
				return
			}
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(sceneWriteWait))
		if err := ws.WriteJSON(frame); err != nil {
			h.logger.Debug().Err(err).Msg("scene write failed")
			return
		}
	}
}

// readUntilClosed drains client frames so pongs and close are processed.
func (h *TrackingHandler) readUntilClosed(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = ws.SetReadDeadline(time.Now().Add(scenePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(scenePongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
