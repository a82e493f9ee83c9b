package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "delitrack/internal/http"
	"delitrack/internal/http/handlers"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/types"
	"delitrack/internal/wsclient"
)

var (
	restaurant  = types.Point{Lat: 12.9906677, Lng: 77.6525905}
	defaultDest = types.Point{Lat: 12.9750, Lng: 77.6600}
)

type stubDirections struct {
	d   route.Directions
	err error
}

func (s stubDirections) Directions(context.Context, types.Point, types.Point) (route.Directions, error) {
	return s.d, s.err
}

type stubPlaces struct {
	p   types.Point
	err error
}

func (s stubPlaces) PlaceLocation(context.Context, string) (types.Point, error) { return s.p, s.err }

type testEnv struct {
	handler http.Handler
	relay   *relay.Service
}

func newEnv(t *testing.T, dirs route.DirectionsProvider, places route.PlaceResolver) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	reg := relay.NewRoomRegistry(logger)
	svc := relay.NewService(reg, relay.NewLocalBroker(reg), 16, logger)
	engine := route.NewEngine(route.Options{Restaurant: restaurant, Logger: logger})
	orders := order.NewService(order.Options{
		Geocoder:    engine,
		Notifier:    svc,
		DefaultDest: defaultDest,
		Logger:      logger,
	})

	h := api.NewRouter(api.RouterDeps{
		Orders:     orders,
		Directions: dirs,
		Places:     places,
		Tracking: handlers.TrackingHandlerDeps{
			Relay:         svc,
			Orders:        orders,
			Engine:        engine,
			ReconnectBase: 10 * time.Millisecond,
			ReconnectMax:  50 * time.Millisecond,
			Logger:        logger,
		},
		Logger: logger,
	})
	return testEnv{handler: h, relay: svc}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t, nil, nil)
	assert.Equal(t, http.StatusOK, do(env.handler, http.MethodGet, "/health", "").Code)

	w := do(env.handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestDirectionsProxy(t *testing.T) {
	dirs := stubDirections{d: route.Directions{
		Points:          []types.Point{{Lat: 12.99, Lng: 77.65}, {Lat: 12.98, Lng: 77.66}},
		DistanceMeters:  2300,
		DurationSeconds: 420,
	}}
	env := newEnv(t, dirs, nil)

	w := do(env.handler, http.MethodGet, "/api/maps/directions?start=77.65,12.99&end=77.66,12.98", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp route.DirectionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Routes, 1)
	assert.Equal(t, [][]float64{{77.65, 12.99}, {77.66, 12.98}}, resp.Data.Routes[0].Geometry.Coordinates)
	assert.Equal(t, 2300.0, resp.Data.Routes[0].DistanceMeters)
}

func TestDirectionsProxy_Errors(t *testing.T) {
	env := newEnv(t, stubDirections{err: errors.New("upstream down")}, nil)

	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodGet, "/api/maps/directions?start=bad", "").Code)

	w := do(env.handler, http.MethodGet, "/api/maps/directions?start=77.65,12.99&end=77.66,12.98", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	env = newEnv(t, nil, nil)
	w = do(env.handler, http.MethodGet, "/api/maps/directions?start=77.65,12.99&end=77.66,12.98", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDirectionsProxy_RoundTripsThroughProxyClient(t *testing.T) {
	dirs := stubDirections{d: route.Directions{
		Points:          []types.Point{{Lat: 12.99, Lng: 77.65}, {Lat: 12.985, Lng: 77.655}, {Lat: 12.98, Lng: 77.66}},
		DistanceMeters:  2345,
		DurationSeconds: 450,
	}}
	srv := httptest.NewServer(newEnv(t, dirs, nil).handler)
	defer srv.Close()

	engine := route.NewEngine(route.Options{
		Provider: route.NewProxyClient(srv.URL+"/api/maps", time.Second),
		Logger:   zerolog.Nop(),
	})
	res := engine.ComputeRoute(context.Background(), types.Point{Lat: 12.99, Lng: 77.65}, types.Point{Lat: 12.98, Lng: 77.66})
	assert.False(t, res.Fallback)
	assert.Len(t, res.Points, 3)
	assert.Equal(t, 2.3, res.DistanceKm)
	assert.Equal(t, 8, res.DurationMin)
}

func TestPlaceDetails(t *testing.T) {
	env := newEnv(t, nil, stubPlaces{p: restaurant})
	w := do(env.handler, http.MethodGet, "/api/maps/place-details?eloc=PIQ123", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"latitude":12.9906677,"longitude":77.6525905}}`, w.Body.String())

	env = newEnv(t, nil, stubPlaces{err: route.ErrPlaceNotFound})
	assert.Equal(t, http.StatusNotFound, do(env.handler, http.MethodGet, "/api/maps/place-details?eloc=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodGet, "/api/maps/place-details", "").Code)
}

func TestOrderTracking_NoStore(t *testing.T) {
	env := newEnv(t, nil, nil)
	w := do(env.handler, http.MethodGet, "/api/orders/42/tracking", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodGet, "/api/orders/a.b/tracking", "").Code)
}

func TestUpdateStatus_Validation(t *testing.T) {
	env := newEnv(t, nil, nil)
	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodPost, "/api/orders/42/status", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodPost, "/api/orders/42/status", `{"status":"lost"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(env.handler, http.MethodPost, "/api/orders/42/status", `{"status":"preparing"}`).Code)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func roomSize(t *testing.T, h http.Handler, orderID string) int {
	w := do(h, http.MethodGet, "/api/tracking/"+orderID+"/room", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Subscribers int `json:"subscribers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Subscribers
}

func TestWebsocket_StatusReachesTracker(t *testing.T) {
	env := newEnv(t, nil, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	client := wsclient.New(wsURL(srv, "/ws"), zerolog.Nop())
	sub, err := client.Subscribe(context.Background(), "42")
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return roomSize(t, env.handler, "42") == 1 }, time.Second, 5*time.Millisecond)

	w := do(env.handler, http.MethodPost, "/api/orders/42/status", `{"status":"out_for_delivery"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case m := <-sub.Messages():
		assert.Equal(t, relay.EventStatusUpdate, m.Event)
		assert.Equal(t, relay.StatusUpdate{OrderID: "42", Status: "out_for_delivery"}, m.Status)
	case <-time.After(time.Second):
		t.Fatal("no status update received")
	}
}

func TestScene_StreamsRiderAndRoute(t *testing.T) {
	env := newEnv(t, nil, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/scene/42?view=admin"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return env.relay.Registry().RoomSize("42") == 1 }, time.Second, 5*time.Millisecond)
	env.relay.Registry().Publish("42", types.PositionSample{OrderID: "42", Lat: 12.985, Lng: 77.655, Timestamp: 1000})

	type frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, ws.ReadJSON(&f))
		if f.Event != "view" {
			continue
		}
		var v struct {
			Rider *types.Point `json:"rider"`
			Route *struct {
				Fallback bool `json:"fallback"`
			} `json:"route"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &v))
		if v.Rider != nil && v.Route != nil {
			assert.Equal(t, types.Point{Lat: 12.985, Lng: 77.655}, *v.Rider)
			assert.True(t, v.Route.Fallback)
			return
		}
	}
}

func TestScene_RejectsUnknownView(t *testing.T) {
	env := newEnv(t, nil, nil)
	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodGet, "/ws/scene/42?view=driver", "").Code)
}
