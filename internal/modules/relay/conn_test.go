package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, s *Service, opts ConnOptions) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.ServeConn(r.Context(), NewConn(ws, opts, zerolog.Nop()))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestConn_EndToEnd(t *testing.T) {
	s := newTestService()
	url := newWSServer(t, s, ConnOptions{})

	tracker := dial(t, url)
	send(t, tracker, EventTrackingJoin, JoinRequest{OrderID: "ORD-1"})
	require.Eventually(t, func() bool { return s.Registry().RoomSize("ORD-1") == 1 }, 2*time.Second, 5*time.Millisecond)

	rider := dial(t, url)
	send(t, rider, EventDeliveryJoin, JoinRequest{OrderID: "ORD-1"})
	send(t, rider, EventDeliveryLocation, sample("ORD-1", 99))

	env := readEnvelope(t, tracker)
	assert.Equal(t, EventDeliveryPosition, env.Event)
	m, err := DecodeMessage(mustFrame(t, env))
	require.NoError(t, err)
	assert.Equal(t, int64(99), m.Sample.Timestamp)

	tracker.Close()
	require.Eventually(t, func() bool { return s.Registry().RoomSize("ORD-1") == 0 }, 2*time.Second, 5*time.Millisecond)
	rider.Close()
	require.Eventually(t, func() bool { return len(s.Registry().Rooms()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestConn_ErrorFrame(t *testing.T) {
	url := newWSServer(t, newTestService(), ConnOptions{})
	ws := dial(t, url)

	send(t, ws, "bogus", map[string]string{})
	env := readEnvelope(t, ws)
	assert.Equal(t, EventError, env.Event)
	assert.Contains(t, string(env.Data), "unknown event")
}

func TestConn_RateLimited(t *testing.T) {
	url := newWSServer(t, newTestService(), ConnOptions{Rate: 0.001, Burst: 1})
	ws := dial(t, url)

	send(t, ws, EventTrackingJoin, JoinRequest{OrderID: "A"})
	send(t, ws, EventTrackingJoin, JoinRequest{OrderID: "A"})

	env := readEnvelope(t, ws)
	assert.Equal(t, EventError, env.Event)
	assert.Contains(t, string(env.Data), ErrRateLimited.Error())
}

func mustFrame(t *testing.T, env Envelope) []byte {
	t.Helper()
	frame, err := Encode(env.Event, env.Data)
	require.NoError(t, err)
	return frame
}

func TestConn_ServerShutdownClosesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestService()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.ServeConn(ctx, NewConn(ws, ConnOptions{}, zerolog.Nop()))
	}))
	defer srv.Close()

	ws := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	cancel()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
