package wsclient

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

	"delitrack/internal/modules/relay"
	"delitrack/internal/types"
)

func startRelay(t *testing.T) (*relay.Service, string) {
	t.Helper()
	reg := relay.NewRoomRegistry(zerolog.Nop())
	svc := relay.NewService(reg, relay.NewLocalBroker(reg), 8, zerolog.Nop())
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		svc.ServeConn(r.Context(), relay.NewConn(ws, relay.ConnOptions{}, zerolog.Nop()))
	}))
	t.Cleanup(srv.Close)
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPublisherToSubscriber(t *testing.T) {
	svc, url := startRelay(t)
	client := New(url, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.Subscribe(ctx, "ORD-3")
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return svc.Registry().RoomSize("ORD-3") == 1 }, 2*time.Second, 5*time.Millisecond)

	pub := client.NewPublisher("ORD-3", 10*time.Millisecond, 50*time.Millisecond)
	assert.ErrorIs(t, pub.Publish(ctx, types.PositionSample{OrderID: "ORD-3"}), ErrNotConnected)

	runDone := make(chan error, 1)
	go func() { runDone <- pub.Run(ctx) }()
	select {
	case <-pub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("publisher never joined")
	}
	require.Eventually(t, func() bool { return svc.Registry().HasPublisher("ORD-3") }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, pub.Publish(ctx, types.PositionSample{OrderID: "ORD-3", Lat: 12.99, Lng: 77.65, Timestamp: 1}))

	select {
	case m := <-sub.Messages():
		assert.Equal(t, relay.EventDeliveryPosition, m.Event)
		assert.Equal(t, 12.99, m.Sample.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("no position received")
	}

	cancel()
	assert.NoError(t, <-runDone)
}

func TestSubscriptionClosesOnDrop(t *testing.T) {
	_, url := startRelay(t)
	sub, err := New(url, zerolog.Nop()).Subscribe(context.Background(), "ORD-4")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	select {
	case _, open := <-sub.Messages():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel not closed")
	}
}

func TestSubscribeDialFailure(t *testing.T) {
	_, err := New("ws://127.0.0.1:1/ws", zerolog.Nop()).Subscribe(context.Background(), "x")
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	var last time.Duration
	for n := 0; n < 4; n++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, last)
		last = d
	}
	for n := 0; n < 10; n++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 1100*time.Millisecond)
	}
	b.Reset()
	d := b.Next()
	assert.Less(t, d, 110*time.Millisecond)
}
