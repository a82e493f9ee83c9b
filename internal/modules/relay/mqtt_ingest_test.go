package relay

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMQTT struct {
	mock.Mock
}

func (m *mockMQTT) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, cb)
	return args.Get(0).(mqtt.Token)
}

func (m *mockMQTT) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}

type okToken struct{}

func (okToken) Wait() bool                     { return true }
func (okToken) WaitTimeout(time.Duration) bool { return true }
func (okToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (okToken) Error() error { return nil }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (f fakeMessage) Topic() string   { return f.topic }
func (f fakeMessage) Payload() []byte { return f.payload }

func TestMQTTIngest_FeedsBroker(t *testing.T) {
	reg := newRegistry()
	sub := newFakeSub("admin", 4)
	require.NoError(t, reg.Join("ORD-5", sub))

	client := new(mockMQTT)
	handlerCh := make(chan mqtt.MessageHandler, 1)
	client.On("Subscribe", "delivery/+/location", byte(0), mock.Anything).
		Run(func(args mock.Arguments) { handlerCh <- args.Get(2).(mqtt.MessageHandler) }).
		Return(okToken{})
	client.On("Unsubscribe", []string{"delivery/+/location"}).Return(okToken{})

	ing := NewMQTTIngest(client, NewLocalBroker(reg), "", 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	handler := <-handlerCh
	handler(nil, fakeMessage{topic: "delivery/ORD-5/location", payload: []byte(`{"lat":12.99,"lng":77.65,"timestamp":10}`)})
	handler(nil, fakeMessage{topic: "delivery/ORD-5/location", payload: []byte(`garbage`)})

	got := sub.drain()
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-5", got[0].Sample.OrderID)

	cancel()
	assert.NoError(t, <-done)
	client.AssertExpectations(t)
}

func TestOrderFromTopic(t *testing.T) {
	assert.Equal(t, "42", orderFromTopic("delivery/+/location", "delivery/42/location"))
	assert.Equal(t, "", orderFromTopic("delivery/+/location", "delivery/42"))
	assert.Equal(t, "", orderFromTopic("delivery/all", "delivery/all"))
}
