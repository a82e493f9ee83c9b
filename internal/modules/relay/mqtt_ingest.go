package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"delitrack/internal/types"
)

// MQTTClient is the subset of the paho client the ingest needs.
type MQTTClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTIngest feeds samples published by hardware trackers on
// delivery/{orderId}/location into the broker.
type MQTTIngest struct {
	client MQTTClient
	broker Broker
	topic  string
	qos    byte
	logger zerolog.Logger
}

func NewMQTTIngest(client MQTTClient, broker Broker, topic string, qos byte, logger zerolog.Logger) *MQTTIngest {
	if topic == "" {
		topic = "delivery/+/location"
	}
	return &MQTTIngest{client: client, broker: broker, topic: topic, qos: qos, logger: logger}
}

// Run subscribes and blocks until ctx is done.
func (i *MQTTIngest) Run(ctx context.Context) error {
	token := i.client.Subscribe(i.topic, i.qos, func(_ mqtt.Client, m mqtt.Message) {
		i.handle(ctx, m.Topic(), m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", i.topic, token.Error())
	}
	i.logger.Info().Str("topic", i.topic).Msg("mqtt ingest subscribed")

	<-ctx.Done()
	i.client.Unsubscribe(i.topic).WaitTimeout(2 * time.Second)
	return nil
}

func (i *MQTTIngest) handle(ctx context.Context, topic string, payload []byte) {
	var sample types.PositionSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		i.logger.Warn().Err(err).Str("topic", topic).Msg("bad mqtt location payload")
		return
	}
	if id := orderFromTopic(i.topic, topic); id != "" {
		sample.OrderID = id
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().UnixMilli()
	}
	if _, err := i.broker.PublishSample(ctx, sample); err != nil {
		i.logger.Warn().Err(err).Str("order_id", sample.OrderID).Msg("mqtt sample publish failed")
	}
}

// orderFromTopic returns the segment of topic matched by the "+" wildcard.
func orderFromTopic(pattern, topic string) string {
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")
	if len(ps) != len(ts) {
		return ""
	}
	for n := range ps {
		if ps[n] == "+" {
			return ts[n]
		}
	}
	return ""
}
