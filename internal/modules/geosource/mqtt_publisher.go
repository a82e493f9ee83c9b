package geosource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"delitrack/internal/types"
)

// MQTTClient is the subset of the paho client the publisher needs.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends samples to delivery/{orderId}/location for hardware
// trackers that cannot hold a websocket open.
type MQTTPublisher struct {
	client  MQTTClient
	pattern string
	qos     byte
}

// NewMQTTPublisher publishes on pattern with "+" replaced by the order id.
func NewMQTTPublisher(client MQTTClient, pattern string, qos byte) *MQTTPublisher {
	if pattern == "" {
		pattern = "delivery/+/location"
	}
	return &MQTTPublisher{client: client, pattern: pattern, qos: qos}
}

func (p *MQTTPublisher) Topic(orderID string) string {
	return strings.Replace(p.pattern, "+", orderID, 1)
}

func (p *MQTTPublisher) Publish(ctx context.Context, sample types.PositionSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(sample.OrderID), p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}
