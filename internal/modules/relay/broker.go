// README: Broker fans relay traffic out locally or across relay instances via Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"delitrack/internal/types"
)

// Broker routes published samples and status updates to room subscribers.
type Broker interface {
	PublishSample(ctx context.Context, sample types.PositionSample) (PublishResult, error)
	PublishStatus(ctx context.Context, update StatusUpdate) (int, error)
	// Run consumes traffic from other instances until ctx is done.
	Run(ctx context.Context) error
}

// LocalBroker serves a single relay instance.
type LocalBroker struct {
	registry *RoomRegistry
}

func NewLocalBroker(registry *RoomRegistry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) PublishSample(_ context.Context, sample types.PositionSample) (PublishResult, error) {
	return b.registry.Publish(sample.OrderID, sample), nil
}

func (b *LocalBroker) PublishStatus(_ context.Context, update StatusUpdate) (int, error) {
	return b.registry.PublishStatus(update), nil
}

func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

const roomChannelPrefix = "tracking:room:"

// RoomChannel is the Redis channel carrying one order's traffic.
func RoomChannel(orderID string) string {
	return roomChannelPrefix + orderID
}

type brokerMessage struct {
	Origin string                `json:"origin"`
	Event  string                `json:"event"`
	Sample *types.PositionSample `json:"sample,omitempty"`
	Status *StatusUpdate         `json:"status,omitempty"`
}

// RedisBroker lets several relay instances share rooms. Every publish is
// delivered locally and mirrored to tracking:room:{orderId}; instances skip
// their own mirrored messages using the origin id.
type RedisBroker struct {
	rdb      *redis.Client
	registry *RoomRegistry
	origin   string
	logger   zerolog.Logger
}

func NewRedisBroker(rdb *redis.Client, registry *RoomRegistry, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, registry: registry, origin: uuid.NewString(), logger: logger}
}

func (b *RedisBroker) Origin() string { return b.origin }

func (b *RedisBroker) PublishSample(ctx context.Context, sample types.PositionSample) (PublishResult, error) {
	res := b.registry.Publish(sample.OrderID, sample)
	if res.Dropped == DropInvalid {
		return res, nil
	}
	err := b.mirror(ctx, sample.OrderID, brokerMessage{Event: EventDeliveryPosition, Sample: &sample})
	return res, err
}

func (b *RedisBroker) PublishStatus(ctx context.Context, update StatusUpdate) (int, error) {
	n := b.registry.PublishStatus(update)
	return n, b.mirror(ctx, update.OrderID, brokerMessage{Event: EventStatusUpdate, Status: &update})
}

func (b *RedisBroker) mirror(ctx context.Context, orderID string, msg brokerMessage) error {
	msg.Origin = b.origin
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, RoomChannel(orderID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Run(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.logger.Info().Str("origin", b.origin).Msg("relay broker subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleRemote(m.Channel, []byte(m.Payload))
		}
	}
}

func (b *RedisBroker) handleRemote(channel string, payload []byte) {
	var msg brokerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("bad broker payload")
		return
	}
	if msg.Origin == b.origin {
		return
	}
	orderID := strings.TrimPrefix(channel, roomChannelPrefix)
	switch {
	case msg.Event == EventDeliveryPosition && msg.Sample != nil:
		b.registry.Publish(orderID, *msg.Sample)
	case msg.Event == EventStatusUpdate && msg.Status != nil:
		msg.Status.OrderID = orderID
		b.registry.PublishStatus(*msg.Status)
	default:
		b.logger.Warn().Str("event", msg.Event).Str("channel", channel).Msg("unknown broker event")
	}
}
