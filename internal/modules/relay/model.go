// README: Relay wire events, envelopes and subscriber contracts.
package relay

import (
	"encoding/json"
	"errors"

	"delitrack/internal/types"
)

// Websocket events. Inbound from riders: delivery:join, delivery:location.
// Inbound from trackers: tracking:join. Inbound from order management:
// order:status_update. Outbound: delivery:position, order:status_update, error.
const (
	EventDeliveryJoin     = "delivery:join"
	EventDeliveryLocation = "delivery:location"
	EventTrackingJoin     = "tracking:join"
	EventTrackingLeave    = "tracking:leave"
	EventDeliveryPosition = "delivery:position"
	EventStatusUpdate     = "order:status_update"
	EventError            = "error"
)

var (
	ErrMissingOrder  = errors.New("orderId is required")
	ErrInvalidSample = errors.New("invalid position sample")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrClosed        = errors.New("relay connection closed")
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	OrderID string `json:"orderId"`
}

type StatusUpdate struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode builds a ready-to-send frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Message is what a subscriber receives from a room: either a rider sample
// or an order status change.
type Message struct {
	Event  string
	Sample types.PositionSample
	Status StatusUpdate
}

func PositionMessage(s types.PositionSample) Message {
	return Message{Event: EventDeliveryPosition, Sample: s}
}

func StatusMessage(u StatusUpdate) Message {
	return Message{Event: EventStatusUpdate, Status: u}
}

// Frame encodes m the way it goes out on the websocket.
func (m Message) Frame() ([]byte, error) {
	if m.Event == EventStatusUpdate {
		return Encode(m.Event, m.Status)
	}
	return Encode(EventDeliveryPosition, m.Sample)
}

// DecodeMessage is the inverse of Frame, used by remote subscribers.
func DecodeMessage(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, err
	}
	switch env.Event {
	case EventDeliveryPosition:
		var s types.PositionSample
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return Message{}, err
		}
		return PositionMessage(s), nil
	case EventStatusUpdate:
		var u StatusUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return Message{}, err
		}
		return StatusMessage(u), nil
	default:
		return Message{Event: env.Event}, ErrUnknownEvent
	}
}

// Subscriber is a room member that receives messages. Deliver must never
// block; it returns false when the message was dropped because the
// subscriber's queue is full.
type Subscriber interface {
	ID() string
	Deliver(m Message) bool
}

// DropReason explains why a published sample reached nobody.
type DropReason string

const (
	DropNone          DropReason = ""
	DropNoSubscribers DropReason = "no_subscribers"
	DropStale         DropReason = "stale"
	DropInvalid       DropReason = "invalid"
)

// PublishResult reports the fan-out of one publish.
type PublishResult struct {
	Delivered int
	// QueueFull counts subscribers that missed this message because their
	// outbound queue was full.
	QueueFull int
	Dropped   DropReason
}
