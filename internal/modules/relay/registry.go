// README: Room registry: per-order rooms with one publisher and many subscribers.
package relay

import (
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"delitrack/internal/observability"
	"delitrack/internal/types"
)

// RoomRegistry owns the tracking rooms. Rooms live in a sharded map; each room
// has its own lock so traffic on one order never waits on another.
type RoomRegistry struct {
	rooms cmap.ConcurrentMap[string, *room]
	// memberships maps a connection id to the order ids of the rooms it is in.
	memberships cmap.ConcurrentMap[string, map[string]struct{}]
	logger      zerolog.Logger
}

type room struct {
	id string

	mu          sync.Mutex
	subscribers map[string]Subscriber
	publisher   string
	lastTS      int64
	closed      bool
}

func (rm *room) empty() bool {
	return len(rm.subscribers) == 0 && rm.publisher == ""
}

func NewRoomRegistry(logger zerolog.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms:       cmap.New[*room](),
		memberships: cmap.New[map[string]struct{}](),
		logger:      logger,
	}
}

// track records that connID is a member of orderID's room. The set is only
// touched inside cmap callbacks, which run under the shard lock.
func (r *RoomRegistry) track(connID, orderID string) {
	r.memberships.Upsert(connID, nil, func(exist bool, set, _ map[string]struct{}) map[string]struct{} {
		if !exist {
			set = make(map[string]struct{}, 1)
		}
		set[orderID] = struct{}{}
		return set
	})
}

func (r *RoomRegistry) untrack(connID, orderID string) {
	r.memberships.RemoveCb(connID, func(_ string, set map[string]struct{}, exists bool) bool {
		if !exists {
			return false
		}
		delete(set, orderID)
		return len(set) == 0
	})
}

// acquire returns the live room for orderID, creating it on first use, with
// its lock held.
func (r *RoomRegistry) acquire(orderID string) *room {
	for {
		rm := r.rooms.Upsert(orderID, nil, func(exist bool, inMap, _ *room) *room {
			if exist {
				return inMap
			}
			return &room{id: orderID, subscribers: make(map[string]Subscriber)}
		})
		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		// lost a race with the last member leaving; the room is already out of the map
		rm.mu.Unlock()
	}
}

// release drops the room from the map if it has no members. Caller holds rm.mu.
func (r *RoomRegistry) release(rm *room) {
	if !rm.empty() {
		return
	}
	rm.closed = true
	r.rooms.RemoveCb(rm.id, func(_ string, v *room, exists bool) bool {
		return exists && v == rm
	})
	observability.RelayRooms.Set(float64(r.rooms.Count()))
	r.logger.Debug().Str("order_id", rm.id).Msg("room closed")
}

// Join subscribes sub to the order's room. Joining twice is a no-op. A late
// joiner receives only samples published after it joined.
func (r *RoomRegistry) Join(orderID string, sub Subscriber) error {
	if orderID == "" {
		return ErrMissingOrder
	}
	rm := r.acquire(orderID)
	rm.subscribers[sub.ID()] = sub
	n := len(rm.subscribers)
	r.track(sub.ID(), orderID)
	rm.mu.Unlock()

	observability.RelayRooms.Set(float64(r.rooms.Count()))
	r.logger.Debug().Str("order_id", orderID).Str("conn_id", sub.ID()).Int("subscribers", n).Msg("subscriber joined")
	return nil
}

// JoinPublisher records connID as the rider feeding the room. A new publisher
// replaces the previous one.
func (r *RoomRegistry) JoinPublisher(orderID, connID string) error {
	if orderID == "" {
		return ErrMissingOrder
	}
	rm := r.acquire(orderID)
	prev := rm.publisher
	rm.publisher = connID
	r.track(connID, orderID)
	if prev != "" && prev != connID {
		if _, sub := rm.subscribers[prev]; !sub {
			r.untrack(prev, orderID)
		}
	}
	rm.mu.Unlock()

	observability.RelayRooms.Set(float64(r.rooms.Count()))
	if prev != "" && prev != connID {
		r.logger.Info().Str("order_id", orderID).Str("previous", prev).Str("conn_id", connID).Msg("publisher replaced")
	}
	return nil
}

// Publish fans a sample out to the room's current subscribers. Samples for a
// room nobody watches are dropped, as are samples older than the last one
// delivered.
func (r *RoomRegistry) Publish(orderID string, sample types.PositionSample) PublishResult {
	sample.OrderID = orderID
	if orderID == "" || !sample.Point().Valid() {
		return r.drop(DropInvalid)
	}

	rm, ok := r.rooms.Get(orderID)
	if !ok {
		return r.drop(DropNoSubscribers)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.closed || len(rm.subscribers) == 0 {
		return r.drop(DropNoSubscribers)
	}
	if sample.Timestamp < rm.lastTS {
		return r.drop(DropStale)
	}
	rm.lastTS = sample.Timestamp

	observability.SamplesPublished.Inc()
	res := r.fanOut(rm, PositionMessage(sample))
	observability.SamplesDelivered.Add(float64(res.Delivered))
	return res
}

// PublishStatus forwards an order status change to the room's subscribers and
// returns how many received it.
func (r *RoomRegistry) PublishStatus(update StatusUpdate) int {
	rm, ok := r.rooms.Get(update.OrderID)
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return 0
	}
	return r.fanOut(rm, StatusMessage(update)).Delivered
}

// fanOut runs under rm.mu so every subscriber sees room messages in publish order.
func (r *RoomRegistry) fanOut(rm *room, m Message) PublishResult {
	var res PublishResult
	for _, sub := range rm.subscribers {
		if sub.Deliver(m) {
			res.Delivered++
			continue
		}
		res.QueueFull++
		observability.SamplesDropped.WithLabelValues("queue_full").Inc()
		r.logger.Warn().Str("order_id", rm.id).Str("conn_id", sub.ID()).Str("event", m.Event).Msg("subscriber queue full, message dropped")
	}
	return res
}

func (r *RoomRegistry) drop(reason DropReason) PublishResult {
	observability.SamplesDropped.WithLabelValues(string(reason)).Inc()
	return PublishResult{Dropped: reason}
}

// LeaveRoom removes connID from one room.
func (r *RoomRegistry) LeaveRoom(orderID, connID string) {
	rm, ok := r.rooms.Get(orderID)
	if !ok {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r.removeMember(rm, connID)
	r.untrack(connID, orderID)
}

// Leave removes connID from every room it is in, as subscriber or publisher.
// Only the connection's own rooms are visited. Rooms left empty are discarded.
func (r *RoomRegistry) Leave(connID string) {
	set, ok := r.memberships.Pop(connID)
	if !ok {
		return
	}
	for orderID := range set {
		rm, ok := r.rooms.Get(orderID)
		if !ok {
			continue
		}
		rm.mu.Lock()
		r.removeMember(rm, connID)
		rm.mu.Unlock()
	}
}

// Memberships lists the order ids connID is currently in, sorted.
func (r *RoomRegistry) Memberships(connID string) []string {
	var ids []string
	// RemoveCb is used only to read the set under the shard lock; it never removes.
	r.memberships.RemoveCb(connID, func(_ string, set map[string]struct{}, exists bool) bool {
		for id := range set {
			ids = append(ids, id)
		}
		return false
	})
	sort.Strings(ids)
	return ids
}

func (r *RoomRegistry) removeMember(rm *room, connID string) {
	if rm.closed {
		return
	}
	delete(rm.subscribers, connID)
	if rm.publisher == connID {
		rm.publisher = ""
	}
	r.release(rm)
}

// RoomSize returns the subscriber count of a room (0 when it does not exist).
func (r *RoomRegistry) RoomSize(orderID string) int {
	rm, ok := r.rooms.Get(orderID)
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return 0
	}
	return len(rm.subscribers)
}

// HasPublisher reports whether a rider is currently feeding the room.
func (r *RoomRegistry) HasPublisher(orderID string) bool {
	rm, ok := r.rooms.Get(orderID)
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return !rm.closed && rm.publisher != ""
}

// Rooms lists the live room ids in sorted order.
func (r *RoomRegistry) Rooms() []string {
	ids := r.rooms.Keys()
	sort.Strings(ids)
	return ids
}
