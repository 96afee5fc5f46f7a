// Package events is the observation channel for UI clients: a small
// in-process bus carrying the configurator's change notifications.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
)

// Name identifies an event type. Values match the browser CustomEvent names.
type Name string

const (
	TradeRackSelected         Name = "tradeRackSelected"
	TradeRackDeselected       Name = "tradeRackDeselected"
	TradeRackUpdated          Name = "tradeRackUpdated"
	MEPItemsUpdated           Name = "mepItemsUpdated"
	RackTemporaryStateChanged Name = "rackTemporaryStateChanged"
)

// Event is one published notification.
type Event struct {
	Seq    uint64    `json:"seq"`
	Name   Name      `json:"type"`
	Detail any       `json:"detail,omitempty"`
	Time   time.Time `json:"timestamp"`
}

// RackInfo identifies the rack object in selection events.
type RackInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position geom.Vec3 `json:"position"`
}

// RackSelectedDetail is the detail of TradeRackSelected.
type RackSelectedDetail struct {
	Rack          RackInfo           `json:"rack"`
	Configuration rack.Configuration `json:"configuration"`
	RackID        string             `json:"rackId"`
}

// RackDeselectedDetail is the detail of TradeRackDeselected.
type RackDeselectedDetail struct {
	RackID string `json:"rackId"`
}

// RackUpdatedDetail is the detail of TradeRackUpdated.
type RackUpdatedDetail struct {
	RackID        string             `json:"rackId"`
	Position      geom.Vec3          `json:"position"`
	Configuration rack.Configuration `json:"configuration"`
}

// MEPItemsUpdatedDetail is the detail of MEPItemsUpdated. Exactly one of the
// per-kind id fields names the item that changed.
type MEPItemsUpdatedDetail struct {
	UpdatedItems       []mep.Item `json:"updatedItems"`
	UpdatedDuctID      string     `json:"updatedDuctId,omitempty"`
	UpdatedPipeID      string     `json:"updatedPipeId,omitempty"`
	UpdatedConduitID   string     `json:"updatedConduitId,omitempty"`
	UpdatedCableTrayID string     `json:"updatedCableTrayId,omitempty"`
}

// NewMEPItemsUpdated builds the detail for a change to item id of kind k.
func NewMEPItemsUpdated(items []mep.Item, k mep.Kind, id string) MEPItemsUpdatedDetail {
	d := MEPItemsUpdatedDetail{UpdatedItems: items}
	switch k {
	case mep.Duct:
		d.UpdatedDuctID = id
	case mep.Pipe:
		d.UpdatedPipeID = id
	case mep.Conduit:
		d.UpdatedConduitID = id
	case mep.CableTray:
		d.UpdatedCableTrayID = id
	}
	return d
}

// RackTemporaryStateDetail is the detail of RackTemporaryStateChanged.
type RackTemporaryStateDetail struct {
	Position     geom.Vec3 `json:"position"`
	TopClearance float64   `json:"topClearance"`
	IsDragging   bool      `json:"isDragging"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(name Name, detail any)
}

// Subscription receives events in publish order.
type Subscription struct {
	C <-chan Event

	bus *Bus
	id  uint64
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus fans events out to subscribers. A subscriber whose buffer is full
// misses the event; publishing never blocks.
type Bus struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	nextID  uint64
	seq     uint64
	dropped uint64
	closed  bool
	now     func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event), now: time.Now}
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(name Name, detail any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := Event{Seq: b.seq, Name: name, Detail: detail, Time: b.now().UTC()}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			slog.Warn("event dropped, subscriber buffer full",
				"component", "events",
				"event", string(name),
				"subscriber", id,
			)
		}
	}
}

// Subscribe registers a subscriber with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
	} else {
		b.subs[b.nextID] = ch
	}
	return &Subscription{C: ch, bus: b, id: b.nextID}
}

// Close ends every subscription. Later subscriptions start closed and
// publishing becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the number of undelivered events.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Recorder is a Publisher that keeps every event; useful for embedding
// callers and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event.
func (r *Recorder) Publish(name Name, detail any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Seq: uint64(len(r.events) + 1), Name: name, Detail: detail, Time: time.Now().UTC()})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events named n were recorded.
func (r *Recorder) Count(n Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, e := range r.events {
		if e.Name == n {
			c++
		}
	}
	return c
}

// Last returns the most recent event named n.
func (r *Recorder) Last(n Name) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == n {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
