// Package bus provides the in-process publish/subscribe broker that
// coordinates citizens, rituals, and the city engine. All cross-system
// communication flows through it; it is the single serialization point
// for cross-agent effects.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event types carried on the bus. Each type has a well-known payload
// struct declared in events.go; subscribers filter by type and
// type-assert the payload.
const (
	TypeUserAction    = "user:action"
	TypeCitizenAction = "citizen:action"
	TypeRitualTrigger = "ritual:trigger"
	TypeMoodShift     = "mood:shift"
	TypeCityState     = "city:state_update"
	TypeMemoryUpdate  = "memory:update"

	// Wildcard matches every event type.
	Wildcard = "*"
)

// Priority orders subscriber notification within a single publish.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// Event is a single occurrence published on the bus. Immutable once
// published; subscribers must treat the payload as read-only.
type Event struct {
	Type      string
	Payload   any
	Source    string
	Priority  Priority
	Timestamp time.Time
}

// Handler receives a delivered event. A returned error is logged and
// does not affect delivery to other subscribers.
type Handler func(Event) error

type subscriber struct {
	id       string
	priority Priority
	fn       Handler
}

// Bus fans published events out to registered subscribers. Delivery is
// synchronous, at-most-once, in-memory only. A publish issued from
// inside a handler is queued and drained by the outermost Publish call,
// so notification stays breadth-first and stack depth stays bounded.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber // event type → subscribers, priority-sorted
	history     []Event                  // ring buffer
	histNext    int
	histLen     int
	histCap     int

	dispatching bool
	pending     []Event
	maxPending  int
}

// New creates a bus with the given history capacity.
func New(historySize int) *Bus {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		history:     make([]Event, historySize),
		histCap:     historySize,
		maxPending:  1024,
	}
}

// Subscribe registers a handler for the given event types (nil or empty
// means wildcard). The returned function removes the subscription.
func (b *Bus) Subscribe(id string, types []string, priority Priority, fn Handler) func() {
	if len(types) == 0 {
		types = []string{Wildcard}
	}
	sub := &subscriber{id: id, priority: priority, fn: fn}

	b.mu.Lock()
	for _, t := range types {
		list := append(b.subscribers[t], sub)
		// Insertion keeps the list sorted by descending priority.
		for i := len(list) - 1; i > 0 && list[i].priority > list[i-1].priority; i-- {
			list[i], list[i-1] = list[i-1], list[i]
		}
		b.subscribers[t] = list
	}
	b.mu.Unlock()

	return func() { b.Unsubscribe(id) }
}

// Unsubscribe removes every registration held by the subscriber id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, list := range b.subscribers {
		kept := list[:0]
		for _, s := range list {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subscribers, t)
		} else {
			b.subscribers[t] = kept
		}
	}
}

// Publish records the event and delivers it to all matching subscribers
// in descending priority order. It returns after every handler for this
// event — and for any events handlers published while it ran — has
// finished. Handler failures are isolated per subscriber.
func (b *Bus) Publish(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.record(ev)

	if b.dispatching {
		// Reentrant publish from inside a handler: queue it for the
		// outer dispatch loop instead of recursing.
		if len(b.pending) >= b.maxPending {
			b.mu.Unlock()
			return fmt.Errorf("event queue full, dropping %s", ev.Type)
		}
		b.pending = append(b.pending, ev)
		b.mu.Unlock()
		return nil
	}

	b.dispatching = true
	b.mu.Unlock()

	b.dispatch(ev)

	// Drain publishes queued by handlers, breadth-first.
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return nil
		}
		next := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
		b.dispatch(next)
	}
}

// dispatch notifies every subscriber matching the event type or the
// wildcard, de-duplicated by subscriber id, highest priority first.
func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	matched := make([]*subscriber, 0, 8)
	seen := make(map[string]bool, 8)
	for _, list := range [2][]*subscriber{b.subscribers[ev.Type], b.subscribers[Wildcard]} {
		for _, s := range list {
			if !seen[s.id] {
				seen[s.id] = true
				matched = append(matched, s)
			}
		}
	}
	b.mu.Unlock()

	// Stable sort by descending priority across the merged lists.
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].priority > matched[j-1].priority; j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}

	for _, s := range matched {
		b.deliver(s, ev)
	}
}

// deliver invokes one handler, recovering panics so a broken subscriber
// never cancels delivery to the rest.
func (b *Bus) deliver(s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subscriber panicked", "subscriber", s.id, "event", ev.Type, "panic", r)
		}
	}()
	if err := s.fn(ev); err != nil {
		slog.Error("subscriber failed", "subscriber", s.id, "event", ev.Type, "error", err)
	}
}

func (b *Bus) record(ev Event) {
	b.history[b.histNext] = ev
	b.histNext = (b.histNext + 1) % b.histCap
	if b.histLen < b.histCap {
		b.histLen++
	}
}

// Recent returns up to n most recent events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.histLen {
		n = b.histLen
	}
	out := make([]Event, 0, n)
	start := b.histNext - n
	if start < 0 {
		start += b.histCap
	}
	for i := 0; i < n; i++ {
		out = append(out, b.history[(start+i)%b.histCap])
	}
	return out
}

// ByType returns up to n most recent events of one type, oldest first.
func (b *Bus) ByType(eventType string, n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	start := b.histNext - b.histLen
	if start < 0 {
		start += b.histCap
	}
	for i := 0; i < b.histLen; i++ {
		ev := b.history[(start+i)%b.histCap]
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// SubscriberCounts reports registrations per event type, for diagnostics.
func (b *Bus) SubscriberCounts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[string]int, len(b.subscribers))
	for t, list := range b.subscribers {
		counts[t] = len(list)
	}
	return counts
}
