// Package events carries the agent's lifecycle signals between components:
// process start/stop, the one-shot link transition, sync progress, and
// message-batch arrival. Delivery comes in two grades. Regular subscriptions
// trade completeness for isolation: a slow consumer loses old events, never
// blocks a publisher. Priority subscriptions block the publisher instead,
// because events like process_stopped and link_established drive state resets
// that must not be lost.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Timestamp() time.Time
	OwnerID() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type  string    `json:"type"`
	Time  time.Time `json:"timestamp"`
	Owner string    `json:"owner_id"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) OwnerID() string      { return e.Owner }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType, ownerID string) BaseEvent {
	return BaseEvent{
		Type:  eventType,
		Time:  time.Now(),
		Owner: ownerID,
	}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool // empty means all types
}

// wants reports whether the subscription covers the given event type.
func (s *subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// offer delivers without blocking: when the buffer is full the oldest event
// is evicted to make room. Returns the number of events lost.
func (s *subscriber) offer(event Event) int64 {
	select {
	case s.ch <- event:
		return 0
	default:
	}

	var dropped int64
	select {
	case <-s.ch:
		dropped++
	default:
	}
	select {
	case s.ch <- event:
	default:
		dropped++
	}
	return dropped
}

func newSubscriber(buffer int, types []string) *subscriber {
	sub := &subscriber{
		ch:    make(chan Event, buffer),
		types: make(map[string]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}
	return sub
}

// EventBus routes events from publishers to subscribers.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*subscriber
	prioritySubs []*subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// New creates a bus whose regular subscriptions buffer bufferSize events.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe creates a lossy subscription for the given event types; no types
// means everything. The returned channel is closed on Unsubscribe or Close.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := newSubscriber(eb.bufferSize, types)
	eb.subscribers = append(eb.subscribers, sub)
	return sub.ch
}

// SubscribePriority creates a lossless subscription: publishers of priority
// events block until it drains. Reserve it for the at-most-once transitions
// (process_stopped, link_established) whose loss would wedge a component.
func (eb *EventBus) SubscribePriority(types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := newSubscriber(50, types)
	eb.prioritySubs = append(eb.prioritySubs, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*subscriber, ch <-chan Event) []*subscriber {
	result := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	return result
}

// Publish fans an event out to matching regular subscribers. Slow consumers
// lose their oldest buffered event rather than stalling the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.fanOut(event)
}

// PublishPriority delivers to regular subscribers first, then blocks on each
// matching priority subscriber until the event is accepted.
func (eb *EventBus) PublishPriority(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.fanOut(event)

	for _, sub := range eb.prioritySubs {
		if sub.wants(event.EventType()) {
			sub.ch <- event
		}
	}
}

func (eb *EventBus) fanOut(event Event) {
	eventType := event.EventType()
	for _, sub := range eb.subscribers {
		if sub.wants(eventType) {
			if n := sub.offer(event); n > 0 {
				atomic.AddInt64(&eb.droppedCount, n)
			}
		}
	}
}

// DroppedCount returns the total number of events lost to full buffers.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// Close closes the bus and every subscriber channel.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}
