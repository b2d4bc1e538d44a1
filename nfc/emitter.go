package nfc

import (
	"sort"
	"sync"
)

// EventSink receives events from a SessionAdapter.
type EventSink interface {
	Emit(event Event)
}

// Handler is called for every event emitted on the channel it subscribed to.
type Handler func(Event)

// Subscription identifies one handler registered on an EventEmitter.
type Subscription struct {
	Event EventType
	id    uint64
}

// EventEmitter is the in-process event source adapters publish to.
// Handlers run synchronously on the goroutine that calls Emit, in
// subscription order.
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[EventType]map[uint64]Handler
	nextID   uint64
}

// NewEventEmitter creates an emitter with no subscriptions.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[EventType]map[uint64]Handler),
	}
}

var _ EventSink = (*EventEmitter)(nil)

// AddListener subscribes fn to one event channel.
func (e *EventEmitter) AddListener(event EventType, fn Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[uint64]Handler)
	}
	e.handlers[event][e.nextID] = fn
	return Subscription{Event: event, id: e.nextID}
}

// Remove drops a single subscription. Removing twice is a no-op.
func (e *EventEmitter) Remove(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[sub.Event], sub.id)
}

// RemoveAllListeners drops every subscription on one event channel.
func (e *EventEmitter) RemoveAllListeners(event EventType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// ListenerCount returns the number of subscriptions on one event channel.
func (e *EventEmitter) ListenerCount(event EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}

// Emit delivers event to every handler subscribed to its type.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	subs := e.handlers[event.Type]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, subs[id])
	}
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}
