package nfc

import "sync"

// Status is the availability of NFC reading as last reported by the adapter.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusReady       Status = "ready"
	StatusMissing     Status = "missing"
	StatusUnavailable Status = "unavailable"
)

// statusFor maps a lifecycle event to the status it assigns.
func statusFor(event EventType) (Status, bool) {
	switch event {
	case EventEnabled:
		return StatusReady, true
	case EventMissing:
		return StatusMissing, true
	case EventUnavailable:
		return StatusUnavailable, true
	}
	return "", false
}

// StatusTracker holds the availability state derived from lifecycle events.
// Only Signal mutates it; every signal is a terminal assignment until the
// next one arrives.
type StatusTracker struct {
	mu       sync.RWMutex
	status   Status
	loading  bool
	watchers map[int]func(Status)
	nextID   int
}

// NewStatusTracker creates a tracker in the waiting state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status:   StatusWaiting,
		loading:  true,
		watchers: make(map[int]func(Status)),
	}
}

// Signal applies a lifecycle event. Non-lifecycle events are ignored and
// reported as not applied.
func (t *StatusTracker) Signal(event EventType) bool {
	status, ok := statusFor(event)
	if !ok {
		return false
	}

	t.mu.Lock()
	t.status = status
	t.loading = false
	watchers := make([]func(Status), 0, len(t.watchers))
	for _, fn := range t.watchers {
		watchers = append(watchers, fn)
	}
	t.mu.Unlock()

	for _, fn := range watchers {
		fn(status)
	}
	return true
}

// Status returns the current status.
func (t *StatusTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Loading reports whether no lifecycle event has been received yet.
func (t *StatusTracker) Loading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loading
}

// IsAvailable reports whether a session may be opened.
func (t *StatusTracker) IsAvailable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.loading && t.status == StatusReady
}

// Watch registers fn to be called after every status assignment.
// The returned function removes the watcher.
func (t *StatusTracker) Watch(fn func(Status)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.watchers[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.watchers, id)
	}
}
