package nfc

import (
	"sync"
)

// MockAdapter is a SessionAdapter for tests. It records every call and lets
// the test emit events as if they came from a reader.
//
// Example:
//
//	adapter := NewMockAdapter()
//	bridge := NewBridge(adapter)
//	adapter.Discover(ShapeMessage, RawDiscovery{...})
type MockAdapter struct {
	// Availability is emitted by CheckAvailability. Zero means EventEnabled.
	Availability EventType

	// OpenError, if set, is emitted as an error event by OpenSession.
	OpenError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	sink EventSink
	open bool
	mu   sync.Mutex
}

// NewMockAdapter creates a MockAdapter that reports itself enabled.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Availability: EventEnabled,
		CallLog:      make([]string, 0),
	}
}

var _ SessionAdapter = (*MockAdapter)(nil)

func (m *MockAdapter) log(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, call)
}

// Bind stores the sink.
func (m *MockAdapter) Bind(sink EventSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	m.log("Bind")
}

// CheckAvailability emits Availability.
func (m *MockAdapter) CheckAvailability() {
	m.log("CheckAvailability")
	m.mu.Lock()
	event := m.Availability
	m.mu.Unlock()
	if event == "" {
		event = EventEnabled
	}
	m.emit(LifecycleEvent(event))
}

// OpenSession marks the session open, or emits OpenError.
func (m *MockAdapter) OpenSession() {
	m.log("OpenSession")
	m.mu.Lock()
	err := m.OpenError
	if err == nil {
		m.open = true
	}
	m.mu.Unlock()
	if err != nil {
		m.emit(ErrorEvent("mock", NewSessionError("OpenSession", err)))
	}
}

// CloseSession marks the session closed.
func (m *MockAdapter) CloseSession() {
	m.log("CloseSession")
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
}

// IsOpen reports whether OpenSession was called without a later CloseSession.
func (m *MockAdapter) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Calls returns a copy of the call log.
func (m *MockAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.CallLog))
	copy(out, m.CallLog)
	return out
}

// CallCount returns how many times call was logged.
func (m *MockAdapter) CallCount(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Signal emits a lifecycle event.
func (m *MockAdapter) Signal(event EventType) {
	m.emit(LifecycleEvent(event))
}

// Discover emits a discovered event.
func (m *MockAdapter) Discover(shape SourceShape, raw RawDiscovery) {
	m.emit(DiscoveredEvent(shape, raw))
}

// Fail emits an error event with the given payload.
func (m *MockAdapter) Fail(payload RawError) {
	m.emit(Event{Type: EventError, Error: &payload})
}

func (m *MockAdapter) emit(event Event) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.Emit(event)
	}
}
