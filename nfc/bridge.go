package nfc

import (
	"io"
	"log"
	"os"
	"sync"
)

// Bridge connects a SessionAdapter to named application listeners.
//
// It tracks availability from lifecycle events, keeps exactly one forwarding
// subscription per raw channel (discovered, error) on its event source, and
// normalizes every discovery before fanning it out.
//
// Example:
//
//	bridge := nfc.NewBridge(adapter)
//	bridge.AddListener("main", func(rec nfc.DiscoveryRecord) {
//	    fmt.Println(rec.ScannedValue())
//	}, nil)
//	if err := bridge.Initialize(); err != nil {
//	    // not ready yet, wait for a status change
//	}
type Bridge struct {
	adapter  SessionAdapter
	emitter  *EventEmitter
	status   *StatusTracker
	registry *Registry
	logger   *log.Logger

	subMu sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bridge) {
		if logger == nil {
			logger = log.New(io.Discard, "", 0)
		}
		b.logger = logger
	}
}

// WithEmitter makes the bridge use an existing event source.
func WithEmitter(emitter *EventEmitter) Option {
	return func(b *Bridge) {
		b.emitter = emitter
	}
}

// NewBridge creates a bridge, binds the adapter to its event source and runs
// the adapter's capability probe once.
func NewBridge(adapter SessionAdapter, opts ...Option) *Bridge {
	b := &Bridge{
		adapter: adapter,
		emitter: NewEventEmitter(),
		status:  NewStatusTracker(),
		logger:  log.New(os.Stderr, "[bridge] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.registry = NewRegistry(b.logger)

	for _, event := range []EventType{EventEnabled, EventMissing, EventUnavailable} {
		b.emitter.AddListener(event, b.handleLifecycle)
	}

	adapter.Bind(b.emitter)
	adapter.CheckAvailability()
	return b
}

func (b *Bridge) handleLifecycle(event Event) {
	if b.status.Signal(event.Type) {
		b.logger.Printf("status changed to %s", b.status.Status())
	}
}

// Emitter returns the event source adapters publish to.
func (b *Bridge) Emitter() *EventEmitter {
	return b.emitter
}

// StatusTracker returns the tracker backing IsEnabled and CheckStatus.
func (b *Bridge) StatusTracker() *StatusTracker {
	return b.status
}

// Initialize opens a reader session. It fails with a not-ready error and
// leaves the adapter untouched unless the adapter last reported enabled.
func (b *Bridge) Initialize() error {
	if !b.status.IsAvailable() {
		return NewNotReadyError("Initialize", b.status.Status())
	}
	b.logger.Println("opening reader session")
	b.adapter.OpenSession()
	return nil
}

// StopScan closes the reader session. A discovery already in flight may
// still be delivered once after StopScan returns.
func (b *Bridge) StopScan() {
	b.adapter.CloseSession()
}

// IsEnabled reports whether the status is ready.
func (b *Bridge) IsEnabled() bool {
	return b.status.IsAvailable()
}

// CheckStatus returns the last reported status.
func (b *Bridge) CheckStatus() Status {
	return b.status.Status()
}

// AddListener registers callbacks under name, replacing any previous
// registration with that name. onError may be nil.
func (b *Bridge) AddListener(name string, onDiscover DiscoverFunc, onError ErrorFunc) error {
	if name == "" {
		return NewInvalidListenerError("AddListener", "listener name is required")
	}
	if onDiscover == nil {
		return NewInvalidListenerError("AddListener", "discovery callback is required")
	}

	if b.registry.Set(name, Listener{OnDiscover: onDiscover, OnError: onError}) {
		b.logger.Printf("listener %q replaced", name)
	}
	b.resubscribe()
	return nil
}

// RemoveListener unregisters name and reports whether it was registered.
// Channel subscriptions stay in place for the remaining listeners.
func (b *Bridge) RemoveListener(name string) bool {
	return b.registry.Remove(name)
}

// RemoveAllListeners unregisters every listener and drops the forwarding
// subscriptions.
func (b *Bridge) RemoveAllListeners() {
	b.subMu.Lock()
	b.emitter.RemoveAllListeners(EventDiscovered)
	b.emitter.RemoveAllListeners(EventError)
	b.subMu.Unlock()

	b.registry.Clear()
}

// Listeners returns the registered listener names.
func (b *Bridge) Listeners() []string {
	return b.registry.Names()
}

// resubscribe removes whatever is attached to the raw channels and attaches
// one forwarding handler to each.
func (b *Bridge) resubscribe() {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.emitter.RemoveAllListeners(EventDiscovered)
	b.emitter.RemoveAllListeners(EventError)
	b.emitter.AddListener(EventDiscovered, b.notifyDiscovered)
	b.emitter.AddListener(EventError, b.notifyError)
}

func (b *Bridge) notifyDiscovered(event Event) {
	if event.Discovery == nil {
		return
	}
	b.registry.DispatchDiscovery(Normalize(*event.Discovery, event.Shape))
}

func (b *Bridge) notifyError(event Event) {
	if event.Error == nil {
		return
	}
	b.registry.DispatchError(*event.Error)
}
