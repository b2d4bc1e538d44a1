package nfc

import (
	"log"
	"sort"
	"sync"
)

// DiscoverFunc receives normalized discovery records.
type DiscoverFunc func(DiscoveryRecord)

// ErrorFunc receives error payloads as the adapter reported them.
type ErrorFunc func(RawError)

// Listener is one named registration. OnError may be nil.
type Listener struct {
	OnDiscover DiscoverFunc
	OnError    ErrorFunc
}

// Registry maps listener names to their callbacks and fans events out to them.
// Callbacks are invoked without holding the registry lock, so a callback may
// add or remove listeners.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	logger    *log.Logger
}

// NewRegistry creates an empty registry. A nil logger discards panic reports.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		listeners: make(map[string]Listener),
		logger:    logger,
	}
}

// Set inserts or replaces the listener registered under name.
// It reports whether an existing entry was replaced.
func (r *Registry) Set(name string, l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.listeners[name]
	r.listeners[name] = l
	return replaced
}

// Remove deletes the listener registered under name and reports whether
// one was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[name]; !ok {
		return false
	}
	delete(r.listeners, name)
	return true
}

// Clear deletes every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[string]Listener)
}

// Has reports whether a listener is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.listeners[name]
	return ok
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Names returns the registered listener names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type namedListener struct {
	name string
	Listener
}

func (r *Registry) snapshot() []namedListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]namedListener, 0, len(r.listeners))
	for name, l := range r.listeners {
		out = append(out, namedListener{name: name, Listener: l})
	}
	return out
}

// DispatchDiscovery calls every OnDiscover callback with record and returns
// how many callbacks completed without panicking.
func (r *Registry) DispatchDiscovery(record DiscoveryRecord) int {
	delivered := 0
	for _, l := range r.snapshot() {
		if l.OnDiscover == nil {
			continue
		}
		if r.invoke(l.name, func() { l.OnDiscover(record) }) {
			delivered++
		}
	}
	return delivered
}

// DispatchError calls every OnError callback with payload and returns how
// many callbacks completed without panicking.
func (r *Registry) DispatchError(payload RawError) int {
	delivered := 0
	for _, l := range r.snapshot() {
		if l.OnError == nil {
			continue
		}
		if r.invoke(l.name, func() { l.OnError(payload) }) {
			delivered++
		}
	}
	return delivered
}

// invoke runs one callback and recovers a panic so the remaining listeners
// still receive the event.
func (r *Registry) invoke(name string, fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			if r.logger != nil {
				r.logger.Printf("listener %q panicked: %v", name, p)
			}
		}
	}()
	fn()
	return true
}
