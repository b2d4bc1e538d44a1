// Package phonenfc lets iOS and Android phones act as the bridge's NFC
// reader. Phones connect over WebSocket, register, and then forward the
// events of their native NFC module unchanged. The bridge drives them with
// openSession, closeSession and checkAvailability commands.
package phonenfc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/protocol"
)

// ErrNoPhoneConnected is reported when a session is requested with no
// registered phone.
var ErrNoPhoneConnected = errors.New("no phone connected")

// Config configures the phone adapter.
type Config struct {
	// InactivityTimeout drops phones that sent nothing for this long.
	// Zero means DeviceTimeout.
	InactivityTimeout time.Duration
	// ServerInfo is sent to phones after registration.
	ServerInfo protocol.ServerInfo
}

// Adapter implements nfc.SessionAdapter for phones. Sessions are opened on
// the most recently registered phone.
type Adapter struct {
	cfg    Config
	logger *log.Logger

	mu      sync.RWMutex
	sink    nfc.EventSink
	devices map[string]*Device
	order   []string

	upgrader    websocket.Upgrader
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

var _ nfc.SessionAdapter = (*Adapter)(nil)

// NewAdapter creates the adapter and starts the inactivity cleanup routine.
// A nil logger logs to stderr with the "[phone] " prefix.
func NewAdapter(cfg Config, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[phone] ", log.LstdFlags)
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DeviceTimeout
	}
	a := &Adapter{
		cfg:     cfg,
		logger:  logger,
		devices: make(map[string]*Device),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		stopCleanup: make(chan struct{}),
	}
	go a.cleanupRoutine()
	return a
}

// Bind implements nfc.SessionAdapter.
func (a *Adapter) Bind(sink nfc.EventSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

func (a *Adapter) emit(event nfc.Event) {
	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()
	if sink != nil {
		sink.Emit(event)
	}
}

// target returns the phone sessions are opened on.
func (a *Adapter) target() *Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.order) == 0 {
		return nil
	}
	return a.devices[a.order[len(a.order)-1]]
}

// CheckAvailability reports missing without a phone. Otherwise the target
// phone is asked to probe its own NFC hardware and its answer arrives as a
// forwarded lifecycle event.
func (a *Adapter) CheckAvailability() {
	device := a.target()
	if device == nil {
		a.emit(nfc.LifecycleEvent(nfc.EventMissing))
		return
	}
	if err := device.Command(protocol.CommandCheckAvailability); err != nil {
		a.logger.Printf("checkAvailability on %s: %v", device, err)
		a.emit(nfc.LifecycleEvent(nfc.EventUnavailable))
	}
}

// OpenSession asks the target phone to start reading.
func (a *Adapter) OpenSession() {
	device := a.target()
	if device == nil {
		a.emit(nfc.ErrorEvent("", nfc.NewSessionError("OpenSession", ErrNoPhoneConnected)))
		return
	}
	if err := device.Command(protocol.CommandOpenSession); err != nil {
		a.emit(nfc.ErrorEvent(device.Platform(), nfc.NewSessionError("OpenSession", err)))
		return
	}
	device.setSessionOpen(true)
	a.logger.Printf("session opened on %s", device)
}

// CloseSession asks every phone with an open session to stop reading.
func (a *Adapter) CloseSession() {
	for _, device := range a.Devices() {
		if !device.SessionOpen() {
			continue
		}
		device.setSessionOpen(false)
		if err := device.Command(protocol.CommandCloseSession); err != nil {
			a.logger.Printf("closeSession on %s: %v", device, err)
		}
	}
}

// Active reports whether the target phone has an open session.
func (a *Adapter) Active() bool {
	device := a.target()
	return device != nil && device.SessionOpen()
}

// Devices returns the registered phones in registration order.
func (a *Adapter) Devices() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.devices[id])
	}
	return out
}

// DeviceCount returns the number of registered phones.
func (a *Adapter) DeviceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.devices)
}

// GetDevice looks up a phone by id.
func (a *Adapter) GetDevice(deviceID string) (*Device, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.devices[deviceID]
	return d, ok
}

func (a *Adapter) registerDevice(req protocol.DeviceRegistrationRequest, conn *websocket.Conn) (*Device, error) {
	if req.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if req.Platform != protocol.PlatformIOS && req.Platform != protocol.PlatformAndroid {
		return nil, fmt.Errorf("invalid platform: %s (must be 'ios' or 'android')", req.Platform)
	}

	device := newDevice(uuid.New().String(), req, conn)

	a.mu.Lock()
	a.devices[device.ID()] = device
	a.order = append(a.order, device.ID())
	a.mu.Unlock()

	a.logger.Printf("device registered: %s (app %s)", device, req.AppVersion)
	return device, nil
}

// unregisterDevice removes a phone. Losing the last phone reports missing;
// losing the target probes the phone that replaces it.
func (a *Adapter) unregisterDevice(deviceID string) {
	a.mu.Lock()
	wasTarget := len(a.order) > 0 && a.order[len(a.order)-1] == deviceID
	device, ok := a.devices[deviceID]
	if ok {
		delete(a.devices, deviceID)
		for i, id := range a.order {
			if id == deviceID {
				a.order = append(a.order[:i], a.order[i+1:]...)
				break
			}
		}
	}
	remaining := len(a.devices)
	a.mu.Unlock()

	if !ok {
		return
	}
	device.Close()
	a.logger.Printf("device unregistered: %s", device)

	switch {
	case remaining == 0:
		a.emit(nfc.LifecycleEvent(nfc.EventMissing))
	case wasTarget:
		// the next newest phone takes over and reports its own status
		a.CheckAvailability()
	}
}

// HandleEvent forwards one native event from device to the bridge.
func (a *Adapter) HandleEvent(device *Device, ev protocol.DeviceEvent) error {
	if ev.DeviceID != "" && ev.DeviceID != device.ID() {
		return fmt.Errorf("event for device %s sent on connection of %s", ev.DeviceID, device.ID())
	}
	device.touch()

	event := nfc.EventType(ev.Event)
	switch {
	case event.IsLifecycle():
		// only the target's hardware decides the bridge status
		if device != a.target() {
			a.logger.Printf("ignoring %s from %s: not the session target", event, device)
			return nil
		}
		a.emit(nfc.LifecycleEvent(event))
		return nil

	case event == nfc.EventDiscovered:
		raw, err := a.discovery(device, ev)
		if err != nil {
			return err
		}
		a.emit(nfc.DiscoveredEvent(device.Shape(), raw))
		return nil

	case event == nfc.EventError:
		var payload nfc.RawError
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				return nfc.NewInvalidPayloadError("HandleEvent", err)
			}
		}
		if payload.Origin == "" {
			payload.Origin = device.Platform()
		}
		a.emit(nfc.Event{Type: nfc.EventError, Error: &payload})
		return nil
	}
	return fmt.Errorf("unknown event %q", ev.Event)
}

func (a *Adapter) discovery(device *Device, ev protocol.DeviceEvent) (nfc.RawDiscovery, error) {
	var raw nfc.RawDiscovery
	switch {
	case len(ev.Payload) > 0:
		if err := json.Unmarshal(ev.Payload, &raw); err != nil {
			return raw, nfc.NewInvalidPayloadError("HandleEvent", err)
		}
	case len(ev.NDEF) > 0:
		var err error
		raw, err = nfc.MessageDiscovery(device.Platform(), ev.TagID, ev.NDEF)
		if err != nil {
			return raw, err
		}
		if device.Shape() == nfc.ShapeTechList {
			raw.Type = nfc.NfcDataTypeNDEF
		}
	default:
		return raw, nfc.NewInvalidPayloadError("HandleEvent", fmt.Errorf("discovered event without payload"))
	}
	if raw.Origin == "" {
		raw.Origin = device.Platform()
	}
	return raw, nil
}

func (a *Adapter) cleanupRoutine() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.cleanupInactiveDevices()
		case <-a.stopCleanup:
			return
		}
	}
}

// cleanupInactiveDevices removes phones that exceeded the inactivity timeout.
func (a *Adapter) cleanupInactiveDevices() {
	now := time.Now()
	for _, device := range a.Devices() {
		if idle := now.Sub(device.LastSeen()); idle > a.cfg.InactivityTimeout {
			a.logger.Printf("cleaning up inactive device: %s (last seen %v ago)", device, idle)
			a.unregisterDevice(device.ID())
		}
	}
}

// Close stops the cleanup routine and disconnects every phone.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.stopCleanup)
		for _, device := range a.Devices() {
			device.Close()
		}
		a.logger.Println("adapter closed")
	})
}
