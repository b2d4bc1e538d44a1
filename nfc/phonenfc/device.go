package phonenfc

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/protocol"
)

// Device is one registered phone.
type Device struct {
	deviceID   string
	deviceName string
	platform   string
	appVersion string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.RWMutex
	lastSeen    time.Time
	sessionOpen bool
	closed      bool
}

func newDevice(deviceID string, req protocol.DeviceRegistrationRequest, conn *websocket.Conn) *Device {
	return &Device{
		deviceID:   deviceID,
		deviceName: req.DeviceName,
		platform:   req.Platform,
		appVersion: req.AppVersion,
		conn:       conn,
		lastSeen:   time.Now(),
	}
}

// ID returns the id assigned at registration.
func (d *Device) ID() string { return d.deviceID }

// Platform returns "ios" or "android".
func (d *Device) Platform() string { return d.platform }

// Shape returns the payload shape the phone's native module emits.
func (d *Device) Shape() nfc.SourceShape {
	return nfc.ShapeForOrigin(d.platform)
}

func (d *Device) String() string {
	return fmt.Sprintf("%s [%s %s]", d.deviceName, d.platform, d.deviceID)
}

// LastSeen returns the time of the last message from the phone.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

func (d *Device) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// SessionOpen reports whether the phone was asked to open a session and
// has not been asked to close it since.
func (d *Device) SessionOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionOpen
}

func (d *Device) setSessionOpen(open bool) {
	d.mu.Lock()
	d.sessionOpen = open
	d.mu.Unlock()
}

// send writes one JSON message. Writes are serialized per connection.
func (d *Device) send(v any) error {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return fmt.Errorf("device %s is closed", d.deviceID)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return d.conn.WriteJSON(v)
}

// Command sends one command message to the phone.
func (d *Device) Command(command string) error {
	return d.send(protocol.WebSocketMessage{
		Type:    protocol.DeviceTypeCommand,
		Payload: protocol.DeviceCommand{Command: command},
	})
}

// Close closes the connection. Closing twice is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.conn.Close()
}
