package protocol

import (
	"encoding/json"
	"time"
)

// Message types exchanged with phones on /device.
const (
	DeviceTypeRegister         = "registerDevice"
	DeviceTypeRegisterResponse = "registerDeviceResponse"
	DeviceTypeEvent            = "nfcEvent"
	DeviceTypeHeartbeat        = "deviceHeartbeat"
	DeviceTypeCommand          = "command"
	DeviceTypeError            = "error"
)

// Commands the bridge sends to a phone.
const (
	CommandOpenSession       = "openSession"
	CommandCloseSession      = "closeSession"
	CommandCheckAvailability = "checkAvailability"
)

// Platforms a phone may register as.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// DeviceRegistrationRequest is the first message a phone sends.
type DeviceRegistrationRequest struct {
	DeviceName string            `json:"deviceName"`
	Platform   string            `json:"platform"`
	AppVersion string            `json:"appVersion"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DeviceRegistrationResponse is sent after a successful registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"`
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo describes the bridge to a phone.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DeviceCommand asks a phone to run one native module call.
type DeviceCommand struct {
	Command string `json:"command"`
}

// DeviceEvent forwards one native module event. Payload is the event body
// exactly as the native module emitted it. A phone that only has the raw
// NDEF bytes of a message may send them in NDEF and leave Payload empty.
type DeviceEvent struct {
	DeviceID string          `json:"deviceID"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	NDEF     []byte          `json:"ndef,omitempty"`
	TagID    string          `json:"tagID,omitempty"`
}

// DeviceHeartbeat is sent periodically by a phone.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"deviceID"`
	Timestamp time.Time `json:"timestamp"`
}
