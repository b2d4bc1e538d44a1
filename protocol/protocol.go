// Package protocol holds the JSON message types spoken over the bridge's
// WebSocket endpoints. It has no dependencies on the server so phone apps
// and tools written in Go can import it directly.
package protocol

import "encoding/json"

// Message types sent to and from application clients on /ws.
const (
	TypeInitialize = "initialize"
	TypeStopScan   = "stopScan"
	TypeStatus     = "status"
	TypeDiscovered = "discovered"
	TypeError      = "error"
)

// WebSocketMessage is the envelope for server-initiated broadcasts.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is an incoming request. Payload is decoded by the
// handler registered for Type.
type WebSocketRequest struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocketResponse answers a WebSocketRequest.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusPayload reports the bridge status.
type StatusPayload struct {
	Status    string   `json:"status"`
	Enabled   bool     `json:"enabled"`
	Adapter   string   `json:"adapter"`
	Listeners []string `json:"listeners,omitempty"`
}

// ErrorPayload carries the code of a rejected request.
type ErrorPayload struct {
	Code string `json:"code"`
}

// Error codes for rejected requests.
const (
	ErrCodeParse       = "PARSE_ERROR"
	ErrCodeUnknownType = "UNKNOWN_TYPE"
	ErrCodeNotReady    = "NOT_READY"
	ErrCodeInvalid     = "INVALID_REQUEST"
)
