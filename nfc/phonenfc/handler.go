package phonenfc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nedpals/davi-nfc-bridge/protocol"
)

// ServeHTTP upgrades a phone connection, waits for its registration and
// then forwards its events until the connection closes.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	a.logger.Printf("WebSocket connected from %s", r.RemoteAddr)

	device, err := a.handleRegistration(conn)
	if err != nil {
		a.logger.Printf("registration failed: %v", err)
		conn.Close()
		return
	}
	defer a.unregisterDevice(device.ID())

	// the newest phone becomes the target; ask it for its NFC state
	a.CheckAvailability()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			a.sendError(device, "", ErrCodeParseError, "Invalid message format")
			continue
		}

		switch req.Type {
		case protocol.DeviceTypeEvent:
			var ev protocol.DeviceEvent
			if err := json.Unmarshal(req.Payload, &ev); err != nil {
				a.sendError(device, req.ID, ErrCodeParseError, "Invalid event format")
				continue
			}
			if err := a.HandleEvent(device, ev); err != nil {
				a.logger.Printf("event %q from %s rejected: %v", ev.Event, device, err)
				a.sendError(device, req.ID, ErrCodeInvalidEvent, err.Error())
			}
		case protocol.DeviceTypeHeartbeat:
			device.touch()
		default:
			a.sendError(device, req.ID, ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		}
	}
}

// handleRegistration reads the first message, which must be a
// registerDevice request, and answers it.
func (a *Adapter) handleRegistration(conn *websocket.Conn) (*Device, error) {
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		writeError(conn, "", ErrCodeReadError, "Failed to read message")
		return nil, fmt.Errorf("reading registration: %w", err)
	}
	if messageType != websocket.TextMessage {
		writeError(conn, "", ErrCodeInvalidType, "Expected text message")
		return nil, fmt.Errorf("expected text message, got type %d", messageType)
	}

	var req protocol.WebSocketRequest
	if err := json.Unmarshal(message, &req); err != nil {
		writeError(conn, "", ErrCodeParseError, "Invalid message format")
		return nil, fmt.Errorf("parsing registration: %w", err)
	}
	if req.Type != protocol.DeviceTypeRegister {
		writeError(conn, req.ID, ErrCodeInvalidType, fmt.Sprintf("Expected '%s' message", protocol.DeviceTypeRegister))
		return nil, fmt.Errorf("expected %q, got %q", protocol.DeviceTypeRegister, req.Type)
	}

	var regReq protocol.DeviceRegistrationRequest
	if err := json.Unmarshal(req.Payload, &regReq); err != nil {
		writeError(conn, req.ID, ErrCodeInvalidRequest, "Invalid registration request format")
		return nil, fmt.Errorf("parsing registration request: %w", err)
	}

	device, err := a.registerDevice(regReq, conn)
	if err != nil {
		writeError(conn, req.ID, ErrCodeInvalidRequest, err.Error())
		return nil, err
	}

	err = device.send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.DeviceTypeRegisterResponse,
		Success: true,
		Payload: protocol.DeviceRegistrationResponse{
			DeviceID:   device.ID(),
			ServerInfo: a.cfg.ServerInfo,
		},
	})
	if err != nil {
		a.unregisterDevice(device.ID())
		return nil, fmt.Errorf("sending registration response: %w", err)
	}
	return device, nil
}

func (a *Adapter) sendError(device *Device, requestID, code, message string) {
	if err := device.send(errorResponse(requestID, code, message)); err != nil {
		a.logger.Printf("failed to send error response to %s: %v", device, err)
	}
}

func writeError(conn *websocket.Conn, requestID, code, message string) {
	conn.WriteJSON(errorResponse(requestID, code, message))
}

func errorResponse(requestID, code, message string) protocol.WebSocketResponse {
	return protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.DeviceTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code},
	}
}

// IsDeviceConnection reports whether a request on a shared endpoint comes
// from a phone rather than an application client.
func IsDeviceConnection(r *http.Request) bool {
	if r.Header.Get("X-Device-Mode") == "true" {
		return true
	}
	return r.URL.Query().Get("mode") == "device"
}
