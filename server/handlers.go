package server

import (
	"context"
	"log"

	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/protocol"
)

// BridgeHandler exposes the bridge's session controls to clients and
// broadcasts status changes.
type BridgeHandler struct {
	bridge      *nfc.Bridge
	adapterName string
	logger      *log.Logger
}

// NewBridgeHandler creates the handler group for bridge.
func NewBridgeHandler(bridge *nfc.Bridge, adapterName string, logger *log.Logger) *BridgeHandler {
	return &BridgeHandler{bridge: bridge, adapterName: adapterName, logger: logger}
}

// Register implements ServerHandler.
func (h *BridgeHandler) Register(server HandlerServer) {
	server.Handle(protocol.TypeInitialize, h.handleInitialize)
	server.Handle(protocol.TypeStopScan, h.handleStopScan)
	server.Handle(protocol.TypeStatus, h.handleStatus)

	server.StartLifecycle(func(ctx context.Context) {
		cancel := h.bridge.StatusTracker().Watch(func(nfc.Status) {
			server.Broadcast(protocol.WebSocketMessage{
				Type:    protocol.TypeStatus,
				Payload: h.Status(),
			})
		})
		go func() {
			<-ctx.Done()
			cancel()
		}()
	})
}

// Status builds the status payload.
func (h *BridgeHandler) Status() protocol.StatusPayload {
	return protocol.StatusPayload{
		Status:    string(h.bridge.CheckStatus()),
		Enabled:   h.bridge.IsEnabled(),
		Adapter:   h.adapterName,
		Listeners: h.bridge.Listeners(),
	}
}

func (h *BridgeHandler) handleInitialize(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	if err := h.bridge.Initialize(); err != nil {
		code, message := protocol.ErrCodeInvalid, err.Error()
		if nfc.IsNotReadyError(err) {
			code, message = protocol.ErrCodeNotReady, nfc.NotReadyMessage
		}
		h.logger.Printf("initialize for %s rejected: %v", client.ID(), err)
		return client.SendError(req.ID, code, message)
	}
	return client.Respond(req, h.Status())
}

func (h *BridgeHandler) handleStopScan(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	h.bridge.StopScan()
	return client.Respond(req, h.Status())
}

func (h *BridgeHandler) handleStatus(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return client.Respond(req, h.Status())
}
