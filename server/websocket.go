package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/protocol"
)

const writeTimeout = 5 * time.Second

// Client is one application connected on /ws. Every client is registered
// as a bridge listener under its own name, so discoveries and errors reach
// it through the bridge's fan-out.
type Client struct {
	id     string
	conn   *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn, logger *log.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		logger: logger,
	}
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// ListenerName returns the name the client is registered under on the bridge.
func (c *Client) ListenerName() string { return ListenerPrefix + c.id }

// Send writes one JSON message. Writes are serialized per connection.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("client %s is closed", c.id)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Respond answers a request successfully.
func (c *Client) Respond(req protocol.WebSocketRequest, payload any) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response.
func (c *Client) SendError(requestID, code, message string) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.TypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code},
	})
}

// onDiscover is the client's bridge discovery callback.
func (c *Client) onDiscover(record nfc.DiscoveryRecord) {
	c.push(protocol.TypeDiscovered, record)
}

// onError is the client's bridge error callback.
func (c *Client) onError(payload nfc.RawError) {
	c.push(protocol.TypeError, payload)
}

func (c *Client) push(msgType string, payload any) {
	if err := c.Send(protocol.WebSocketMessage{Type: msgType, Payload: payload}); err != nil {
		c.logger.Printf("WebSocket write error for %s: %v", c.id, err)
	}
}

// Close closes the connection. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// clientSet tracks the connected clients for broadcasts.
type clientSet struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[string]*Client)}
}

func (s *clientSet) add(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *clientSet) remove(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

func (s *clientSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *clientSet) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// closeAll closes every connection. The read loops then unregister them.
func (s *clientSet) closeAll() {
	for _, c := range s.snapshot() {
		c.Close()
	}
}
