// Package server exposes a bridge to applications over HTTP and WebSocket.
//
// Application clients connect to /ws. Each connection becomes a bridge
// listener and receives "discovered" and "error" messages for every scan;
// status changes are broadcast to all clients. Clients send "initialize",
// "stopScan" and "status" requests. Phones acting as readers connect to
// /device, or to /ws with ?mode=device.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/nedpals/davi-nfc-bridge/buildinfo"
	"github.com/nedpals/davi-nfc-bridge/nfc"
	"github.com/nedpals/davi-nfc-bridge/nfc/phonenfc"
	"github.com/nedpals/davi-nfc-bridge/protocol"
)

// Config holds the server configuration
type Config struct {
	Bridge      *nfc.Bridge
	AdapterName string
	Port        int
	// APISecret, when set, must be passed as ?secret= by clients.
	APISecret string
	// DeviceHandler serves phone connections. Nil disables phone mode.
	DeviceHandler http.Handler
	// MDNS advertises the server on the local network.
	MDNS   bool
	Logger *log.Logger
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config   Config
	logger   *log.Logger
	handler  *BridgeHandler
	registry *HandlerRegistry
	clients  *clientSet
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	mdnsServer *zeroconf.Server
	cancel     context.CancelFunc
}

// New creates a new server instance
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}

	s := &Server{
		config:   config,
		logger:   logger,
		registry: NewHandlerRegistry(),
		clients:  newClientSet(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	s.handler = NewBridgeHandler(config.Bridge, config.AdapterName, logger)
	s.handler.Register(s)

	if config.DeviceHandler != nil {
		s.HandleWebSocket(phonenfc.IsDeviceConnection, func(w http.ResponseWriter, r *http.Request) bool {
			config.DeviceHandler.ServeHTTP(w, r)
			return true
		})
	}

	s.mux = s.routes()
	return s
}

// Handle implements HandlerServer.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.registry.Handle(messageType, handler)
}

// HandleWebSocket implements HandlerServer.
func (s *Server) HandleWebSocket(matcher func(r *http.Request) bool, handler WebSocketHandlerFunc) {
	s.registry.HandleWebSocket(matcher, handler)
}

// StartLifecycle implements HandlerServer.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.registry.RegisterLifecycle(start)
}

// Broadcast sends a message to every connected client.
func (s *Server) Broadcast(msg protocol.WebSocketMessage) {
	for _, client := range s.clients.snapshot() {
		if err := client.Send(msg); err != nil {
			s.logger.Printf("WebSocket write error: %v", err)
			client.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.clients.len()
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(RouteHealth, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(RouteStatus, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.handler.Status())
	}))

	mux.HandleFunc(RouteWebSocket, s.handleWebSocket)

	if s.config.DeviceHandler != nil {
		mux.Handle(RouteDevice, s.config.DeviceHandler)
	}

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " running"))
	}))

	return mux
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"version":   buildinfo.FullVersion(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Start listens on the configured port, serves in the background, advertises
// the server over mDNS and starts the lifecycle handlers. It returns once the
// listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.mux}

	go func(srv *http.Server) {
		s.logger.Printf("Starting server on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("HTTP server error: %v", err)
		}
	}(s.httpServer)

	if s.config.MDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Printf("Warning: Failed to start mDNS service: %v", err)
			s.logger.Printf("Auto-discovery will not be available, but server will continue normally")
		}
	}

	s.registry.StartLifecycleHandlers(ctx)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Printf("mDNS service stopped")
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Printf("Server shutdown error: %v", err)
		}
		cancel()
		s.httpServer = nil
		s.listener = nil
	}
	s.clients.closeAll()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// startMDNS registers the bridge as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	port := s.config.Port
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
	}

	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=" + RouteWebSocket,
		"adapter=" + s.config.AdapterName,
	}
	if s.config.DeviceHandler != nil {
		txtRecords = append(txtRecords, "device_path="+RouteDevice)
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	s.logger.Printf("mDNS service registered: %s on port %d", MDNSServiceName, port)
	return nil
}

// handleWebSocket upgrades application connections and registers each one
// as a bridge listener for its lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.registry.TryCustomWebSocketHandler(w, r) {
		return
	}

	if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
		s.logger.Printf("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(MaxMessageBytes)

	client := newClient(conn, s.logger)
	s.clients.add(client)
	s.logger.Printf("WebSocket connected from %s as %s", r.RemoteAddr, client.ID())

	if err := s.config.Bridge.AddListener(client.ListenerName(), client.onDiscover, client.onError); err != nil {
		s.logger.Printf("registering listener for %s: %v", client.ID(), err)
	}

	defer func() {
		s.config.Bridge.RemoveListener(client.ListenerName())
		s.clients.remove(client)
		client.Close()
		s.logger.Printf("WebSocket %s disconnected", client.ID())
	}()

	client.Send(protocol.WebSocketMessage{Type: protocol.TypeStatus, Payload: s.handler.Status()})

	ctx := r.Context()
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.logger.Printf("Failed to parse WebSocket message: %v", err)
			client.SendError("", protocol.ErrCodeParse, "Invalid message format")
			continue
		}

		handler, ok := s.registry.Get(req.Type)
		if !ok {
			s.logger.Printf("Unknown message type: %s", req.Type)
			client.SendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}

		if err := handler(ctx, client, req); err != nil {
			s.logger.Printf("Handler error for message type '%s': %v", req.Type, err)
		}
	}
}
