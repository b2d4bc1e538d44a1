package server

import "github.com/nedpals/davi-nfc-bridge/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-bridge._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// HTTP routes
const (
	APIPrefix       = "/api/v1"
	RouteHealth     = APIPrefix + "/health"
	RouteStatus     = APIPrefix + "/status"
	RouteWebSocket  = "/ws"
	RouteDevice     = "/device"
	ListenerPrefix  = "ws-"
	DefaultPort     = 18080
	MaxMessageBytes = 64 * 1024
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
