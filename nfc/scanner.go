package nfc

// Scanner is a forgiving wrapper around Bridge for callers that poll for
// readiness instead of handling errors. Init logs the not-ready error instead
// of returning it, and listener changes are ignored until NFC is enabled.
type Scanner struct {
	bridge *Bridge
}

// NewScanner wraps bridge.
func NewScanner(bridge *Bridge) *Scanner {
	return &Scanner{bridge: bridge}
}

// Init opens a session if the bridge is ready.
func (s *Scanner) Init() {
	if err := s.bridge.Initialize(); err != nil {
		s.bridge.logger.Printf("scanner init: %v", err)
	}
}

// StopScan closes the session.
func (s *Scanner) StopScan() {
	s.bridge.StopScan()
}

// IsEnabled reports whether NFC is ready.
func (s *Scanner) IsEnabled() bool {
	return s.bridge.IsEnabled()
}

// Status returns the bridge status.
func (s *Scanner) Status() Status {
	return s.bridge.CheckStatus()
}

// AddListener registers a listener when NFC is enabled and reports whether
// it did.
func (s *Scanner) AddListener(name string, onDiscover DiscoverFunc, onError ErrorFunc) bool {
	if !s.bridge.IsEnabled() {
		return false
	}
	if err := s.bridge.AddListener(name, onDiscover, onError); err != nil {
		s.bridge.logger.Printf("scanner add listener: %v", err)
		return false
	}
	return true
}

// ClearListeners removes every listener when NFC is enabled.
func (s *Scanner) ClearListeners() {
	if s.bridge.IsEnabled() {
		s.bridge.RemoveAllListeners()
	}
}
