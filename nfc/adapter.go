package nfc

// SessionAdapter is the native side of the bridge: something that can probe
// for NFC capability and run reader sessions.
//
// Adapters never report results through return values. Availability is
// reported with one of the lifecycle events, scans with EventDiscovered and
// failures with EventError, all emitted on the sink passed to Bind.
//
// Example:
//
//	adapter := libnfc.NewAdapter(libnfc.Config{})
//	bridge := nfc.NewBridge(adapter)
//	if err := bridge.Initialize(); err != nil {
//	    log.Println(err)
//	}
type SessionAdapter interface {
	// Bind attaches the sink events are emitted on. It is called once,
	// before any other method.
	Bind(sink EventSink)

	// CheckAvailability emits exactly one of EventEnabled, EventMissing or
	// EventUnavailable.
	CheckAvailability()

	// OpenSession starts reading tags.
	OpenSession()

	// CloseSession stops reading. Calling it without an open session is a no-op.
	CloseSession()
}
