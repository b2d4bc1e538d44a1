package nfc

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
)

func newTestBridge(t *testing.T, availability EventType) (*Bridge, *MockAdapter) {
	t.Helper()
	adapter := NewMockAdapter()
	adapter.Availability = availability
	bridge := NewBridge(adapter, WithLogger(log.New(io.Discard, "", 0)))
	return bridge, adapter
}

func textDiscovery(text string) RawDiscovery {
	return RawDiscovery{
		Origin: OriginIOS,
		Type:   "NFC",
		Data: DiscoveryData{Messages: [][]RawRecord{{
			{Locale: "en", Encoding: EncodingUTF8, Type: NdefRecordTypeText, Data: text},
		}}},
	}
}

func TestNewBridge_ProbesOnce(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	calls := adapter.Calls()
	if len(calls) != 2 || calls[0] != "Bind" || calls[1] != "CheckAvailability" {
		t.Errorf("CallLog = %v, want [Bind CheckAvailability]", calls)
	}
	if !bridge.IsEnabled() || bridge.CheckStatus() != StatusReady {
		t.Errorf("status = %q after enabled probe", bridge.CheckStatus())
	}
}

func TestBridge_StatusFollowsLastLifecycleEvent(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventMissing)
	if bridge.CheckStatus() != StatusMissing || bridge.IsEnabled() {
		t.Fatalf("status = %q, want missing", bridge.CheckStatus())
	}

	adapter.Signal(EventEnabled)
	if !bridge.IsEnabled() {
		t.Error("IsEnabled() = false after enabled")
	}

	adapter.Signal(EventUnavailable)
	if bridge.IsEnabled() || bridge.CheckStatus() != StatusUnavailable {
		t.Errorf("status = %q, want unavailable", bridge.CheckStatus())
	}
}

func TestBridge_InitializeNotReady(t *testing.T) {
	for _, availability := range []EventType{EventMissing, EventUnavailable} {
		t.Run(string(availability), func(t *testing.T) {
			bridge, adapter := newTestBridge(t, availability)

			err := bridge.Initialize()
			if err == nil {
				t.Fatal("Initialize() should fail when not ready")
			}
			if !IsNotReadyError(err) || !errors.Is(err, ErrNotReady) {
				t.Errorf("expected not-ready error, got %v", err)
			}
			var nfcErr *NFCError
			if !errors.As(err, &nfcErr) || nfcErr.Message != NotReadyMessage {
				t.Errorf("message = %v, want %q", err, NotReadyMessage)
			}
			if n := adapter.CallCount("OpenSession"); n != 0 {
				t.Errorf("OpenSession called %d times", n)
			}
		})
	}
}

func TestBridge_InitializeWhileWaiting(t *testing.T) {
	adapter := NewMockAdapter()
	bridge := &Bridge{
		adapter:  adapter,
		emitter:  NewEventEmitter(),
		status:   NewStatusTracker(),
		registry: NewRegistry(nil),
		logger:   log.New(io.Discard, "", 0),
	}

	if err := bridge.Initialize(); !IsNotReadyError(err) {
		t.Errorf("Initialize() = %v, want not-ready", err)
	}
	if adapter.CallCount("OpenSession") != 0 {
		t.Error("OpenSession must not be called while waiting")
	}
}

func TestBridge_InitializeAndStop(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	if err := bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !adapter.IsOpen() {
		t.Error("session should be open")
	}

	bridge.StopScan()
	bridge.StopScan()
	if adapter.IsOpen() {
		t.Error("session should be closed")
	}
	if n := adapter.CallCount("CloseSession"); n != 2 {
		t.Errorf("CloseSession called %d times, want 2", n)
	}
}

func TestBridge_StopScanWhenNotReady(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventMissing)
	bridge.StopScan()
	if adapter.CallCount("CloseSession") != 1 {
		t.Error("StopScan should delegate regardless of status")
	}
}

func TestBridge_OpenErrorReachesListeners(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)
	adapter.OpenError = errors.New("Session invalidated by user")

	var got []RawError
	bridge.AddListener("a", func(DiscoveryRecord) {}, func(e RawError) { got = append(got, e) })

	if err := bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(got) != 1 || got[0].Origin != "mock" {
		t.Errorf("error listener got %+v", got)
	}
}

func TestBridge_AddListenerOverwrites(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	first, second := 0, 0
	bridge.AddListener("a", func(DiscoveryRecord) { first++ }, nil)
	bridge.AddListener("a", func(DiscoveryRecord) { second++ }, nil)

	adapter.Discover(ShapeMessage, textDiscovery("hello"))

	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d; want 0, 1", first, second)
	}
	if names := bridge.Listeners(); len(names) != 1 {
		t.Errorf("Listeners() = %v", names)
	}
}

func TestBridge_SingleForwardingSubscription(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	calls := 0
	for i := 0; i < 5; i++ {
		bridge.AddListener("a", func(DiscoveryRecord) { calls++ }, nil)
		bridge.AddListener("b", func(DiscoveryRecord) {}, nil)
	}

	em := bridge.Emitter()
	if n := em.ListenerCount(EventDiscovered); n != 1 {
		t.Errorf("discovered subscriptions = %d, want 1", n)
	}
	if n := em.ListenerCount(EventError); n != 1 {
		t.Errorf("error subscriptions = %d, want 1", n)
	}

	adapter.Discover(ShapeMessage, textDiscovery("hello"))
	if calls != 1 {
		t.Errorf("listener a called %d times, want 1", calls)
	}
}

func TestBridge_RemoveListener(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	var a, b []string
	bridge.AddListener("a", func(r DiscoveryRecord) { a = append(a, r.ScannedValue()) }, nil)
	bridge.AddListener("b", func(r DiscoveryRecord) { b = append(b, r.ScannedValue()) }, nil)

	if !bridge.RemoveListener("a") {
		t.Fatal("RemoveListener(a) = false")
	}
	if bridge.RemoveListener("a") {
		t.Error("second RemoveListener(a) = true")
	}

	adapter.Discover(ShapeMessage, textDiscovery("hello"))

	if len(a) != 0 {
		t.Errorf("removed listener received %v", a)
	}
	if len(b) != 1 || b[0] != "hello" {
		t.Errorf("remaining listener received %v", b)
	}
	if n := bridge.Emitter().ListenerCount(EventDiscovered); n != 1 {
		t.Errorf("forwarding subscription removed, count = %d", n)
	}
}

func TestBridge_RemoveAllListeners(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	fired := 0
	bridge.AddListener("a", func(DiscoveryRecord) { fired++ }, func(RawError) { fired++ })
	bridge.AddListener("b", func(DiscoveryRecord) { fired++ }, func(RawError) { fired++ })

	bridge.RemoveAllListeners()

	adapter.Discover(ShapeMessage, textDiscovery("hello"))
	adapter.Fail(RawError{Error: "read failed"})

	if fired != 0 {
		t.Errorf("%d callbacks fired after RemoveAllListeners", fired)
	}
	em := bridge.Emitter()
	if em.ListenerCount(EventDiscovered) != 0 || em.ListenerCount(EventError) != 0 {
		t.Error("forwarding subscriptions should be torn down")
	}
	if em.ListenerCount(EventEnabled) != 1 {
		t.Error("lifecycle subscription must survive RemoveAllListeners")
	}
	if len(bridge.Listeners()) != 0 {
		t.Errorf("Listeners() = %v", bridge.Listeners())
	}
}

func TestBridge_ErrorPassthrough(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	var got RawError
	bridge.AddListener("a", func(DiscoveryRecord) {}, func(e RawError) { got = e })

	want := RawError{Error: "Tag connection lost", Origin: OriginAndroid}
	adapter.Fail(want)

	if got != want {
		t.Errorf("error payload = %+v, want %+v", got, want)
	}
}

func TestBridge_NormalizesTagDiscovery(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)

	var got DiscoveryRecord
	bridge.AddListener("a", func(r DiscoveryRecord) { got = r }, nil)

	adapter.Discover(ShapeTechList, RawDiscovery{
		Origin: OriginAndroid,
		ID:     "04A1",
		Type:   NfcDataTypeTag,
		Data:   DiscoveryData{Tag: &RawTag{ID: "04A1", TechList: []string{TechNdef}}},
	})

	if got.TypeValue() != "Ndef" || got.ScannedValue() != "04A1" || deref(got.Encoding) != EncodingUTF8 {
		t.Errorf("normalized = type %q scanned %q encoding %q",
			got.TypeValue(), got.ScannedValue(), deref(got.Encoding))
	}
}

func TestBridge_AddListenerValidation(t *testing.T) {
	bridge, _ := newTestBridge(t, EventEnabled)

	if err := bridge.AddListener("", func(DiscoveryRecord) {}, nil); GetErrorCode(err) != ErrCodeInvalidListener {
		t.Errorf("empty name error = %v", err)
	}
	if err := bridge.AddListener("a", nil, nil); GetErrorCode(err) != ErrCodeInvalidListener {
		t.Errorf("nil callback error = %v", err)
	}
	if len(bridge.Listeners()) != 0 {
		t.Error("rejected registrations must not be stored")
	}
}

func TestBridge_ConcurrentRegistrationAndDispatch(t *testing.T) {
	bridge, adapter := newTestBridge(t, EventEnabled)
	bridge.AddListener("base", func(DiscoveryRecord) {}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				adapter.Discover(ShapeMessage, textDiscovery("x"))
			}
		}()
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			for j := 0; j < 50; j++ {
				bridge.AddListener(name, func(DiscoveryRecord) {}, nil)
				bridge.RemoveListener(name)
			}
		}(i)
	}
	wg.Wait()

	if n := bridge.Emitter().ListenerCount(EventDiscovered); n != 1 {
		t.Errorf("discovered subscriptions = %d, want 1", n)
	}
}
