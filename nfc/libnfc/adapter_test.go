package libnfc

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

type fakeTag struct {
	uid  string
	kind Kind
}

func (t fakeTag) UID() string { return t.uid }
func (t fakeTag) Kind() Kind  { return t.kind }

type fakeNDEFTag struct {
	fakeTag
	message []byte
	err     error
}

func (t fakeNDEFTag) ReadNDEF() ([]byte, error) { return t.message, t.err }

// fakeDevice returns scripted scan results and then repeats the last one.
type fakeDevice struct {
	mu     sync.Mutex
	scans  [][]Tag
	errs   []error
	calls  int
	closed bool
}

func (d *fakeDevice) Scan() ([]Tag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if len(d.scans) == 0 {
		return nil, nil
	}
	if i >= len(d.scans) {
		i = len(d.scans) - 1
	}
	return d.scans[i], nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) String() string { return "fake" }

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeDriver struct {
	mu      sync.Mutex
	devices []string
	listErr error
	openErr error
	device  *fakeDevice
}

func (d *fakeDriver) ListDevices() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices, d.listErr
}

func (d *fakeDriver) OpenDevice(string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.device, nil
}

func (d *fakeDriver) setDevices(devices ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = devices
}

func waitForStatus(t *testing.T, bridge *nfc.Bridge, want nfc.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bridge.CheckStatus() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status = %q, want %q", bridge.CheckStatus(), want)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestAdapter(driver *fakeDriver, cfg Config) (*Adapter, *nfc.Bridge) {
	cfg.PollInterval = time.Millisecond
	cfg.ProbeInterval = time.Millisecond
	adapter := NewAdapter(driver, cfg, quietLogger())
	bridge := nfc.NewBridge(adapter, nfc.WithLogger(quietLogger()))
	return adapter, bridge
}

func textMessage(text string) []byte {
	return nfc.EncodeRecords([]nfc.NDEFRecord{nfc.TextRecordOf(text, "en")})
}

func TestCheckAvailability(t *testing.T) {
	tests := []struct {
		name   string
		driver *fakeDriver
		device string
		want   nfc.Status
	}{
		{"list error", &fakeDriver{listErr: errors.New("libnfc missing")}, "", nfc.StatusUnavailable},
		{"no readers", &fakeDriver{}, "", nfc.StatusMissing},
		{"configured reader absent", &fakeDriver{devices: []string{"pn532_uart:/dev/ttyUSB0"}}, "acr122_usb", nfc.StatusMissing},
		{"reader present", &fakeDriver{devices: []string{"acr122_usb"}}, "", nfc.StatusReady},
		{"configured reader present", &fakeDriver{devices: []string{"acr122_usb"}}, "acr122_usb", nfc.StatusReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bridge := newTestAdapter(tt.driver, Config{Device: tt.device})
			if got := bridge.CheckStatus(); got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSession_DeliversNDEFAndInvalidates(t *testing.T) {
	dev := &fakeDevice{scans: [][]Tag{
		nil,
		{fakeNDEFTag{fakeTag: fakeTag{"04A1B2C3", KindUltralight}, message: textMessage("hello")}},
	}}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{})

	got := make(chan nfc.DiscoveryRecord, 4)
	activeDuringDiscovery := make(chan bool, 4)
	bridge.AddListener("test", func(r nfc.DiscoveryRecord) {
		activeDuringDiscovery <- adapter.Active()
		got <- r
	}, nil)

	if err := bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	select {
	case rec := <-got:
		if <-activeDuringDiscovery {
			t.Error("session should already be released when its last tag is delivered")
		}
		if rec.ScannedValue() != "hello" {
			t.Errorf("scanned = %q, want hello", rec.ScannedValue())
		}
		if rec.TypeValue() != nfc.NfcDataTypeNDEF {
			t.Errorf("type = %q, want NDEF", rec.TypeValue())
		}
		if rec.FromDevice.ID != "04A1B2C3" {
			t.Errorf("id = %q", rec.FromDevice.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no discovery delivered")
	}

	adapter.Wait()
	if adapter.Active() {
		t.Error("session should end after the first read")
	}
	if !dev.isClosed() {
		t.Error("device should be closed")
	}
}

func TestSession_KeepSessionDeduplicatesPresentTags(t *testing.T) {
	tag := fakeTag{"01020304", KindClassic}
	dev := &fakeDevice{scans: [][]Tag{
		{tag}, {tag}, {tag}, nil, {tag}, nil,
	}}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{KeepSession: true})

	var mu sync.Mutex
	var seen []nfc.DiscoveryRecord
	bridge.AddListener("test", func(r nfc.DiscoveryRecord) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	}, nil)

	bridge.Initialize()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dev.mu.Lock()
		calls := dev.calls
		dev.mu.Unlock()
		if calls > 6 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	bridge.StopScan()
	adapter.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("got %d discoveries, want 2", len(seen))
	}
	if seen[0].TypeValue() != "MifareClassic" || seen[0].ScannedValue() != "01020304" {
		t.Errorf("first = type %q scanned %q", seen[0].TypeValue(), seen[0].ScannedValue())
	}
}

func TestSession_ScanErrorsEndSession(t *testing.T) {
	scanErr := errors.New("RF transmission error")
	dev := &fakeDevice{errs: []error{scanErr, scanErr}}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{MaxScanErrors: 2})

	errs := make(chan nfc.RawError, 1)
	bridge.AddListener("test", func(nfc.DiscoveryRecord) {}, func(e nfc.RawError) { errs <- e })
	bridge.Initialize()

	select {
	case e := <-errs:
		if e.Origin != nfc.OriginLibnfc {
			t.Errorf("origin = %q", e.Origin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}
	adapter.Wait()
	if adapter.Active() {
		t.Error("session should end after repeated scan failures")
	}
}

func TestOpenSession_DeviceFailure(t *testing.T) {
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, openErr: errors.New("device busy")}, Config{})

	var got []nfc.RawError
	bridge.AddListener("test", func(nfc.DiscoveryRecord) {}, func(e nfc.RawError) { got = append(got, e) })

	if err := bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() should not return session errors, got %v", err)
	}
	adapter.Wait()
	if len(got) != 1 {
		t.Fatalf("got %d error events, want 1", len(got))
	}
	if adapter.Active() {
		t.Error("no session should be active")
	}
}

func TestOpenSession_Twice(t *testing.T) {
	dev := &fakeDevice{}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{})

	var got []nfc.RawError
	bridge.AddListener("test", func(nfc.DiscoveryRecord) {}, func(e nfc.RawError) { got = append(got, e) })

	bridge.Initialize()
	bridge.Initialize()
	bridge.StopScan()
	adapter.Wait()

	if len(got) != 1 {
		t.Errorf("got %d error events, want 1", len(got))
	}
}

func TestSession_RetryFromErrorListener(t *testing.T) {
	scanErr := errors.New("RF transmission error")
	tag := fakeTag{"0C0D", KindClassic}
	dev := &fakeDevice{
		errs:  []error{scanErr, scanErr, scanErr},
		scans: [][]Tag{nil, nil, nil, {tag}},
	}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{MaxScanErrors: 3})

	retried := make(chan error, 1)
	got := make(chan nfc.DiscoveryRecord, 1)
	var once sync.Once
	bridge.AddListener("retry", func(r nfc.DiscoveryRecord) { got <- r }, func(nfc.RawError) {
		once.Do(func() { retried <- bridge.Initialize() })
	})
	bridge.Initialize()

	select {
	case err := <-retried:
		if err != nil {
			t.Fatalf("Initialize() from error listener = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Initialize() from error listener did not return")
	}

	select {
	case rec := <-got:
		if rec.ScannedValue() != "0C0D" {
			t.Errorf("scanned = %q", rec.ScannedValue())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retried session delivered nothing")
	}
	adapter.Wait()
	if adapter.Active() {
		t.Error("session should end after the first read")
	}
}

func TestSession_RestartFromDiscoveryListener(t *testing.T) {
	dev := &fakeDevice{scans: [][]Tag{{fakeTag{"0E0F", KindUltralight}}, nil}}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{KeepSession: true})

	restarted := make(chan error, 1)
	var once sync.Once
	bridge.AddListener("restart", func(nfc.DiscoveryRecord) {
		once.Do(func() {
			bridge.StopScan()
			restarted <- bridge.Initialize()
		})
	}, nil)
	bridge.Initialize()

	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("Initialize() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopScan and Initialize from a discovery listener did not return")
	}
	if !adapter.Active() {
		t.Error("restarted session should be active")
	}
	adapter.Close()
	if adapter.Active() {
		t.Error("Close should end the session")
	}
}

func TestMonitor_FollowsReaders(t *testing.T) {
	driver := &fakeDriver{device: &fakeDevice{}}
	adapter, bridge := newTestAdapter(driver, Config{})
	defer adapter.Close()

	if got := bridge.CheckStatus(); got != nfc.StatusMissing {
		t.Fatalf("initial status = %q, want missing", got)
	}
	adapter.Monitor()
	adapter.Monitor()

	driver.setDevices("acr122_usb")
	waitForStatus(t, bridge, nfc.StatusReady)
	if err := bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() after reader appeared = %v", err)
	}
	bridge.StopScan()
	adapter.Wait()

	driver.setDevices()
	waitForStatus(t, bridge, nfc.StatusMissing)
	if err := bridge.Initialize(); !nfc.IsNotReadyError(err) {
		t.Errorf("Initialize() after reader removed = %v, want not ready", err)
	}
}

func TestSession_ScanErrorsReprobe(t *testing.T) {
	scanErr := errors.New("device disconnected")
	driver := &fakeDriver{devices: []string{"fake"}, device: &fakeDevice{errs: []error{scanErr, scanErr}}}
	adapter, bridge := newTestAdapter(driver, Config{MaxScanErrors: 2})

	statusOnError := make(chan nfc.Status, 1)
	bridge.AddListener("test", func(nfc.DiscoveryRecord) {}, func(nfc.RawError) {
		statusOnError <- bridge.CheckStatus()
	})

	driver.setDevices()
	bridge.Initialize()

	select {
	case got := <-statusOnError:
		if got != nfc.StatusMissing {
			t.Errorf("status on error = %q, want missing", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}
	adapter.Wait()
}

func TestOpenSession_DeviceFailureReprobes(t *testing.T) {
	driver := &fakeDriver{devices: []string{"fake"}, openErr: errors.New("no such device")}
	adapter, bridge := newTestAdapter(driver, Config{})

	driver.setDevices()
	bridge.Initialize()
	adapter.Wait()

	if got := bridge.CheckStatus(); got != nfc.StatusMissing {
		t.Errorf("status = %q, want missing", got)
	}
}

func TestCloseSession_Idempotent(t *testing.T) {
	adapter, _ := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: &fakeDevice{}}, Config{})
	adapter.CloseSession()
	adapter.CloseSession()
	adapter.Wait()
}

func TestCloseSession_FromListener(t *testing.T) {
	tag := fakeTag{"0A0B", KindDESFire}
	dev := &fakeDevice{scans: [][]Tag{{tag}}}
	adapter, bridge := newTestAdapter(&fakeDriver{devices: []string{"fake"}, device: dev}, Config{KeepSession: true})

	done := make(chan struct{})
	bridge.AddListener("stopper", func(nfc.DiscoveryRecord) {
		bridge.StopScan()
		close(done)
	}, nil)
	bridge.Initialize()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	adapter.Wait()
	if adapter.Active() {
		t.Error("session should be closed")
	}
}

func TestDiscovery(t *testing.T) {
	tests := []struct {
		name     string
		tag      Tag
		wantType string
		wantTech string
		wantErr  bool
	}{
		{"classic", fakeTag{"01", KindClassic}, nfc.NfcDataTypeTag, nfc.TechMifareClassic, false},
		{"desfire", fakeTag{"02", KindDESFire}, nfc.NfcDataTypeTag, nfc.TechIsoDep, false},
		{"iso14443-4", fakeTag{"03", KindISO14443_4}, nfc.NfcDataTypeTag, nfc.TechIsoDep, false},
		{"blank ultralight", fakeNDEFTag{fakeTag: fakeTag{"04", KindUltralight}}, nfc.NfcDataTypeTag, nfc.TechMifareUltralight, false},
		{"ultralight with ndef", fakeNDEFTag{fakeTag: fakeTag{"05", KindUltralight}, message: textMessage("x")}, nfc.NfcDataTypeNDEF, "", false},
		{"read failure", fakeNDEFTag{fakeTag: fakeTag{"06", KindUltralight}, err: nfc.NewReadError("ReadNDEF", errors.New("timeout"))}, "", "", true},
		{"corrupt ndef", fakeNDEFTag{fakeTag: fakeTag{"07", KindUltralight}, message: []byte{0xD1, 0x01}}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Discovery(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Discovery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if raw.Type != tt.wantType || raw.Origin != nfc.OriginLibnfc || raw.ID != tt.tag.UID() {
				t.Errorf("raw = %+v", raw)
			}
			if tt.wantTech != "" {
				if raw.Data.Tag == nil || raw.Data.Tag.TechList[0] != tt.wantTech {
					t.Errorf("tech list = %+v", raw.Data.Tag)
				}
			}
		})
	}
}

func TestKindTechList(t *testing.T) {
	if got := KindUnknown.TechList(); len(got) != 1 || got[0] != nfc.TechNfcA {
		t.Errorf("KindUnknown.TechList() = %v", got)
	}
	if KindUltralight.String() != "MIFARE Ultralight" {
		t.Errorf("String() = %q", KindUltralight.String())
	}
}
