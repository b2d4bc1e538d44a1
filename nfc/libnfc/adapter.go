package libnfc

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultMaxScanErrors = 3
	DefaultProbeInterval = 2 * time.Second
)

// Config configures the libnfc adapter.
type Config struct {
	// Device is the libnfc connection string. Empty selects the first reader.
	Device string
	// PollInterval is the delay between scans. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// KeepSession keeps the session open after the first delivered tag.
	KeepSession bool
	// MaxScanErrors is how many consecutive scan failures end the session.
	// Zero means DefaultMaxScanErrors.
	MaxScanErrors int
	// ProbeInterval is how often Monitor lists readers while no session is
	// open. Zero means DefaultProbeInterval.
	ProbeInterval time.Duration
}

// Adapter implements nfc.SessionAdapter on top of a Driver.
type Adapter struct {
	driver Driver
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	sink     nfc.EventSink
	stopChan chan struct{}
	lastDone chan struct{}
	// last lifecycle event emitted by a probe
	availability nfc.EventType
	monitorQuit  chan struct{}
	monitorDone  chan struct{}
}

var _ nfc.SessionAdapter = (*Adapter)(nil)

// ErrSessionActive is reported when OpenSession is called twice.
var ErrSessionActive = errors.New("a reader session is already active")

// NewAdapter creates an adapter. A nil logger logs to stderr with the
// "[libnfc] " prefix.
func NewAdapter(driver Driver, cfg Config, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[libnfc] ", log.LstdFlags)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxScanErrors <= 0 {
		cfg.MaxScanErrors = DefaultMaxScanErrors
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	return &Adapter{driver: driver, cfg: cfg, logger: logger}
}

// NewDefaultAdapter creates an adapter for real hardware.
func NewDefaultAdapter(cfg Config, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[libnfc] ", log.LstdFlags)
	}
	return NewAdapter(NewHardwareDriver(logger), cfg, logger)
}

// Bind implements nfc.SessionAdapter.
func (a *Adapter) Bind(sink nfc.EventSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

func (a *Adapter) emit(event nfc.Event) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink != nil {
		sink.Emit(event)
	}
}

func (a *Adapter) fail(err error) {
	a.logger.Printf("session error: %v", err)
	a.emit(nfc.ErrorEvent(nfc.OriginLibnfc, err))
}

// CheckAvailability reports unavailable when libnfc cannot enumerate
// readers, missing when it finds none or not the configured one, and
// enabled otherwise.
func (a *Adapter) CheckAvailability() {
	a.probe(true)
}

// probe lists the readers and emits the matching lifecycle event. Unless
// force is set, the event is only emitted when it differs from the last one.
func (a *Adapter) probe(force bool) {
	devices, err := a.driver.ListDevices()

	var event nfc.EventType
	switch {
	case err != nil:
		event = nfc.EventUnavailable
	case len(devices) == 0 || (a.cfg.Device != "" && !contains(devices, a.cfg.Device)):
		event = nfc.EventMissing
	default:
		event = nfc.EventEnabled
	}

	a.mu.Lock()
	changed := event != a.availability
	a.availability = event
	a.mu.Unlock()
	if !force && !changed {
		return
	}

	switch event {
	case nfc.EventUnavailable:
		a.logger.Printf("listing devices: %v", err)
	case nfc.EventMissing:
		a.logger.Printf("no reader found (configured %q, found %v)", a.cfg.Device, devices)
	default:
		a.logger.Printf("readers available: %v", devices)
	}
	a.emit(nfc.LifecycleEvent(event))
}

// Monitor re-lists the readers every ProbeInterval while no session is
// open, so the status follows readers being plugged in or removed. It runs
// until Close and does nothing if already running.
func (a *Adapter) Monitor() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.monitorQuit != nil {
		return
	}
	a.monitorQuit = make(chan struct{})
	a.monitorDone = make(chan struct{})
	go a.monitor(a.monitorQuit, a.monitorDone)
}

func (a *Adapter) monitor(quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}
		// an open session reports reader loss through its scan errors
		if a.Active() {
			continue
		}
		a.probe(false)
	}
}

// Close stops the monitor and any session, then waits for the reader to be
// released.
func (a *Adapter) Close() {
	a.mu.Lock()
	quit, done := a.monitorQuit, a.monitorDone
	a.monitorQuit, a.monitorDone = nil, nil
	a.mu.Unlock()

	if quit != nil {
		close(quit)
		<-done
	}
	a.CloseSession()
	a.Wait()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// OpenSession starts a session in the background: it waits for the previous
// poller to release the reader, opens the device and polls it. Failures are
// emitted as error events. It is safe to call from a listener.
func (a *Adapter) OpenSession() {
	a.mu.Lock()
	if a.stopChan != nil {
		a.mu.Unlock()
		a.fail(nfc.NewSessionError("OpenSession", ErrSessionActive))
		return
	}
	previous := a.lastDone
	stop := make(chan struct{})
	done := make(chan struct{})
	a.stopChan, a.lastDone = stop, done
	a.mu.Unlock()

	go a.run(previous, stop, done)
}

func (a *Adapter) run(previous, stop, done chan struct{}) {
	defer close(done)

	// the previous poller may still hold the reader
	if previous != nil {
		<-previous
	}
	select {
	case <-stop:
		return
	default:
	}

	dev, err := a.driver.OpenDevice(a.cfg.Device)
	if err != nil {
		a.release(stop)
		a.probe(false)
		a.fail(nfc.NewDeviceUnavailableError("OpenSession", err))
		return
	}

	a.logger.Printf("session opened on %s", dev)
	a.poll(dev, stop)
}

// CloseSession stops polling. It does not wait for the poller, so it is
// safe to call from a listener. It is a no-op without an open
// session.
func (a *Adapter) CloseSession() {
	a.mu.Lock()
	stop := a.stopChan
	a.stopChan = nil
	a.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	a.logger.Println("session closed")
}

// Wait blocks until the last poller has released the reader.
func (a *Adapter) Wait() {
	a.mu.Lock()
	done := a.lastDone
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Active reports whether a session is open.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopChan != nil
}

// release clears the session fields if they still belong to stop. It is
// used when the poller ends the session on its own.
func (a *Adapter) release(stop chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopChan == stop {
		a.stopChan = nil
	}
}

func (a *Adapter) poll(dev Device, stop chan struct{}) {
	defer dev.Close()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	present := make(map[string]bool)
	failures := 0

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		tags, err := dev.Scan()
		if err != nil {
			failures++
			a.logger.Printf("scan failed (%d/%d): %v", failures, a.cfg.MaxScanErrors, err)
			if failures >= a.cfg.MaxScanErrors {
				a.release(stop)
				a.probe(false)
				a.fail(nfc.NewSessionError("Scan", err))
				return
			}
			continue
		}
		failures = 0

		current := make(map[string]bool, len(tags))
		for _, tag := range tags {
			current[tag.UID()] = true
		}
		for _, tag := range tags {
			if present[tag.UID()] {
				continue
			}
			raw, ok := a.read(tag)
			if !ok {
				continue
			}
			if !a.cfg.KeepSession {
				// Active is false by the time listeners see the last tag
				a.release(stop)
				a.logger.Println("session invalidated after first read")
				a.emit(nfc.DiscoveredEvent(nfc.ShapeTechList, raw))
				return
			}
			a.emit(nfc.DiscoveredEvent(nfc.ShapeTechList, raw))
		}
		present = current
	}
}

// read builds the discovery for one tag. Read failures are emitted as error
// events.
func (a *Adapter) read(tag Tag) (nfc.RawDiscovery, bool) {
	raw, err := Discovery(tag)
	if err != nil {
		a.fail(err)
		return nfc.RawDiscovery{}, false
	}
	a.logger.Printf("tag %s (%s) discovered", tag.UID(), tag.Kind())
	return raw, true
}

// Discovery builds the raw payload for a scanned tag. Tags with a readable
// NDEF message produce an NDEF payload; everything else produces a TAG
// payload carrying the technology list.
func Discovery(tag Tag) (nfc.RawDiscovery, error) {
	if nt, ok := tag.(NDEFTag); ok {
		msg, err := nt.ReadNDEF()
		if err != nil {
			return nfc.RawDiscovery{}, err
		}
		if len(msg) > 0 {
			raw, err := nfc.MessageDiscovery(nfc.OriginLibnfc, tag.UID(), msg)
			if err != nil {
				return nfc.RawDiscovery{}, err
			}
			raw.Type = nfc.NfcDataTypeNDEF
			return raw, nil
		}
	}

	techs := tag.Kind().TechList()
	if _, ok := tag.(NDEFTag); ok {
		techs = append(techs, nfc.TechNdefFormatable)
	}
	return nfc.RawDiscovery{
		Origin: nfc.OriginLibnfc,
		ID:     tag.UID(),
		Type:   nfc.NfcDataTypeTag,
		Data: nfc.DiscoveryData{Tag: &nfc.RawTag{
			ID:       tag.UID(),
			TechList: techs,
			TagType:  tag.Kind().String(),
		}},
	}, nil
}
