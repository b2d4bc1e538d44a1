// Package replay provides a session adapter that plays back a journal as if
// a reader produced it. It is used for demos and for testing applications
// without hardware.
package replay

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nedpals/davi-nfc-bridge/journal"
	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// DefaultInterval is the delay between replayed events.
const DefaultInterval = 500 * time.Millisecond

// ErrSessionActive is reported when OpenSession is called twice.
var ErrSessionActive = errors.New("a replay session is already active")

// Config configures the replay adapter.
type Config struct {
	// Path is the journal to replay.
	Path string
	// Interval is the delay before each replayed event. Zero means
	// DefaultInterval.
	Interval time.Duration
	// Loop restarts the journal at its end instead of ending the session.
	Loop bool
	// Filter selects which entries are replayed.
	Filter journal.Filter
}

// Adapter implements nfc.SessionAdapter by reading a journal.
type Adapter struct {
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	sink     nfc.EventSink
	stopChan chan struct{}
	lastDone chan struct{}
}

var _ nfc.SessionAdapter = (*Adapter)(nil)

// NewAdapter creates a replay adapter. A nil logger logs to stderr with the
// "[replay] " prefix.
func NewAdapter(cfg Config, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[replay] ", log.LstdFlags)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Adapter{cfg: cfg, logger: logger}
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
	a.logger.Printf("replay error: %v", err)
	a.emit(nfc.ErrorEvent(nfc.OriginReplay, err))
}

// CheckAvailability reports missing when the journal does not exist,
// unavailable when it cannot be opened, and enabled otherwise.
func (a *Adapter) CheckAvailability() {
	r, err := journal.Open(a.cfg.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Printf("journal %s not found", a.cfg.Path)
		a.emit(nfc.LifecycleEvent(nfc.EventMissing))
	case err != nil:
		a.logger.Printf("opening journal: %v", err)
		a.emit(nfc.LifecycleEvent(nfc.EventUnavailable))
	default:
		r.Close()
		a.emit(nfc.LifecycleEvent(nfc.EventEnabled))
	}
}

// OpenSession starts replaying the journal in the background once the
// previous replay has exited. It is safe to call from a listener.
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

	if previous != nil {
		<-previous
	}
	select {
	case <-stop:
		return
	default:
	}

	r, err := a.open()
	if err != nil {
		a.release(stop)
		a.CheckAvailability()
		a.fail(nfc.NewDeviceUnavailableError("OpenSession", err))
		return
	}

	a.logger.Printf("replaying %s", a.cfg.Path)
	a.play(r, stop)
}

func (a *Adapter) open() (*journal.Reader, error) {
	f, err := os.Open(a.cfg.Path)
	if err != nil {
		return nil, err
	}
	return journal.NewFilteredReader(f, a.cfg.Filter), nil
}

// CloseSession stops the replay without waiting for it.
func (a *Adapter) CloseSession() {
	a.mu.Lock()
	stop := a.stopChan
	a.stopChan = nil
	a.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	a.logger.Println("replay stopped")
}

// Wait blocks until the last replay goroutine has exited.
func (a *Adapter) Wait() {
	a.mu.Lock()
	done := a.lastDone
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Active reports whether a replay session is open.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopChan != nil
}

func (a *Adapter) release(stop chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopChan == stop {
		a.stopChan = nil
	}
}

func (a *Adapter) play(r *journal.Reader, stop chan struct{}) {
	defer func() { r.Close() }()

	timer := time.NewTimer(a.cfg.Interval)
	defer timer.Stop()

	replayed := 0
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			// an empty pass would loop forever
			if !a.cfg.Loop || replayed == 0 {
				a.logger.Printf("end of journal after %d events", replayed)
				a.release(stop)
				return
			}
			next, err := a.open()
			if err != nil {
				a.release(stop)
				a.fail(nfc.NewReadError("Replay", err))
				return
			}
			r.Close()
			r = next
			replayed = 0
			continue
		}
		if err != nil {
			a.release(stop)
			a.fail(nfc.NewReadError("Replay", err))
			return
		}
		// lifecycle entries would override the adapter's own availability
		if entry.Event.IsLifecycle() {
			continue
		}

		// a listener may have stopped the session during the last emit
		select {
		case <-stop:
			return
		default:
		}
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		timer.Reset(a.cfg.Interval)

		a.emit(entry.ToEvent())
		replayed++
	}
}
