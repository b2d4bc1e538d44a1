package journal

import (
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// Writer appends entries to a journal. It is safe for concurrent use.
type Writer struct {
	w       io.Writer
	encoder *cbor.Encoder
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	written int
}

// NewWriter creates a Writer on w. Close closes w when it is an io.Closer.
// A nil logger logs to stderr with the "[journal] " prefix.
func NewWriter(w io.Writer, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(os.Stderr, "[journal] ", log.LstdFlags)
	}
	return &Writer{
		w:       w,
		encoder: newEncoder(w),
		logger:  logger,
		now:     time.Now,
	}
}

// Create opens path for appending, creating it with permissions 0644 when
// it does not exist.
func Create(path string, logger *log.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f, logger), nil
}

// Write appends one entry.
func (w *Writer) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrJournalClosed
	}
	if err := w.encoder.Encode(entry); err != nil {
		return err
	}
	w.written++
	return nil
}

// RecordDiscovery journals a normalized record. It has the signature of a
// bridge discovery callback; failures are logged.
func (w *Writer) RecordDiscovery(record nfc.DiscoveryRecord) {
	if err := w.Write(DiscoveryEntry(w.now(), record)); err != nil {
		w.logger.Printf("failed to journal discovery: %v", err)
	}
}

// RecordError journals an error payload. It has the signature of a bridge
// error callback; failures are logged.
func (w *Writer) RecordError(payload nfc.RawError) {
	if err := w.Write(ErrorEntry(w.now(), payload)); err != nil {
		w.logger.Printf("failed to journal error: %v", err)
	}
}

// Written returns the number of entries written.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close closes the journal. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
