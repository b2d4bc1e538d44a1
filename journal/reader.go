package journal

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// Filter selects entries. Zero fields match every entry.
type Filter struct {
	Event     nfc.EventType
	Origin    string
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f Filter) matches(entry Entry) bool {
	if f.Event != "" && entry.Event != f.Event {
		return false
	}
	if f.Origin != "" && entry.Origin() != f.Origin {
		return false
	}
	if f.TimeStart != nil && entry.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !entry.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader iterates over the entries of a journal.
type Reader struct {
	r       io.Reader
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads every entry from r.
func NewReader(r io.Reader) *Reader {
	return NewFilteredReader(r, Filter{})
}

// NewFilteredReader reads the entries from r that match filter.
func NewFilteredReader(r io.Reader, filter Filter) *Reader {
	return &Reader{r: r, decoder: newDecoder(r), filter: filter}
}

// Open opens a journal file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

// Next returns the next matching entry, or io.EOF at the end of the journal.
// A journal cut off in the middle of an entry reports io.ErrUnexpectedEOF.
func (r *Reader) Next() (Entry, error) {
	for {
		var entry Entry
		if err := r.decoder.Decode(&entry); err != nil {
			return Entry{}, err
		}
		if r.filter.matches(entry) {
			return entry, nil
		}
	}
}

// Close closes the underlying reader when it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadAll returns every matching entry of the journal at path.
func ReadAll(path string, filter Filter) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := NewFilteredReader(f, filter)
	var entries []Entry
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
}
