// Package journal records the raw discovery and error events seen by a
// bridge so they can be inspected or replayed later.
//
// Journals are streams of CBOR-encoded entries. Entries keep the raw payload
// and the source shape, so replaying one through a bridge produces the same
// normalized record as the original scan.
//
//	w, _ := journal.Create("scans.njl", nil)
//	bridge.AddListener(journal.ListenerName, w.RecordDiscovery, w.RecordError)
//	...
//	r, _ := journal.Open("scans.njl")
//	for {
//	    entry, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	}
package journal

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// ListenerName is the bridge listener name a Writer registers under.
const ListenerName = "journal"

// ErrJournalClosed is returned when writing to a closed journal.
var ErrJournalClosed = errors.New("journal is closed")

// Entry is one journaled event.
type Entry struct {
	Timestamp time.Time         `cbor:"1,keyasint"`
	Event     nfc.EventType     `cbor:"2,keyasint"`
	Shape     nfc.SourceShape   `cbor:"3,keyasint"`
	Discovery *nfc.RawDiscovery `cbor:"4,keyasint,omitempty"`
	Error     *nfc.RawError     `cbor:"5,keyasint,omitempty"`
}

// Origin returns the origin of the journaled payload.
func (e Entry) Origin() string {
	switch {
	case e.Discovery != nil:
		return e.Discovery.Origin
	case e.Error != nil:
		return e.Error.Origin
	}
	return ""
}

// ToEvent converts the entry back into an adapter event. Entries without a
// payload convert to a lifecycle event of their type.
func (e Entry) ToEvent() nfc.Event {
	switch {
	case e.Event == nfc.EventDiscovered && e.Discovery != nil:
		return nfc.DiscoveredEvent(e.Shape, *e.Discovery)
	case e.Event == nfc.EventError && e.Error != nil:
		raw := *e.Error
		return nfc.Event{Type: nfc.EventError, Error: &raw}
	}
	return nfc.LifecycleEvent(e.Event)
}

// DiscoveryEntry creates the entry for a normalized record. The shape is
// derived from the record origin.
func DiscoveryEntry(at time.Time, record nfc.DiscoveryRecord) Entry {
	raw := record.FromDevice
	return Entry{
		Timestamp: at,
		Event:     nfc.EventDiscovered,
		Shape:     nfc.ShapeForOrigin(raw.Origin),
		Discovery: &raw,
	}
}

// ErrorEntry creates the entry for an error payload.
func ErrorEntry(at time.Time, payload nfc.RawError) Entry {
	return Entry{
		Timestamp: at,
		Event:     nfc.EventError,
		Shape:     nfc.ShapeForOrigin(payload.Origin),
		Error:     &payload,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR decoder mode: %v", err))
	}
}

// EncodeEntry encodes one entry.
func EncodeEntry(entry Entry) ([]byte, error) {
	return encMode.Marshal(entry)
}

// DecodeEntry decodes one entry.
func DecodeEntry(data []byte) (Entry, error) {
	var entry Entry
	if err := decMode.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
