package nfc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceShape describes how an adapter lays out tag scans in its raw payloads.
type SourceShape int

const (
	// ShapeMessage payloads always carry a list of NDEF messages in data.
	ShapeMessage SourceShape = iota
	// ShapeTechList payloads carry a single tag description with a
	// technology list when type is TAG, and NDEF messages otherwise.
	ShapeTechList
)

func (s SourceShape) String() string {
	switch s {
	case ShapeMessage:
		return "message"
	case ShapeTechList:
		return "techlist"
	default:
		return fmt.Sprintf("SourceShape(%d)", int(s))
	}
}

// ShapeForOrigin returns the shape used by a platform origin.
func ShapeForOrigin(origin string) SourceShape {
	if origin == OriginAndroid || origin == OriginLibnfc {
		return ShapeTechList
	}
	return ShapeMessage
}

// RawRecord is one formatted NDEF record as emitted by an adapter.
type RawRecord struct {
	Locale   string `json:"locale,omitempty" cbor:"1,keyasint,omitempty"`
	Encoding string `json:"encoding" cbor:"2,keyasint"`
	Type     string `json:"type" cbor:"3,keyasint"`
	Data     string `json:"data" cbor:"4,keyasint"`
}

// RawTag describes a tag that was scanned without an NDEF message.
type RawTag struct {
	ID       string   `json:"id,omitempty" cbor:"1,keyasint,omitempty"`
	TechList []string `json:"techList" cbor:"2,keyasint"`
	TagType  string   `json:"tagType,omitempty" cbor:"3,keyasint,omitempty"`
}

// DiscoveryData is the data field of a raw discovery. It holds either
// NDEF messages or a single tag. When Wrapped is set the tag is encoded as
// [[tag]] so it has the same nesting as an NDEF message list.
type DiscoveryData struct {
	Messages [][]RawRecord `cbor:"1,keyasint,omitempty"`
	Tag      *RawTag       `cbor:"2,keyasint,omitempty"`
	Wrapped  bool          `cbor:"3,keyasint,omitempty"`
}

// FirstRecord returns the first record of the first message.
func (d DiscoveryData) FirstRecord() (RawRecord, bool) {
	if len(d.Messages) == 0 || len(d.Messages[0]) == 0 {
		return RawRecord{}, false
	}
	return d.Messages[0][0], true
}

func (d DiscoveryData) MarshalJSON() ([]byte, error) {
	if d.Tag != nil {
		if d.Wrapped {
			return json.Marshal([][]*RawTag{{d.Tag}})
		}
		return json.Marshal(d.Tag)
	}
	if d.Messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Messages)
}

func (d *DiscoveryData) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = DiscoveryData{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		var tag RawTag
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return err
		}
		*d = DiscoveryData{Tag: &tag}
		return nil
	case '[':
		var messages [][]RawRecord
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return err
		}
		*d = DiscoveryData{Messages: messages}
		return nil
	default:
		return fmt.Errorf("discovery data must be an object or an array, got %q", trimmed[0])
	}
}

// RawDiscovery is the payload of a discovered event before normalization.
type RawDiscovery struct {
	Origin string        `json:"origin,omitempty" cbor:"1,keyasint,omitempty"`
	ID     string        `json:"id,omitempty" cbor:"2,keyasint,omitempty"`
	Type   string        `json:"type,omitempty" cbor:"3,keyasint,omitempty"`
	Data   DiscoveryData `json:"data" cbor:"4,keyasint"`
}

// RawError is the payload of an error event. It is passed to error
// listeners unchanged.
type RawError struct {
	Error  string `json:"error" cbor:"1,keyasint"`
	Origin string `json:"origin,omitempty" cbor:"2,keyasint,omitempty"`
}

// Event is one notification from a SessionAdapter.
type Event struct {
	Type      EventType
	Shape     SourceShape
	Discovery *RawDiscovery
	Error     *RawError
}

// LifecycleEvent creates an event that only carries its type.
func LifecycleEvent(t EventType) Event {
	return Event{Type: t}
}

// DiscoveredEvent creates a discovered event.
func DiscoveredEvent(shape SourceShape, raw RawDiscovery) Event {
	return Event{Type: EventDiscovered, Shape: shape, Discovery: &raw}
}

// ErrorEvent creates an error event from a Go error.
func ErrorEvent(origin string, err error) Event {
	raw := FormatError(err)
	raw.Origin = origin
	return Event{Type: EventError, Error: &raw}
}

// FormatError converts an error into the raw error payload.
func FormatError(err error) RawError {
	if err == nil {
		return RawError{}
	}
	return RawError{Error: err.Error()}
}

// DiscoveryRecord is the normalized shape delivered to discovery listeners.
// Nil fields encode as JSON null.
type DiscoveryRecord struct {
	FromDevice RawDiscovery `json:"from_device" cbor:"1,keyasint"`
	ID         *string      `json:"id" cbor:"2,keyasint"`
	Type       *string      `json:"type" cbor:"3,keyasint"`
	Origin     *string      `json:"origin" cbor:"4,keyasint"`
	Encoding   *string      `json:"encoding" cbor:"5,keyasint"`
	Scanned    *string      `json:"scanned" cbor:"6,keyasint"`
}

// ScannedValue returns the scanned content, or "" when it is null.
func (r DiscoveryRecord) ScannedValue() string {
	return deref(r.Scanned)
}

// TypeValue returns the normalized type, or "" when it is null.
func (r DiscoveryRecord) TypeValue() string {
	return deref(r.Type)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional returns nil for the empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
