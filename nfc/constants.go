package nfc

// EventType names one of the channels a SessionAdapter emits on.
// The values match the event names used by the native mobile modules so
// phones can forward their events untouched.
type EventType string

const (
	EventDiscovered  EventType = "__NFC_DISCOVERED"
	EventError       EventType = "__NFC_ERROR"
	EventMissing     EventType = "__NFC_MISSING"
	EventUnavailable EventType = "__NFC_UNAVAILABLE"
	EventEnabled     EventType = "__NFC_ENABLED"
)

// IsLifecycle reports whether the event only carries availability information.
func (e EventType) IsLifecycle() bool {
	switch e {
	case EventEnabled, EventMissing, EventUnavailable:
		return true
	}
	return false
}

// NfcDataType tags what kind of discovery a raw payload describes.
const (
	NfcDataTypeNDEF = "NDEF"
	NfcDataTypeTag  = "TAG"
)

// NdefRecordType tags the kind of a formatted NDEF record.
const (
	NdefRecordTypeText = "TEXT"
	NdefRecordTypeURI  = "URI"
	NdefRecordTypeMIME = "MIME"
)

// Origins reported in raw payloads.
const (
	OriginIOS     = "ios"
	OriginAndroid = "android"
	OriginLibnfc  = "libnfc"
	OriginReplay  = "replay"
)

// TechPrefix is stripped from the first tech-list entry of tag scans.
// Technology names follow the Android tech class naming on every adapter.
const TechPrefix = "android.nfc.tech."

// Technology names used in tech lists.
const (
	TechIsoDep           = TechPrefix + "IsoDep"
	TechNfcA             = TechPrefix + "NfcA"
	TechNfcB             = TechPrefix + "NfcB"
	TechNfcF             = TechPrefix + "NfcF"
	TechNfcV             = TechPrefix + "NfcV"
	TechNdef             = TechPrefix + "Ndef"
	TechNdefFormatable   = TechPrefix + "NdefFormatable"
	TechMifareClassic    = TechPrefix + "MifareClassic"
	TechMifareUltralight = TechPrefix + "MifareUltralight"
)

// Encodings reported for text payloads.
const (
	EncodingUTF8  = "UTF-8"
	EncodingUTF16 = "UTF-16"
)

// NotReadyMessage is the fixed message of the not-ready error.
const NotReadyMessage = "NFC Controller object is not ready"
