// Package libnfc is a session adapter for USB and serial readers supported by
// libnfc. Tags are polled with freefare first and then with a plain
// ISO14443A passive target listing.
package libnfc

import (
	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// Kind identifies the tag families the adapter can tell apart.
type Kind int

const (
	KindUnknown Kind = iota
	KindClassic
	KindUltralight
	KindDESFire
	KindISO14443_4
)

func (k Kind) String() string {
	switch k {
	case KindClassic:
		return "MIFARE Classic"
	case KindUltralight:
		return "MIFARE Ultralight"
	case KindDESFire:
		return "MIFARE DESFire"
	case KindISO14443_4:
		return "ISO14443-4"
	default:
		return "Unknown"
	}
}

// TechList returns the technology names reported for a tag of this kind,
// most specific first.
func (k Kind) TechList() []string {
	switch k {
	case KindClassic:
		return []string{nfc.TechMifareClassic, nfc.TechNfcA}
	case KindUltralight:
		return []string{nfc.TechMifareUltralight, nfc.TechNfcA}
	case KindDESFire, KindISO14443_4:
		return []string{nfc.TechIsoDep, nfc.TechNfcA}
	default:
		return []string{nfc.TechNfcA}
	}
}

// Tag is a tag found by a scan.
type Tag interface {
	// UID is the uppercase hex serial number.
	UID() string
	Kind() Kind
}

// NDEFTag is implemented by tags whose NDEF message can be read without
// authentication.
type NDEFTag interface {
	Tag
	// ReadNDEF returns the NDEF message, or nil when the tag holds none.
	ReadNDEF() ([]byte, error)
}

// Device is an opened reader.
type Device interface {
	Scan() ([]Tag, error)
	Close() error
	String() string
}

// Driver finds and opens readers.
type Driver interface {
	ListDevices() ([]string, error)
	OpenDevice(connection string) (Device, error)
}
