package libnfc

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clausecker/freefare"
	gonfc "github.com/clausecker/nfc/v2"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

const (
	deviceEnumRetries   = 3
	ultralightUserStart = 4
	ultralightPages     = 16
	ultralightCPages    = 44
)

// hardwareDriver talks to readers through libnfc.
type hardwareDriver struct {
	logger *log.Logger
}

// NewHardwareDriver returns the Driver backed by libnfc and freefare.
func NewHardwareDriver(logger *log.Logger) Driver {
	return &hardwareDriver{logger: logger}
}

func (d *hardwareDriver) ListDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < deviceEnumRetries; i++ {
		devices, err = gonfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", deviceEnumRetries, err)
}

func (d *hardwareDriver) OpenDevice(connection string) (Device, error) {
	dev, err := gonfc.Open(connection)
	if err != nil {
		return nil, err
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("initiator init: %w", err)
	}
	return &hardwareDevice{device: dev, logger: d.logger}, nil
}

type hardwareDevice struct {
	device gonfc.Device
	logger *log.Logger
}

func (d *hardwareDevice) Close() error {
	return d.device.Close()
}

func (d *hardwareDevice) String() string {
	return d.device.String()
}

// Scan lists the tags in the field. Freefare tags come first; ISO14443-4
// targets that freefare did not report are added after them.
func (d *hardwareDevice) Scan() ([]Tag, error) {
	var found []Tag
	seen := make(map[string]bool)

	ffTags, ffErr := freefare.GetTags(d.device)
	if ffErr != nil {
		d.logger.Printf("freefare.GetTags: %v", ffErr)
	}
	for _, ffTag := range ffTags {
		uid := strings.ToUpper(ffTag.UID())
		if seen[uid] {
			continue
		}
		seen[uid] = true

		switch t := ffTag.(type) {
		case freefare.ClassicTag:
			found = append(found, newClassicTag(t, uid))
		case freefare.DESFireTag:
			found = append(found, simpleTag{uid: uid, kind: KindDESFire})
		case freefare.UltralightTag:
			found = append(found, &ultralightTag{tag: t, uid: uid})
		default:
			found = append(found, simpleTag{uid: uid, kind: KindUnknown})
		}
	}

	modulation := gonfc.Modulation{Type: gonfc.ISO14443a, BaudRate: gonfc.Nbr106}
	targets, listErr := d.device.InitiatorListPassiveTargets(modulation)
	if listErr != nil {
		if ffErr != nil && len(found) == 0 {
			return nil, fmt.Errorf("freefare (%v) and passive target listing (%w) failed", ffErr, listErr)
		}
		d.logger.Printf("listing passive targets: %v", listErr)
		return found, nil
	}

	for _, target := range targets {
		isoA, ok := target.(*gonfc.ISO14443aTarget)
		if !ok || isoA.UIDLen == 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		uid := strings.ToUpper(hex.EncodeToString(isoA.UID[:isoA.UIDLen]))
		if seen[uid] {
			continue
		}
		if isoA.Sak&0x20 != 0 {
			found = append(found, simpleTag{uid: uid, kind: KindISO14443_4})
			seen[uid] = true
		}
	}
	return found, nil
}

type simpleTag struct {
	uid  string
	kind Kind
}

func (t simpleTag) UID() string { return t.uid }
func (t simpleTag) Kind() Kind  { return t.kind }

// ultralightTag reads the NDEF TLV from the user pages of a Type 2 tag.
type ultralightTag struct {
	tag freefare.UltralightTag
	uid string
}

func (t *ultralightTag) UID() string { return t.uid }
func (t *ultralightTag) Kind() Kind  { return KindUltralight }

func (t *ultralightTag) ReadNDEF() ([]byte, error) {
	if err := t.tag.Connect(); err != nil {
		return nil, nfc.NewReadError("ReadNDEF", fmt.Errorf("connect: %w", err))
	}
	defer t.tag.Disconnect()

	last := ultralightPages
	if t.tag.Type() == freefare.UltralightC {
		last = ultralightCPages
	}

	var mem []byte
	for page := ultralightUserStart; page < last; page++ {
		data, err := t.tag.ReadPage(byte(page))
		if err != nil {
			return nil, nfc.NewReadError("ReadNDEF", fmt.Errorf("page %d: %w", page, err))
		}
		mem = append(mem, data[:]...)

		if msg, ok, err := nfc.TLVFindNDEF(mem); err == nil && ok {
			return msg, nil
		}
		if len(mem) > 0 && mem[0] == nfc.TLVTerminator {
			return nil, nil
		}
	}

	msg, ok, err := nfc.TLVFindNDEF(mem)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return msg, nil
}
