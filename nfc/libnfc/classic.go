package libnfc

import (
	"fmt"

	"github.com/clausecker/freefare"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// Keys tried when authenticating a MIFARE Classic sector for reading.
var classicReadKeys = [][6]byte{
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}, // NFC Forum public key
	{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, // Factory default
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, // MAD key
}

// classicCard is the part of freefare.ClassicTag the reader uses.
type classicCard interface {
	Connect() error
	Disconnect() error
	Authenticate(block byte, key [6]byte, keyType int) error
	ReadBlock(block byte) ([16]byte, error)
}

// classicSector returns the first block and block count of a sector. 4K
// cards have 32 sectors of 4 blocks followed by 8 sectors of 16.
func classicSector(sector int) (first, count int) {
	if sector < 32 {
		return sector * 4, 4
	}
	return 128 + (sector-32)*16, 16
}

// classicTag reads the NDEF TLV from the data blocks of a MIFARE Classic
// card, skipping the MAD sectors and sector trailers.
type classicTag struct {
	card classicCard
	uid  string
	is4K bool
}

func newClassicTag(tag freefare.ClassicTag, uid string) *classicTag {
	return &classicTag{card: tag, uid: uid, is4K: tag.Type() == freefare.Classic4k}
}

func (t *classicTag) UID() string { return t.uid }
func (t *classicTag) Kind() Kind  { return KindClassic }

// authenticate tries every read key with key A. A failed attempt leaves the
// card halted, so it is reconnected before the next key.
func (t *classicTag) authenticate(trailer byte) error {
	var lastErr error
	for _, key := range classicReadKeys {
		err := t.card.Authenticate(trailer, key, int(freefare.KeyA))
		if err == nil {
			return nil
		}
		lastErr = err
		t.card.Disconnect()
		if err := t.card.Connect(); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}
	return lastErr
}

func (t *classicTag) ReadNDEF() ([]byte, error) {
	if err := t.card.Connect(); err != nil {
		return nil, nfc.NewReadError("ReadNDEF", fmt.Errorf("connect: %w", err))
	}
	defer t.card.Disconnect()

	sectors := 16
	if t.is4K {
		sectors = 40
	}

	var mem []byte
	for sector := 1; sector < sectors; sector++ {
		if sector == 16 {
			continue // second MAD sector on 4K cards
		}
		first, count := classicSector(sector)
		trailer := first + count - 1

		if err := t.authenticate(byte(trailer)); err != nil {
			if len(mem) == 0 {
				return nil, nfc.NewReadError("ReadNDEF", fmt.Errorf("sector %d: %w", sector, err))
			}
			break
		}

		for block := first; block < trailer; block++ {
			data, err := t.card.ReadBlock(byte(block))
			if err != nil {
				return nil, nfc.NewReadError("ReadNDEF", fmt.Errorf("block %d: %w", block, err))
			}
			mem = append(mem, data[:]...)
		}

		if msg, ok, err := nfc.TLVFindNDEF(mem); err == nil && ok {
			return msg, nil
		}
		if mem[0] == nfc.TLVTerminator {
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
