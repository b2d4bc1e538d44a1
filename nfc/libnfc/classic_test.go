package libnfc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nedpals/davi-nfc-bridge/nfc"
)

// fakeClassic is a 1K card image with one key per sector.
type fakeClassic struct {
	blocks     [64][16]byte
	keys       map[int][6]byte
	authorized int
	connects   int
	authCalls  int
	readErr    error
}

func newFakeClassic(data []byte, key [6]byte) *fakeClassic {
	c := &fakeClassic{keys: make(map[int][6]byte), authorized: -1}
	for sector := 0; sector < 16; sector++ {
		c.keys[sector] = key
	}
	// lay data out over the data blocks of sectors 1..15
	for sector := 1; sector < 16 && len(data) > 0; sector++ {
		first, count := classicSector(sector)
		for block := first; block < first+count-1 && len(data) > 0; block++ {
			n := copy(c.blocks[block][:], data)
			data = data[n:]
		}
	}
	return c
}

func (c *fakeClassic) Connect() error    { c.connects++; return nil }
func (c *fakeClassic) Disconnect() error { c.authorized = -1; return nil }

func (c *fakeClassic) Authenticate(block byte, key [6]byte, keyType int) error {
	c.authCalls++
	sector := int(block) / 4
	if c.keys[sector] != key {
		return errors.New("authentication failed")
	}
	c.authorized = sector
	return nil
}

func (c *fakeClassic) ReadBlock(block byte) ([16]byte, error) {
	if c.readErr != nil {
		return [16]byte{}, c.readErr
	}
	if int(block)/4 != c.authorized {
		return [16]byte{}, errors.New("not authenticated")
	}
	return c.blocks[block], nil
}

func ndefTLV(msg []byte) []byte {
	tlv := append([]byte{nfc.TLVNDEF, byte(len(msg))}, msg...)
	return append(tlv, nfc.TLVTerminator)
}

func TestClassicSector(t *testing.T) {
	tests := []struct {
		sector, first, count int
	}{
		{0, 0, 4},
		{1, 4, 4},
		{31, 124, 4},
		{32, 128, 16},
		{39, 240, 16},
	}
	for _, tt := range tests {
		first, count := classicSector(tt.sector)
		if first != tt.first || count != tt.count {
			t.Errorf("classicSector(%d) = %d, %d; want %d, %d", tt.sector, first, count, tt.first, tt.count)
		}
	}
}

func TestClassicReadNDEF(t *testing.T) {
	msg := nfc.EncodeRecords([]nfc.NDEFRecord{nfc.TextRecordOf("hello classic", "en")})
	card := newFakeClassic(ndefTLV(msg), classicReadKeys[0])
	tag := &classicTag{card: card, uid: "0A0B0C0D"}

	got, err := tag.ReadNDEF()
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("ReadNDEF() = %X, want %X", got, msg)
	}
	if tag.Kind() != KindClassic || tag.UID() != "0A0B0C0D" {
		t.Errorf("tag = %s %s", tag.Kind(), tag.UID())
	}
}

func TestClassicReadNDEF_SpansSectors(t *testing.T) {
	text := string(bytes.Repeat([]byte("x"), 120))
	msg := nfc.EncodeRecords([]nfc.NDEFRecord{nfc.TextRecordOf(text, "en")})
	card := newFakeClassic(ndefTLV(msg), classicReadKeys[0])

	got, err := (&classicTag{card: card}).ReadNDEF()
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("message spanning sectors was not reassembled")
	}
}

func TestClassicReadNDEF_FallbackKey(t *testing.T) {
	msg := nfc.EncodeRecords([]nfc.NDEFRecord{nfc.TextRecordOf("factory", "en")})
	card := newFakeClassic(ndefTLV(msg), classicReadKeys[1])

	got, err := (&classicTag{card: card}).ReadNDEF()
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("ReadNDEF() = %X", got)
	}
	// one reconnect after the rejected public key
	if card.connects != 2 {
		t.Errorf("connects = %d, want 2", card.connects)
	}
}

func TestClassicReadNDEF_Empty(t *testing.T) {
	card := newFakeClassic([]byte{nfc.TLVTerminator}, classicReadKeys[0])

	got, err := (&classicTag{card: card}).ReadNDEF()
	if err != nil || got != nil {
		t.Errorf("ReadNDEF() = %X, %v; want nil, nil", got, err)
	}
	if card.authCalls != 1 {
		t.Errorf("read stopped after %d authentications, want 1", card.authCalls)
	}
}

func TestClassicReadNDEF_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		card := newFakeClassic(nil, [6]byte{1, 2, 3, 4, 5, 6})
		_, err := (&classicTag{card: card}).ReadNDEF()
		if err == nil {
			t.Fatal("expected error")
		}
		var nfcErr *nfc.NFCError
		if !errors.As(err, &nfcErr) || nfcErr.Code != nfc.ErrCodeReadFailed {
			t.Errorf("error = %v, want read error", err)
		}
	})

	t.Run("block read", func(t *testing.T) {
		card := newFakeClassic(nil, classicReadKeys[0])
		card.readErr = errors.New("tag lost")
		if _, err := (&classicTag{card: card}).ReadNDEF(); err == nil {
			t.Fatal("expected error")
		}
	})
}
