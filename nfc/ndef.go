package nfc

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// TNF values from the NDEF record header.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
	TNFReserved    byte = 0x07
)

const encodingBase64 = "base64"

// NDEFRecord is one decoded record of an NDEF message.
type NDEFRecord struct {
	TNF     byte
	Type    []byte
	ID      []byte
	Payload []byte
}

// FormatName names a TNF value the way tag sessions report it in the
// type field of a message-shaped discovery.
func FormatName(tnf byte) string {
	switch tnf {
	case TNFEmpty:
		return "Empty"
	case TNFWellKnown:
		return "NFC"
	case TNFMedia:
		return "Media"
	case TNFAbsoluteURI:
		return "Absolute URI"
	case TNFExternal:
		return "NFC (external)"
	case TNFUnchanged:
		return "Unchanged"
	default:
		return "Unknown"
	}
}

// ParseRecords decodes the records of a raw NDEF message.
func ParseRecords(message []byte) ([]NDEFRecord, error) {
	if len(message) == 0 {
		return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("empty NDEF message"))
	}

	var records []NDEFRecord
	offset := 0
	for offset < len(message) {
		header := message[offset]
		me := header&0x40 != 0
		sr := header&0x10 != 0
		il := header&0x08 != 0
		tnf := header & 0x07
		pos := offset + 1

		if pos >= len(message) {
			return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("truncated type length at offset %d", pos))
		}
		typeLen := int(message[pos])
		pos++

		var payloadLen int
		if sr {
			if pos >= len(message) {
				return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("truncated payload length at offset %d", pos))
			}
			payloadLen = int(message[pos])
			pos++
		} else {
			if pos+4 > len(message) {
				return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("truncated payload length at offset %d", pos))
			}
			payloadLen = int(binary.BigEndian.Uint32(message[pos : pos+4]))
			pos += 4
		}

		idLen := 0
		if il {
			if pos >= len(message) {
				return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("truncated id length at offset %d", pos))
			}
			idLen = int(message[pos])
			pos++
		}

		if pos+typeLen+idLen+payloadLen > len(message) {
			return nil, NewInvalidPayloadError("ParseRecords", fmt.Errorf("record at offset %d exceeds message length", offset))
		}

		record := NDEFRecord{TNF: tnf}
		record.Type = message[pos : pos+typeLen]
		pos += typeLen
		if idLen > 0 {
			record.ID = message[pos : pos+idLen]
			pos += idLen
		}
		record.Payload = message[pos : pos+payloadLen]
		pos += payloadLen

		records = append(records, record)
		offset = pos
		if me {
			break
		}
	}
	return records, nil
}

// EncodeRecords builds an NDEF message from records, setting the MB, ME
// and SR flags as needed.
func EncodeRecords(records []NDEFRecord) []byte {
	var out []byte
	for i, r := range records {
		header := r.TNF & 0x07
		if i == 0 {
			header |= 0x80
		}
		if i == len(records)-1 {
			header |= 0x40
		}
		short := len(r.Payload) <= 0xFF
		if short {
			header |= 0x10
		}
		if len(r.ID) > 0 {
			header |= 0x08
		}

		out = append(out, header, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out
}

// TextRecord is the decoded payload of a well-known "T" record.
type TextRecord struct {
	Language string
	Encoding string
	Text     string
}

// DecodeTextPayload decodes a text record payload. The language code length
// is taken from the low six bits of the status byte and bit 7 selects UTF-16.
func DecodeTextPayload(payload []byte) (TextRecord, error) {
	if len(payload) < 1 {
		return TextRecord{}, NewInvalidPayloadError("DecodeTextPayload", fmt.Errorf("status byte missing"))
	}
	status := payload[0]
	langLen := int(status & 0x3F)
	if 1+langLen > len(payload) {
		return TextRecord{}, NewInvalidPayloadError("DecodeTextPayload",
			fmt.Errorf("language code length %d exceeds payload", langLen))
	}

	rec := TextRecord{
		Language: string(payload[1 : 1+langLen]),
		Encoding: EncodingUTF8,
	}
	body := payload[1+langLen:]
	if status&0x80 == 0 {
		rec.Text = string(body)
		return rec, nil
	}

	rec.Encoding = EncodingUTF16
	if len(body)%2 != 0 {
		return TextRecord{}, NewInvalidPayloadError("DecodeTextPayload",
			fmt.Errorf("odd UTF-16 text length %d", len(body)))
	}
	decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(body)
	if err != nil {
		return TextRecord{}, NewInvalidPayloadError("DecodeTextPayload", err)
	}
	rec.Text = string(decoded)
	return rec, nil
}

// TextPayload builds a UTF-8 text record payload. lang defaults to "en".
func TextPayload(text, lang string) []byte {
	if lang == "" {
		lang = "en"
	}
	if len(lang) > 0x3F {
		lang = lang[:0x3F]
	}
	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)))
	payload = append(payload, lang...)
	return append(payload, text...)
}

// TextRecordOf builds a well-known text record.
func TextRecordOf(text, lang string) NDEFRecord {
	return NDEFRecord{TNF: TNFWellKnown, Type: []byte("T"), Payload: TextPayload(text, lang)}
}

var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// DecodeURIPayload expands the identifier code of a well-known "U" record.
func DecodeURIPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", NewInvalidPayloadError("DecodeURIPayload", fmt.Errorf("identifier code missing"))
	}
	prefix := ""
	if code := int(payload[0]); code < len(uriPrefixes) {
		prefix = uriPrefixes[code]
	}
	return prefix + string(payload[1:]), nil
}

// URIRecordOf builds a well-known URI record with no prefix compression.
func URIRecordOf(uri string) NDEFRecord {
	return NDEFRecord{TNF: TNFWellKnown, Type: []byte("U"), Payload: append([]byte{0x00}, uri...)}
}

// FormatRecord converts a decoded record into the raw record layout adapters
// emit. Payloads that are not valid UTF-8 are base64 encoded.
func FormatRecord(r NDEFRecord) (RawRecord, error) {
	if r.TNF == TNFWellKnown {
		switch string(r.Type) {
		case "T":
			text, err := DecodeTextPayload(r.Payload)
			if err != nil {
				return RawRecord{}, err
			}
			return RawRecord{Locale: text.Language, Encoding: text.Encoding, Type: NdefRecordTypeText, Data: text.Text}, nil
		case "U":
			uri, err := DecodeURIPayload(r.Payload)
			if err != nil {
				return RawRecord{}, err
			}
			return RawRecord{Encoding: EncodingUTF8, Type: NdefRecordTypeURI, Data: uri}, nil
		}
	}

	rec := RawRecord{Type: NdefRecordTypeMIME}
	if r.TNF != TNFMedia {
		rec.Type = string(r.Type)
	}
	if utf8.Valid(r.Payload) {
		rec.Encoding = EncodingUTF8
		rec.Data = string(r.Payload)
	} else {
		rec.Encoding = encodingBase64
		rec.Data = base64.StdEncoding.EncodeToString(r.Payload)
	}
	return rec, nil
}

// FormatMessages converts NDEF messages into discovery data. The returned
// name is the format name of the first record, or "" when there is none.
func FormatMessages(messages [][]NDEFRecord) (DiscoveryData, string, error) {
	data := DiscoveryData{Messages: make([][]RawRecord, 0, len(messages))}
	name := ""
	for _, msg := range messages {
		formatted := make([]RawRecord, 0, len(msg))
		for _, r := range msg {
			if name == "" {
				name = FormatName(r.TNF)
			}
			raw, err := FormatRecord(r)
			if err != nil {
				return DiscoveryData{}, "", err
			}
			formatted = append(formatted, raw)
		}
		data.Messages = append(data.Messages, formatted)
	}
	return data, name, nil
}

// MessageDiscovery parses a raw NDEF message and builds a message-shaped
// discovery for origin. id may be empty.
func MessageDiscovery(origin, id string, message []byte) (RawDiscovery, error) {
	records, err := ParseRecords(message)
	if err != nil {
		return RawDiscovery{}, err
	}
	data, name, err := FormatMessages([][]NDEFRecord{records})
	if err != nil {
		return RawDiscovery{}, err
	}
	return RawDiscovery{Origin: origin, ID: id, Type: name, Data: data}, nil
}
