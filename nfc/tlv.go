package nfc

import "fmt"

// TLV block types found in Type 2 tag memory.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVEncode wraps data in a TLV of the given type followed by a terminator.
// Lengths of 0xFF and above use the three byte form.
func TLVEncode(data []byte, tlvType byte) []byte {
	out := []byte{tlvType}
	if n := len(data); n < 0xFF {
		out = append(out, byte(n))
	} else {
		out = append(out, 0xFF, byte(n>>8), byte(n))
	}
	out = append(out, data...)
	return append(out, TLVTerminator)
}

// tlvHeader returns the value length and the offset of the value relative
// to the type byte at data[0].
func tlvHeader(data []byte) (length, valueStart int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("TLV 0x%02X: length missing", data[0])
	}
	if data[1] != 0xFF {
		return int(data[1]), 2, nil
	}
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("TLV 0x%02X: long length truncated", data[0])
	}
	return int(data[2])<<8 | int(data[3]), 4, nil
}

// TLVFindNDEF walks a TLV block and returns the value of the first NDEF
// message TLV. found is false when a terminator or the end of data comes
// first.
func TLVFindNDEF(data []byte) (message []byte, found bool, err error) {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false, nil
		}

		length, start, err := tlvHeader(data[offset:])
		if err != nil {
			return nil, false, NewInvalidPayloadError("TLVFindNDEF", err)
		}
		end := offset + start + length
		if end > len(data) {
			return nil, false, NewInvalidPayloadError("TLVFindNDEF",
				fmt.Errorf("TLV 0x%02X at offset %d: value exceeds block", data[offset], offset))
		}
		if data[offset] == TLVNDEF {
			return data[offset+start : end], true, nil
		}
		offset = end
	}
	return nil, false, nil
}
