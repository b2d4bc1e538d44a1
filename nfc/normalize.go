package nfc

import "strings"

// Normalize converts a raw discovery into the record delivered to listeners.
//
// origin, id and type are copied as-is. Tag scans from tech-list shaped
// sources take their type from the first technology, are rewrapped as
// [[tag]] and report the tag id as the scanned value. Everything else
// reports the encoding and data of the first record of the first message.
func Normalize(raw RawDiscovery, shape SourceShape) DiscoveryRecord {
	record := DiscoveryRecord{
		FromDevice: raw,
		Origin:     optional(raw.Origin),
		ID:         optional(raw.ID),
		Type:       optional(raw.Type),
	}

	if shape == ShapeTechList && raw.Type == NfcDataTypeTag && raw.Data.Tag != nil {
		tag := *raw.Data.Tag
		if len(tag.TechList) > 0 {
			record.Type = optional(strings.TrimPrefix(tag.TechList[0], TechPrefix))
		}
		record.FromDevice.Data = DiscoveryData{Tag: &tag, Wrapped: true}
		record.Encoding = optional(EncodingUTF8)
		record.Scanned = optional(raw.ID)
		return record
	}

	if first, ok := raw.Data.FirstRecord(); ok {
		encoding, data := first.Encoding, first.Data
		record.Encoding = &encoding
		record.Scanned = &data
	}
	return record
}
