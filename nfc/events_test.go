package nfc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDiscoveryData_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantTag  bool
		wantMsgs int
		wantErr  bool
	}{
		{"tag object", `{"id":"04A1","techList":["android.nfc.tech.NfcA"]}`, true, 0, false},
		{"messages", `[[{"encoding":"UTF-8","type":"TEXT","data":"hi"}]]`, false, 1, false},
		{"null", `null`, false, 0, false},
		{"string", `"nope"`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DiscoveryData
			err := json.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (d.Tag != nil) != tt.wantTag {
				t.Errorf("Tag = %v, wantTag %v", d.Tag, tt.wantTag)
			}
			if len(d.Messages) != tt.wantMsgs {
				t.Errorf("len(Messages) = %d, want %d", len(d.Messages), tt.wantMsgs)
			}
		})
	}
}

func TestRawDiscovery_AndroidPayload(t *testing.T) {
	input := `{"origin":"android","id":"04A1","type":"TAG","data":{"id":"04A1","techList":["android.nfc.tech.Ndef","android.nfc.tech.NfcA"]}}`

	var raw RawDiscovery
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	rec := Normalize(raw, ShapeForOrigin(raw.Origin))

	if rec.TypeValue() != "Ndef" || rec.ScannedValue() != "04A1" {
		t.Errorf("got type %q scanned %q", rec.TypeValue(), rec.ScannedValue())
	}
}

func TestShapeForOrigin(t *testing.T) {
	cases := map[string]SourceShape{
		OriginAndroid: ShapeTechList,
		OriginLibnfc:  ShapeTechList,
		OriginIOS:     ShapeMessage,
		OriginReplay:  ShapeMessage,
		"":            ShapeMessage,
	}
	for origin, want := range cases {
		if got := ShapeForOrigin(origin); got != want {
			t.Errorf("ShapeForOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}

func TestErrorEvent(t *testing.T) {
	ev := ErrorEvent(OriginLibnfc, errors.New("Session invalidated by user"))

	if ev.Type != EventError || ev.Error == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	b, _ := json.Marshal(ev.Error)
	if want := `{"error":"Session invalidated by user","origin":"libnfc"}`; string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
