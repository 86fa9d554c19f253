package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/autopeer-io/otahub/internal/otahub/core"
)

func TestPeek(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"register", `{"type":"register","deviceId":"esp-1"}`, TypeRegister, false},
		{"extra fields", `{"progress":40,"type":"ota_progress"}`, TypeOTAProgress, false},
		{"missing type", `{"deviceId":"esp-1"}`, "", true},
		{"not json", `register`, "", true},
		{"type not string", `{"type":7}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Peek([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Peek() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrProtocol) {
				t.Errorf("Peek() error %v is not ErrProtocol", err)
			}
			if got != tt.want {
				t.Errorf("Peek() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInboundValidate(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"register ok", &Register{DeviceID: "esp32-a1"}, false},
		{"register empty", &Register{}, true},
		{"register whitespace", &Register{DeviceID: "esp 1"}, true},
		{"ota_request http", &OTARequest{FirmwareURL: "http://cdn.local/fw.bin"}, false},
		{"ota_request s3", &OTARequest{FirmwareURL: "s3://firmware/ota/1-fw.bin"}, false},
		{"ota_request empty", &OTARequest{}, true},
		{"ota_request relative", &OTARequest{FirmwareURL: "/fw.bin"}, true},
		{"ota_request ftp", &OTARequest{FirmwareURL: "ftp://host/fw.bin"}, true},
		{"progress ok", &OTAProgress{Progress: pct(42.5)}, false},
		{"progress missing", &OTAProgress{}, true},
		{"progress overflow", &OTAProgress{Progress: pct(101)}, true},
		{"failure without message", &OTAFailure{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrValidation) {
				t.Errorf("Validate() error %v is not ErrValidation", err)
			}
		})
	}
}

func TestMarshalFlattensType(t *testing.T) {
	data, err := Marshal(NewOTAChunk(512, "6QAB", 1024))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"type": "ota_chunk", "offset": 512.0, "data": "6QAB", "totalSize": 1024.0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestMarshalRejectsUntyped(t *testing.T) {
	if _, err := Marshal(&OTAEnd{}); err == nil {
		t.Fatal("expected an error for an envelope without type")
	}
}

func TestDeviceListNeverNull(t *testing.T) {
	data, err := Marshal(NewDeviceList(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"device_list","devices":[]}` {
		t.Errorf("got %s", data)
	}
}
