package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"0.0.0.0:8080", false},
		{":8080", false},
		{"127.0.0.1:0", false},
		{"[::1]:443", false},
		{"8080", true},
		{"127.0.0.1:http", true},
		{"127.0.0.1:70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsValidate(t *testing.T) {
	groups := map[string]IOptions{
		"http":  NewHttpOptions(),
		"s3":    NewS3Options(),
		"mqtt":  NewMqttOptions(),
		"ota":   NewOTAOptions(),
		"ws":    NewWebSocketOptions(),
		"store": NewStoreOptions(),
	}

	for name, o := range groups {
		if errs := o.Validate(); len(errs) != 0 {
			t.Errorf("%s defaults invalid: %v", name, errs)
		}
	}
}

func TestOTAOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *OTAOptions)
		wantErr int
	}{
		{"zero chunk size", func(o *OTAOptions) { o.ChunkSize = 0 }, 1},
		{"negative interval", func(o *OTAOptions) { o.ChunkInterval = -time.Millisecond }, 1},
		{"unbounded expiry", func(o *OTAOptions) { o.URLExpiry = 8 * 24 * time.Hour }, 1},
		{"zero interval allowed", func(o *OTAOptions) { o.ChunkInterval = 0; o.StartDelay = 0 }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOTAOptions()
			tt.mutate(o)
			if errs := o.Validate(); len(errs) != tt.wantErr {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.wantErr)
			}
		})
	}
}

func TestMqttOptionsValidateOnlyWhenEnabled(t *testing.T) {
	o := NewMqttOptions()
	o.Broker = ""
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("disabled options should not be validated, got %v", errs)
	}

	o.Enabled = true
	o.TopicRoot = "fleet/#"
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("want broker and topic-root errors, got %v", errs)
	}
}

func TestMqttOptionsGeneratesClientID(t *testing.T) {
	o := NewMqttOptions()
	cfg := o.ToClientConfig()
	if cfg.ClientID == "" {
		t.Fatal("expected a generated client id")
	}
	if cfg.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", cfg.KeepAlive)
	}
}

func TestWebSocketOptionsFlags(t *testing.T) {
	o := NewWebSocketOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	if err := fs.Parse([]string{"--ws.path=/ota", "--ws.pong-wait=10s", "--ws.allowed-origins=https://a,https://b"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.Path != "/ota" || o.PongWait != 10*time.Second || len(o.AllowedOrigins) != 2 {
		t.Fatalf("flags not applied: %+v", o)
	}
	if o.PingPeriod() != 9*time.Second {
		t.Errorf("PingPeriod() = %s, want 9s", o.PingPeriod())
	}
}
