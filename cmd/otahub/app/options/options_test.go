package options

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := NewHubOptions().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidateAggregatesGroups(t *testing.T) {
	o := NewHubOptions()
	o.OTAOptions.ChunkSize = 0
	o.S3Options.BucketName = ""
	o.Log.Level = "loud"

	err := o.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	if n := len(err.(interface{ Errors() []error }).Errors()); n != 3 {
		t.Errorf("got %d errors, want 3: %v", n, err)
	}
}

func TestFlagsCoverEveryGroup(t *testing.T) {
	fss := NewHubOptions().Flags()
	for _, name := range []string{"http", "ws", "ota", "s3", "mqtt", "store", "log"} {
		if _, ok := fss.FlagSets[name]; !ok {
			t.Errorf("missing flag set %q", name)
		}
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	for _, f := range fss.FlagSets {
		fs.AddFlagSet(f)
	}
	if fs.Lookup("ota.chunk-size") == nil || fs.Lookup("store.data-dir") == nil {
		t.Error("expected ota and store flags to be registered")
	}
}

func TestConfigCarriesOptions(t *testing.T) {
	o := NewHubOptions()
	cfg, err := o.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OTAOptions != o.OTAOptions || cfg.MqttOptions != o.MqttOptions {
		t.Error("Config() did not pass the option groups through")
	}
}
