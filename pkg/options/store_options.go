package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

// StoreOptions configures the firmware and device metadata store.
type StoreOptions struct {
	// DataDir holds the metadata snapshot. Empty keeps everything in memory.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{}
}

func (o *StoreOptions) Validate() []error {
	return nil
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DataDir, "store.data-dir", o.DataDir, "Directory for the metadata snapshot (empty keeps it in memory).")
}
