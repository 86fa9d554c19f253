package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OTAOptions)(nil)

// OTAOptions tunes firmware delivery.
type OTAOptions struct {
	// ChunkSize is the number of raw bytes carried by one ota_chunk envelope.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkInterval paces consecutive chunks to one device.
	ChunkInterval time.Duration `json:"chunk-interval" mapstructure:"chunk-interval"`

	// StartDelay separates ota_start from the first chunk.
	StartDelay time.Duration `json:"start-delay" mapstructure:"start-delay"`

	// MaxFirmwareSize bounds images whose size the blob store does not report.
	MaxFirmwareSize int64 `json:"max-firmware-size" mapstructure:"max-firmware-size"`

	// FetchTimeout bounds a blob fetch. Zero disables the timeout.
	FetchTimeout time.Duration `json:"fetch-timeout" mapstructure:"fetch-timeout"`

	// URLExpiry is the lifetime of presigned firmware URLs.
	URLExpiry time.Duration `json:"url-expiry" mapstructure:"url-expiry"`
}

func NewOTAOptions() *OTAOptions {
	return &OTAOptions{
		ChunkSize:       512,
		ChunkInterval:   20 * time.Millisecond,
		StartDelay:      100 * time.Millisecond,
		MaxFirmwareSize: 16 << 20,
		FetchTimeout:    0,
		URLExpiry:       7 * 24 * time.Hour,
	}
}

func (o *OTAOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("--ota.chunk-size must be positive, got %d", o.ChunkSize))
	}
	if o.ChunkInterval < 0 {
		errs = append(errs, fmt.Errorf("--ota.chunk-interval must not be negative, got %s", o.ChunkInterval))
	}
	if o.StartDelay < 0 {
		errs = append(errs, fmt.Errorf("--ota.start-delay must not be negative, got %s", o.StartDelay))
	}
	if o.MaxFirmwareSize <= 0 {
		errs = append(errs, fmt.Errorf("--ota.max-firmware-size must be positive, got %d", o.MaxFirmwareSize))
	}
	if o.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("--ota.fetch-timeout must not be negative, got %s", o.FetchTimeout))
	}
	// S3 presigned URLs cannot outlive seven days.
	if o.URLExpiry <= 0 || o.URLExpiry > 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("--ota.url-expiry must be within (0, 168h], got %s", o.URLExpiry))
	}

	return errs
}

func (o *OTAOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, "ota.chunk-size", o.ChunkSize, "Raw bytes per firmware chunk sent to a device.")
	fs.DurationVar(&o.ChunkInterval, "ota.chunk-interval", o.ChunkInterval, "Delay between consecutive chunks to the same device.")
	fs.DurationVar(&o.StartDelay, "ota.start-delay", o.StartDelay, "Delay between ota_start and the first chunk.")
	fs.Int64Var(&o.MaxFirmwareSize, "ota.max-firmware-size", o.MaxFirmwareSize, "Largest firmware image buffered when the blob store does not report a size.")
	fs.DurationVar(&o.FetchTimeout, "ota.fetch-timeout", o.FetchTimeout, "Timeout for fetching a firmware image (0 disables).")
	fs.DurationVar(&o.URLExpiry, "ota.url-expiry", o.URLExpiry, "Lifetime of presigned firmware download URLs.")
}
