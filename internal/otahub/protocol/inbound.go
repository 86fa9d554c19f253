package protocol

import (
	"fmt"
	"net/url"
	"unicode"

	"github.com/autopeer-io/otahub/internal/otahub/core"
)

const maxDeviceIDLen = 128

// Register announces the device identity on a new connection.
type Register struct {
	DeviceID string `json:"deviceId"`
}

func (m *Register) Validate() error {
	if m.DeviceID == "" {
		return fmt.Errorf("%w: register: deviceId is required", core.ErrValidation)
	}
	if len(m.DeviceID) > maxDeviceIDLen {
		return fmt.Errorf("%w: register: deviceId longer than %d bytes", core.ErrValidation, maxDeviceIDLen)
	}
	for _, r := range m.DeviceID {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: register: deviceId contains whitespace or control characters", core.ErrValidation)
		}
	}
	return nil
}

// OTARequest asks the server to stream the image at FirmwareURL.
type OTARequest struct {
	FirmwareURL string `json:"firmwareUrl"`
}

func (m *OTARequest) Validate() error {
	return ValidateFirmwareURL(m.FirmwareURL)
}

// ValidateFirmwareURL accepts absolute http, https and s3 URLs.
func ValidateFirmwareURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: firmwareUrl is required", core.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: firmwareUrl: %v", core.ErrValidation, err)
	}
	switch u.Scheme {
	case "http", "https", "s3":
	default:
		return fmt.Errorf("%w: firmwareUrl: unsupported scheme %q", core.ErrValidation, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: firmwareUrl: missing host", core.ErrValidation)
	}
	return nil
}

// OTAProgress reports how much of the image the device has written.
type OTAProgress struct {
	Progress *float64 `json:"progress"`
}

func (m *OTAProgress) Validate() error {
	if m.Progress == nil {
		return fmt.Errorf("%w: ota_progress: progress is required", core.ErrValidation)
	}
	if p := *m.Progress; p < 0 || p > 100 {
		return fmt.Errorf("%w: ota_progress: progress %v outside [0, 100]", core.ErrValidation, p)
	}
	return nil
}

// OTAComplete reports that the image was applied.
type OTAComplete struct{}

func (m *OTAComplete) Validate() error { return nil }

// OTAFailure is the device reporting a failed update (type ota_error).
type OTAFailure struct {
	Message string `json:"message"`
}

func (m *OTAFailure) Validate() error { return nil }

// Heartbeat keeps the session marked alive.
type Heartbeat struct{}

func (m *Heartbeat) Validate() error { return nil }
