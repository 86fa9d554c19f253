package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*WebSocketOptions)(nil)

// WebSocketOptions configures the device and observer websocket endpoint.
type WebSocketOptions struct {
	Path           string        `json:"path" mapstructure:"path"`
	ReadLimit      int64         `json:"read-limit" mapstructure:"read-limit"`
	WriteWait      time.Duration `json:"write-wait" mapstructure:"write-wait"`
	PongWait       time.Duration `json:"pong-wait" mapstructure:"pong-wait"`
	SendQueue      int           `json:"send-queue" mapstructure:"send-queue"`
	AllowedOrigins []string      `json:"allowed-origins" mapstructure:"allowed-origins"`
}

func NewWebSocketOptions() *WebSocketOptions {
	return &WebSocketOptions{
		Path:      "/ws",
		ReadLimit: 64 << 10,
		WriteWait: 10 * time.Second,
		PongWait:  60 * time.Second,
		SendQueue: 256,
	}
}

// PingPeriod is how often the server pings a peer. It stays below PongWait.
func (o *WebSocketOptions) PingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

func (o *WebSocketOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if !strings.HasPrefix(o.Path, "/") {
		errs = append(errs, fmt.Errorf("--ws.path must start with '/', got %q", o.Path))
	}
	if o.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("--ws.read-limit must be positive, got %d", o.ReadLimit))
	}
	if o.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("--ws.write-wait must be positive, got %s", o.WriteWait))
	}
	if o.PongWait <= 0 {
		errs = append(errs, fmt.Errorf("--ws.pong-wait must be positive, got %s", o.PongWait))
	}
	if o.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("--ws.send-queue must be positive, got %d", o.SendQueue))
	}

	return errs
}

func (o *WebSocketOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "ws.path", o.Path, "HTTP path of the websocket endpoint.")
	fs.Int64Var(&o.ReadLimit, "ws.read-limit", o.ReadLimit, "Maximum size in bytes of an inbound websocket message.")
	fs.DurationVar(&o.WriteWait, "ws.write-wait", o.WriteWait, "Time allowed to write a message to the peer.")
	fs.DurationVar(&o.PongWait, "ws.pong-wait", o.PongWait, "Time allowed to read the next pong from the peer.")
	fs.IntVar(&o.SendQueue, "ws.send-queue", o.SendQueue, "Outbound frames buffered per connection before broadcasts are dropped.")
	fs.StringSliceVar(&o.AllowedOrigins, "ws.allowed-origins", o.AllowedOrigins, "Origins allowed to open a websocket (empty allows all).")
}
