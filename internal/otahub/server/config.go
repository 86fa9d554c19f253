package server

import (
	"github.com/autopeer-io/otahub/internal/otahub/server/http"
	pkgmqtt "github.com/autopeer-io/otahub/pkg/mqtt"
	"github.com/autopeer-io/otahub/pkg/mqtt/topic"
	"github.com/autopeer-io/otahub/pkg/options"
)

type Config struct {
	HttpOptions      *options.HttpOptions
	WebSocketOptions *options.WebSocketOptions

	// MqttClient is nil when the MQTT ingress is disabled.
	MqttClient pkgmqtt.Client
	Topics     *topic.Builder

	// ReadyChecks back the /readyz probe.
	ReadyChecks []http.Check
}
