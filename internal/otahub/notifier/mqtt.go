package notifier

import (
	"context"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/pkg/mqtt/paths"
	pkgmqtt "github.com/autopeer-io/otahub/pkg/mqtt"
	"github.com/autopeer-io/otahub/pkg/mqtt/topic"
)

var _ core.EventNotifier = (*MQTTNotifier)(nil)

// MQTTNotifier mirrors observer events to {root}/fleet/event/{type}.
type MQTTNotifier struct {
	client pkgmqtt.Publisher
	topics *topic.Builder
}

func NewMQTTNotifier(client pkgmqtt.Publisher, topics *topic.Builder) *MQTTNotifier {
	return &MQTTNotifier{client: client, topics: topics}
}

// Notify publishes payload at QoS 0 without retain.
func (n *MQTTNotifier) Notify(ctx context.Context, eventType string, payload []byte) error {
	return n.client.Publish(ctx, n.topics.Build(paths.FleetEvent, eventType), 0, false, payload)
}
