// Package protocol defines the JSON envelopes exchanged with devices and observers.
//
// Every envelope is a flat JSON object whose "type" field selects the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/otahub/internal/otahub/core"
)

// Inbound envelope types (device to server).
const (
	TypeRegister    = "register"
	TypeOTARequest  = "ota_request"
	TypeOTAProgress = "ota_progress"
	TypeOTAComplete = "ota_complete"
	TypeOTAError    = "ota_error"
	TypeHeartbeat   = "heartbeat"
)

// Outbound envelope types. ota_progress and ota_error are reused in both directions.
const (
	TypeRegistered         = "registered"
	TypeOTAStart           = "ota_start"
	TypeOTAChunk           = "ota_chunk"
	TypeOTAEnd             = "ota_end"
	TypeHeartbeatAck       = "heartbeat_ack"
	TypeDeviceList         = "device_list"
	TypeDeviceConnected    = "device_connected"
	TypeDeviceDisconnected = "device_disconnected"
	TypeOTAResult          = "ota_result"
	TypeOTABatchStart      = "ota_batch_start"
)

type envelope struct {
	Type string `json:"type"`
}

// Peek returns the type discriminator of data without decoding the payload.
func Peek(data []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("%w: malformed envelope: %v", core.ErrProtocol, err)
	}
	if e.Type == "" {
		return "", fmt.Errorf("%w: envelope has no type", core.ErrProtocol)
	}
	return e.Type, nil
}

// Message is an outbound envelope.
type Message interface {
	MessageType() string
}

// Outbound is embedded by every outbound envelope and carries its type.
type Outbound struct {
	Type string `json:"type"`
}

func (o Outbound) MessageType() string { return o.Type }

// Marshal encodes m. It fails if m was built without its type.
func Marshal(m Message) ([]byte, error) {
	if m.MessageType() == "" {
		return nil, fmt.Errorf("outbound %T has no type", m)
	}
	return json.Marshal(m)
}
