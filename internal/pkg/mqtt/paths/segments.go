package paths

// Topic segments for the otahub MQTT surface.
// Every topic has the form {root}/{segment}/{id}.

// Outbound: otahub -> broker
const (
	// FleetEvent mirrors observer events.
	// Pattern: {root}/fleet/event/{eventType}
	FleetEvent = "fleet/event"

	// BatchResult answers a batch start request.
	// Payload: { "requestId": "...", "versionId": "...", "results": [...] }
	// Pattern: {root}/ota/batch/result/{requestID}
	BatchResult = "ota/batch/result"
)

// Inbound: broker -> otahub
const (
	// Batch starts a firmware update on a set of devices.
	// Payload: { "versionId": "...", "devices": ["..."] }
	// Pattern: {root}/ota/batch/{requestID}
	Batch = "ota/batch"
)

// SharedGroup is the $share group replicas subscribe under.
const SharedGroup = "otahub"
