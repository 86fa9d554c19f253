package model

import "time"

// Device is the persisted state of a device that completed an update.
type Device struct {
	DeviceID  string    `json:"deviceId"`
	VersionID string    `json:"versionId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionStatus is the externally visible state of a live session.
type SessionStatus string

const (
	StatusConnected SessionStatus = "connected"
	StatusUpdating  SessionStatus = "updating"
)

// DeviceInfo describes one live session for observers.
type DeviceInfo struct {
	DeviceID      string        `json:"deviceId"`
	IP            string        `json:"ip,omitempty"`
	Status        SessionStatus `json:"status"`
	ConnectedAt   time.Time     `json:"connectedAt"`
	LastHeartbeat *time.Time    `json:"lastHeartbeat,omitempty"`
	VersionID     string        `json:"versionId,omitempty"`
}

// TargetStatus is the per-device outcome of a batch start.
type TargetStatus string

const (
	TargetStarted TargetStatus = "started"
	TargetOffline TargetStatus = "offline"
	TargetBusy    TargetStatus = "busy"
)

// BatchTarget is one entry of a batch start result.
type BatchTarget struct {
	DeviceID string       `json:"deviceId"`
	Status   TargetStatus `json:"status"`
}
