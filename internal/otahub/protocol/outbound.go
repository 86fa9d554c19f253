package protocol

import (
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core/model"
)

// Device-bound envelopes.

type Registered struct {
	Outbound
	Status string `json:"status"`
}

func NewRegistered() *Registered {
	return &Registered{Outbound: Outbound{TypeRegistered}, Status: "success"}
}

type OTAStart struct {
	Outbound
	Size   int64 `json:"size"`
	Chunks int64 `json:"chunks"`
}

func NewOTAStart(size, chunks int64) *OTAStart {
	return &OTAStart{Outbound: Outbound{TypeOTAStart}, Size: size, Chunks: chunks}
}

type OTAChunk struct {
	Outbound
	Offset    int64  `json:"offset"`
	Data      string `json:"data"`
	TotalSize int64  `json:"totalSize"`
}

func NewOTAChunk(offset int64, data string, total int64) *OTAChunk {
	return &OTAChunk{Outbound: Outbound{TypeOTAChunk}, Offset: offset, Data: data, TotalSize: total}
}

type OTAEnd struct {
	Outbound
}

func NewOTAEnd() *OTAEnd {
	return &OTAEnd{Outbound{TypeOTAEnd}}
}

type OTAError struct {
	Outbound
	Message string `json:"message"`
}

func NewOTAError(msg string) *OTAError {
	return &OTAError{Outbound: Outbound{TypeOTAError}, Message: msg}
}

type HeartbeatAck struct {
	Outbound
}

func NewHeartbeatAck() *HeartbeatAck {
	return &HeartbeatAck{Outbound{TypeHeartbeatAck}}
}

// Observer-bound envelopes.

type DeviceList struct {
	Outbound
	Devices []model.DeviceInfo `json:"devices"`
}

func NewDeviceList(devices []model.DeviceInfo) *DeviceList {
	if devices == nil {
		devices = []model.DeviceInfo{}
	}
	return &DeviceList{Outbound: Outbound{TypeDeviceList}, Devices: devices}
}

type DeviceConnected struct {
	Outbound
	DeviceID string    `json:"deviceId"`
	IP       string    `json:"ip,omitempty"`
	Time     time.Time `json:"time"`
}

func NewDeviceConnected(deviceID, ip string, at time.Time) *DeviceConnected {
	return &DeviceConnected{Outbound: Outbound{TypeDeviceConnected}, DeviceID: deviceID, IP: ip, Time: at}
}

type DeviceDisconnected struct {
	Outbound
	DeviceID string `json:"deviceId"`
}

func NewDeviceDisconnected(deviceID string) *DeviceDisconnected {
	return &DeviceDisconnected{Outbound: Outbound{TypeDeviceDisconnected}, DeviceID: deviceID}
}

type ProgressEvent struct {
	Outbound
	DeviceID string  `json:"deviceId"`
	Progress float64 `json:"progress"`
}

func NewProgressEvent(deviceID string, progress float64) *ProgressEvent {
	return &ProgressEvent{Outbound: Outbound{TypeOTAProgress}, DeviceID: deviceID, Progress: progress}
}

// Result values carried by ota_result.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

type OTAResult struct {
	Outbound
	DeviceID  string `json:"deviceId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	VersionID string `json:"versionId,omitempty"`
}

func NewOTAResult(deviceID, status, message, versionID string) *OTAResult {
	return &OTAResult{
		Outbound:  Outbound{TypeOTAResult},
		DeviceID:  deviceID,
		Status:    status,
		Message:   message,
		VersionID: versionID,
	}
}

type BatchStart struct {
	Outbound
	VersionID string              `json:"versionId"`
	Targets   []model.BatchTarget `json:"targets"`
}

func NewBatchStart(versionID string, targets []model.BatchTarget) *BatchStart {
	return &BatchStart{Outbound: Outbound{TypeOTABatchStart}, VersionID: versionID, Targets: targets}
}
