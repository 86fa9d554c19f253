package model

import "time"

// Firmware is an uploaded firmware version.
type Firmware struct {
	// ID is the record identifier used by delete.
	ID string `json:"id"`

	// VersionID is the caller-chosen unique version label.
	VersionID string `json:"versionId"`

	FileName string `json:"fileName"`

	// ObjectKey locates the image in the object store.
	ObjectKey string `json:"objectKey"`

	// URL is the presigned download URL shown to operators.
	URL string `json:"filePath"`

	// SourceURL is the permanent location streamed to devices.
	SourceURL string `json:"sourceUrl,omitempty"`

	FileSize   int64     `json:"fileSize"`
	UploadDate time.Time `json:"uploadDate"`
}

// StreamURL returns the URL the streamer should fetch.
func (f *Firmware) StreamURL() string {
	if f.SourceURL != "" {
		return f.SourceURL
	}
	return f.URL
}
