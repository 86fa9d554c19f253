package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/core/service"
	"github.com/autopeer-io/otahub/pkg/options"
)

type fakeAPI struct {
	upload     service.UploadRequest
	uploadData []byte
	uploadErr  error
	deleted    string
	deleteErr  error
	batchErr   error
	batch      startRequest
}

func (f *fakeAPI) UploadFirmware(_ context.Context, req service.UploadRequest) (*model.Firmware, error) {
	f.upload = req
	if req.Body != nil {
		f.uploadData, _ = io.ReadAll(req.Body)
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &model.Firmware{ID: "id-1", VersionID: req.VersionID, FileName: req.FileName, FileSize: req.Size}, nil
}

func (f *fakeAPI) ListFirmware(context.Context) ([]*model.Firmware, error) {
	return []*model.Firmware{{ID: "id-2", VersionID: "v2"}, {ID: "id-1", VersionID: "v1"}}, nil
}

func (f *fakeAPI) DeleteFirmware(_ context.Context, id string) error {
	f.deleted = id
	return f.deleteErr
}

func (f *fakeAPI) StartBatch(_ context.Context, versionID string, ids []string) ([]model.BatchTarget, error) {
	f.batch = startRequest{VersionID: versionID, Devices: ids}
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]model.BatchTarget, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.BatchTarget{DeviceID: id, Status: model.TargetStarted})
	}
	return out, nil
}

func (f *fakeAPI) Devices() []model.DeviceInfo {
	return []model.DeviceInfo{{DeviceID: "esp-1", Status: model.StatusConnected, ConnectedAt: time.Unix(1700000000, 0)}}
}

func (f *fakeAPI) DeviceState(_ context.Context, id string) (*model.Device, error) {
	if id != "esp-1" {
		return nil, core.NewError(core.ErrNotFound, "device not found")
	}
	return &model.Device{DeviceID: id, VersionID: "v1", UpdatedAt: time.Unix(1700000000, 0)}, nil
}

func newTestServer(api API, checks ...Check) http.Handler {
	return NewServer(options.NewHttpOptions(), api, nil, "", checks...).Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func multipartUpload(t *testing.T, versionID, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if versionID != "" {
		_ = mw.WriteField("versionId", versionID)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("otaFile", fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ota/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProbes(t *testing.T) {
	h := newTestServer(&fakeAPI{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}

	failing := newTestServer(&fakeAPI{}, func(context.Context) error { return errors.New("bucket unreachable") })
	if rec, _ := do(t, failing, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing readyz = %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	api := &fakeAPI{}
	h := newTestServer(api)

	rec, body := do(t, h, multipartUpload(t, "v1", "app.bin", []byte{0xE9, 1, 2}))
	if rec.Code != http.StatusCreated || body["message"] != "OTA uploaded" {
		t.Fatalf("upload = %d %v", rec.Code, body)
	}
	if api.upload.VersionID != "v1" || api.upload.FileName != "app.bin" || api.upload.Size != 3 || len(api.uploadData) != 3 {
		t.Fatalf("request = %+v data %v", api.upload, api.uploadData)
	}

	do(t, h, multipartUpload(t, "v1", "", nil))
	if api.upload.Body != nil {
		t.Fatal("missing file should reach the service without a body")
	}

	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/ota/upload", strings.NewReader("x")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart upload = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", core.NewError(core.ErrValidation, "Version Id required"), http.StatusBadRequest, "Version Id required"},
		{"not found", core.NewError(core.ErrNotFound, "OTA not found"), http.StatusNotFound, "OTA not found"},
		{"conflict", core.NewError(core.ErrConflict, "versionId already exists"), http.StatusConflict, "versionId already exists"},
		{"internal", errors.New("store firmware: bucket gone"), http.StatusInternalServerError, "store firmware: bucket gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeAPI{deleteErr: tt.err})
			rec, body := do(t, h, httptest.NewRequest(http.MethodDelete, "/api/v1/ota/delete/id-1", nil))
			if rec.Code != tt.status || body["message"] != tt.msg {
				t.Fatalf("got %d %v, want %d %q", rec.Code, body, tt.status, tt.msg)
			}
		})
	}
}

func TestDeleteAndList(t *testing.T) {
	api := &fakeAPI{}
	h := newTestServer(api)

	rec, body := do(t, h, httptest.NewRequest(http.MethodDelete, "/api/v1/ota/delete/id-7", nil))
	if rec.Code != http.StatusOK || api.deleted != "id-7" || body["message"] != "OTA deleted successfully" {
		t.Fatalf("delete = %d %v (deleted %q)", rec.Code, body, api.deleted)
	}

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/ota/all", nil))
	var files []model.Firmware
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil || len(files) != 2 || files[0].VersionID != "v2" {
		t.Fatalf("list = %s, %v", rec.Body.String(), err)
	}

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/ota/delete/id-7", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on delete route = %d", rec.Code)
	}
}

func TestStartBatch(t *testing.T) {
	api := &fakeAPI{}
	h := newTestServer(api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ota/start", strings.NewReader(`{"versionId":"v2","devices":["esp-1","esp-2"]}`))
	rec, body := do(t, h, req)
	if rec.Code != http.StatusOK || body["message"] != "OTA triggered for selected devices" || body["versionId"] != "v2" {
		t.Fatalf("start = %d %v", rec.Code, body)
	}
	if results, _ := body["results"].([]any); len(results) != 2 {
		t.Fatalf("results = %v", body["results"])
	}

	rec, body = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/ota/start", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest || body["message"] != "versionId and devices[] required" {
		t.Fatalf("malformed start = %d %v", rec.Code, body)
	}
}

func TestDevices(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeAPI{}), httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	var devices []model.DeviceInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil || len(devices) != 1 || devices[0].DeviceID != "esp-1" {
		t.Fatalf("devices = %s, %v", rec.Body.String(), err)
	}
}

func TestDeviceState(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		status  int
		version string
		msg     string
	}{
		{name: "known", id: "esp-1", status: http.StatusOK, version: "v1"},
		{name: "unknown", id: "esp-9", status: http.StatusNotFound, msg: "device not found"},
	}

	h := newTestServer(&fakeAPI{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+tt.id, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.version != "" && (body["deviceId"] != tt.id || body["versionId"] != tt.version) {
				t.Fatalf("body = %v", body)
			}
			if tt.msg != "" && body["message"] != tt.msg {
				t.Fatalf("message = %v, want %q", body["message"], tt.msg)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/ota/delete/id-7"},
		{http.MethodPost, "/api/v1/ota/all"},
		{http.MethodGet, "/api/v1/ota/upload"},
		{http.MethodGet, "/api/v1/ota/start"},
		{http.MethodDelete, "/api/v1/devices"},
		{http.MethodPost, "/api/v1/devices/esp-1"},
	}

	h := newTestServer(&fakeAPI{})
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec, _ := do(t, h, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
			}
		})
	}

	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path = %d", rec.Code)
	}
}
