package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/core/service"
	"github.com/autopeer-io/otahub/pkg/log"
)

// multipart parts above this size spill to temporary files.
const formMemory = 8 << 20

// API is the part of the core service exposed over REST.
type API interface {
	UploadFirmware(ctx context.Context, req service.UploadRequest) (*model.Firmware, error)
	ListFirmware(ctx context.Context) ([]*model.Firmware, error)
	DeleteFirmware(ctx context.Context, id string) error
	StartBatch(ctx context.Context, versionID string, deviceIDs []string) ([]model.BatchTarget, error)
	Devices() []model.DeviceInfo
	DeviceState(ctx context.Context, deviceID string) (*model.Device, error)
}

type handler struct {
	api       API
	maxUpload int64
}

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	Message string          `json:"message"`
	Data    *model.Firmware `json:"data"`
}

type startRequest struct {
	VersionID string   `json:"versionId"`
	Devices   []string `json:"devices"`
}

type startResponse struct {
	Message   string              `json:"message"`
	VersionID string              `json:"versionId"`
	Results   []model.BatchTarget `json:"results"`
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := service.UploadRequest{VersionID: r.FormValue("versionId")}

	file, header, err := r.FormFile("otaFile")
	switch {
	case err == nil:
		defer file.Close()
		req.FileName = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Size = header.Size
		req.Body = file
	case !errors.Is(err, http.ErrMissingFile):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}

	fw, err := h.api.UploadFirmware(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Message: "OTA uploaded", Data: fw})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	files, err := h.api.ListFirmware(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.api.DeleteFirmware(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OTA deleted successfully"})
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "versionId and devices[] required"})
		return
	}

	results, err := h.api.StartBatch(r.Context(), req.VersionID, req.Devices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{
		Message:   "OTA triggered for selected devices",
		VersionID: req.VersionID,
		Results:   results,
	})
}

func (h *handler) devices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.api.Devices())
}

func (h *handler) device(w http.ResponseWriter, r *http.Request) {
	d, err := h.api.DeviceState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// statusOf maps an error class to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error(err, "Request failed")
	}

	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err.Error())
	}
}

