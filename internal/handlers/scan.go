package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/models"
)

// ScanRequest is either a decoded code or a raw frame
type ScanRequest struct {
	models.Submission
	ImageData string `json:"imageData"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ScanResponse standardizes the scan result
type ScanResponse struct {
	Success bool `json:"success"`
	models.ScanResult
}

// handleScan accepts a direct code or a frame for the decoder
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) {
	var body ScanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var res models.ScanResult
	switch {
	case body.QRCode != "":
		res = r.pipeline.IngestSubmission(req.Context(), body.Submission, body.CameraID, ingest.DirectDefaults())
	case body.ImageData != "" && body.Width > 0 && body.Height > 0:
		res = r.pipeline.IngestFrame(req.Context(), models.FrameSubmission{
			ImageData: body.ImageData,
			Width:     body.Width,
			Height:    body.Height,
			CameraID:  body.CameraID,
		})
	default:
		respondError(w, http.StatusBadRequest, "Missing required parameters: imageData, width, height or qrCode")
		return
	}

	status := http.StatusOK
	if res.Status == models.OutcomeError {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, ScanResponse{Success: res.OK(), ScanResult: res})
}

type batchResponse struct {
	Success bool `json:"success"`
	models.BatchResult
	Timestamp time.Time `json:"timestamp"`
}

// handleBatchScan runs every entry through the pipeline independently
func (r *Router) handleBatchScan(w http.ResponseWriter, req *http.Request) {
	var body models.BatchSubmission
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Scans) == 0 {
		respondError(w, http.StatusBadRequest, "Invalid scans data")
		return
	}

	out := r.pipeline.IngestBatch(req.Context(), body.Scans, body.CameraID)
	respondJSON(w, http.StatusOK, batchResponse{Success: true, BatchResult: out, Timestamp: time.Now().UTC()})
}

// getRecent lists history newest first
func (r *Router) getRecent(w http.ResponseWriter, req *http.Request) {
	limit := database.ClampLimit(queryInt(req, "limit", database.DefaultRecentLimit), database.DefaultRecentLimit, database.MaxRecentLimit)
	scans, err := r.store.GetRecent(req.Context(), limit, req.URL.Query().Get("cameraId"))
	if err != nil {
		r.log.Error("Error fetching recent scans", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch scans")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"count":     len(scans),
		"data":      scans,
		"timestamp": time.Now().UTC(),
	})
}

// getByCode returns the stored record for a code
func (r *Router) getByCode(w http.ResponseWriter, req *http.Request) {
	code := mux.Vars(req)["qrCode"]
	ev, err := r.store.GetByCode(req.Context(), code)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "QR code not found")
		return
	}
	if err != nil {
		r.log.Error("Error fetching QR details", zap.String("qr_code", code), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch QR details")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    ev,
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

// updateStatus moves a scan through new -> processed -> archived
func (r *Router) updateStatus(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(req)["scanId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid scan id")
		return
	}

	var body statusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Status == "" {
		respondError(w, http.StatusBadRequest, "Status is required")
		return
	}
	status, err := models.ParseScanStatus(body.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = r.store.UpdateStatus(req.Context(), id, status)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Scan not found")
		return
	}
	if err != nil {
		r.log.Error("Error updating status", zap.Uint64("scan_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update status")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Status updated to " + string(status),
		"scanId":  id,
		"status":  status,
	})
}
