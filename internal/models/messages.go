package models

import (
	"encoding/json"
	"time"
)

// Submission is a decoded scan handed to the pipeline over HTTP, the
// stream or Pub/Sub. Field names are the wire contract.
type Submission struct {
	QRCode         string   `json:"qrCode"`
	ProductName    string   `json:"productName,omitempty"`
	ProductID      string   `json:"productId,omitempty"`
	CameraID       string   `json:"cameraId,omitempty"`
	ProcessingTime *int64   `json:"processingTime,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// FrameSubmission carries raw pixels for the external decoder
type FrameSubmission struct {
	ImageData string `json:"imageData"` // base64
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CameraID  string `json:"cameraId,omitempty"`
}

// BatchSubmission is a list of already decoded codes from one source.
// Entries stay raw so a non-string entry fails alone.
type BatchSubmission struct {
	Scans    []json.RawMessage `json:"scans"`
	CameraID string            `json:"cameraId,omitempty"`
}

// Outcome discriminates every pipeline result
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeError     Outcome = "error"
	OutcomeNotFound  Outcome = "not_found" // decoder found no symbol
)

// ScanResult is the outcome of one ingest call
type ScanResult struct {
	Status           Outcome        `json:"status"`
	ScanID           uint64         `json:"scanId,omitempty"`
	QRCode           string         `json:"qrCode"`
	ProductID        string         `json:"productId,omitempty"`
	ProductName      string         `json:"productName,omitempty"`
	BatchCode        string         `json:"batchCode,omitempty"`
	CameraID         string         `json:"cameraId,omitempty"`
	ProcessingTimeMs int64          `json:"processingTime"`
	Confidence       float64        `json:"confidence"`
	Timestamp        time.Time      `json:"timestamp"`
	Message          string         `json:"message,omitempty"`
	Fields           map[string]any `json:"-"`
}

// OK reports whether the scan was persisted
func (r ScanResult) OK() bool {
	return r.Status == OutcomeSuccess
}

// BatchItemResult is one row of a batch response
type BatchItemResult struct {
	QRCode      string  `json:"qrCode"`
	Status      Outcome `json:"status"`
	ScanID      uint64  `json:"scanId,omitempty"`
	ProductID   string  `json:"productId,omitempty"`
	ProductName string  `json:"productName,omitempty"`
	BatchCode   string  `json:"batchCode,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// BatchResult is the outcome of a batch ingest
type BatchResult struct {
	Processed int               `json:"processed"`
	Results   []BatchItemResult `json:"results"`
}

// ScanBroadcast is the payload of a scan_result stream message
type ScanBroadcast struct {
	ScanID           uint64    `json:"scanId"`
	QRCode           string    `json:"qrCode"`
	ProductName      string    `json:"productName"`
	ProductID        string    `json:"productId"`
	BatchCode        string    `json:"batchCode,omitempty"`
	CameraID         string    `json:"cameraId"`
	ProcessingTimeMs int64     `json:"processingTime"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}
