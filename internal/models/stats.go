package models

import "time"

// ScanStatistics aggregates scans over a trailing window
type ScanStatistics struct {
	CameraID          string  `json:"cameraId,omitempty"`
	TotalScans        int64   `json:"totalScans"`
	UniqueCodes       int64   `json:"uniqueCodes"`
	Pending           int64   `json:"pending"`
	MinProcessingTime float64 `json:"minProcessingTime"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
	MaxProcessingTime float64 `json:"maxProcessingTime"`
	MinConfidence     float64 `json:"minConfidence"`
	AvgConfidence     float64 `json:"avgConfidence"`
	MaxConfidence     float64 `json:"maxConfidence"`
}

// PerformanceStats adds throughput to the aggregate
type PerformanceStats struct {
	ScanStatistics
	FirstScan    *time.Time `json:"firstScan,omitempty"`
	LastScan     *time.Time `json:"lastScan,omitempty"`
	ScansPerHour float64    `json:"scansPerHour"`
}

// TimeBucket is one hourly or daily group
type TimeBucket struct {
	Bucket            string  `json:"bucket"`
	TotalScans        int64   `json:"totalScans"`
	UniqueCodes       int64   `json:"uniqueCodes"`
	MinProcessingTime float64 `json:"minProcessingTime"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
	MaxProcessingTime float64 `json:"maxProcessingTime"`
	AvgConfidence     float64 `json:"avgConfidence"`
}

// SourceStats summarizes one scanning station
type SourceStats struct {
	CameraID          string    `json:"cameraId"`
	TotalScans        int64     `json:"totalScans"`
	LastScan          time.Time `json:"lastScan"`
	AvgProcessingTime float64   `json:"avgProcessingTime"`
}

// ProductCount is one row of the most-scanned list
type ProductCount struct {
	QRCode      string    `json:"qrCode"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	ScanCount   int64     `json:"scanCount"`
	LastScan    time.Time `json:"lastScan"`
}

// StatsQuery selects the window and source for aggregate queries
type StatsQuery struct {
	CameraID string
	Since    time.Time
}
