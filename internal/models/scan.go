package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ScanStatus is the lifecycle tag of a persisted scan
type ScanStatus string

const (
	ScanStatusNew       ScanStatus = "new"       // Freshly accepted
	ScanStatusProcessed ScanStatus = "processed" // Handled downstream
	ScanStatusArchived  ScanStatus = "archived"  // Kept for history only
)

// ErrInvalidStatus is returned for a status outside the lifecycle enum
var ErrInvalidStatus = errors.New("invalid scan status")

// ParseScanStatus validates a raw status string
func ParseScanStatus(s string) (ScanStatus, error) {
	switch ScanStatus(s) {
	case ScanStatusNew, ScanStatusProcessed, ScanStatusArchived:
		return ScanStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// Sentinels used when the payload does not carry product data
const (
	UnknownProductName = "Unknown"
	DefaultSourceID    = "default"
)

// ScanEvent is one accepted scan.
// Convention: Go PascalCase -> DB snake_case (column names kept from the
// legacy qr_scans table) -> JSON camelCase
type ScanEvent struct {
	ID               uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code             string            `gorm:"column:qr_code;type:varchar(500);not null;uniqueIndex:idx_qr_code" json:"qrCode"`
	ProductName      string            `gorm:"column:product_name" json:"productName"`
	ProductID        string            `gorm:"column:product_id" json:"productId"`
	SourceID         string            `gorm:"column:camera_id;index:idx_camera_id" json:"cameraId"`
	ScanTime         time.Time         `gorm:"column:scan_time;index:idx_scan_time" json:"scanTime"`
	Status           ScanStatus        `gorm:"column:status;type:varchar(20);default:'new'" json:"status"`
	ProcessingTimeMs int64             `gorm:"column:processing_time_ms" json:"processingTimeMs"`
	Confidence       float64           `gorm:"column:confidence" json:"confidence"`
	Payload          datatypes.JSONMap `gorm:"column:payload" json:"payload,omitempty"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name for ScanEvent
func (ScanEvent) TableName() string {
	return "qr_scans"
}
