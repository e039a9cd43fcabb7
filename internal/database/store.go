package database

import (
	"context"
	"errors"

	"github.com/xelth-com/eckscan/internal/models"
)

const (
	// DefaultRecentLimit is used when a caller asks for a non-positive limit
	DefaultRecentLimit = 50
	// MaxRecentLimit caps every history query
	MaxRecentLimit = 500
	// DefaultTopProducts and MaxTopProducts bound the most-scanned list
	DefaultTopProducts = 20
	MaxTopProducts     = 100

	BackendGorm   = "gorm"
	BackendMemory = "memory"
)

var (
	// ErrDuplicateKey is returned when a code is already persisted
	ErrDuplicateKey = errors.New("duplicate qr code")
	// ErrNotFound is returned when no scan matches
	ErrNotFound = errors.New("scan not found")
)

// SaveResult is returned by a successful SaveScan
type SaveResult struct {
	ID   uint64 `json:"id"`
	Code string `json:"qrCode"`
}

// Store is the persistence gateway. Both implementations share the same
// semantics so callers never branch on which one is live.
type Store interface {
	// SaveScan assigns ev.ID and persists ev. Fails with ErrDuplicateKey
	// when the code already exists.
	SaveScan(ctx context.Context, ev *models.ScanEvent) (SaveResult, error)
	// GetRecent returns newest first, limit clamped to MaxRecentLimit
	GetRecent(ctx context.Context, limit int, cameraID string) ([]models.ScanEvent, error)
	GetByCode(ctx context.Context, code string) (*models.ScanEvent, error)
	GetStatistics(ctx context.Context, q models.StatsQuery) (*models.ScanStatistics, error)
	GetPerformance(ctx context.Context, q models.StatsQuery) (*models.PerformanceStats, error)
	GetHourly(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error)
	GetDaily(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error)
	GetSources(ctx context.Context) ([]models.SourceStats, error)
	GetTopProducts(ctx context.Context, q models.StatsQuery, limit int) ([]models.ProductCount, error)
	UpdateStatus(ctx context.Context, id uint64, status models.ScanStatus) error
	Backend() string
	Close() error
}

// ClampLimit applies the default and the hard ceiling
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
