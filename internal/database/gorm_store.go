package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xelth-com/eckscan/internal/models"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// GormStore is the durable backend. The unique index on qr_code makes
// duplicate detection atomic inside the database.
type GormStore struct {
	db  *DB
	log *zap.Logger
}

// NewGormStore wraps an open connection. Call Migrate before use.
func NewGormStore(db *DB, log *zap.Logger) *GormStore {
	return &GormStore{db: db, log: log.Named("store")}
}

// Migrate creates or updates the qr_scans table
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&models.ScanEvent{})
}

func (s *GormStore) SaveScan(ctx context.Context, ev *models.ScanEvent) (SaveResult, error) {
	if ev.Status == "" {
		ev.Status = models.ScanStatusNew
	}
	if ev.ScanTime.IsZero() {
		ev.ScanTime = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		ev.ID = 0
		if isUniqueViolation(err) {
			return SaveResult{}, ErrDuplicateKey
		}
		s.log.Error("Error saving scan", zap.String("qr_code", ev.Code), zap.Error(err))
		return SaveResult{}, err
	}
	return SaveResult{ID: ev.ID, Code: ev.Code}, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *GormStore) GetRecent(ctx context.Context, limit int, cameraID string) ([]models.ScanEvent, error) {
	limit = ClampLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	query := s.db.WithContext(ctx).Order("scan_time DESC, id DESC").Limit(limit)
	if cameraID != "" {
		query = query.Where("camera_id = ?", cameraID)
	}
	var scans []models.ScanEvent
	if err := query.Find(&scans).Error; err != nil {
		s.log.Error("Error fetching scans", zap.Error(err))
		return nil, err
	}
	return scans, nil
}

func (s *GormStore) GetByCode(ctx context.Context, code string) (*models.ScanEvent, error) {
	var ev models.ScanEvent
	err := s.db.WithContext(ctx).Where("qr_code = ?", code).Order("scan_time DESC").First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// scoped applies the camera and window filter of q
func (s *GormStore) scoped(ctx context.Context, q models.StatsQuery) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ScanEvent{})
	if !q.Since.IsZero() {
		query = query.Where("scan_time >= ?", q.Since)
	}
	if q.CameraID != "" {
		query = query.Where("camera_id = ?", q.CameraID)
	}
	return query
}

// window loads the columns the in-process aggregations need
func (s *GormStore) window(ctx context.Context, q models.StatsQuery) ([]models.ScanEvent, error) {
	var scans []models.ScanEvent
	err := s.scoped(ctx, q).
		Select("id", "qr_code", "product_id", "product_name", "camera_id", "scan_time", "status", "processing_time_ms", "confidence").
		Find(&scans).Error
	if err != nil {
		s.log.Error("Error fetching scan window", zap.Error(err))
		return nil, err
	}
	return scans, nil
}

type statisticsRow struct {
	TotalScans        int64
	UniqueCodes       int64
	Pending           *int64
	MinProcessingTime *float64
	AvgProcessingTime *float64
	MaxProcessingTime *float64
	MinConfidence     *float64
	AvgConfidence     *float64
	MaxConfidence     *float64
}

func (s *GormStore) GetStatistics(ctx context.Context, q models.StatsQuery) (*models.ScanStatistics, error) {
	var row statisticsRow
	err := s.scoped(ctx, q).Select(`
		COUNT(*) AS total_scans,
		COUNT(DISTINCT qr_code) AS unique_codes,
		SUM(CASE WHEN status = 'new' THEN 1 ELSE 0 END) AS pending,
		MIN(processing_time_ms) AS min_processing_time,
		AVG(processing_time_ms) AS avg_processing_time,
		MAX(processing_time_ms) AS max_processing_time,
		MIN(confidence) AS min_confidence,
		AVG(confidence) AS avg_confidence,
		MAX(confidence) AS max_confidence`).
		Scan(&row).Error
	if err != nil {
		s.log.Error("Error fetching statistics", zap.Error(err))
		return nil, err
	}
	return &models.ScanStatistics{
		CameraID:          q.CameraID,
		TotalScans:        row.TotalScans,
		UniqueCodes:       row.UniqueCodes,
		Pending:           deref(row.Pending),
		MinProcessingTime: deref(row.MinProcessingTime),
		AvgProcessingTime: deref(row.AvgProcessingTime),
		MaxProcessingTime: deref(row.MaxProcessingTime),
		MinConfidence:     deref(row.MinConfidence),
		AvgConfidence:     deref(row.AvgConfidence),
		MaxConfidence:     deref(row.MaxConfidence),
	}, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func (s *GormStore) GetPerformance(ctx context.Context, q models.StatsQuery) (*models.PerformanceStats, error) {
	scans, err := s.window(ctx, q)
	if err != nil {
		return nil, err
	}
	p := performance(scans)
	p.CameraID = q.CameraID
	return &p, nil
}

func (s *GormStore) GetHourly(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error) {
	scans, err := s.window(ctx, q)
	if err != nil {
		return nil, err
	}
	return bucketize(scans, hourBucketLayout), nil
}

func (s *GormStore) GetDaily(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error) {
	scans, err := s.window(ctx, q)
	if err != nil {
		return nil, err
	}
	return bucketize(scans, dayBucketLayout), nil
}

func (s *GormStore) GetSources(ctx context.Context) ([]models.SourceStats, error) {
	scans, err := s.window(ctx, models.StatsQuery{})
	if err != nil {
		return nil, err
	}
	return sourceStats(scans), nil
}

func (s *GormStore) GetTopProducts(ctx context.Context, q models.StatsQuery, limit int) ([]models.ProductCount, error) {
	limit = ClampLimit(limit, DefaultTopProducts, MaxTopProducts)
	scans, err := s.window(ctx, q)
	if err != nil {
		return nil, err
	}
	return topProducts(scans, limit), nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id uint64, status models.ScanStatus) error {
	if _, err := models.ParseScanStatus(string(status)); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.ScanEvent{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		s.log.Error("Error updating scan status", zap.Uint64("id", id), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Backend() string { return BackendGorm + "/" + s.db.Driver() }

func (s *GormStore) Close() error { return s.db.Close() }
