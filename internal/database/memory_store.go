package database

import (
	"context"
	"sync"
	"time"

	"github.com/xelth-com/eckscan/internal/models"
)

// MemoryStore is the in-process fallback used when the durable backend
// cannot be opened. Scans live in an append-only slice ordered by id.
type MemoryStore struct {
	mu     sync.RWMutex
	scans  []models.ScanEvent
	byCode map[string]int
	nextID uint64
	now    func() time.Time
}

// NewMemoryStore creates an empty fallback store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode: make(map[string]int),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) SaveScan(ctx context.Context, ev *models.ScanEvent) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[ev.Code]; exists {
		return SaveResult{}, ErrDuplicateKey
	}

	ev.ID = s.nextID
	s.nextID++
	if ev.Status == "" {
		ev.Status = models.ScanStatusNew
	}
	if ev.ScanTime.IsZero() {
		ev.ScanTime = s.now()
	}
	ev.CreatedAt = s.now()

	s.byCode[ev.Code] = len(s.scans)
	s.scans = append(s.scans, *ev)
	return SaveResult{ID: ev.ID, Code: ev.Code}, nil
}

func (s *MemoryStore) GetRecent(ctx context.Context, limit int, cameraID string) ([]models.ScanEvent, error) {
	limit = ClampLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ScanEvent, 0, min(limit, len(s.scans)))
	for _, ev := range s.scans {
		if cameraID != "" && ev.SourceID != cameraID {
			continue
		}
		out = append(out, ev)
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetByCode(ctx context.Context, code string) (*models.ScanEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	ev := s.scans[i]
	return &ev, nil
}

// window copies the events matching q
func (s *MemoryStore) window(q models.StatsQuery) []models.ScanEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScanEvent
	for _, ev := range s.scans {
		if inWindow(ev, q) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *MemoryStore) GetStatistics(ctx context.Context, q models.StatsQuery) (*models.ScanStatistics, error) {
	stats := summarize(s.window(q))
	stats.CameraID = q.CameraID
	return &stats, nil
}

func (s *MemoryStore) GetPerformance(ctx context.Context, q models.StatsQuery) (*models.PerformanceStats, error) {
	p := performance(s.window(q))
	p.CameraID = q.CameraID
	return &p, nil
}

func (s *MemoryStore) GetHourly(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error) {
	return bucketize(s.window(q), hourBucketLayout), nil
}

func (s *MemoryStore) GetDaily(ctx context.Context, q models.StatsQuery) ([]models.TimeBucket, error) {
	return bucketize(s.window(q), dayBucketLayout), nil
}

func (s *MemoryStore) GetSources(ctx context.Context) ([]models.SourceStats, error) {
	return sourceStats(s.window(models.StatsQuery{})), nil
}

func (s *MemoryStore) GetTopProducts(ctx context.Context, q models.StatsQuery, limit int) ([]models.ProductCount, error) {
	limit = ClampLimit(limit, DefaultTopProducts, MaxTopProducts)
	return topProducts(s.window(q), limit), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uint64, status models.ScanStatus) error {
	if _, err := models.ParseScanStatus(string(status)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// ids are dense and start at 1
	if id == 0 || id >= s.nextID {
		return ErrNotFound
	}
	s.scans[id-1].Status = status
	return nil
}

func (s *MemoryStore) Backend() string { return BackendMemory }

func (s *MemoryStore) Close() error { return nil }
