package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/models"
	"github.com/xelth-com/eckscan/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	scans []models.ScanBroadcast
}

func (b *recordingBroadcaster) BroadcastScan(scan models.ScanBroadcast) {
	b.mu.Lock()
	b.scans = append(b.scans, scan)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scans)
}

// failingStore errors on every save
type failingStore struct {
	database.Store
	err error
}

func (s *failingStore) SaveScan(ctx context.Context, ev *models.ScanEvent) (database.SaveResult, error) {
	return database.SaveResult{}, s.err
}

// countingStore counts save attempts and fails the first failFirst of them
type countingStore struct {
	database.Store
	mu        sync.Mutex
	saves     int
	failFirst int
}

func (s *countingStore) SaveScan(ctx context.Context, ev *models.ScanEvent) (database.SaveResult, error) {
	s.mu.Lock()
	s.saves++
	fail := s.saves <= s.failFirst
	s.mu.Unlock()
	if fail {
		return database.SaveResult{}, errors.New("connection reset")
	}
	return s.Store.SaveScan(ctx, ev)
}

func (s *countingStore) saveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestPipeline(store database.Store, opts Options) (*Pipeline, *recordingBroadcaster, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	b := &recordingBroadcaster{}
	p := NewPipeline(store, utils.NewDeduplicator(500*time.Millisecond, 100), b, zap.NewNop(), opts)
	return p, b, clock
}

func TestIngestDelimitedCode(t *testing.T) {
	store := database.NewMemoryStore()
	p, b, _ := newTestPipeline(store, Options{})

	res := p.Ingest(context.Background(), "SKU-001|WidgetA|BATCH7", "cam-1", DirectDefaults())
	if res.Status != models.OutcomeSuccess {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}
	if res.ScanID != 1 || res.ProductID != "SKU-001" || res.ProductName != "WidgetA" || res.BatchCode != "BATCH7" {
		t.Errorf("unexpected result: %+v", res)
	}
	if b.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", b.count())
	}
	if got := b.scans[0]; got.ScanID != 1 || got.CameraID != "cam-1" || got.ProcessingTimeMs != 10 || got.Confidence != 1.0 {
		t.Errorf("unexpected broadcast: %+v", got)
	}

	ev, err := store.GetByCode(context.Background(), "SKU-001|WidgetA|BATCH7")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if ev.Status != models.ScanStatusNew || ev.SourceID != "cam-1" || ev.Payload["batchCode"] != "BATCH7" {
		t.Errorf("unexpected stored event: %+v", ev)
	}
}

func TestIngestOutcomes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		meta Meta
		want models.Outcome
	}{
		{"too short", "abcd", DirectDefaults(), models.OutcomeInvalid},
		{"too long", strings.Repeat("x", 501), DirectDefaults(), models.OutcomeInvalid},
		{"control char", "abc\ndef", DirectDefaults(), models.OutcomeInvalid},
		{"non ascii", "café-123", DirectDefaults(), models.OutcomeInvalid},
		{"confidence above one", "PLAIN-0001", Meta{Confidence: 1.5}, models.OutcomeInvalid},
		{"negative processing time", "PLAIN-0002", Meta{ProcessingTimeMs: -1, Confidence: 0.5}, models.OutcomeInvalid},
		{"plain", "PLAIN-0003", DirectDefaults(), models.OutcomeSuccess},
		{"five chars", "ABCDE", DirectDefaults(), models.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, b, _ := newTestPipeline(database.NewMemoryStore(), Options{})
			res := p.Ingest(context.Background(), tt.raw, "", tt.meta)
			if res.Status != tt.want {
				t.Fatalf("status = %s, want %s (%s)", res.Status, tt.want, res.Message)
			}
			wantBroadcasts := 0
			if tt.want == models.OutcomeSuccess {
				wantBroadcasts = 1
			}
			if b.count() != wantBroadcasts {
				t.Errorf("broadcasts = %d, want %d", b.count(), wantBroadcasts)
			}
		})
	}
}

func TestIngestDebounceAndPersistedDuplicate(t *testing.T) {
	store := &countingStore{Store: database.NewMemoryStore()}
	p, b, clock := newTestPipeline(store, Options{})
	ctx := context.Background()

	if res := p.Ingest(ctx, "REPEAT-01", "cam", DirectDefaults()); !res.OK() {
		t.Fatalf("first scan: %+v", res)
	}
	clock.Advance(100 * time.Millisecond)
	if res := p.Ingest(ctx, "REPEAT-01", "cam", DirectDefaults()); res.Status != models.OutcomeDuplicate {
		t.Fatalf("inside window: %s", res.Status)
	}

	// past the window the debounce admits, the unique key still rejects
	clock.Advance(time.Second)
	if res := p.Ingest(ctx, "REPEAT-01", "cam", DirectDefaults()); res.Status != models.OutcomeDuplicate {
		t.Fatalf("after window: %s", res.Status)
	}
	if b.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", b.count())
	}
	// the debounced repeat never reached the store
	if store.saveCalls() != 2 {
		t.Errorf("SaveScan calls = %d, want 2", store.saveCalls())
	}
}

func TestIngestRetryAfterStoreFailure(t *testing.T) {
	store := &countingStore{Store: database.NewMemoryStore(), failFirst: 1}
	p, b, clock := newTestPipeline(store, Options{})
	ctx := context.Background()

	if res := p.Ingest(ctx, "RETRY-0001", "cam", DirectDefaults()); res.Status != models.OutcomeError {
		t.Fatalf("first attempt: %+v", res)
	}
	// a retry inside the debounce window still reaches the store
	clock.Advance(100 * time.Millisecond)
	res := p.Ingest(ctx, "RETRY-0001", "cam", DirectDefaults())
	if !res.OK() || res.ScanID != 1 {
		t.Fatalf("retry: %+v", res)
	}
	if store.saveCalls() != 2 || b.count() != 1 {
		t.Errorf("saves = %d, broadcasts = %d, want 2 and 1", store.saveCalls(), b.count())
	}
}

func TestIngestStoreFailure(t *testing.T) {
	p, b, _ := newTestPipeline(&failingStore{err: errors.New("disk full")}, Options{})
	res := p.Ingest(context.Background(), "FAIL-0001", "cam", DirectDefaults())
	if res.Status != models.OutcomeError || res.Message != "disk full" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if b.count() != 0 {
		t.Errorf("failed save must not broadcast")
	}
}

func TestIngestSubmissionHints(t *testing.T) {
	p, _, _ := newTestPipeline(database.NewMemoryStore(), Options{})
	ctx := context.Background()
	pt := int64(42)
	conf := 0.8

	res := p.IngestSubmission(ctx, models.Submission{
		QRCode:         "PLAIN-HINT",
		ProductID:      "client-id",
		ProductName:    "Client Name",
		CameraID:       "cam-9",
		ProcessingTime: &pt,
		Confidence:     &conf,
	}, "", DirectDefaults())
	if !res.OK() {
		t.Fatalf("plain submission: %+v", res)
	}
	if res.ProductID != "client-id" || res.ProductName != "Client Name" || res.CameraID != "cam-9" {
		t.Errorf("hints ignored on plain code: %+v", res)
	}
	if res.ProcessingTimeMs != 42 || res.Confidence != 0.8 {
		t.Errorf("metadata ignored: %+v", res)
	}

	res = p.IngestSubmission(ctx, models.Submission{
		QRCode:      "SKU-9|Real|B1",
		ProductID:   "client-id",
		ProductName: "Client Name",
	}, "", DirectDefaults())
	if res.ProductID != "SKU-9" || res.ProductName != "Real" {
		t.Errorf("structured code must win over hints: %+v", res)
	}
	if res.CameraID != models.DefaultSourceID || res.ProcessingTimeMs != 10 || res.Confidence != 1.0 {
		t.Errorf("defaults not applied: %+v", res)
	}
}

func TestIngestBatch(t *testing.T) {
	p, b, _ := newTestPipeline(database.NewMemoryStore(), Options{})
	scans := []json.RawMessage{
		json.RawMessage(`"BATCH-0001"`),
		json.RawMessage(`"BATCH-0001"`),
		json.RawMessage(`"bad"`),
		json.RawMessage(`12345`),
		json.RawMessage(`"SKU-2|Gadget"`),
	}

	out := p.IngestBatch(context.Background(), scans, "cam-b")
	if out.Processed != len(scans) || len(out.Results) != len(scans) {
		t.Fatalf("processed = %d, results = %d", out.Processed, len(out.Results))
	}
	want := []models.Outcome{
		models.OutcomeSuccess,
		models.OutcomeDuplicate,
		models.OutcomeInvalid,
		models.OutcomeInvalid,
		models.OutcomeSuccess,
	}
	for i, w := range want {
		if out.Results[i].Status != w {
			t.Errorf("item %d status = %s, want %s", i, out.Results[i].Status, w)
		}
	}
	if out.Results[3].QRCode != "12345" {
		t.Errorf("non-string entry echoed as %q", out.Results[3].QRCode)
	}
	if out.Results[4].ProductID != "SKU-2" || out.Results[4].ScanID != 2 {
		t.Errorf("unexpected item: %+v", out.Results[4])
	}
	if b.count() != 2 {
		t.Errorf("broadcasts = %d, want 2", b.count())
	}
	if got := b.scans[0]; got.Confidence != 0.9 || got.ProcessingTimeMs != 0 {
		t.Errorf("batch defaults not applied: %+v", got)
	}
}

func TestIngestCodesEmpty(t *testing.T) {
	p, _, _ := newTestPipeline(database.NewMemoryStore(), Options{})
	out := p.IngestCodes(context.Background(), nil, "")
	if out.Processed != 0 || len(out.Results) != 0 {
		t.Errorf("unexpected result for empty batch: %+v", out)
	}
}

func TestIngestFrame(t *testing.T) {
	decoder := DecoderFunc(func(ctx context.Context, f Frame) (Decoded, error) {
		if string(f.Data) == "blank" {
			return Decoded{}, ErrDecodeFailed
		}
		return Decoded{Data: string(f.Data), ProcessingTimeMs: 7, Confidence: 0.95}, nil
	})
	p, _, _ := newTestPipeline(database.NewMemoryStore(), Options{Decoder: decoder})
	ctx := context.Background()
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	res := p.IngestFrame(ctx, models.FrameSubmission{ImageData: enc("FRAME-001"), Width: 640, Height: 480, CameraID: "cam-f"})
	if !res.OK() || res.ProcessingTimeMs != 7 || res.Confidence != 0.95 || res.CameraID != "cam-f" {
		t.Fatalf("decoded frame: %+v", res)
	}

	res = p.IngestFrame(ctx, models.FrameSubmission{ImageData: enc("blank"), Width: 640, Height: 480})
	if res.Status != models.OutcomeNotFound {
		t.Errorf("blank frame status = %s", res.Status)
	}

	res = p.IngestFrame(ctx, models.FrameSubmission{ImageData: "%%%", Width: 640, Height: 480})
	if res.Status != models.OutcomeInvalid {
		t.Errorf("bad base64 status = %s", res.Status)
	}
}

func TestIngestFrameWithoutDecoder(t *testing.T) {
	p, _, _ := newTestPipeline(database.NewMemoryStore(), Options{})
	res := p.IngestFrame(context.Background(), models.FrameSubmission{
		ImageData: base64.StdEncoding.EncodeToString([]byte("pixels")),
		Width:     1,
		Height:    1,
	})
	if res.Status != models.OutcomeNotFound {
		t.Errorf("status = %s, want not_found", res.Status)
	}
}

func TestClearCacheAndWindow(t *testing.T) {
	p, _, clock := newTestPipeline(database.NewMemoryStore(), Options{})
	ctx := context.Background()

	p.SetDedupWindow(2 * time.Second)
	if p.DedupWindow() != 2*time.Second {
		t.Fatalf("window = %v", p.DedupWindow())
	}
	p.Ingest(ctx, "WINDOW-01", "", DirectDefaults())
	clock.Advance(time.Second)
	if res := p.Ingest(ctx, "WINDOW-01", "", DirectDefaults()); res.Status != models.OutcomeDuplicate {
		t.Fatalf("status = %s", res.Status)
	}

	p.ClearCache()
	// cache is empty but the code is already persisted
	if res := p.Ingest(ctx, "WINDOW-01", "", DirectDefaults()); res.Status != models.OutcomeDuplicate {
		t.Fatalf("after clear status = %s", res.Status)
	}
}

func TestConcurrentIngestSameCode(t *testing.T) {
	p, b, _ := newTestPipeline(database.NewMemoryStore(), Options{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Ingest(context.Background(), "RACE-0001", "cam", DirectDefaults()).OK() {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 || b.count() != 1 {
		t.Errorf("success = %d, broadcasts = %d, want 1 each", success, b.count())
	}
}
