package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/models"
	"github.com/xelth-com/eckscan/internal/utils"
)

const (
	// Defaults applied per entry point when the caller sends no metadata
	directProcessingTime int64   = 10
	directConfidence     float64 = 1.0
	batchConfidence      float64 = 0.9
	defaultStoreTimeout          = 5 * time.Second
)

// Broadcaster receives every persisted scan
type Broadcaster interface {
	BroadcastScan(scan models.ScanBroadcast)
}

// Meta is decode metadata attached to a raw code
type Meta struct {
	ProcessingTimeMs int64
	Confidence       float64
	// Hints are client-declared product fields, used only when the code
	// itself carries no product structure
	ProductID   string
	ProductName string
}

// Options tunes a Pipeline
type Options struct {
	StoreTimeout time.Duration
	Decoder      Decoder
	Now          func() time.Time
}

// Pipeline runs validate -> dedup -> parse -> persist -> broadcast for
// every scan, whatever transport it arrived on.
type Pipeline struct {
	store        database.Store
	dedup        *utils.Deduplicator
	broadcaster  Broadcaster
	decoder      Decoder
	storeTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewPipeline wires the pipeline. broadcaster may be nil until SetBroadcaster.
func NewPipeline(store database.Store, dedup *utils.Deduplicator, broadcaster Broadcaster, log *zap.Logger, opts Options) *Pipeline {
	p := &Pipeline{
		store:        store,
		dedup:        dedup,
		broadcaster:  broadcaster,
		decoder:      opts.Decoder,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
		log:          log.Named("ingest"),
	}
	if p.decoder == nil {
		p.decoder = NoDecoder{}
	}
	if p.storeTimeout <= 0 {
		p.storeTimeout = defaultStoreTimeout
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// SetBroadcaster installs the fan-out target. The hub and the pipeline
// reference each other, so one of them is wired after construction.
func (p *Pipeline) SetBroadcaster(b Broadcaster) {
	p.broadcaster = b
}

// Store exposes the persistence gateway for read-only query handlers
func (p *Pipeline) Store() database.Store {
	return p.store
}

// Ingest runs one raw code through the pipeline. Every outcome is a
// result; nothing here returns an error.
func (p *Pipeline) Ingest(ctx context.Context, raw, source string, meta Meta) models.ScanResult {
	now := p.now()
	if source == "" {
		source = models.DefaultSourceID
	}
	result := models.ScanResult{
		QRCode:           raw,
		CameraID:         source,
		ProcessingTimeMs: meta.ProcessingTimeMs,
		Confidence:       meta.Confidence,
		Timestamp:        now,
	}

	// 1. Validate
	if !utils.ValidateCode(raw) {
		result.Status = models.OutcomeInvalid
		result.Message = "Invalid QR data"
		return result
	}
	if meta.Confidence < 0 || meta.Confidence > 1 || meta.ProcessingTimeMs < 0 {
		result.Status = models.OutcomeInvalid
		result.Message = "Invalid scan metadata"
		return result
	}

	// 2. Debounce
	if !p.dedup.Admit(raw, now) {
		result.Status = models.OutcomeDuplicate
		result.Message = "Duplicate scan detected"
		return result
	}

	// 3. Parse
	parsed := utils.ParsePayload(raw)
	if parsed.Kind == utils.PayloadPlain {
		if meta.ProductID != "" {
			parsed.ProductID = meta.ProductID
		}
		if meta.ProductName != "" {
			parsed.ProductName = meta.ProductName
		}
	}
	result.ProductID = parsed.ProductID
	result.ProductName = parsed.ProductName
	result.BatchCode = parsed.BatchCode
	result.Fields = parsed.ToMap()

	// 4. Persist
	ev := &models.ScanEvent{
		Code:             raw,
		ProductName:      parsed.ProductName,
		ProductID:        parsed.ProductID,
		SourceID:         source,
		ScanTime:         now,
		Status:           models.ScanStatusNew,
		ProcessingTimeMs: meta.ProcessingTimeMs,
		Confidence:       meta.Confidence,
	}
	if parsed.Kind != utils.PayloadPlain {
		ev.Payload = result.Fields
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	saved, err := p.store.SaveScan(storeCtx, ev)
	cancel()
	if errors.Is(err, database.ErrDuplicateKey) {
		result.Status = models.OutcomeDuplicate
		result.Message = "Duplicate scan detected"
		return result
	}
	if err != nil {
		// Nothing was stored, so a retry must reach the store again
		p.dedup.Forget(raw, now)
		p.log.Error("Error saving scan", zap.String("qr_code", raw), zap.String("camera_id", source), zap.Error(err))
		result.Status = models.OutcomeError
		result.Message = err.Error()
		return result
	}

	// 5. Broadcast
	result.Status = models.OutcomeSuccess
	result.ScanID = saved.ID
	result.Message = "QR code scanned successfully"
	if p.broadcaster != nil {
		p.broadcaster.BroadcastScan(models.ScanBroadcast{
			ScanID:           saved.ID,
			QRCode:           raw,
			ProductName:      parsed.ProductName,
			ProductID:        parsed.ProductID,
			BatchCode:        parsed.BatchCode,
			CameraID:         source,
			ProcessingTimeMs: meta.ProcessingTimeMs,
			Confidence:       meta.Confidence,
			Timestamp:        now,
		})
	}
	p.log.Debug("Scan accepted", zap.Uint64("scan_id", saved.ID), zap.String("qr_code", raw), zap.String("camera_id", source))
	return result
}

// IngestSubmission applies the per-field defaults of a direct submission
func (p *Pipeline) IngestSubmission(ctx context.Context, sub models.Submission, source string, defaults Meta) models.ScanResult {
	meta := defaults
	if sub.ProcessingTime != nil {
		meta.ProcessingTimeMs = *sub.ProcessingTime
	}
	if sub.Confidence != nil {
		meta.Confidence = *sub.Confidence
	}
	meta.ProductID = sub.ProductID
	meta.ProductName = sub.ProductName
	if source == "" {
		source = sub.CameraID
	}
	return p.Ingest(ctx, sub.QRCode, source, meta)
}

// DirectDefaults is the metadata assumed for manual HTTP submissions
func DirectDefaults() Meta {
	return Meta{ProcessingTimeMs: directProcessingTime, Confidence: directConfidence}
}

// StreamDefaults is the metadata assumed for stream and batch items
func StreamDefaults() Meta {
	return Meta{ProcessingTimeMs: 0, Confidence: batchConfidence}
}

// IngestBatch runs every entry independently. Non-string entries are
// invalid. Processed always equals the number of entries.
func (p *Pipeline) IngestBatch(ctx context.Context, scans []json.RawMessage, source string) models.BatchResult {
	out := models.BatchResult{
		Processed: len(scans),
		Results:   make([]models.BatchItemResult, 0, len(scans)),
	}
	for _, entry := range scans {
		code, ok := utils.CodeFromJSON(entry)
		if !ok {
			out.Results = append(out.Results, models.BatchItemResult{QRCode: code, Status: models.OutcomeInvalid})
			continue
		}
		r := p.Ingest(ctx, code, source, StreamDefaults())
		item := models.BatchItemResult{QRCode: code, Status: r.Status}
		switch r.Status {
		case models.OutcomeSuccess:
			item.ScanID = r.ScanID
			item.ProductID = r.ProductID
			item.ProductName = r.ProductName
			item.BatchCode = r.BatchCode
		case models.OutcomeError:
			item.Message = r.Message
		}
		out.Results = append(out.Results, item)
	}
	return out
}

// IngestCodes is IngestBatch for callers that already hold strings
func (p *Pipeline) IngestCodes(ctx context.Context, codes []string, source string) models.BatchResult {
	raw := make([]json.RawMessage, 0, len(codes))
	for _, c := range codes {
		b, _ := json.Marshal(c)
		raw = append(raw, b)
	}
	return p.IngestBatch(ctx, raw, source)
}

// IngestFrame decodes raw pixels first; only a successful decode
// reaches the pipeline.
func (p *Pipeline) IngestFrame(ctx context.Context, sub models.FrameSubmission) models.ScanResult {
	source := sub.CameraID
	if source == "" {
		source = models.DefaultSourceID
	}
	data, err := base64.StdEncoding.DecodeString(sub.ImageData)
	if err != nil || sub.Width <= 0 || sub.Height <= 0 {
		return models.ScanResult{
			Status:    models.OutcomeInvalid,
			CameraID:  source,
			Timestamp: p.now(),
			Message:   "Invalid image data",
		}
	}

	start := time.Now()
	decoded, err := p.decoder.Decode(ctx, Frame{Data: data, Width: sub.Width, Height: sub.Height})
	if err != nil {
		if !errors.Is(err, ErrDecodeFailed) {
			p.log.Error("Error scanning frame", zap.String("camera_id", source), zap.Error(err))
		}
		return models.ScanResult{
			Status:           models.OutcomeNotFound,
			CameraID:         source,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Timestamp:        p.now(),
			Message:          "No QR code detected",
		}
	}
	if decoded.ProcessingTimeMs == 0 {
		decoded.ProcessingTimeMs = time.Since(start).Milliseconds()
	}
	return p.Ingest(ctx, decoded.Data, source, Meta{
		ProcessingTimeMs: decoded.ProcessingTimeMs,
		Confidence:       decoded.Confidence,
	})
}

// ClearCache drops every debounce entry; persisted history is untouched
func (p *Pipeline) ClearCache() {
	p.dedup.Clear()
	p.log.Info("Deduplication cache cleared")
}

// SetDedupWindow changes the debounce window for subsequent scans
func (p *Pipeline) SetDedupWindow(window time.Duration) {
	p.dedup.SetWindow(window)
	p.log.Info("Deduplication window changed", zap.Duration("window", window))
}

// DedupWindow returns the current debounce window
func (p *Pipeline) DedupWindow() time.Duration {
	return p.dedup.Window()
}
