// Package ingest runs the upload pipeline: decode, hash, parse, detect,
// persist. One Process call handles one uploaded file end to end; the
// upload id keys everything it produced.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/forenx/sentinel/internal/detect"
	"github.com/forenx/sentinel/internal/geoip"
	"github.com/forenx/sentinel/internal/metrics"
	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/notifier"
	"github.com/forenx/sentinel/internal/parser"
	"github.com/forenx/sentinel/internal/rules"
	"github.com/forenx/sentinel/internal/store"
)

// DefaultMaxSizeBytes caps one decoded upload at 100 MB.
const DefaultMaxSizeBytes = 100 << 20

// DefaultTopN is the ranking depth for per-upload aggregated metrics.
const DefaultTopN = 10

// Config wires the pipeline's collaborators. Store is required; every
// other field is optional and disables its step when nil.
type Config struct {
	Store store.Store

	// Buffer receives parsed access entries for in-memory querying.
	Buffer *store.RecentBuffer

	// Archive receives parsed access entries for large-volume querying.
	Archive *store.EntryArchive

	// Rules contributes custom detection rules to the analysis pass.
	Rules *rules.Set

	// Geo annotates alerts with country/city.
	Geo *geoip.Resolver

	// Dispatcher forwards persisted alerts to notification sinks.
	Dispatcher *notifier.Dispatcher

	// OnAlerts is called with each upload's persisted alerts, after
	// storage and before notification. Used for live feeds.
	OnAlerts func(alerts []models.AttackAlert)

	MaxSizeBytes int64
	TopN         int
}

// Pipeline processes uploads.
type Pipeline struct {
	store      store.Store
	engine     *detect.Engine
	buffer     *store.RecentBuffer
	archive    *store.EntryArchive
	rules      *rules.Set
	geo        *geoip.Resolver
	dispatcher *notifier.Dispatcher
	onAlerts   func([]models.AttackAlert)

	maxSize int64
	topN    int
}

// NewPipeline creates a pipeline from the given configuration.
func NewPipeline(config Config) (*Pipeline, error) {
	if config.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if config.MaxSizeBytes <= 0 {
		config.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if config.TopN <= 0 {
		config.TopN = DefaultTopN
	}

	return &Pipeline{
		store:      config.Store,
		engine:     detect.NewEngine(),
		buffer:     config.Buffer,
		archive:    config.Archive,
		rules:      config.Rules,
		geo:        config.Geo,
		dispatcher: config.Dispatcher,
		onAlerts:   config.OnAlerts,
		maxSize:    config.MaxSizeBytes,
		topN:       config.TopN,
	}, nil
}

// Result summarizes one processed upload.
type Result struct {
	Upload *models.Upload `json:"upload"`

	// Duplicate is true when the content hash matched an earlier
	// upload; Upload then points at the existing record and nothing
	// was re-processed.
	Duplicate bool `json:"duplicate"`

	Stats parser.Stats `json:"stats"`

	// Alerts are the persisted findings, in detection order.
	Alerts []models.AttackAlert `json:"alerts,omitempty"`
}

// Process ingests one uploaded file. format overrides auto-detection
// when non-empty. The upload is rejected only for size or storage
// problems; content that parses to zero entries is still a valid,
// recorded upload.
func (p *Pipeline) Process(ctx context.Context, filename string, format models.LogFormat, r io.Reader) (*Result, error) {
	started := time.Now()

	text, size, err := readContent(filename, r, p.maxSize)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.UploadsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	existing, err := p.store.Uploads().GetBySHA256(ctx, hash)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		return &Result{Upload: existing, Duplicate: true}, nil
	}

	if format == "" {
		sample := text
		if len(sample) > parser.DetectSampleSize {
			sample = sample[:parser.DetectSampleSize]
		}
		format = parser.DetectFormat(sample)
	}

	var result *Result
	if format == models.FormatError {
		result, err = p.processError(ctx, filename, hash, size, text)
	} else {
		result, err = p.processAccess(ctx, filename, hash, size, format, text)
	}
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytesTotal.Add(float64(size))
	metrics.EntriesParsedTotal.Add(float64(result.Stats.Parsed))
	metrics.LinesSkippedTotal.Add(float64(result.Stats.Skipped()))
	metrics.IngestDuration.Observe(time.Since(started).Seconds())

	return result, nil
}

// processAccess runs the full parse/detect/persist path for access logs.
func (p *Pipeline) processAccess(ctx context.Context, filename, hash string, size int64, format models.LogFormat, text string) (*Result, error) {
	entries, stats := parser.ParseAccessLog(text, format)

	analysisStart := time.Now()
	alerts := p.engine.AnalyzeWithRules(entries, p.activeRules())
	metrics.AnalysisDuration.Observe(time.Since(analysisStart).Seconds())

	if p.geo != nil {
		p.geo.Annotate(alerts)
	}

	upload := &models.Upload{
		Filename:     filename,
		SHA256:       hash,
		Format:       format,
		SizeBytes:    size,
		EntryCount:   stats.Parsed,
		SkippedLines: stats.Skipped(),
		AlertCount:   int64(len(alerts)),
		ReceivedAt:   time.Now().UTC(),
	}
	if err := p.store.Uploads().Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	if len(alerts) > 0 {
		if err := p.store.Alerts().InsertBatch(ctx, upload.ID, alerts); err != nil {
			return nil, fmt.Errorf("store alerts: %w", err)
		}
		for i := range alerts {
			metrics.AlertsTotal.WithLabelValues(string(alerts[i].Type)).Inc()
		}
	}

	if len(entries) > 0 {
		if err := p.store.Uploads().SaveMetrics(ctx, upload.ID, detect.ComputeMetrics(entries, p.topN)); err != nil {
			return nil, fmt.Errorf("store metrics: %w", err)
		}
	}

	p.retainEntries(ctx, upload.ID, entries)

	if p.onAlerts != nil && len(alerts) > 0 {
		p.onAlerts(alerts)
	}
	if p.dispatcher != nil && len(alerts) > 0 {
		p.dispatcher.DispatchBatch(ctx, alerts)
	}

	return &Result{Upload: upload, Stats: stats, Alerts: alerts}, nil
}

// processError records an error-log upload. Error entries are counted
// but not analyzed; detection operates on access entries only.
func (p *Pipeline) processError(ctx context.Context, filename, hash string, size int64, text string) (*Result, error) {
	_, stats := parser.ParseErrorLog(text)

	upload := &models.Upload{
		Filename:     filename,
		SHA256:       hash,
		Format:       models.FormatError,
		SizeBytes:    size,
		EntryCount:   stats.Parsed,
		SkippedLines: stats.Skipped(),
		ReceivedAt:   time.Now().UTC(),
	}
	if err := p.store.Uploads().Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	return &Result{Upload: upload, Stats: stats}, nil
}

// retainEntries feeds parsed entries to the recent buffer and the
// archive. Archive failures degrade to a warning; the upload record and
// alerts are already durable in the primary store.
func (p *Pipeline) retainEntries(ctx context.Context, uploadID string, entries []models.LogEntry) {
	if len(entries) == 0 {
		return
	}

	if p.buffer != nil {
		before := p.buffer.Stats()
		p.buffer.Add(entries)
		after := p.buffer.Stats()
		metrics.BufferEntries.Set(float64(after.Size))
		metrics.BufferEvictedTotal.Add(float64(after.Evicted - before.Evicted))
	}

	if p.archive != nil {
		if err := p.archive.InsertBatch(ctx, uploadID, entries); err != nil {
			metrics.StorageErrors.WithLabelValues("insert", "clickhouse").Inc()
			log.Printf("ingest: archive entries for upload %s: %v", uploadID, err)
		}
	}
}

// activeRules adapts the hot-reloadable rule set to the engine's
// extension point.
func (p *Pipeline) activeRules() []detect.EntryRule {
	if p.rules == nil {
		return nil
	}
	active := p.rules.Active()
	if len(active) == 0 {
		return nil
	}
	extra := make([]detect.EntryRule, len(active))
	for i, r := range active {
		extra[i] = r
	}
	return extra
}
