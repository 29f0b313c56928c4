package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/rules"
	"github.com/forenx/sentinel/internal/store"
)

const sampleAccessLog = `192.168.1.100 - - [10/Oct/2023:13:55:36 +0000] "GET /admin?id=1' OR '1'='1 HTTP/1.1" 403 4617 "-" "sqlmap/1.7"
10.0.0.5 - - [10/Oct/2023:13:55:40 +0000] "GET /index.html HTTP/1.1" 200 1024 "https://example.com/" "Mozilla/5.0"
this line is not a log entry
`

const sampleErrorLog = `2023/10/10 14:32:01 [error] 12345#67890: *123 open() "/var/www/html/secret" failed (2: No such file or directory), client: 192.168.1.50, server: example.com, request: "GET /secret HTTP/1.1", host: "example.com"
`

func setupStore(t *testing.T) store.Store {
	t.Helper()

	s := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Open(); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	return s
}

func TestProcessAccessLog(t *testing.T) {
	st := setupStore(t)
	buffer := store.NewRecentBuffer(100)

	var hooked []models.AttackAlert
	p, err := NewPipeline(Config{
		Store:  st,
		Buffer: buffer,
		OnAlerts: func(alerts []models.AttackAlert) {
			hooked = append(hooked, alerts...)
		},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ctx := context.Background()
	result, err := p.Process(ctx, "access.log", "", strings.NewReader(sampleAccessLog))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Duplicate {
		t.Error("first upload should not be a duplicate")
	}
	up := result.Upload
	if up.ID == "" {
		t.Fatal("upload should have an id")
	}
	if up.Format != models.FormatCombined {
		t.Errorf("format = %v, want combined", up.Format)
	}
	if up.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", up.EntryCount)
	}
	if up.SkippedLines != 1 {
		t.Errorf("skipped lines = %d, want 1", up.SkippedLines)
	}
	if up.SHA256 == "" {
		t.Error("upload should carry a content hash")
	}

	// The sqlmap line carries SQL injection, a scanner UA, and an
	// admin-path probe.
	if up.AlertCount != 3 {
		t.Errorf("alert count = %d, want 3", up.AlertCount)
	}
	wantTypes := map[models.AttackType]bool{
		models.AttackSQLInjection:       true,
		models.AttackScanning:           true,
		models.AttackSuspiciousActivity: true,
	}
	for _, a := range result.Alerts {
		if !wantTypes[a.Type] {
			t.Errorf("unexpected alert type %v", a.Type)
		}
		if a.ID == "" || a.UploadID != up.ID {
			t.Errorf("alert should be persisted with ids: %+v", a)
		}
	}

	// Alerts landed in the store.
	stored, total, err := st.Alerts().List(ctx, store.AlertFilter{UploadID: up.ID})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 3 || len(stored) != 3 {
		t.Errorf("stored alerts = %d, want 3", total)
	}

	// Aggregated metrics landed on the upload.
	m, err := st.Uploads().GetMetrics(ctx, up.ID)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if m == nil || m.TotalRequests != 2 {
		t.Errorf("metrics = %+v, want 2 total requests", m)
	}

	// Entries landed in the buffer.
	if buffer.Len() != 2 {
		t.Errorf("buffer len = %d, want 2", buffer.Len())
	}

	// The live-feed hook fired with the persisted alerts.
	if len(hooked) != 3 {
		t.Errorf("hook saw %d alerts, want 3", len(hooked))
	}
}

func TestProcessDuplicate(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ctx := context.Background()
	first, err := p.Process(ctx, "access.log", "", strings.NewReader(sampleAccessLog))
	if err != nil {
		t.Fatalf("first process: %v", err)
	}

	// Same content, different filename: still a duplicate.
	second, err := p.Process(ctx, "copy-of-access.log", "", strings.NewReader(sampleAccessLog))
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !second.Duplicate {
		t.Error("second upload should be flagged duplicate")
	}
	if second.Upload.ID != first.Upload.ID {
		t.Errorf("duplicate should reference the original upload")
	}

	count, err := st.Uploads().Count(ctx)
	if err != nil {
		t.Fatalf("count uploads: %v", err)
	}
	if count != 1 {
		t.Errorf("upload count = %d, want 1", count)
	}
}

func TestProcessGzip(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write([]byte(sampleAccessLog)); err != nil {
		t.Fatalf("compress fixture: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}

	result, err := p.Process(context.Background(), "access.log.gz", "", &compressed)
	if err != nil {
		t.Fatalf("process gzip: %v", err)
	}
	if result.Upload.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", result.Upload.EntryCount)
	}
	if result.Upload.SizeBytes != int64(len(sampleAccessLog)) {
		t.Errorf("size = %d, want decoded size %d", result.Upload.SizeBytes, len(sampleAccessLog))
	}
}

func TestProcessGzipDedupAgainstPlain(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	ctx := context.Background()

	if _, err := p.Process(ctx, "access.log", "", strings.NewReader(sampleAccessLog)); err != nil {
		t.Fatalf("plain process: %v", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	zw.Write([]byte(sampleAccessLog))
	zw.Close()

	// The hash covers decoded content, so the gzipped copy is the
	// same upload.
	result, err := p.Process(ctx, "access.log.gz", "", &compressed)
	if err != nil {
		t.Fatalf("gzip process: %v", err)
	}
	if !result.Duplicate {
		t.Error("gzipped copy of the same content should be a duplicate")
	}
}

func TestProcessTooLarge(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st, MaxSizeBytes: 16})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Process(context.Background(), "big.log", "", strings.NewReader(sampleAccessLog))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}

	count, _ := st.Uploads().Count(context.Background())
	if count != 0 {
		t.Errorf("rejected upload should not be recorded, count = %d", count)
	}
}

func TestProcessErrorLog(t *testing.T) {
	st := setupStore(t)
	buffer := store.NewRecentBuffer(100)
	p, err := NewPipeline(Config{Store: st, Buffer: buffer})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Process(context.Background(), "error.log", "", strings.NewReader(sampleErrorLog))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Upload.Format != models.FormatError {
		t.Errorf("format = %v, want error", result.Upload.Format)
	}
	if result.Upload.EntryCount != 1 {
		t.Errorf("entry count = %d, want 1", result.Upload.EntryCount)
	}
	if result.Upload.AlertCount != 0 {
		t.Errorf("error logs should produce no alerts, got %d", result.Upload.AlertCount)
	}
	if buffer.Len() != 0 {
		t.Errorf("error entries should not reach the access buffer, len = %d", buffer.Len())
	}
}

func TestProcessFormatOverride(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	// Force the combined sample through the main grammar. Lines still
	// parse (main is a prefix), but the user agent is no longer
	// captured, so the sqlmap scanner alert disappears.
	result, err := p.Process(context.Background(), "access.log", models.FormatMain, strings.NewReader(sampleAccessLog))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Upload.Format != models.FormatMain {
		t.Errorf("format = %v, want main (override)", result.Upload.Format)
	}
	if result.Upload.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", result.Upload.EntryCount)
	}
	for _, a := range result.Alerts {
		if a.Type == models.AttackScanning {
			t.Error("scanner alert should not fire without a captured user agent")
		}
	}
}

func TestProcessWithCustomRules(t *testing.T) {
	st := setupStore(t)

	const ruleYAML = `
rules:
  - id: big-response
    name: Large response body
    attack: data_exfiltration
    confidence: 0.8
    when: bytes_sent > 1000
`
	file, err := rules.Load(strings.NewReader(ruleYAML))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	set := rules.NewSet(file)

	p, err := NewPipeline(Config{Store: st, Rules: set})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Process(context.Background(), "access.log", "", strings.NewReader(sampleAccessLog))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Built-ins fire 3 alerts; the custom rule adds one for the 4617
	// byte response (the 1024 byte line also exceeds it).
	found := 0
	for _, a := range result.Alerts {
		if a.Type == models.AttackDataExfiltration {
			found++
		}
	}
	if found != 2 {
		t.Errorf("custom rule alerts = %d, want 2", found)
	}
}

func TestProcessEmptyContent(t *testing.T) {
	st := setupStore(t)
	p, err := NewPipeline(Config{Store: st})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	result, err := p.Process(context.Background(), "empty.log", "", strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty upload should be accepted: %v", err)
	}
	if result.Upload.EntryCount != 0 {
		t.Errorf("entry count = %d, want 0", result.Upload.EntryCount)
	}
}

func TestNewPipelineRequiresStore(t *testing.T) {
	if _, err := NewPipeline(Config{}); err == nil {
		t.Error("expected error for missing store")
	}
}
