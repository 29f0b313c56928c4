// Package export serves bulk downloads of parsed entries and alerts as
// CSV or JSON attachments.
package export

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forenx/sentinel/internal/batch"
	"github.com/forenx/sentinel/internal/metrics"
	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/store"
)

// Response helpers (local to avoid import cycle with api package)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeInternalError = "INTERNAL_ERROR"
	errCodeUnavailable   = "SERVICE_UNAVAILABLE"

	defaultLimit = 1000
	maxLimit     = 10000
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Error: &apiError{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler serves the export endpoint.
type Handler struct {
	store   store.Store
	buffer  *store.RecentBuffer
	archive *store.EntryArchive
}

// NewHandler creates a new export handler. archive may be nil when the
// ClickHouse archive is not configured.
func NewHandler(st store.Store, buffer *store.RecentBuffer, archive *store.EntryArchive) *Handler {
	return &Handler{store: st, buffer: buffer, archive: archive}
}

type params struct {
	dataset  string
	format   batch.ExportFormat
	since    time.Time
	until    time.Time
	uploadID string
	clientIP string
	attack   models.AttackType
	severity models.Severity
	limit    int
}

func parseParams(r *http.Request) (*params, error) {
	q := r.URL.Query()
	p := &params{
		dataset:  "entries",
		format:   batch.ExportCSV,
		uploadID: q.Get("upload_id"),
		clientIP: q.Get("client_ip"),
		limit:    defaultLimit,
	}

	if v := q.Get("dataset"); v != "" {
		if v != "entries" && v != "alerts" {
			return nil, fmt.Errorf("dataset must be entries or alerts")
		}
		p.dataset = v
	}

	if v := q.Get("format"); v != "" {
		format, err := batch.ParseExportFormat(v)
		if err != nil {
			return nil, err
		}
		p.format = format
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %v", err)
		}
		p.since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid until: %v", err)
		}
		p.until = t
	}
	if !p.since.IsZero() && !p.until.IsZero() && p.until.Before(p.since) {
		return nil, fmt.Errorf("until must not be before since")
	}

	if v := q.Get("type"); v != "" {
		t, ok := models.ParseAttackType(v)
		if !ok {
			return nil, fmt.Errorf("unknown attack type %q", v)
		}
		p.attack = t
	}
	if v := q.Get("severity"); v != "" {
		switch s := models.Severity(v); s {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
			p.severity = s
		default:
			return nil, fmt.Errorf("severity must be one of: low, medium, high, critical")
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return nil, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		p.limit = n
	}

	return p, nil
}

// Export handles GET /export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	switch p.dataset {
	case "alerts":
		h.exportAlerts(w, r, p)
	default:
		h.exportEntries(w, r, p)
	}
}

func (h *Handler) exportAlerts(w http.ResponseWriter, r *http.Request, p *params) {
	filter := store.AlertFilter{
		UploadID: p.uploadID,
		Type:     p.attack,
		ClientIP: p.clientIP,
		Since:    p.since,
		Until:    p.until,
		Limit:    p.limit,
	}
	if p.severity != "" {
		filter.ConfidenceMin = p.severity.MinConfidence()
	}

	alerts, _, err := h.store.Alerts().List(r.Context(), filter)
	if err != nil {
		log.Printf("export alerts: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to load alerts")
		return
	}

	flat := make([]models.AttackAlert, len(alerts))
	for i, a := range alerts {
		flat[i] = *a
	}

	writeAttachment(w, "alerts", p.format)
	if err := batch.NewExporter(w).ExportAlerts(flat, p.format); err != nil {
		// Headers are already out; all that is left is the log line.
		log.Printf("export alerts write: %v", err)
	}
}

func (h *Handler) exportEntries(w http.ResponseWriter, r *http.Request, p *params) {
	var entries []models.LogEntry
	var err error

	if h.archive != nil {
		entries, err = h.archiveEntries(r, p)
		if err != nil {
			log.Printf("export entries: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to load entries")
			return
		}
	} else {
		if p.uploadID != "" {
			jsonError(w, http.StatusServiceUnavailable, errCodeUnavailable, "upload_id export requires the entry archive")
			return
		}
		entries = h.bufferEntries(p)
	}

	writeAttachment(w, "entries", p.format)
	if err := batch.NewExporter(w).ExportEntries(entries, p.format); err != nil {
		log.Printf("export entries write: %v", err)
	}
}

func (h *Handler) archiveEntries(r *http.Request, p *params) ([]models.LogEntry, error) {
	filter := &store.EntryFilter{
		UploadID: p.uploadID,
		Start:    p.since,
		End:      p.until,
		Limit:    p.limit,
	}
	if p.clientIP != "" {
		filter.WhereSQL = "client_ip = ?"
		filter.WhereArgs = []any{p.clientIP}
	}

	timer := prometheus.NewTimer(metrics.StorageQueryDuration.WithLabelValues("export_entries", "clickhouse"))
	page, err := h.archive.Query(r.Context(), filter)
	timer.ObserveDuration()
	if err != nil {
		metrics.StorageErrors.WithLabelValues("export_entries", "clickhouse").Inc()
		return nil, err
	}
	return page.Entries, nil
}

func (h *Handler) bufferEntries(p *params) []models.LogEntry {
	snapshot := h.buffer.Snapshot()

	kept := snapshot[:0:0]
	for i := range snapshot {
		e := &snapshot[i]
		if !p.since.IsZero() && e.Timestamp.Before(p.since) {
			continue
		}
		if !p.until.IsZero() && e.Timestamp.After(p.until) {
			continue
		}
		if p.clientIP != "" && e.ClientIP != p.clientIP {
			continue
		}
		kept = append(kept, snapshot[i])
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	if len(kept) > p.limit {
		kept = kept[:p.limit]
	}
	return kept
}

func writeAttachment(w http.ResponseWriter, dataset string, format batch.ExportFormat) {
	filename := fmt.Sprintf("%s-export-%s.%s", dataset, time.Now().UTC().Format("2006-01-02"), format)
	if format == batch.ExportCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
