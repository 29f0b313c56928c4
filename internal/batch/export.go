package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// ExportFormat selects an output encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat validates a format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportCSV:
		return ExportCSV, nil
	case ExportJSON:
		return ExportJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q: use csv or json", s)
	}
}

// Exporter writes reports, entries and alerts as CSV or JSON.
type Exporter struct {
	w io.Writer
}

// NewExporter creates an exporter writing to w.
func NewExporter(w io.Writer) *Exporter {
	return &Exporter{w: w}
}

// ExportReport writes a full batch report.
func (e *Exporter) ExportReport(r *Report, format ExportFormat) error {
	switch format {
	case ExportJSON:
		return e.writeJSON(r)
	case ExportCSV:
		return e.reportCSV(r)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ExportEntries writes parsed log entries.
func (e *Exporter) ExportEntries(entries []models.LogEntry, format ExportFormat) error {
	switch format {
	case ExportJSON:
		return e.writeJSON(entries)
	case ExportCSV:
		return e.entriesCSV(entries)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ExportAlerts writes detection alerts.
func (e *Exporter) ExportAlerts(alerts []models.AttackAlert, format ExportFormat) error {
	switch format {
	case ExportJSON:
		return e.writeJSON(alerts)
	case ExportCSV:
		return e.alertsCSV(alerts)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func (e *Exporter) writeJSON(v any) error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *Exporter) reportCSV(r *Report) error {
	w := csv.NewWriter(e.w)

	w.Write([]string{"# Summary"})
	w.Write([]string{"metric", "value"})
	s := r.Summary
	w.Write([]string{"files", strconv.Itoa(s.TotalFiles)})
	w.Write([]string{"entries", strconv.FormatInt(s.TotalEntries, 10)})
	w.Write([]string{"skipped_lines", strconv.FormatInt(s.SkippedLines, 10)})
	w.Write([]string{"error_responses", strconv.FormatInt(s.ErrorResponses, 10)})
	w.Write([]string{"alerts", strconv.FormatInt(s.TotalAlerts, 10)})
	w.Write([]string{"entries_per_sec", strconv.FormatFloat(s.EntriesPerSec, 'f', 1, 64)})

	if len(s.AlertCounts) > 0 {
		w.Write([]string{"# Alerts by type"})
		w.Write([]string{"attack_type", "count"})
		for _, typ := range sortedKeys(s.AlertCounts) {
			w.Write([]string{typ, strconv.FormatInt(s.AlertCounts[typ], 10)})
		}
	}

	if len(s.TopAttackers) > 0 {
		w.Write([]string{"# Top attackers"})
		w.Write([]string{"client_ip", "alerts"})
		for _, item := range s.TopAttackers {
			w.Write([]string{item.Value, strconv.FormatInt(item.Count, 10)})
		}
	}

	w.Write([]string{"# Files"})
	w.Write([]string{"path", "format", "entries", "skipped", "error_responses", "alerts", "bytes_read", "parse_ms"})
	for _, f := range r.Files {
		w.Write([]string{
			f.Path,
			f.Format,
			strconv.FormatInt(f.ParsedCount, 10),
			strconv.FormatInt(f.SkippedLines, 10),
			strconv.FormatInt(f.ErrorResponses, 10),
			strconv.FormatInt(f.AlertCount, 10),
			strconv.FormatInt(f.BytesRead, 10),
			strconv.FormatInt(f.ParseTime.Milliseconds(), 10),
		})
	}

	w.Flush()
	return w.Error()
}

func (e *Exporter) entriesCSV(entries []models.LogEntry) error {
	w := csv.NewWriter(e.w)

	w.Write([]string{
		"timestamp", "client_ip", "method", "endpoint", "query_params",
		"protocol", "status", "bytes_sent", "referrer", "user_agent", "host",
	})
	for i := range entries {
		en := &entries[i]
		w.Write([]string{
			en.Timestamp.UTC().Format(time.RFC3339),
			en.ClientIP,
			en.Method,
			en.Endpoint,
			en.QueryParams,
			en.Protocol,
			strconv.Itoa(en.Status),
			strconv.FormatInt(en.BytesSent, 10),
			en.Referrer,
			en.UserAgent,
			en.Host,
		})
	}

	w.Flush()
	return w.Error()
}

func (e *Exporter) alertsCSV(alerts []models.AttackAlert) error {
	w := csv.NewWriter(e.w)

	w.Write([]string{
		"id", "upload_id", "timestamp", "client_ip", "attack_type",
		"severity", "endpoint", "user_agent", "status_code", "confidence",
		"country", "city", "details",
	})
	for i := range alerts {
		a := &alerts[i]
		w.Write([]string{
			a.ID,
			a.UploadID,
			a.Timestamp.UTC().Format(time.RFC3339),
			a.ClientIP,
			string(a.Type),
			string(a.Severity()),
			a.Endpoint,
			a.UserAgent,
			strconv.Itoa(a.StatusCode),
			strconv.FormatFloat(a.Confidence, 'f', 2, 64),
			a.Country,
			a.City,
			a.Details,
		})
	}

	w.Flush()
	return w.Error()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
