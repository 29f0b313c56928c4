package batch

import (
	"sort"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// Report contains complete batch analysis results.
type Report struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ms"`
	Files     []*FileStats  `json:"files"`
	Summary   *Summary      `json:"summary"`
	DateRange *DateRange    `json:"date_range,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

// FileStats contains per-file parse and detection statistics.
type FileStats struct {
	Path         string `json:"path"`
	Format       string `json:"format"`
	ParsedCount  int64  `json:"parsed_count"`
	SkippedLines int64  `json:"skipped_lines"`

	// ErrorResponses counts entries with 4xx/5xx statuses.
	ErrorResponses int64 `json:"error_responses"`

	AlertCount int64 `json:"alert_count"`

	// AlertCounts breaks alerts down by attack type; AttackerCounts by
	// client IP. Both feed the merged summary.
	AlertCounts    map[string]int64 `json:"alert_counts,omitempty"`
	AttackerCounts map[string]int64 `json:"-"`

	MethodCounts  map[string]int64 `json:"method_counts,omitempty"`
	StatusClasses map[string]int64 `json:"status_classes,omitempty"`

	FirstEntry time.Time     `json:"first_entry,omitempty"`
	LastEntry  time.Time     `json:"last_entry,omitempty"`
	BytesRead  int64         `json:"bytes_read"`
	ParseTime  time.Duration `json:"parse_time_ms"`
}

// NewFileStats creates a new FileStats with initialized maps.
func NewFileStats(path string) *FileStats {
	return &FileStats{
		Path:           path,
		AlertCounts:    make(map[string]int64),
		AttackerCounts: make(map[string]int64),
		MethodCounts:   make(map[string]int64),
		StatusClasses:  make(map[string]int64),
	}
}

// recordEntry folds one parsed entry into the per-file counters.
func (f *FileStats) recordEntry(e *models.LogEntry) {
	f.ParsedCount++
	f.MethodCounts[e.Method]++
	f.StatusClasses[statusClassLabel(e.StatusClass())]++
	if e.IsError() {
		f.ErrorResponses++
	}

	if !e.Timestamp.IsZero() {
		if f.FirstEntry.IsZero() || e.Timestamp.Before(f.FirstEntry) {
			f.FirstEntry = e.Timestamp
		}
		if f.LastEntry.IsZero() || e.Timestamp.After(f.LastEntry) {
			f.LastEntry = e.Timestamp
		}
	}
}

// recordAlerts folds detection results into the per-file counters.
func (f *FileStats) recordAlerts(alerts []models.AttackAlert) {
	f.AlertCount += int64(len(alerts))
	for i := range alerts {
		f.AlertCounts[string(alerts[i].Type)]++
		f.AttackerCounts[alerts[i].ClientIP]++
	}
}

func statusClassLabel(class int) string {
	switch class {
	case 1:
		return "1xx"
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}

// Summary aggregates statistics across all files.
type Summary struct {
	TotalFiles     int   `json:"total_files"`
	TotalEntries   int64 `json:"total_entries"`
	ErrorResponses int64 `json:"error_responses"`
	SkippedLines   int64 `json:"skipped_lines"`
	TotalAlerts    int64 `json:"total_alerts"`

	AlertCounts   map[string]int64 `json:"alert_counts"`
	MethodCounts  map[string]int64 `json:"method_counts"`
	StatusClasses map[string]int64 `json:"status_classes"`
	SourceCounts  map[string]int64 `json:"source_counts"`

	// TopAttackers ranks client IPs by alert count across all files.
	TopAttackers []models.CountItem `json:"top_attackers,omitempty"`

	EntriesPerSec float64 `json:"entries_per_sec"`
}

// NewSummary creates a new Summary with initialized maps.
func NewSummary() *Summary {
	return &Summary{
		AlertCounts:   make(map[string]int64),
		MethodCounts:  make(map[string]int64),
		StatusClasses: make(map[string]int64),
		SourceCounts:  make(map[string]int64),
	}
}

// DateRange tracks the actual date range of analyzed entries.
type DateRange struct {
	Earliest time.Time `json:"earliest,omitempty"`
	Latest   time.Time `json:"latest,omitempty"`
	Filtered bool      `json:"filtered"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
}

// Aggregate combines multiple FileStats into a Summary. topN bounds the
// merged attacker ranking.
func Aggregate(files []*FileStats, duration time.Duration, topN int) *Summary {
	if topN <= 0 {
		topN = 10
	}

	s := NewSummary()
	s.TotalFiles = len(files)

	attackers := make(map[string]int64)
	var attackerOrder []string

	for _, f := range files {
		s.TotalEntries += f.ParsedCount
		s.ErrorResponses += f.ErrorResponses
		s.SkippedLines += f.SkippedLines
		s.TotalAlerts += f.AlertCount
		s.SourceCounts[f.Path] = f.ParsedCount

		for typ, count := range f.AlertCounts {
			s.AlertCounts[typ] += count
		}
		for method, count := range f.MethodCounts {
			s.MethodCounts[method] += count
		}
		for class, count := range f.StatusClasses {
			s.StatusClasses[class] += count
		}
		for ip, count := range f.AttackerCounts {
			if _, ok := attackers[ip]; !ok {
				attackerOrder = append(attackerOrder, ip)
			}
			attackers[ip] += count
		}
	}

	// Rank by count, alphabetical among equals so the output is stable.
	sort.Strings(attackerOrder)
	items := make([]models.CountItem, 0, len(attackerOrder))
	for _, ip := range attackerOrder {
		items = append(items, models.CountItem{Value: ip, Count: attackers[ip]})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Count > items[j].Count })
	if len(items) > topN {
		items = items[:topN]
	}
	s.TopAttackers = items

	if duration.Seconds() > 0 {
		s.EntriesPerSec = float64(s.TotalEntries) / duration.Seconds()
	}

	return s
}

// AlertPercentage returns the share of entries that raised the given
// attack type, as a percentage.
func (s *Summary) AlertPercentage(attackType string) float64 {
	if s.TotalEntries == 0 {
		return 0
	}
	return float64(s.AlertCounts[attackType]) / float64(s.TotalEntries) * 100
}

// ErrorPercentage returns the share of 4xx/5xx responses.
func (s *Summary) ErrorPercentage() float64 {
	if s.TotalEntries == 0 {
		return 0
	}
	return float64(s.ErrorResponses) / float64(s.TotalEntries) * 100
}
