// Package logs provides HTTP handlers for querying parsed log entries
// from the recent-entries buffer or the ClickHouse archive.
package logs

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forenx/sentinel/internal/metrics"
	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/query"
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
	maxFilterLength      = 1000
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Error: &apiError{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(apiResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles log entry query endpoints.
type Handler struct {
	buffer  *store.RecentBuffer
	archive *store.EntryArchive
}

// NewHandler creates a new logs handler. The archive may be nil when
// ClickHouse is not configured; queries then run against the buffer.
func NewHandler(buffer *store.RecentBuffer, archive *store.EntryArchive) *Handler {
	return &Handler{buffer: buffer, archive: archive}
}

// EntryResponse represents a log entry in API responses.
type EntryResponse struct {
	Timestamp   string `json:"timestamp"`
	ClientIP    string `json:"client_ip"`
	Method      string `json:"method"`
	Endpoint    string `json:"endpoint"`
	QueryParams string `json:"query_params,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Status      int    `json:"status"`
	BytesSent   int64  `json:"bytes_sent"`
	Referrer    string `json:"referrer,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Host        string `json:"host,omitempty"`
}

// EntriesResponse wraps a paginated list of entries.
type EntriesResponse struct {
	Items      []*EntryResponse `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Source     string           `json:"source"`
}

func toEntryResponse(e *models.LogEntry) *EntryResponse {
	return &EntryResponse{
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
		ClientIP:    e.ClientIP,
		Method:      e.Method,
		Endpoint:    e.Endpoint,
		QueryParams: e.QueryParams,
		Protocol:    e.Protocol,
		Status:      e.Status,
		BytesSent:   e.BytesSent,
		Referrer:    e.Referrer,
		UserAgent:   e.UserAgent,
		Host:        e.Host,
	}
}

// queryParams carries the parsed and validated request parameters.
type queryParams struct {
	page      int
	perPage   int
	ascending bool

	start time.Time
	end   time.Time

	clientIP string
	method   string
	status   int
	endpoint string
	uploadID string

	filterExpr string
	parsed     *query.ParsedQuery
}

func parseParams(r *http.Request) (*queryParams, error) {
	q := r.URL.Query()
	p := &queryParams{page: 1, perPage: 50}

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid page number")
		}
		p.page = page
	}
	if perPageStr := q.Get("per_page"); perPageStr != "" {
		perPage, err := strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 || perPage > 1000 {
			return nil, fmt.Errorf("per_page must be between 1 and 1000")
		}
		p.perPage = perPage
	}

	if od := q.Get("order"); od != "" {
		switch strings.ToLower(od) {
		case "desc":
			p.ascending = false
		case "asc":
			p.ascending = true
		default:
			return nil, fmt.Errorf("order must be asc or desc")
		}
	}

	if startStr := q.Get("start"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid start time format (use RFC3339)")
		}
		p.start = start
	}
	if endStr := q.Get("end"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid end time format (use RFC3339)")
		}
		p.end = end
	}
	if !p.start.IsZero() && !p.end.IsZero() && p.start.After(p.end) {
		return nil, fmt.Errorf("start time must be before end time")
	}

	p.clientIP = q.Get("client_ip")
	p.method = strings.ToUpper(q.Get("method"))
	p.endpoint = q.Get("endpoint")
	p.uploadID = q.Get("upload_id")

	if statusStr := q.Get("status"); statusStr != "" {
		status, err := strconv.Atoi(statusStr)
		if err != nil || status < 100 || status > 599 {
			return nil, fmt.Errorf("status must be a 3-digit HTTP status")
		}
		p.status = status
	}

	// A filter expression takes precedence over flat filters.
	p.filterExpr = q.Get("filter")
	if len(p.filterExpr) > maxFilterLength {
		return nil, fmt.Errorf("filter expression too long (max %d chars)", maxFilterLength)
	}
	if p.filterExpr != "" {
		parsed, err := query.Default().Parse(p.filterExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression: %v", err)
		}
		p.parsed = parsed
		p.clientIP = ""
		p.method = ""
		p.status = 0
		p.endpoint = ""
	}

	return p, nil
}

// Query handles GET /api/v1/logs - paginated entries with filters.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	source := strings.ToLower(r.URL.Query().Get("source"))
	switch source {
	case "":
		if h.archive != nil {
			source = "archive"
		} else {
			source = "buffer"
		}
	case "buffer", "archive":
	default:
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "source must be buffer or archive")
		return
	}

	if source == "archive" {
		if h.archive == nil {
			jsonError(w, http.StatusServiceUnavailable, errCodeInternalError, "entry archive not configured")
			return
		}
		h.queryArchive(w, r, p)
		return
	}
	h.queryBuffer(w, p)
}

func (h *Handler) queryArchive(w http.ResponseWriter, r *http.Request, p *queryParams) {
	filter := &store.EntryFilter{
		UploadID:  p.uploadID,
		Start:     p.start,
		End:       p.end,
		Limit:     p.perPage,
		Offset:    (p.page - 1) * p.perPage,
		Ascending: p.ascending,
	}

	if p.parsed != nil {
		builder := query.NewSQLBuilder(query.DefaultFields)
		result, err := builder.Build(p.parsed)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, fmt.Sprintf("filter conversion error: %v", err))
			return
		}
		filter.WhereSQL = result.SQL
		filter.WhereArgs = result.Args
	} else {
		filter.WhereSQL, filter.WhereArgs = flatFilterSQL(p)
	}

	timer := prometheus.NewTimer(metrics.StorageQueryDuration.WithLabelValues("query_entries", "clickhouse"))
	page, err := h.archive.Query(r.Context(), filter)
	timer.ObserveDuration()
	if err != nil {
		metrics.StorageErrors.WithLabelValues("query_entries", "clickhouse").Inc()
		log.Printf("archive query error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	items := make([]*EntryResponse, len(page.Entries))
	for i := range page.Entries {
		items[i] = toEntryResponse(&page.Entries[i])
	}

	jsonOK(w, &EntriesResponse{
		Items:      items,
		Total:      page.Total,
		Page:       p.page,
		PerPage:    p.perPage,
		TotalPages: totalPages(page.Total, p.perPage),
		Source:     "archive",
	})
}

// flatFilterSQL converts the flat query parameters into a parameterized
// WHERE fragment for the archive.
func flatFilterSQL(p *queryParams) (string, []any) {
	var conds []string
	var args []any

	if p.clientIP != "" {
		conds = append(conds, "client_ip = ?")
		args = append(args, p.clientIP)
	}
	if p.method != "" {
		conds = append(conds, "method = ?")
		args = append(args, p.method)
	}
	if p.status != 0 {
		conds = append(conds, "status = ?")
		args = append(args, p.status)
	}
	if p.endpoint != "" {
		conds = append(conds, "positionCaseInsensitive(endpoint, ?) > 0")
		args = append(args, p.endpoint)
	}

	return strings.Join(conds, " AND "), args
}

func (h *Handler) queryBuffer(w http.ResponseWriter, p *queryParams) {
	if h.buffer == nil {
		jsonError(w, http.StatusServiceUnavailable, errCodeInternalError, "entry buffer not configured")
		return
	}
	if p.uploadID != "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "upload_id filter requires source=archive")
		return
	}

	entries := h.buffer.Snapshot()
	entries = filterByTime(entries, p.start, p.end)

	if p.parsed != nil {
		filtered, err := p.parsed.Filter(entries)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, fmt.Sprintf("filter evaluation error: %v", err))
			return
		}
		entries = filtered
	} else {
		entries = filterFlat(entries, p)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if p.ascending {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	total := int64(len(entries))
	offset := (p.page - 1) * p.perPage
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + p.perPage
	if end > len(entries) {
		end = len(entries)
	}
	pageEntries := entries[offset:end]

	items := make([]*EntryResponse, len(pageEntries))
	for i := range pageEntries {
		items[i] = toEntryResponse(&pageEntries[i])
	}

	jsonOK(w, &EntriesResponse{
		Items:      items,
		Total:      total,
		Page:       p.page,
		PerPage:    p.perPage,
		TotalPages: totalPages(total, p.perPage),
		Source:     "buffer",
	})
}

func filterByTime(entries []models.LogEntry, start, end time.Time) []models.LogEntry {
	if start.IsZero() && end.IsZero() {
		return entries
	}
	out := entries[:0:0]
	for i := range entries {
		ts := entries[i].Timestamp
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		out = append(out, entries[i])
	}
	return out
}

func filterFlat(entries []models.LogEntry, p *queryParams) []models.LogEntry {
	if p.clientIP == "" && p.method == "" && p.status == 0 && p.endpoint == "" {
		return entries
	}
	needle := strings.ToLower(p.endpoint)
	out := entries[:0:0]
	for i := range entries {
		e := &entries[i]
		if p.clientIP != "" && e.ClientIP != p.clientIP {
			continue
		}
		if p.method != "" && e.Method != p.method {
			continue
		}
		if p.status != 0 && e.Status != p.status {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Endpoint), needle) {
			continue
		}
		out = append(out, entries[i])
	}
	return out
}

func totalPages(total int64, perPage int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}
