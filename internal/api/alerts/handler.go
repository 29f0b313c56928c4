// Package alerts provides HTTP handlers for alert listing and the live
// alert stream.
package alerts

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

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
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"

	// streamHeartbeat and streamTimeout bound the SSE connection.
	streamHeartbeat = 15 * time.Second
	streamTimeout   = 30 * time.Minute
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

// Handler handles alert endpoints.
type Handler struct {
	store store.Store
	feed  *Feed
}

// NewHandler creates a new alerts handler.
func NewHandler(st store.Store, feed *Feed) *Handler {
	return &Handler{store: st, feed: feed}
}

// AlertResponse is the API representation of an alert.
type AlertResponse struct {
	ID         string  `json:"id"`
	UploadID   string  `json:"upload_id,omitempty"`
	Timestamp  string  `json:"timestamp"`
	ClientIP   string  `json:"client_ip"`
	AttackType string  `json:"attack_type"`
	AttackName string  `json:"attack_name"`
	Severity   string  `json:"severity"`
	Endpoint   string  `json:"endpoint"`
	UserAgent  string  `json:"user_agent,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
	RawSample  string  `json:"raw_sample,omitempty"`
	Country    string  `json:"country,omitempty"`
	City       string  `json:"city,omitempty"`
}

// AlertsResponse wraps a paginated list of alerts.
type AlertsResponse struct {
	Items      []*AlertResponse `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

func toAlertResponse(a *models.AttackAlert) *AlertResponse {
	return &AlertResponse{
		ID:         a.ID,
		UploadID:   a.UploadID,
		Timestamp:  a.Timestamp.UTC().Format(time.RFC3339),
		ClientIP:   a.ClientIP,
		AttackType: string(a.Type),
		AttackName: a.Type.DisplayName(),
		Severity:   string(a.Severity()),
		Endpoint:   a.Endpoint,
		UserAgent:  a.UserAgent,
		StatusCode: a.StatusCode,
		Confidence: a.Confidence,
		Details:    a.Details,
		RawSample:  a.RawSample,
		Country:    a.Country,
		City:       a.City,
	}
}

// List handles GET /api/v1/alerts - paginated alerts with filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if pageStr := q.Get("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 1 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid page number")
			return
		}
		page = p
	}

	perPage := 50
	if perPageStr := q.Get("per_page"); perPageStr != "" {
		pp, err := strconv.Atoi(perPageStr)
		if err != nil || pp < 1 || pp > 1000 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "per_page must be between 1 and 1000")
			return
		}
		perPage = pp
	}

	filter := store.AlertFilter{
		UploadID: q.Get("upload_id"),
		ClientIP: q.Get("client_ip"),
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	}

	if typeStr := q.Get("type"); typeStr != "" {
		t, err := ParseType(typeStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		filter.Type = t
	}

	// severity maps to a confidence band; explicit confidence bounds
	// override it.
	if sevStr := q.Get("severity"); sevStr != "" {
		sev, err := ParseSeverity(sevStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		filter.ConfidenceMin, filter.ConfidenceMax = confidenceBand(sev)
	}
	if minStr := q.Get("confidence_min"); minStr != "" {
		min, err := strconv.ParseFloat(minStr, 64)
		if err != nil || min < 0 || min > 1 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "confidence_min must be between 0 and 1")
			return
		}
		filter.ConfidenceMin = min
		filter.ConfidenceMax = 0
	}
	if maxStr := q.Get("confidence_max"); maxStr != "" {
		max, err := strconv.ParseFloat(maxStr, 64)
		if err != nil || max < 0 || max > 1 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "confidence_max must be between 0 and 1")
			return
		}
		filter.ConfidenceMax = max
	}

	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := ParseTime("since", sinceStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		filter.Since = since
	}
	if untilStr := q.Get("until"); untilStr != "" {
		until, err := ParseTime("until", untilStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		filter.Until = until
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Since.After(filter.Until) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "since must be before until")
		return
	}

	alerts, total, err := h.store.Alerts().List(r.Context(), filter)
	if err != nil {
		log.Printf("list alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	items := make([]*AlertResponse, len(alerts))
	for i, a := range alerts {
		items[i] = toAlertResponse(a)
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(perPage)))
	}

	jsonOK(w, &AlertsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

// GetByID handles GET /api/v1/alerts/{id}.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.store.Alerts().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if alert == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}

	jsonOK(w, toAlertResponse(alert))
}

// Types handles GET /api/v1/alerts/types - the attack categories the
// engine can emit.
func (h *Handler) Types(w http.ResponseWriter, r *http.Request) {
	type typeInfo struct {
		Type string `json:"attack_type"`
		Name string `json:"name"`
	}
	infos := make([]typeInfo, len(models.AttackTypes))
	for i, t := range models.AttackTypes {
		infos[i] = typeInfo{Type: string(t), Name: t.DisplayName()}
	}
	jsonOK(w, infos)
}

// Stream handles GET /api/v1/alerts/stream - SSE feed of newly created
// alerts.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		jsonError(w, http.StatusServiceUnavailable, errCodeInternalError, "alert stream not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "streaming not supported")
		return
	}

	q := r.URL.Query()

	// Optional filters applied per event.
	var typeFilter models.AttackType
	if typeStr := q.Get("type"); typeStr != "" {
		t, err := ParseType(typeStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		typeFilter = t
	}

	minConfidence := 0.0
	if sevStr := q.Get("min_severity"); sevStr != "" {
		sev, err := ParseSeverity(sevStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		minConfidence = sev.MinConfidence()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := NewSSEWriter(w, flusher)
	_ = sse.SendRetry(5000)

	events, cancel := h.feed.Subscribe()
	defer cancel()

	ctx := r.Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	deadline := time.NewTimer(streamTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return

		case <-deadline.C:
			_ = sse.SendEvent("close", `{"reason":"timeout"}`)
			return

		case <-heartbeat.C:
			if err := sse.SendComment("heartbeat"); err != nil {
				return
			}

		case alert, open := <-events:
			if !open {
				return
			}
			if typeFilter != "" && alert.Type != typeFilter {
				continue
			}
			if alert.Confidence < minConfidence {
				continue
			}
			data, err := json.Marshal(toAlertResponse(alert))
			if err != nil {
				log.Printf("stream marshal error: %v", err)
				continue
			}
			if err := sse.SendEvent("alert", string(data)); err != nil {
				return // Client disconnected
			}
		}
	}
}
