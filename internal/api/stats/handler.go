// Package stats provides HTTP handlers for aggregated traffic and
// attack statistics over the recent-entries window.
package stats

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forenx/sentinel/internal/detect"
	"github.com/forenx/sentinel/internal/geoip"
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

	// timelineAlertCap bounds how many alerts the timeline overlay
	// loads from the store.
	timelineAlertCap = 10000
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

// Handler handles statistics endpoints. Entry-level aggregates are
// computed over the recent-entries buffer; alert and upload totals come
// from the store.
type Handler struct {
	store  store.Store
	buffer *store.RecentBuffer
	geo    *geoip.Resolver
}

// NewHandler creates a new stats handler. geo may be nil.
func NewHandler(st store.Store, buffer *store.RecentBuffer, geo *geoip.Resolver) *Handler {
	return &Handler{store: st, buffer: buffer, geo: geo}
}

// windows are the accepted range parameter values.
var windows = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

func parseWindow(s string) (string, time.Duration, error) {
	if s == "" {
		s = "24h"
	}
	d, ok := windows[s]
	if !ok {
		return "", 0, errBadWindow
	}
	return s, d, nil
}

var errBadWindow = errors.New("range must be one of: 1h, 6h, 24h, 7d, 30d")

// recentEntries returns buffered entries at or after the cutoff.
func (h *Handler) recentEntries(cutoff time.Time) []models.LogEntry {
	entries := h.buffer.Snapshot()
	out := entries[:0:0]
	for i := range entries {
		if !entries[i].Timestamp.Before(cutoff) {
			out = append(out, entries[i])
		}
	}
	return out
}

// TypeCountResponse is one attack category with its alert count.
type TypeCountResponse struct {
	Type  string `json:"attack_type"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// AttackerResponse is one attacking client with its alert count.
type AttackerResponse struct {
	ClientIP string `json:"client_ip"`
	Country  string `json:"country,omitempty"`
	Count    int64  `json:"count"`
}

// OverviewResponse is the combined statistics payload.
type OverviewResponse struct {
	Window          string                    `json:"window"`
	Metrics         *models.AggregatedMetrics `json:"metrics"`
	TotalUploads    int64                     `json:"total_uploads"`
	TotalAlerts     int64                     `json:"total_alerts"`
	AlertsByType    []TypeCountResponse       `json:"alerts_by_type"`
	TopAttackers    []AttackerResponse        `json:"top_attackers"`
	BufferedEntries int                       `json:"buffered_entries"`
}

// Overview handles GET /api/v1/stats - aggregate metrics for a window.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	window, dur, err := parseWindow(r.URL.Query().Get("range"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	cutoff := time.Now().Add(-dur)

	ctx := r.Context()

	var (
		aggregated   *models.AggregatedMetrics
		totalUploads int64
		totalAlerts  int64
		byType       []store.TypeCount
		topClients   []store.ClientCount
	)

	// The entry aggregation is CPU-bound over the buffer snapshot; the
	// rest are independent store queries. Run them all concurrently.
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		aggregated = detect.ComputeMetrics(h.recentEntries(cutoff), 10)
		return nil
	})

	g.Go(func() error {
		var err error
		totalUploads, err = h.store.Uploads().Count(gCtx)
		if err != nil {
			log.Printf("uploads count error: %v", err)
		}
		return err
	})

	g.Go(func() error {
		var err error
		totalAlerts, err = h.store.Alerts().Count(gCtx)
		if err != nil {
			log.Printf("alerts count error: %v", err)
		}
		return err
	})

	g.Go(func() error {
		var err error
		byType, err = h.store.Alerts().CountByType(gCtx)
		if err != nil {
			log.Printf("alerts by type error: %v", err)
		}
		return err
	})

	g.Go(func() error {
		var err error
		topClients, err = h.store.Alerts().TopClients(gCtx, 10)
		if err != nil {
			log.Printf("top clients error: %v", err)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	resp := &OverviewResponse{
		Window:          window,
		Metrics:         aggregated,
		TotalUploads:    totalUploads,
		TotalAlerts:     totalAlerts,
		AlertsByType:    make([]TypeCountResponse, len(byType)),
		TopAttackers:    make([]AttackerResponse, len(topClients)),
		BufferedEntries: h.buffer.Len(),
	}

	for i, tc := range byType {
		resp.AlertsByType[i] = TypeCountResponse{
			Type:  string(tc.Type),
			Name:  tc.Type.DisplayName(),
			Count: tc.Count,
		}
	}
	for i, cc := range topClients {
		resp.TopAttackers[i] = AttackerResponse{
			ClientIP: cc.ClientIP,
			Country:  cc.Country,
			Count:    cc.Count,
		}
		h.annotateCountry(&resp.TopAttackers[i])
	}

	jsonOK(w, resp)
}

// annotateCountry fills in the country from GeoIP when the stored
// alerts did not carry one.
func (h *Handler) annotateCountry(a *AttackerResponse) {
	if a.Country != "" || h.geo == nil || !h.geo.Enabled() {
		return
	}
	if loc, ok := h.geo.Lookup(a.ClientIP); ok {
		a.Country = loc.Country
	}
}

// TopResponse is a ranked breakdown of one entry dimension.
type TopResponse struct {
	Window string            `json:"window"`
	By     string            `json:"by"`
	Items  []TopItemResponse `json:"items"`
}

// TopItemResponse is one ranked value.
type TopItemResponse struct {
	Value   string `json:"value"`
	Count   int64  `json:"count"`
	Country string `json:"country,omitempty"`
}

// Top handles GET /api/v1/stats/top - ranked breakdowns of the
// buffered entries.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, dur, err := parseWindow(q.Get("range"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	cutoff := time.Now().Add(-dur)

	n := 10
	if nStr := q.Get("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 1 || parsed > 100 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "n must be between 1 and 100")
			return
		}
		n = parsed
	}

	by := strings.ToLower(q.Get("by"))
	if by == "" {
		by = "ips"
	}

	entries := h.recentEntries(cutoff)

	var items []models.CountItem
	switch by {
	case "ips":
		items = detect.TopIPs(entries, n)
	case "endpoints":
		items = detect.TopEndpoints(entries, n)
	case "user_agents":
		items = detect.TopUserAgents(entries, n)
	case "status_codes":
		items = detect.TopStatusCodes(entries, n)
	default:
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "by must be one of: ips, endpoints, user_agents, status_codes")
		return
	}

	resp := &TopResponse{Window: window, By: by, Items: make([]TopItemResponse, len(items))}
	for i, item := range items {
		resp.Items[i] = TopItemResponse{Value: item.Value, Count: item.Count}
		if by == "ips" && h.geo != nil && h.geo.Enabled() {
			if loc, ok := h.geo.Lookup(item.Value); ok {
				resp.Items[i].Country = loc.Country
			}
		}
	}

	jsonOK(w, resp)
}

// TimelineBucketResponse is one timeline interval.
type TimelineBucketResponse struct {
	Start    string `json:"start"`
	Requests int64  `json:"requests"`
	Errors   int64  `json:"errors"`
	Alerts   int64  `json:"alerts"`
	Bytes    int64  `json:"bytes"`
}

// TimelineResponse is the bucketed request/alert timeline.
type TimelineResponse struct {
	Window   string                   `json:"window"`
	Interval string                   `json:"interval"`
	Buckets  []TimelineBucketResponse `json:"buckets"`
}

// Timeline handles GET /api/v1/timeline - request and alert counts
// bucketed by interval.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, dur, err := parseWindow(q.Get("range"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	cutoff := time.Now().Add(-dur)

	intervalName := q.Get("interval")
	if intervalName == "" {
		intervalName = "hour"
	}
	var interval time.Duration
	switch intervalName {
	case "minute":
		interval = time.Minute
	case "hour":
		interval = time.Hour
	case "day":
		interval = 24 * time.Hour
	default:
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "interval must be minute, hour, or day")
		return
	}

	alerts, _, err := h.store.Alerts().List(r.Context(), store.AlertFilter{
		Since: cutoff,
		Limit: timelineAlertCap,
	})
	if err != nil {
		log.Printf("timeline alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	flat := make([]models.AttackAlert, len(alerts))
	for i, a := range alerts {
		flat[i] = *a
	}

	buckets := detect.Timeline(h.recentEntries(cutoff), flat, interval)

	resp := &TimelineResponse{
		Window:   window,
		Interval: intervalName,
		Buckets:  make([]TimelineBucketResponse, len(buckets)),
	}
	for i, b := range buckets {
		resp.Buckets[i] = TimelineBucketResponse{
			Start:    b.Start.UTC().Format(time.RFC3339),
			Requests: b.Requests,
			Errors:   b.Errors,
			Alerts:   b.Alerts,
			Bytes:    b.Bytes,
		}
	}

	jsonOK(w, resp)
}
