// Package uploads provides HTTP handlers for log file ingestion and
// upload management.
package uploads

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forenx/sentinel/internal/ingest"
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

	// maxRequestBytes caps the whole multipart body; the pipeline caps
	// each file's decoded content separately.
	maxRequestBytes = 256 << 20

	// memoryLimit is the in-memory threshold before multipart parts
	// spill to temp files.
	memoryLimit = 32 << 20

	maxFilesPerRequest = 20
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

// Handler handles upload endpoints.
type Handler struct {
	pipeline *ingest.Pipeline
	store    store.Store
	archive  *store.EntryArchive
}

// NewHandler creates a new uploads handler. archive may be nil when the
// ClickHouse archive is not configured.
func NewHandler(pipeline *ingest.Pipeline, st store.Store, archive *store.EntryArchive) *Handler {
	return &Handler{pipeline: pipeline, store: st, archive: archive}
}

// UploadResponse is the API representation of one upload record.
type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	SHA256       string `json:"sha256"`
	Format       string `json:"format"`
	SizeBytes    int64  `json:"size_bytes"`
	EntryCount   int64  `json:"entry_count"`
	SkippedLines int64  `json:"skipped_lines"`
	AlertCount   int64  `json:"alert_count"`
	ReceivedAt   string `json:"received_at"`
}

func toUploadResponse(u *models.Upload) *UploadResponse {
	return &UploadResponse{
		ID:           u.ID,
		Filename:     u.Filename,
		SHA256:       u.SHA256,
		Format:       string(u.Format),
		SizeBytes:    u.SizeBytes,
		EntryCount:   u.EntryCount,
		SkippedLines: u.SkippedLines,
		AlertCount:   u.AlertCount,
		ReceivedAt:   u.ReceivedAt.UTC().Format(time.RFC3339),
	}
}

// FileResult reports the outcome for one file of a multi-file upload.
// Files are processed independently; one bad file does not fail the rest.
type FileResult struct {
	Filename string `json:"filename"`

	// Status is processed, duplicate or error.
	Status string `json:"status"`

	UploadID     string `json:"upload_id,omitempty"`
	EntryCount   int64  `json:"entry_count,omitempty"`
	SkippedLines int64  `json:"skipped_lines,omitempty"`
	AlertCount   int64  `json:"alert_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// IngestResponse summarizes one multipart upload request.
type IngestResponse struct {
	Results    []FileResult `json:"results"`
	Processed  int          `json:"processed"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
}

// Create handles POST /api/v1/uploads - multipart file ingestion.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid multipart request: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "no files in request; use multipart field \"files\"")
		return
	}
	if len(files) > maxFilesPerRequest {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "too many files; limit is "+strconv.Itoa(maxFilesPerRequest))
		return
	}

	format, err := parseFormatValue(r.FormValue("format"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	resp := &IngestResponse{Results: make([]FileResult, 0, len(files))}
	for _, fh := range files {
		result := h.processFile(r, fh, format)
		switch result.Status {
		case "processed":
			resp.Processed++
		case "duplicate":
			resp.Duplicates++
		default:
			resp.Failed++
		}
		resp.Results = append(resp.Results, result)
	}

	jsonOK(w, resp)
}

func (h *Handler) processFile(r *http.Request, fh *multipart.FileHeader, format models.LogFormat) FileResult {
	result := FileResult{Filename: fh.Filename}

	f, err := fh.Open()
	if err != nil {
		result.Status = "error"
		result.Error = "open part: " + err.Error()
		return result
	}
	defer f.Close()

	ingested, err := h.pipeline.Process(r.Context(), fh.Filename, format, f)
	if err != nil {
		log.Printf("upload %s: %v", fh.Filename, err)
		result.Status = "error"
		if errors.Is(err, ingest.ErrTooLarge) {
			result.Error = ingest.ErrTooLarge.Error()
		} else {
			result.Error = "processing failed"
		}
		return result
	}

	result.UploadID = ingested.Upload.ID
	result.EntryCount = ingested.Upload.EntryCount
	result.SkippedLines = ingested.Upload.SkippedLines
	result.AlertCount = ingested.Upload.AlertCount
	if ingested.Duplicate {
		result.Status = "duplicate"
	} else {
		result.Status = "processed"
	}
	return result
}

// parseFormatValue validates an explicit format override. Unlike
// models.ParseLogFormat, unknown values are rejected rather than
// defaulted; an API caller asking for "combned" should hear about it.
func parseFormatValue(s string) (models.LogFormat, error) {
	switch models.LogFormat(s) {
	case "":
		return "", nil
	case models.FormatCombined, models.FormatMain, models.FormatExtended, models.FormatError:
		return models.LogFormat(s), nil
	default:
		return "", errors.New("format must be one of: combined, main, extended, error")
	}
}

// UploadsResponse wraps a paginated list of uploads.
type UploadsResponse struct {
	Items      []*UploadResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	TotalPages int               `json:"total_pages"`
}

// List handles GET /api/v1/uploads - paginated upload history.
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

	uploads, total, err := h.store.Uploads().List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		log.Printf("list uploads: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to list uploads")
		return
	}

	items := make([]*UploadResponse, len(uploads))
	for i, u := range uploads {
		items[i] = toUploadResponse(u)
	}

	jsonOK(w, &UploadsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	})
}

func totalPages(total int64, perPage int) int {
	if total == 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}

// UploadDetailResponse is an upload record plus its stored aggregated
// metrics, when present.
type UploadDetailResponse struct {
	*UploadResponse
	Metrics *models.AggregatedMetrics `json:"metrics,omitempty"`
}

// GetByID handles GET /api/v1/uploads/{id}.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	upload, err := h.store.Uploads().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get upload %s: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to get upload")
		return
	}
	if upload == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "upload not found")
		return
	}

	detail := &UploadDetailResponse{UploadResponse: toUploadResponse(upload)}

	metrics, err := h.store.Uploads().GetMetrics(r.Context(), id)
	if err != nil {
		log.Printf("get upload metrics %s: %v", id, err)
	} else {
		detail.Metrics = metrics
	}

	jsonOK(w, detail)
}

// Delete handles DELETE /api/v1/uploads/{id}. Deleting an upload also
// removes its alerts and, when the archive is configured, its entries.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	upload, err := h.store.Uploads().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get upload %s: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to get upload")
		return
	}
	if upload == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "upload not found")
		return
	}

	alertsDeleted, err := h.store.Alerts().DeleteByUpload(r.Context(), id)
	if err != nil {
		log.Printf("delete alerts for upload %s: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to delete upload alerts")
		return
	}

	if h.archive != nil {
		entriesDeleted, err := h.archive.DeleteByUpload(r.Context(), id)
		if err != nil {
			// The upload record still goes away; orphaned archive rows
			// are only a space cost.
			log.Printf("delete archive entries for upload %s: %v", id, err)
		} else if entriesDeleted > 0 {
			log.Printf("upload %s: deleted %d archived entries", id, entriesDeleted)
		}
	}

	if err := h.store.Uploads().Delete(r.Context(), id); err != nil {
		log.Printf("delete upload %s: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "failed to delete upload")
		return
	}

	log.Printf("upload %s deleted (%d alerts removed)", id, alertsDeleted)
	w.WriteHeader(http.StatusNoContent)
}
