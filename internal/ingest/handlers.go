package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fdg312/adreport/internal/jobs"
)

const recentJobsLimit = 10

// ImportAcceptedResponse is returned by POST /api/data/import.
type ImportAcceptedResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// JobListItem is one entry of GET /api/data/import.
type JobListItem struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
}

type JobsResponse struct {
	Jobs []JobListItem `json:"jobs"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handlers serves the import endpoints.
type Handlers struct {
	service    *Service
	maxBytes   int64
	presignTTL int
}

func NewHandlers(service *Service, maxBytes int64, presignTTL int) *Handlers {
	return &Handlers{service: service, maxBytes: maxBytes, presignTTL: presignTTL}
}

// HandleImport handles POST /api/data/import (multipart field "file")
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		// room for multipart framing
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "File exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "File is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read file")
		return
	}

	jobID, err := h.service.Submit(r.Context(), Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotTabular):
			writeError(w, http.StatusBadRequest, "not_tabular", "Only CSV files are supported")
		case errors.Is(err, ErrEmptyUpload):
			writeError(w, http.StatusBadRequest, "not_tabular", "Uploaded file is empty")
		case errors.Is(err, ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("File exceeds maximum size of %d MB", h.maxBytes>>20))
		case errors.Is(err, ErrQueueFull), errors.Is(err, ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "queue_full", "Import queue is full, try again later")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ImportAcceptedResponse{JobID: jobID, Message: "Import started"})
}

// HandleStatus handles GET /api/data/import/{job_id}
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetStatus(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleList handles GET /api/data/import
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Recent(r.Context(), recentJobsLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	items := make([]JobListItem, 0, len(list))
	for _, j := range list {
		items = append(items, JobListItem{
			JobID:     j.ID,
			Status:    j.Status,
			Progress:  j.Progress,
			CreatedAt: j.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: items})
}

// HandleSource handles GET /api/data/import/{job_id}/source
func (h *Handlers) HandleSource(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.SourceURL(r.Context(), r.PathValue("job_id"), h.presignTTL)
	if err != nil {
		if errors.Is(err, ErrSourceNotArchived) {
			writeError(w, http.StatusNotFound, "job_not_found", "Source file is not archived")
			return
		}
		writeJobError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job_not_found", "Job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
