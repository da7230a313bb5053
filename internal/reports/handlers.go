package reports

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
)

// Handlers handles HTTP requests for reports
type Handlers struct {
	service *Service
}

// NewHandlers creates new handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleDimensions handles GET /api/reports/dimensions
func (h *Handlers) HandleDimensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.Dimensions())
}

// HandleMetrics handles GET /api/reports/metrics
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.Metrics())
}

// HandleQuery handles POST /api/reports/query
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	resp, err := h.service.Query(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleExport handles POST /api/reports/export?format=csv|pdf
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatCSV
	}

	data, err := h.service.Export(r.Context(), req, format)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	filename := "report.csv"
	if format == FormatPDF {
		contentType = "application/pdf"
		filename = "report.pdf"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleSummary handles GET /api/reports/summary
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), r.URL.Query().Get("report_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleReportIDs handles GET /api/reports/report_ids
func (h *Handlers) HandleReportIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ReportIDs(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportIDsResponse{ReportIDs: ids})
}

// HandleLatestReportID handles GET /api/reports/latest_report_id
func (h *Handlers) HandleLatestReportID(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.LatestReportID(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LatestReportIDResponse{ReportID: id})
}

// HandleHasData handles GET /api/reports/has_data
func (h *Handlers) HandleHasData(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.HasData(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HasDataResponse{HasData: ok})
}

// HandleCount handles GET /api/data/count
func (h *Handlers) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Count(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// HandleSaveReport handles POST /api/reports/saved-reports
func (h *Handlers) HandleSaveReport(w http.ResponseWriter, r *http.Request) {
	var req SavedReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	id, err := h.service.SaveReport(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SavedReportResponse{Message: "Report saved successfully", ID: id})
}

// HandleListSavedReports handles GET /api/reports/saved-reports
func (h *Handlers) HandleListSavedReports(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSavedReports(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDeleteSavedReport handles DELETE /api/reports/saved-reports/{id}
func (h *Handlers) HandleDeleteSavedReport(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSavedReport(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Report deleted successfully"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrUnknownDimension):
		writeError(w, http.StatusBadRequest, "unknown_dimension", err.Error())
	case errors.Is(err, query.ErrUnknownMetric):
		writeError(w, http.StatusBadRequest, "unknown_metric", err.Error())
	case errors.Is(err, query.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
	case errors.Is(err, query.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, query.ErrInvalidPagination):
		writeError(w, http.StatusBadRequest, "invalid_pagination", err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrNoData):
		writeError(w, http.StatusNotFound, "no_data", "No data available. Please upload data first.")
	case errors.Is(err, ErrReportNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "report_not_found", "Report not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
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
