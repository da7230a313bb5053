package reports

import (
	"github.com/fdg312/adreport/internal/query"
)

// Export formats
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// QueryRequest is the body of POST /api/reports/query and /export.
type QueryRequest struct {
	Dimensions []string            `json:"dimensions"`
	Metrics    []string            `json:"metrics"`
	Filters    map[string][]string `json:"filters,omitempty"`
	DateRange  *query.DateRange    `json:"date_range,omitempty"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
}

// QueryResponse is one page of report rows.
type QueryResponse struct {
	Data  []query.Row `json:"data"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// SavedReportRequest is the body of POST /api/reports/saved-reports.
type SavedReportRequest struct {
	Name       string            `json:"name" validate:"required,max=200"`
	Dimensions []string          `json:"dimensions" validate:"required,dive,dimension"`
	Metrics    []string          `json:"metrics" validate:"required,min=1,dive,metric"`
	DateRange  map[string]string `json:"date_range,omitempty"`
}

type SavedReportResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type HasDataResponse struct {
	HasData bool `json:"has_data"`
}

type ReportIDsResponse struct {
	ReportIDs []string `json:"report_ids"`
}

type LatestReportIDResponse struct {
	ReportID *string `json:"report_id"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
