package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
)

// ErrNotFound is returned by lookups for jobs and saved reports that do not exist.
var ErrNotFound = errors.New("not found")

// Import job statuses
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ImportJob tracks one ingestion run.
type ImportJob struct {
	ID               string     `json:"job_id" bson:"_id"`
	Status           string     `json:"status" bson:"status"`
	Progress         int        `json:"progress" bson:"progress"`
	TotalRecords     int        `json:"total_records" bson:"total_records"`
	ProcessedRecords int        `json:"processed_records" bson:"processed_records"`
	Inserted         int        `json:"inserted" bson:"inserted"`
	Errors           []string   `json:"errors" bson:"errors"`
	Filename         string     `json:"filename,omitempty" bson:"filename"`
	SourceSize       int64      `json:"source_size" bson:"source_size"`
	SourceChecksum   string     `json:"source_checksum,omitempty" bson:"source_checksum"`
	SourceKey        string     `json:"source_key,omitempty" bson:"source_key,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// Terminal reports whether the job can no longer change status.
func (j *ImportJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *ImportJob) Clone() *ImportJob {
	cp := *j
	if j.Errors != nil {
		cp.Errors = append(make([]string, 0, len(j.Errors)), j.Errors...)
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// SavedReport is a named snapshot of a query shape.
type SavedReport struct {
	ID         string            `json:"id" bson:"_id"`
	Name       string            `json:"name" bson:"name"`
	Dimensions []string          `json:"dimensions" bson:"dimensions"`
	Metrics    []string          `json:"metrics" bson:"metrics"`
	DateRange  map[string]string `json:"date_range" bson:"date_range,omitempty"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}

// Summary holds dashboard totals over one generation.
type Summary struct {
	TotalRequests int64   `json:"ad_exchange_total_requests"`
	Impressions   int64   `json:"ad_exchange_line_item_level_impressions"`
	Clicks        int64   `json:"ad_exchange_line_item_level_clicks"`
	Payout        float64 `json:"payout"`
	AverageECPM   float64 `json:"average_ecpm"`
}

// RecordsStorage stores report records partitioned by import generation.
// An empty generation argument means "all generations" where noted.
type RecordsStorage interface {
	// InsertRecords writes one batch and returns the number written.
	InsertRecords(ctx context.Context, records []schema.Record) (int, error)

	// DeleteGeneration removes every record of one generation.
	DeleteGeneration(ctx context.Context, generation string) error

	// DeleteOtherGenerations removes every record not in keep.
	DeleteOtherGenerations(ctx context.Context, keep string) error

	// SetCurrentGeneration atomically repoints the dataset readers see.
	SetCurrentGeneration(ctx context.Context, generation string) error

	// CurrentGeneration returns "" when nothing was ever imported.
	CurrentGeneration(ctx context.Context) (string, error)

	// Aggregate executes plan over one generation, returning the page and the
	// total group count computed in the same pass.
	Aggregate(ctx context.Context, plan *query.Plan, generation string) ([]query.Row, int, error)

	// CountRecords counts records of generation, or of all generations when empty.
	CountRecords(ctx context.Context, generation string) (int64, error)

	// Generations lists distinct generation ids present in the store.
	Generations(ctx context.Context) ([]string, error)

	// Summarize totals one generation, or all records when generation is empty.
	Summarize(ctx context.Context, generation string) (*Summary, error)
}

// ImportJobsStorage is the durable store of import jobs.
type ImportJobsStorage interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	UpdateJob(ctx context.Context, job *ImportJob) error
	// GetJob returns ErrNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (*ImportJob, error)
	// ListJobs returns the most recent jobs first.
	ListJobs(ctx context.Context, limit int) ([]ImportJob, error)
}

// SavedReportsStorage persists saved report configurations verbatim.
type SavedReportsStorage interface {
	CreateSavedReport(ctx context.Context, report *SavedReport) error
	ListSavedReports(ctx context.Context) ([]SavedReport, error)
	// DeleteSavedReport returns ErrNotFound for unknown ids.
	DeleteSavedReport(ctx context.Context, id string) error
}

// Storage is implemented by every backend.
type Storage interface {
	RecordsStorage
	ImportJobsStorage
	SavedReportsStorage

	// Name identifies the backend in logs and health output.
	Name() string

	// Close releases connections.
	Close() error
}
