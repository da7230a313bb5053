// Package reports runs compiled report queries against the current dataset
// and serves the reporting endpoints.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoData         = errors.New("no data available")
	ErrReportNotFound = errors.New("saved report not found")
	ErrInvalidFormat  = errors.New("format must be csv or pdf")
	ErrInvalidRequest = errors.New("invalid request")
)

// Store is the subset of storage the reports service needs.
type Store interface {
	storage.RecordsStorage
	storage.SavedReportsStorage
}

// Options tune paging and export limits. Zero values take defaults.
type Options struct {
	DefaultLimit  int
	MaxLimit      int
	ExportMaxRows int
}

// Service executes report queries.
type Service struct {
	store    Store
	opts     Options
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store Store, opts Options, log logrus.FieldLogger) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = query.DefaultLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.ExportMaxRows <= 0 {
		opts.ExportMaxRows = 100000
	}
	return &Service{
		store:    store,
		opts:     opts,
		validate: newValidator(),
		log:      log.WithField("component", "reports"),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("dimension", func(fl validator.FieldLevel) bool {
		return schema.IsDimension(fl.Field().String())
	})
	_ = v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return schema.IsMetric(fl.Field().String())
	})
	return v
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "dimension":
				return fmt.Errorf("%w: %q", query.ErrUnknownDimension, fe.Value())
			case "metric":
				return fmt.Errorf("%w: %q", query.ErrUnknownMetric, fe.Value())
			}
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) compile(req QueryRequest) (*query.Plan, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Limit > s.opts.MaxLimit {
		req.Limit = s.opts.MaxLimit
	}
	if req.Limit == 0 {
		req.Limit = s.opts.DefaultLimit
	}
	return query.Compile(query.ReportQuery{
		Dimensions: req.Dimensions,
		Metrics:    req.Metrics,
		Filters:    req.Filters,
		DateRange:  req.DateRange,
		Page:       req.Page,
		Limit:      req.Limit,
	})
}

// current returns the generation queries run against, or ErrNoData when
// nothing has been imported.
func (s *Service) current(ctx context.Context) (string, error) {
	gen, err := s.store.CurrentGeneration(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve dataset: %w", err)
	}
	if gen == "" {
		return "", ErrNoData
	}
	n, err := s.store.CountRecords(ctx, gen)
	if err != nil {
		return "", fmt.Errorf("failed to count records: %w", err)
	}
	if n == 0 {
		return "", ErrNoData
	}
	return gen, nil
}

// Query returns one page of grouped rows. An empty match over a non-empty
// dataset is an ordinary empty page.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	plan, err := s.compile(req)
	if err != nil {
		return nil, err
	}
	gen, err := s.current(ctx)
	if err != nil {
		return nil, err
	}

	rows, total, err := s.store.Aggregate(ctx, plan, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	if rows == nil {
		rows = []query.Row{}
	}

	return &QueryResponse{Data: rows, Total: total, Page: plan.Page, Limit: plan.Limit}, nil
}

// Export renders every row of the query (up to the export cap) as CSV or PDF.
func (s *Service) Export(ctx context.Context, req QueryRequest, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatPDF {
		return nil, ErrInvalidFormat
	}

	req.Page = 1
	req.Limit = 0
	paged, err := s.compile(req)
	if err != nil {
		return nil, err
	}
	plan := paged.Unpaged(s.opts.ExportMaxRows)

	gen, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.store.Aggregate(ctx, plan, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	if total > len(rows) {
		s.log.WithFields(logrus.Fields{"total": total, "exported": len(rows)}).Warn("export truncated")
	}

	if format == FormatPDF {
		return RenderPDF(plan, req.DateRange, rows, total, s.now())
	}
	return RenderCSV(plan.Columns(), rows)
}

// Summary returns dataset totals. An empty reportID means the current dataset.
func (s *Service) Summary(ctx context.Context, reportID string) (*storage.Summary, error) {
	gen := strings.TrimSpace(reportID)
	if gen == "" {
		cur, err := s.store.CurrentGeneration(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dataset: %w", err)
		}
		gen = cur
	}
	sum, err := s.store.Summarize(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize: %w", err)
	}
	return sum, nil
}

func (s *Service) ReportIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.Generations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// LatestReportID returns nil when nothing has been imported.
func (s *Service) LatestReportID(ctx context.Context) (*string, error) {
	gen, err := s.store.CurrentGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dataset: %w", err)
	}
	if gen == "" {
		return nil, nil
	}
	return &gen, nil
}

func (s *Service) HasData(ctx context.Context) (bool, error) {
	_, err := s.current(ctx)
	if errors.Is(err, ErrNoData) {
		return false, nil
	}
	return err == nil, err
}

// Count returns the number of records in the current dataset.
func (s *Service) Count(ctx context.Context) (int64, error) {
	gen, err := s.store.CurrentGeneration(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve dataset: %w", err)
	}
	if gen == "" {
		return 0, nil
	}
	return s.store.CountRecords(ctx, gen)
}

// SaveReport persists a named query shape and returns its id.
func (s *Service) SaveReport(ctx context.Context, req SavedReportRequest) (string, error) {
	if err := s.check(req); err != nil {
		return "", err
	}

	report := &storage.SavedReport{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Dimensions: req.Dimensions,
		Metrics:    req.Metrics,
		DateRange:  req.DateRange,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateSavedReport(ctx, report); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return report.ID, nil
}

func (s *Service) ListSavedReports(ctx context.Context) ([]storage.SavedReport, error) {
	list, err := s.store.ListSavedReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved reports: %w", err)
	}
	if list == nil {
		list = []storage.SavedReport{}
	}
	return list, nil
}

func (s *Service) DeleteSavedReport(ctx context.Context, id string) error {
	err := s.store.DeleteSavedReport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrReportNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete saved report: %w", err)
	}
	return nil
}
