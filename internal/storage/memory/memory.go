package memory

import (
	"context"
	"sync"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
)

// MemoryStorage - in-memory реализация storage.Storage
type MemoryStorage struct {
	mu          sync.RWMutex
	generations map[string][]schema.Record
	order       []string
	current     string

	jobs  *importJobsStorage
	saved *savedReportsStorage
}

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		generations: make(map[string][]schema.Record),
		jobs:        newImportJobsStorage(),
		saved:       newSavedReportsStorage(),
	}
}

func (m *MemoryStorage) Name() string {
	return "memory"
}

func (m *MemoryStorage) Close() error {
	// no-op для memory
	return nil
}

func (m *MemoryStorage) InsertRecords(ctx context.Context, records []schema.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if _, ok := m.generations[r.ReportID]; !ok {
			m.order = append(m.order, r.ReportID)
		}
		m.generations[r.ReportID] = append(m.generations[r.ReportID], r)
	}

	return len(records), nil
}

func (m *MemoryStorage) DeleteGeneration(ctx context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropLocked(func(g string) bool { return g == generation })
	return nil
}

func (m *MemoryStorage) DeleteOtherGenerations(ctx context.Context, keep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropLocked(func(g string) bool { return g != keep })
	return nil
}

func (m *MemoryStorage) dropLocked(match func(string) bool) {
	kept := m.order[:0]
	for _, g := range m.order {
		if match(g) {
			delete(m.generations, g)
			continue
		}
		kept = append(kept, g)
	}
	m.order = kept
}

func (m *MemoryStorage) SetCurrentGeneration(ctx context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = generation
	return nil
}

func (m *MemoryStorage) CurrentGeneration(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, nil
}

// Aggregate выполняет план под одной блокировкой чтения, поэтому total и
// страница всегда считаются по одному снимку.
func (m *MemoryStorage) Aggregate(ctx context.Context, plan *query.Plan, generation string) ([]query.Row, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, total := plan.Evaluate(m.generations[generation])
	return rows, total, nil
}

func (m *MemoryStorage) CountRecords(ctx context.Context, generation string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if generation != "" {
		return int64(len(m.generations[generation])), nil
	}

	var n int64
	for _, recs := range m.generations {
		n += int64(len(recs))
	}
	return n, nil
}

func (m *MemoryStorage) Generations(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string{}, m.order...), nil
}

func (m *MemoryStorage) Summarize(ctx context.Context, generation string) (*storage.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum storage.Summary
	add := func(recs []schema.Record) {
		for i := range recs {
			sum.TotalRequests += recs[i].TotalRequests
			sum.Impressions += recs[i].Impressions
			sum.Clicks += recs[i].Clicks
			sum.Payout += recs[i].Payout
		}
	}

	if generation != "" {
		add(m.generations[generation])
	} else {
		for _, g := range m.order {
			add(m.generations[g])
		}
	}

	sum.AverageECPM = query.Ratio(sum.Payout, float64(sum.Impressions), 1000)
	return &sum, nil
}

// ImportJobsStorage methods - делегируем к jobs storage

func (m *MemoryStorage) CreateJob(ctx context.Context, job *storage.ImportJob) error {
	return m.jobs.CreateJob(ctx, job)
}

func (m *MemoryStorage) UpdateJob(ctx context.Context, job *storage.ImportJob) error {
	return m.jobs.UpdateJob(ctx, job)
}

func (m *MemoryStorage) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	return m.jobs.GetJob(ctx, id)
}

func (m *MemoryStorage) ListJobs(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	return m.jobs.ListJobs(ctx, limit)
}

// SavedReportsStorage methods - делегируем к saved reports storage

func (m *MemoryStorage) CreateSavedReport(ctx context.Context, report *storage.SavedReport) error {
	return m.saved.CreateSavedReport(ctx, report)
}

func (m *MemoryStorage) ListSavedReports(ctx context.Context) ([]storage.SavedReport, error) {
	return m.saved.ListSavedReports(ctx)
}

func (m *MemoryStorage) DeleteSavedReport(ctx context.Context, id string) error {
	return m.saved.DeleteSavedReport(ctx, id)
}

var _ storage.Storage = (*MemoryStorage)(nil)
