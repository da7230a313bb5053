package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/adreport/internal/storage"
	"github.com/google/uuid"
)

// savedReportsStorage - in-memory storage для сохранённых отчётов
type savedReportsStorage struct {
	mu      sync.RWMutex
	reports map[string]storage.SavedReport
}

func newSavedReportsStorage() *savedReportsStorage {
	return &savedReportsStorage{
		reports: make(map[string]storage.SavedReport),
	}
}

// CreateSavedReport сохраняет конфигурацию как есть
func (s *savedReportsStorage) CreateSavedReport(ctx context.Context, report *storage.SavedReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	s.reports[report.ID] = *report
	return nil
}

// ListSavedReports возвращает отчёты в порядке создания
func (s *savedReportsStorage) ListSavedReports(ctx context.Context) ([]storage.SavedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]storage.SavedReport, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})

	return reports, nil
}

// DeleteSavedReport удаляет отчёт
func (s *savedReportsStorage) DeleteSavedReport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[id]; !exists {
		return storage.ErrNotFound
	}

	delete(s.reports, id)
	return nil
}
