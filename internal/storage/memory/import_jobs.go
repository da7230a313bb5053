package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fdg312/adreport/internal/storage"
)

// importJobsStorage - in-memory storage для задач импорта
type importJobsStorage struct {
	mu   sync.RWMutex
	jobs map[string]*storage.ImportJob
}

func newImportJobsStorage() *importJobsStorage {
	return &importJobsStorage{
		jobs: make(map[string]*storage.ImportJob),
	}
}

func (s *importJobsStorage) CreateJob(ctx context.Context, job *storage.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("import job %s already exists", job.ID)
	}

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *importJobsStorage) UpdateJob(ctx context.Context, job *storage.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return storage.ErrNotFound
	}

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *importJobsStorage) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return job.Clone(), nil
}

// ListJobs возвращает последние задачи, новые первыми
func (s *importJobsStorage) ListJobs(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]storage.ImportJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j.Clone())
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}
