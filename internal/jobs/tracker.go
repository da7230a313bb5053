// Package jobs tracks import job state: a durable store is the source of
// truth and an optional cache serves status polling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/adreport/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrJobNotFound       = errors.New("import job not found")
	ErrInvalidTransition = errors.New("invalid import job status transition")
	ErrJobFinished       = errors.New("import job already finished")
)

var transitions = map[string][]string{
	storage.JobPending:    {storage.JobProcessing, storage.JobFailed},
	storage.JobProcessing: {storage.JobCompleted, storage.JobFailed},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker owns every write to import jobs. Each write goes to the store
// first and is mirrored to the cache afterwards, so a terminal state can
// never be visible in the cache without being durable. Read-through fills
// only cache terminal snapshots: a non-terminal snapshot read from the
// store may already be older than a concurrent write.
type Tracker struct {
	store storage.ImportJobsStorage
	cache Cache
	group singleflight.Group
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewTracker creates a tracker. cache may be nil.
func NewTracker(store storage.ImportJobsStorage, cache Cache, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		store: store,
		cache: cache,
		log:   log.WithField("component", "jobs"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new pending job. ID must already be set.
func (t *Tracker) Create(ctx context.Context, job *storage.ImportJob) error {
	now := t.now()
	job.Status = storage.JobPending
	job.Progress = 0
	job.Errors = []string{}
	job.CreatedAt = now
	job.UpdatedAt = now
	job.FinishedAt = nil

	if err := t.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	t.mirror(ctx, job)
	return nil
}

// Transition moves job to status and persists it. job is left untouched
// when the write fails.
func (t *Tracker) Transition(ctx context.Context, job *storage.ImportJob, status string) error {
	if !canTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	now := t.now()
	next := job.Clone()
	next.Status = status
	next.UpdatedAt = now
	if status == storage.JobCompleted {
		next.Progress = 100
	}
	if next.Terminal() {
		next.FinishedAt = &now
	}

	if err := t.save(ctx, next); err != nil {
		return err
	}
	*job = *next
	return nil
}

// Update persists counters and errors of a running job.
func (t *Tracker) Update(ctx context.Context, job *storage.ImportJob) error {
	if job.Terminal() {
		return ErrJobFinished
	}
	if job.Progress < 0 || job.Progress > 100 {
		return fmt.Errorf("progress out of range: %d", job.Progress)
	}
	job.UpdatedAt = t.now()
	return t.save(ctx, job)
}

func (t *Tracker) save(ctx context.Context, job *storage.ImportJob) error {
	if err := t.store.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to update job: %w", err)
	}
	t.mirror(ctx, job)
	return nil
}

func (t *Tracker) mirror(ctx context.Context, job *storage.ImportJob) {
	if t.cache == nil {
		return
	}
	err := t.cache.Set(ctx, job.Clone())
	if err == nil {
		return
	}
	log := t.log.WithField("job_id", job.ID)
	log.WithError(err).Warn("job cache write failed")
	// a stale entry must not outlive the write it missed
	if err := t.cache.Delete(ctx, job.ID); err != nil {
		log.WithError(err).Error("job cache invalidate failed")
	}
}

// Get returns a job snapshot: cache first, then the store. Concurrent
// misses for the same id share one store read.
func (t *Tracker) Get(ctx context.Context, id string) (*storage.ImportJob, error) {
	if t.cache != nil {
		job, ok, err := t.cache.Get(ctx, id)
		if err != nil {
			t.log.WithError(err).WithField("job_id", id).Warn("job cache read failed")
		} else if ok {
			return job, nil
		}
	}

	v, err, _ := t.group.Do(id, func() (any, error) {
		job, err := t.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Terminal() && t.cache != nil {
			if err := t.cache.Set(ctx, job.Clone()); err != nil {
				t.log.WithError(err).WithField("job_id", id).Warn("job cache fill failed")
			}
		}
		return job, nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return v.(*storage.ImportJob).Clone(), nil
}

// List returns the most recent jobs straight from the store.
func (t *Tracker) List(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	jobs, err := t.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
