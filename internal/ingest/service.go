// Package ingest accepts CSV uploads and loads them into the report store
// on a single background worker.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fdg312/adreport/internal/jobs"
	"github.com/fdg312/adreport/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
)

var (
	ErrNotTabular  = errors.New("only CSV files are supported")
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrTooLarge    = errors.New("uploaded file is too large")
	ErrQueueFull   = errors.New("import queue is full")
	ErrClosed      = errors.New("import service is shutting down")

	ErrSourceNotArchived = errors.New("import source not archived")
)

var binaryTypePrefixes = []string{
	"image/", "audio/", "video/", "font/",
	"application/pdf", "application/zip", "application/gzip",
	"application/x-tar", "application/vnd.",
}

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type task struct {
	jobID string
	data  []byte
}

// Service validates uploads, creates jobs and feeds the import worker.
type Service struct {
	tracker  *jobs.Tracker
	pipeline *Pipeline
	maxBytes int64
	log      logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	queue  chan task
	done   chan struct{}
}

func NewService(tracker *jobs.Tracker, pipeline *Pipeline, queueSize int, maxBytes int64, log logrus.FieldLogger) *Service {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Service{
		tracker:  tracker,
		pipeline: pipeline,
		maxBytes: maxBytes,
		log:      log.WithField("component", "ingest"),
		queue:    make(chan task, queueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. Imports run one at a time in submit order.
func (s *Service) Start() {
	go s.work()
}

func (s *Service) work() {
	defer close(s.done)
	for t := range s.queue {
		// Imports are not cancellable once started.
		if err := s.pipeline.Process(context.Background(), t.jobID, t.data); err != nil {
			s.log.WithError(err).WithField("job_id", t.jobID).Warn("import did not complete")
		}
	}
}

// Shutdown stops accepting uploads and waits for queued imports to drain.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("import queue not drained: %w", ctx.Err())
	}
}

// Validate checks that an upload looks like a CSV file within limits.
func (s *Service) Validate(u Upload) error {
	if !strings.EqualFold(filepath.Ext(u.Filename), ".csv") {
		return ErrNotTabular
	}
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	for _, p := range binaryTypePrefixes {
		if strings.HasPrefix(ct, p) {
			return ErrNotTabular
		}
	}
	if len(u.Data) == 0 {
		return ErrEmptyUpload
	}
	if s.maxBytes > 0 && int64(len(u.Data)) > s.maxBytes {
		return ErrTooLarge
	}
	if bytes.IndexByte(u.Data[:min(len(u.Data), 512)], 0) >= 0 {
		return ErrNotTabular
	}
	return nil
}

// Submit accepts an upload and returns the new job id without waiting for
// any row to be processed.
func (s *Service) Submit(ctx context.Context, u Upload) (string, error) {
	if err := s.Validate(u); err != nil {
		return "", err
	}

	job := &storage.ImportJob{
		ID:             uuid.NewString(),
		Filename:       filepath.Base(u.Filename),
		SourceSize:     int64(len(u.Data)),
		SourceChecksum: fmt.Sprintf("%016x", xxh3.Hash(u.Data)),
	}
	if err := s.tracker.Create(ctx, job); err != nil {
		return "", err
	}

	if err := s.enqueue(task{jobID: job.ID, data: u.Data}); err != nil {
		job.Errors = append(job.Errors, fmt.Sprintf("A critical error occurred: %v", err))
		if terr := s.tracker.Transition(ctx, job, storage.JobFailed); terr != nil {
			s.log.WithError(terr).WithField("job_id", job.ID).Error("failed to mark job failed")
		}
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"filename": job.Filename,
		"size":     job.SourceSize,
	}).Info("import queued")
	return job.ID, nil
}

func (s *Service) enqueue(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// GetStatus returns the current snapshot of a job.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*storage.ImportJob, error) {
	return s.tracker.Get(ctx, jobID)
}

// Recent returns the latest jobs, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	return s.tracker.List(ctx, limit)
}

// SourceURL returns a presigned download link for the job's archived source.
func (s *Service) SourceURL(ctx context.Context, jobID string, ttlSeconds int) (string, error) {
	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.SourceKey == "" || s.pipeline.blobStore == nil {
		return "", ErrSourceNotArchived
	}
	url, err := s.pipeline.blobStore.PresignGet(ctx, job.SourceKey, ttlSeconds)
	if err != nil {
		return "", fmt.Errorf("failed to presign source: %w", err)
	}
	return url, nil
}
