package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/adreport/internal/blob"
	appcfg "github.com/fdg312/adreport/internal/config"
	"github.com/fdg312/adreport/internal/jobs"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
	"github.com/sirupsen/logrus"
)

// Pipeline runs one import job from raw bytes to a current dataset
// generation.
type Pipeline struct {
	records   storage.RecordsStorage
	tracker   *jobs.Tracker
	blobStore blob.Store
	coercer   *Coercer
	batchSize int
	replace   string
	log       logrus.FieldLogger
}

// PipelineOptions configures a Pipeline. Zero values take defaults.
type PipelineOptions struct {
	BatchSize int
	Replace   string // swap | truncate
	Strict    bool
	BlobStore blob.Store
}

func NewPipeline(records storage.RecordsStorage, tracker *jobs.Tracker, opts PipelineOptions, log logrus.FieldLogger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.Replace != appcfg.ReplaceTruncate {
		opts.Replace = appcfg.ReplaceSwap
	}
	return &Pipeline{
		records:   records,
		tracker:   tracker,
		blobStore: opts.BlobStore,
		coercer:   NewCoercer(opts.Strict),
		batchSize: opts.BatchSize,
		replace:   opts.Replace,
		log:       log.WithField("component", "ingest"),
	}
}

// Process runs the job to a terminal state. The returned error is the
// unrecoverable cause when the job ended failed.
func (p *Pipeline) Process(ctx context.Context, jobID string, data []byte) error {
	log := p.log.WithField("job_id", jobID)

	job, err := p.tracker.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := p.tracker.Transition(ctx, job, storage.JobProcessing); err != nil {
		return err
	}

	p.archive(ctx, job, data, log)

	cause := p.run(ctx, job, data, log)
	if cause == nil {
		cause = p.publish(ctx, job.ID)
	}

	if cause != nil {
		if p.replace == appcfg.ReplaceSwap {
			if err := p.records.DeleteGeneration(ctx, job.ID); err != nil {
				log.WithError(err).Warn("failed to drop partial generation")
			}
		}
		return p.fail(ctx, job, cause, log)
	}

	if err := p.tracker.Transition(ctx, job, storage.JobCompleted); err != nil {
		// the generation is already current, only the job record is behind
		return p.fail(ctx, job, err, log)
	}
	log.WithFields(logrus.Fields{
		"total":    job.TotalRecords,
		"inserted": job.Inserted,
		"errors":   len(job.Errors),
	}).Info("import completed")
	return nil
}

func (p *Pipeline) fail(ctx context.Context, job *storage.ImportJob, cause error, log logrus.FieldLogger) error {
	job.Errors = append(job.Errors, fmt.Sprintf("A critical error occurred: %v", cause))
	if err := p.tracker.Transition(ctx, job, storage.JobFailed); err != nil {
		log.WithError(err).Error("failed to mark job failed")
	}
	log.WithError(cause).Error("import failed")
	return cause
}

func (p *Pipeline) archive(ctx context.Context, job *storage.ImportJob, data []byte, log logrus.FieldLogger) {
	if p.blobStore == nil {
		return
	}
	key := blob.SourceKey(job.ID)
	if _, err := p.blobStore.PutObject(ctx, key, data, "text/csv"); err != nil {
		log.WithError(err).Warn("source archive failed")
		return
	}
	job.SourceKey = key
}

func (p *Pipeline) run(ctx context.Context, job *storage.ImportJob, data []byte, log logrus.FieldLogger) error {
	table, err := Parse(data)
	if err != nil {
		return err
	}

	total := len(table.Rows)
	job.TotalRecords = total
	if err := p.tracker.Update(ctx, job); err != nil {
		return err
	}

	if p.replace == appcfg.ReplaceTruncate {
		if err := p.records.DeleteOtherGenerations(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to clear dataset: %w", err)
		}
		// readers see the new rows as they land
		if err := p.records.SetCurrentGeneration(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to publish dataset: %w", err)
		}
	}

	for start, batchNo := 0, 1; start < total; start, batchNo = start+p.batchSize, batchNo+1 {
		end := min(start+p.batchSize, total)

		batch := make([]schema.Record, 0, end-start)
		for i := start; i < end; i++ {
			rec, err := p.coercer.Coerce(table.Columns, table.Rows[i])
			if err != nil {
				var rowErr *RowError
				if !errors.As(err, &rowErr) {
					return err
				}
				job.Errors = append(job.Errors, fmt.Sprintf("Row %d: Invalid data - %s", i+1, rowErr.Reason))
				continue
			}
			rec.ReportID = job.ID
			batch = append(batch, rec)
		}

		if len(batch) > 0 {
			n, err := p.records.InsertRecords(ctx, batch)
			if err != nil {
				log.WithError(err).WithField("batch", batchNo).Warn("batch insert failed")
				job.Errors = append(job.Errors, fmt.Sprintf("Insert failed for batch %d: %v", batchNo, err))
			}
			job.Inserted += n
		}

		job.ProcessedRecords = end
		job.Progress = end * 100 / total
		if err := p.tracker.Update(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

// publish makes the job's generation current and drops the others.
func (p *Pipeline) publish(ctx context.Context, generation string) error {
	if err := p.records.SetCurrentGeneration(ctx, generation); err != nil {
		return fmt.Errorf("failed to publish dataset: %w", err)
	}
	if err := p.records.DeleteOtherGenerations(ctx, generation); err != nil {
		p.log.WithError(err).WithField("job_id", generation).Warn("old generations not collected")
	}
	return nil
}
