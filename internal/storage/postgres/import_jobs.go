package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/adreport/internal/storage"
	"github.com/jackc/pgx/v5"
)

const importJobColumns = `id, status, progress, total_records, processed_records, inserted, errors,
	filename, source_size, source_checksum, source_key, created_at, updated_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImportJob(row rowScanner) (*storage.ImportJob, error) {
	var job storage.ImportJob
	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Progress,
		&job.TotalRecords,
		&job.ProcessedRecords,
		&job.Inserted,
		&job.Errors,
		&job.Filename,
		&job.SourceSize,
		&job.SourceChecksum,
		&job.SourceKey,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if job.Errors == nil {
		job.Errors = []string{}
	}
	return &job, nil
}

func jobErrors(job *storage.ImportJob) []string {
	if job.Errors == nil {
		return []string{}
	}
	return job.Errors
}

// CreateJob сохраняет новую задачу импорта
func (p *PostgresStorage) CreateJob(ctx context.Context, job *storage.ImportJob) error {
	stmt := `
		INSERT INTO import_jobs (` + importJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := p.pool.Exec(ctx, stmt,
		job.ID,
		job.Status,
		job.Progress,
		job.TotalRecords,
		job.ProcessedRecords,
		job.Inserted,
		jobErrors(job),
		job.Filename,
		job.SourceSize,
		job.SourceChecksum,
		job.SourceKey,
		job.CreatedAt,
		job.UpdatedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}

	return nil
}

// UpdateJob перезаписывает изменяемые поля задачи
func (p *PostgresStorage) UpdateJob(ctx context.Context, job *storage.ImportJob) error {
	stmt := `
		UPDATE import_jobs
		SET status = $2, progress = $3, total_records = $4, processed_records = $5,
			inserted = $6, errors = $7, source_key = $8, updated_at = $9, finished_at = $10
		WHERE id = $1
	`

	result, err := p.pool.Exec(ctx, stmt,
		job.ID,
		job.Status,
		job.Progress,
		job.TotalRecords,
		job.ProcessedRecords,
		job.Inserted,
		jobErrors(job),
		job.SourceKey,
		job.UpdatedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// GetJob возвращает задачу по ID
func (p *PostgresStorage) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	stmt := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanImportJob(p.pool.QueryRow(ctx, stmt, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}

	return job, nil
}

// ListJobs возвращает последние задачи
func (p *PostgresStorage) ListJobs(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	if limit <= 0 {
		limit = 100
	}

	stmt := `SELECT ` + importJobColumns + ` FROM import_jobs ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []storage.ImportJob{}
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}
