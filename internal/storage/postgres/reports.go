package postgres

import (
	"context"
	"fmt"

	"github.com/fdg312/adreport/internal/storage"
)

// CreateSavedReport сохраняет конфигурацию отчёта
func (p *PostgresStorage) CreateSavedReport(ctx context.Context, report *storage.SavedReport) error {
	stmt := `
		INSERT INTO saved_reports (id, name, dimensions, metrics, date_range, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.pool.Exec(ctx, stmt,
		report.ID,
		report.Name,
		report.Dimensions,
		report.Metrics,
		report.DateRange,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create saved report: %w", err)
	}

	return nil
}

// ListSavedReports возвращает все сохранённые отчёты
func (p *PostgresStorage) ListSavedReports(ctx context.Context) ([]storage.SavedReport, error) {
	stmt := `
		SELECT id, name, dimensions, metrics, date_range, created_at
		FROM saved_reports
		ORDER BY created_at ASC, id ASC
	`

	rows, err := p.pool.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved reports: %w", err)
	}
	defer rows.Close()

	reports := []storage.SavedReport{}
	for rows.Next() {
		var r storage.SavedReport
		err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.Dimensions,
			&r.Metrics,
			&r.DateRange,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved report: %w", err)
		}
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

// DeleteSavedReport удаляет отчёт
func (p *PostgresStorage) DeleteSavedReport(ctx context.Context, id string) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM saved_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved report: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}
