package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage - Postgres реализация storage.Storage
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// New открывает пул соединений. Схема создаётся миграциями goose.
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) Name() string {
	return "postgres"
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// recordColumns is the COPY column order; it follows the registry.
func recordColumns() []string {
	cols := []string{schema.FieldReportID}
	for _, f := range schema.Fields() {
		cols = append(cols, f.Name)
	}
	return cols
}

func recordValues(r *schema.Record) []any {
	values := []any{r.ReportID}
	for _, f := range schema.Fields() {
		switch f.Kind {
		case schema.KindText:
			values = append(values, r.Text(f.Name))
		case schema.KindDate:
			values = append(values, r.Date)
		case schema.KindInt:
			values = append(values, int64(r.Number(f.Name)))
		default:
			values = append(values, r.Number(f.Name))
		}
	}
	return values
}

func (p *PostgresStorage) InsertRecords(ctx context.Context, records []schema.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	n, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{recordsTable},
		recordColumns(),
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return recordValues(&records[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy records: %w", err)
	}

	return int(n), nil
}

func (p *PostgresStorage) DeleteGeneration(ctx context.Context, generation string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM ad_reports WHERE report_id = $1`, generation); err != nil {
		return fmt.Errorf("failed to delete generation %s: %w", generation, err)
	}
	return nil
}

func (p *PostgresStorage) DeleteOtherGenerations(ctx context.Context, keep string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM ad_reports WHERE report_id <> $1`, keep); err != nil {
		return fmt.Errorf("failed to delete stale generations: %w", err)
	}
	return nil
}

func (p *PostgresStorage) SetCurrentGeneration(ctx context.Context, generation string) error {
	stmt := `
		INSERT INTO dataset_state (id, report_id, updated_at)
		VALUES ('current', $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET report_id = EXCLUDED.report_id, updated_at = EXCLUDED.updated_at
	`
	if _, err := p.pool.Exec(ctx, stmt, generation); err != nil {
		return fmt.Errorf("failed to set current generation: %w", err)
	}
	return nil
}

func (p *PostgresStorage) CurrentGeneration(ctx context.Context) (string, error) {
	var generation string
	err := p.pool.QueryRow(ctx, `SELECT report_id FROM dataset_state WHERE id = 'current'`).Scan(&generation)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current generation: %w", err)
	}
	return generation, nil
}

func (p *PostgresStorage) Aggregate(ctx context.Context, plan *query.Plan, generation string) ([]query.Row, int, error) {
	sql, args := BuildAggregateSQL(plan, generation)

	var total int
	var data []byte
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&total, &data); err != nil {
		return nil, 0, fmt.Errorf("failed to run aggregation: %w", err)
	}

	rows, err := decodeGroups(plan, data)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (p *PostgresStorage) CountRecords(ctx context.Context, generation string) (int64, error) {
	var n int64
	var err error
	if generation == "" {
		err = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ad_reports`).Scan(&n)
	} else {
		err = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ad_reports WHERE report_id = $1`, generation).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (p *PostgresStorage) Generations(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT report_id FROM ad_reports ORDER BY report_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStorage) Summarize(ctx context.Context, generation string) (*storage.Summary, error) {
	stmt := `
		SELECT
			COALESCE(SUM(ad_exchange_total_requests), 0)::bigint,
			COALESCE(SUM(ad_exchange_line_item_level_impressions), 0)::bigint,
			COALESCE(SUM(ad_exchange_line_item_level_clicks), 0)::bigint,
			COALESCE(SUM(payout), 0)::double precision
		FROM ad_reports
		WHERE $1 = '' OR report_id = $1
	`

	var sum storage.Summary
	err := p.pool.QueryRow(ctx, stmt, generation).Scan(
		&sum.TotalRequests,
		&sum.Impressions,
		&sum.Clicks,
		&sum.Payout,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize records: %w", err)
	}

	sum.AverageECPM = query.Ratio(sum.Payout, float64(sum.Impressions), 1000)
	return &sum, nil
}

var _ storage.Storage = (*PostgresStorage)(nil)
