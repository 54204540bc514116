package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/model"
)

// StartImportRun records the beginning of an import and returns the run.
func (s *PostgresStore) StartImportRun(ctx context.Context, date time.Time, source string) (*model.ImportRun, error) {
	run := &model.ImportRun{
		ID:        uuid.New().String(),
		PriceDate: date,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, price_date, source, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.PriceDate, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start import run")
	}
	return run, nil
}

// CompleteImportRun marks the run complete with its totals.
func (s *PostgresStore) CompleteImportRun(ctx context.Context, id string, totals model.RunTotals) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs
		SET status = $1, completed_at = now(), chains_imported = $2, chains_skipped = $3, new_prices = $4
		WHERE id = $5`,
		string(model.RunStatusComplete), totals.ChainsImported, totals.ChainsSkipped, totals.NewPrices, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete import run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: import run not found: %s", id)
	}
	return nil
}

// FailImportRun marks the run failed with msg.
func (s *PostgresStore) FailImportRun(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		string(model.RunStatusFailed), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail import run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: import run not found: %s", id)
	}
	return nil
}

// ListImportRuns returns the most recent runs first.
func (s *PostgresStore) ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, price_date, source, status, chains_imported, chains_skipped, new_prices, error, started_at, completed_at
		FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list import runs")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		var status string
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.PriceDate, &r.Source, &status, &r.ChainsImported, &r.ChainsSkipped,
			&r.NewPrices, &errMsg, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import run")
		}
		r.Status = model.RunStatus(status)
		r.Error = deref(errMsg)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list import runs")
}
