package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/model"
)

// StartImportRun records the beginning of an import and returns the run.
func (s *SQLiteStore) StartImportRun(ctx context.Context, date time.Time, source string) (*model.ImportRun, error) {
	run := &model.ImportRun{
		ID:        uuid.New().String(),
		PriceDate: date,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, price_date, source, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, date.Format(model.DateLayout), run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start import run")
	}
	return run, nil
}

// CompleteImportRun marks the run complete with its totals.
func (s *SQLiteStore) CompleteImportRun(ctx context.Context, id string, totals model.RunTotals) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs
		SET status = ?, completed_at = ?, chains_imported = ?, chains_skipped = ?, new_prices = ?
		WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC(), totals.ChainsImported, totals.ChainsSkipped, totals.NewPrices, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete import run %s", id)
	}
	return runUpdated(res, id)
}

// FailImportRun marks the run failed with msg.
func (s *SQLiteStore) FailImportRun(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail import run %s", id)
	}
	return runUpdated(res, id)
}

func runUpdated(res sql.Result, id string) error {
	ok, err := matchedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Errorf("sqlite: import run not found: %s", id)
	}
	return nil
}

// ListImportRuns returns the most recent runs first.
func (s *SQLiteStore) ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, price_date, source, status, chains_imported, chains_skipped, new_prices, error, started_at, completed_at
		FROM import_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list import runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		var day, status string
		var errMsg sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &day, &r.Source, &status, &r.ChainsImported, &r.ChainsSkipped,
			&r.NewPrices, &errMsg, &r.StartedAt, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import run")
		}
		if r.PriceDate, err = model.ParseDate(day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", day)
		}
		r.Status = model.RunStatus(status)
		r.Error = fromNull(errMsg)
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list import runs")
}
