package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ConflictAction selects what a merge does with rows whose conflict keys
// already exist in the target table.
type ConflictAction int

const (
	// DoNothing keeps the stored row untouched (insert-or-ignore).
	DoNothing ConflictAction = iota
	// Overwrite replaces the update columns with the incoming values.
	Overwrite
	// FillNull only sets update columns that are currently NULL in storage.
	FillNull
)

// MergeConfig defines the parameters for a staged bulk merge.
type MergeConfig struct {
	Table        string   // target table
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	Action       ConflictAction
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	BatchSize    int      // rows per transaction; 0 = single transaction

	// After runs in the merge transaction once the merge statement has
	// executed. The staging table is still readable under the given name.
	After func(ctx context.Context, tx pgx.Tx, staging string) error
}

// BulkMerge loads rows through a staging table and merges them into the
// target in one statement per batch:
//  1. CREATE TEMP TABLE ... ON COMMIT DROP AS SELECT cols FROM target WITH NO DATA
//  2. COPY rows into the staging table
//  3. INSERT INTO target SELECT ... FROM staging ON CONFLICT (keys) ...
//
// It returns the number of rows the merge statements affected.
func BulkMerge(ctx context.Context, pool Pool, cfg MergeConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: merge: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: merge: no conflict keys specified")
	}

	stmt := mergeSQL(cfg)

	var total int64
	for _, chunk := range Chunk(rows, cfg.BatchSize) {
		n, err := mergeChunk(ctx, pool, cfg, stmt, chunk)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func mergeChunk(ctx context.Context, pool Pool, cfg MergeConfig, stmt string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := StagingTable(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		pgx.Identifier{staging}.Sanitize(),
		quoteAndJoin(cfg.Columns),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: merge: create staging table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: COPY into staging table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, stmt)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if cfg.After != nil {
		if err := cfg.After(ctx, tx, staging); err != nil {
			return 0, eris.Wrapf(err, "db: merge: after hook for %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit tx")
	}

	return tag.RowsAffected(), nil
}

// StagingTable returns the temp table name used when merging into table.
func StagingTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

func mergeSQL(cfg MergeConfig) string {
	colList := quoteAndJoin(cfg.Columns)
	head := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{StagingTable(cfg.Table)}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
	)

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		updateCols = nonKeyColumns(cfg.Columns, cfg.ConflictKeys)
	}
	if cfg.Action == DoNothing || len(updateCols) == 0 {
		return head + " DO NOTHING"
	}

	setClauses := make([]string, len(updateCols))
	for i, col := range updateCols {
		c := pgx.Identifier{col}.Sanitize()
		if cfg.Action == FillNull {
			setClauses[i] = fmt.Sprintf("%s = COALESCE(t.%s, EXCLUDED.%s)", c, c, c)
		} else {
			setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
		}
	}
	return head + " DO UPDATE SET " + strings.Join(setClauses, ", ")
}

func nonKeyColumns(columns, keys []string) []string {
	conflictSet := make(map[string]bool, len(keys))
	for _, k := range keys {
		conflictSet[k] = true
	}
	var cols []string
	for _, c := range columns {
		if !conflictSet[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// sanitizeTable handles schema-qualified table names like "public.prices".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
