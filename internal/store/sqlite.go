package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file. Prices and
// quantities are stored as decimal text and aggregated in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes concurrent chain imports.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, &StorageUnavailableError{Backend: "sqlite", Err: eris.Wrapf(err, "exec %s", pragma)}
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chains (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stores (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id INTEGER NOT NULL REFERENCES chains(id),
	code     TEXT NOT NULL,
	type     TEXT,
	address  TEXT,
	city     TEXT,
	zipcode  TEXT,
	lat      REAL,
	lon      REAL,
	phone    TEXT,
	UNIQUE (chain_id, code)
);

CREATE TABLE IF NOT EXISTS products (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ean      TEXT NOT NULL UNIQUE,
	brand    TEXT,
	name     TEXT,
	quantity TEXT,
	unit     TEXT
);

CREATE TABLE IF NOT EXISTS chain_products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id   INTEGER NOT NULL REFERENCES chains(id),
	product_id INTEGER NOT NULL REFERENCES products(id),
	code       TEXT NOT NULL,
	name       TEXT NOT NULL,
	brand      TEXT,
	category   TEXT,
	unit       TEXT,
	quantity   TEXT,
	UNIQUE (chain_id, code)
);

CREATE INDEX IF NOT EXISTS idx_chain_products_product_id ON chain_products(product_id);

CREATE TABLE IF NOT EXISTS prices (
	chain_product_id INTEGER NOT NULL REFERENCES chain_products(id),
	store_id         INTEGER NOT NULL REFERENCES stores(id),
	price_date       TEXT NOT NULL,
	regular_price    TEXT,
	special_price    TEXT,
	unit_price       TEXT,
	best_price_30    TEXT,
	anchor_price     TEXT,
	PRIMARY KEY (chain_product_id, store_id, price_date)
);

CREATE INDEX IF NOT EXISTS idx_prices_price_date ON prices(price_date);

CREATE TABLE IF NOT EXISTS chain_prices (
	chain_product_id INTEGER NOT NULL REFERENCES chain_products(id),
	price_date       TEXT NOT NULL,
	min_price        TEXT NOT NULL,
	max_price        TEXT NOT NULL,
	avg_price        TEXT NOT NULL,
	PRIMARY KEY (chain_product_id, price_date)
);

CREATE TABLE IF NOT EXISTS chain_stats (
	chain_id    INTEGER NOT NULL REFERENCES chains(id),
	price_date  TEXT NOT NULL,
	price_count INTEGER NOT NULL,
	store_count INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (chain_id, price_date)
);

CREATE TABLE IF NOT EXISTS import_runs (
	id              TEXT PRIMARY KEY,
	price_date      TEXT NOT NULL,
	source          TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	chains_imported INTEGER NOT NULL DEFAULT 0,
	chains_skipped  INTEGER NOT NULL DEFAULT 0,
	new_prices      INTEGER NOT NULL DEFAULT 0,
	error           TEXT,
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME
);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks that the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageUnavailableError{Backend: "sqlite", Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// execEach runs query once per argument row and sums the affected rows.
func execEach(ctx context.Context, tx *sql.Tx, query string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for _, args := range rows {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return total, eris.Wrap(err, "sqlite: exec")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}
	return total, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// priceText formats a money value for storage.
func priceText(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(2)
}

func quantityText(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anys[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func fromNull(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
