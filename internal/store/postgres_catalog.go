package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/db"
	"github.com/sells-group/pricewatch/internal/model"
)

// AddChain returns the chain id for code, inserting the chain if needed.
func (s *PostgresStore) AddChain(ctx context.Context, code string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO chains (code) VALUES ($1)
			ON CONFLICT (code) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM chains WHERE code = $1
		LIMIT 1`,
		code,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add chain %s", code)
	}
	return id, nil
}

// ProductBarcodes returns all known barcodes mapped to product ids.
func (s *PostgresStore) ProductBarcodes(ctx context.Context) (map[string]int64, error) {
	return s.codeMap(ctx, "SELECT ean, id FROM products")
}

// ChainProductMap returns the chain's product codes mapped to chain product ids.
func (s *PostgresStore) ChainProductMap(ctx context.Context, chainID int64) (map[string]int64, error) {
	return s.codeMap(ctx, "SELECT code, id FROM chain_products WHERE chain_id = $1", chainID)
}

func (s *PostgresStore) codeMap(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query code map")
	}
	return collectCodeMap(rows)
}

func collectCodeMap(rows pgx.Rows) (map[string]int64, error) {
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan code map")
		}
		out[code] = id
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate code map")
}

// collectInto returns an After hook that reads (code, id) pairs from query
// into dst. The query receives the staging table name via %s.
func collectInto(dst map[string]int64, query string) func(context.Context, pgx.Tx, string) error {
	return func(ctx context.Context, tx pgx.Tx, staging string) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(query, pgx.Identifier{staging}.Sanitize()))
		if err != nil {
			return err
		}
		got, err := collectCodeMap(rows)
		if err != nil {
			return err
		}
		for k, v := range got {
			dst[k] = v
		}
		return nil
	}
}

// AddManyEANs creates empty products for unknown barcodes.
func (s *PostgresStore) AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(eans))
	if len(eans) == 0 {
		return ids, nil
	}

	rows := make([][]any, len(eans))
	for i, ean := range eans {
		rows[i] = []any{ean}
	}

	_, err := db.BulkMerge(ctx, s.pool, db.MergeConfig{
		Table:        "products",
		Columns:      []string{"ean"},
		ConflictKeys: []string{"ean"},
		Action:       db.DoNothing,
		BatchSize:    s.batchSize,
		After:        collectInto(ids, "SELECT p.ean, p.id FROM products p JOIN %s t ON t.ean = p.ean"),
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: add eans")
	}
	return ids, nil
}

// AddManyChainProducts inserts chain products, skipping existing codes.
func (s *PostgresStore) AddManyChainProducts(ctx context.Context, products []model.ChainProduct) (int64, error) {
	rows := make([][]any, len(products))
	for i, cp := range products {
		rows[i] = []any{
			cp.ChainID, cp.ProductID, cp.Code, cp.Name,
			db.Text(cp.Brand), db.Text(cp.Category), db.Text(cp.Unit), db.Text(cp.Quantity),
		}
	}

	n, err := db.BulkMerge(ctx, s.pool, db.MergeConfig{
		Table:        "chain_products",
		Columns:      []string{"chain_id", "product_id", "code", "name", "brand", "category", "unit", "quantity"},
		ConflictKeys: []string{"chain_id", "code"},
		Action:       db.DoNothing,
		BatchSize:    s.batchSize,
	}, rows)
	if err != nil {
		return n, eris.Wrap(err, "postgres: add chain products")
	}
	return n, nil
}

// AddManyStores inserts stores and fills still-empty attributes of
// existing ones. Stored values are never overwritten.
func (s *PostgresStore) AddManyStores(ctx context.Context, stores []model.Store) (map[string]int64, error) {
	ids := make(map[string]int64, len(stores))
	if len(stores) == 0 {
		return ids, nil
	}

	rows := make([][]any, len(stores))
	for i, st := range stores {
		rows[i] = []any{st.ChainID, st.Code, db.Text(st.Type), db.Text(st.Address), db.Text(st.City), db.Text(st.Zipcode)}
	}

	_, err := db.BulkMerge(ctx, s.pool, db.MergeConfig{
		Table:        "stores",
		Columns:      []string{"chain_id", "code", "type", "address", "city", "zipcode"},
		ConflictKeys: []string{"chain_id", "code"},
		Action:       db.FillNull,
		BatchSize:    s.batchSize,
		After: collectInto(ids,
			"SELECT s.code, s.id FROM stores s JOIN %s t ON t.chain_id = s.chain_id AND t.code = s.code"),
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: add stores")
	}
	return ids, nil
}

// AddManyPrices inserts prices, leaving already recorded observations as they are.
func (s *PostgresStore) AddManyPrices(ctx context.Context, prices []model.Price) (int64, error) {
	rows := make([][]any, len(prices))
	for i, p := range prices {
		rows[i] = []any{
			p.ChainProductID, p.StoreID, p.PriceDate,
			db.Numeric(p.RegularPrice), db.Numeric(p.SpecialPrice), db.Numeric(p.UnitPrice),
			db.Numeric(p.BestPrice30), db.Numeric(p.AnchorPrice),
		}
	}

	n, err := db.BulkMerge(ctx, s.pool, db.MergeConfig{
		Table: "prices",
		Columns: []string{
			"chain_product_id", "store_id", "price_date",
			"regular_price", "special_price", "unit_price", "best_price_30", "anchor_price",
		},
		ConflictKeys: []string{"chain_product_id", "store_id", "price_date"},
		Action:       db.DoNothing,
		BatchSize:    s.batchSize,
	}, rows)
	if err != nil {
		return n, eris.Wrap(err, "postgres: add prices")
	}
	return n, nil
}

// UpdateProduct sets every attribute present in p on the product with p.EAN.
func (s *PostgresStore) UpdateProduct(ctx context.Context, p model.Product) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			brand = COALESCE($2, brand),
			name = COALESCE($3, name),
			quantity = COALESCE($4, quantity),
			unit = COALESCE($5, unit)
		WHERE ean = $1`,
		p.EAN, db.Text(p.Brand), db.Text(p.Name), db.Numeric(p.Quantity), db.Text(p.Unit),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update product %s", p.EAN)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStore sets every attribute present in u on the chain's store.
func (s *PostgresStore) UpdateStore(ctx context.Context, chainCode, storeCode string, u model.StoreUpdate) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stores s SET
			address = COALESCE($3, s.address),
			city = COALESCE($4, s.city),
			zipcode = COALESCE($5, s.zipcode),
			lat = COALESCE($6, s.lat),
			lon = COALESCE($7, s.lon),
			phone = COALESCE($8, s.phone)
		FROM chains c
		WHERE c.id = s.chain_id AND c.code = $1 AND s.code = $2`,
		chainCode, storeCode,
		db.Text(u.Address), db.Text(u.City), db.Text(u.Zipcode), db.Float(u.Lat), db.Float(u.Lon), db.Text(u.Phone),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update store %s/%s", chainCode, storeCode)
	}
	return tag.RowsAffected() == 1, nil
}
