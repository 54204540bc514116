package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/model"
)

// AddChain returns the chain id for code, inserting the chain if needed.
func (s *SQLiteStore) AddChain(ctx context.Context, code string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, "INSERT INTO chains (code) VALUES (?) ON CONFLICT (code) DO NOTHING", code); err != nil {
		return 0, eris.Wrapf(err, "sqlite: add chain %s", code)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM chains WHERE code = ?", code).Scan(&id); err != nil {
		return 0, eris.Wrapf(err, "sqlite: add chain %s", code)
	}
	return id, nil
}

// ProductBarcodes returns all known barcodes mapped to product ids.
func (s *SQLiteStore) ProductBarcodes(ctx context.Context) (map[string]int64, error) {
	return s.codeMap(ctx, s.db, "SELECT ean, id FROM products")
}

// ChainProductMap returns the chain's product codes mapped to chain product ids.
func (s *SQLiteStore) ChainProductMap(ctx context.Context, chainID int64) (map[string]int64, error) {
	return s.codeMap(ctx, s.db, "SELECT code, id FROM chain_products WHERE chain_id = ?", chainID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) codeMap(ctx context.Context, q querier, query string, args ...any) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query code map")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]int64)
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan code map")
		}
		out[code] = id
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate code map")
}

// AddManyEANs creates empty products for unknown barcodes.
func (s *SQLiteStore) AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(eans))
	if len(eans) == 0 {
		return ids, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows := make([][]any, len(eans))
		for i, ean := range eans {
			rows[i] = []any{ean}
		}
		if _, err := execEach(ctx, tx, "INSERT INTO products (ean) VALUES (?) ON CONFLICT (ean) DO NOTHING", rows); err != nil {
			return err
		}

		lookup, err := tx.PrepareContext(ctx, "SELECT id FROM products WHERE ean = ?")
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare ean lookup")
		}
		defer lookup.Close() //nolint:errcheck
		for _, ean := range eans {
			var id int64
			if err := lookup.QueryRowContext(ctx, ean).Scan(&id); err != nil {
				return eris.Wrapf(err, "sqlite: lookup ean %s", ean)
			}
			ids[ean] = id
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: add eans")
	}
	return ids, nil
}

// AddManyChainProducts inserts chain products, skipping existing codes.
func (s *SQLiteStore) AddManyChainProducts(ctx context.Context, products []model.ChainProduct) (int64, error) {
	rows := make([][]any, len(products))
	for i, cp := range products {
		rows[i] = []any{
			cp.ChainID, cp.ProductID, cp.Code, cp.Name,
			nullText(cp.Brand), nullText(cp.Category), nullText(cp.Unit), nullText(cp.Quantity),
		}
	}

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = execEach(ctx, tx, `
			INSERT INTO chain_products (chain_id, product_id, code, name, brand, category, unit, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (chain_id, code) DO NOTHING`, rows)
		return err
	})
	return n, eris.Wrap(err, "sqlite: add chain products")
}

// AddManyStores inserts stores and fills still-empty attributes of
// existing ones. Stored values are never overwritten.
func (s *SQLiteStore) AddManyStores(ctx context.Context, stores []model.Store) (map[string]int64, error) {
	ids := make(map[string]int64, len(stores))
	if len(stores) == 0 {
		return ids, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO stores (chain_id, code, type, address, city, zipcode)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (chain_id, code) DO UPDATE SET
				type = COALESCE(stores.type, excluded.type),
				address = COALESCE(stores.address, excluded.address),
				city = COALESCE(stores.city, excluded.city),
				zipcode = COALESCE(stores.zipcode, excluded.zipcode)
			RETURNING id`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare store upsert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, st := range stores {
			var id int64
			err := stmt.QueryRowContext(ctx,
				st.ChainID, st.Code, nullText(st.Type), nullText(st.Address), nullText(st.City), nullText(st.Zipcode),
			).Scan(&id)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert store %s", st.Code)
			}
			ids[st.Code] = id
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: add stores")
	}
	return ids, nil
}

// AddManyPrices inserts prices, leaving already recorded observations as they are.
func (s *SQLiteStore) AddManyPrices(ctx context.Context, prices []model.Price) (int64, error) {
	rows := make([][]any, len(prices))
	for i, p := range prices {
		rows[i] = []any{
			p.ChainProductID, p.StoreID, p.PriceDate.Format(model.DateLayout),
			priceText(p.RegularPrice), priceText(p.SpecialPrice), priceText(p.UnitPrice),
			priceText(p.BestPrice30), priceText(p.AnchorPrice),
		}
	}

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = execEach(ctx, tx, `
			INSERT INTO prices (chain_product_id, store_id, price_date,
				regular_price, special_price, unit_price, best_price_30, anchor_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (chain_product_id, store_id, price_date) DO NOTHING`, rows)
		return err
	})
	return n, eris.Wrap(err, "sqlite: add prices")
}

// UpdateProduct sets every attribute present in p on the product with p.EAN.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p model.Product) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			brand = COALESCE(?, brand),
			name = COALESCE(?, name),
			quantity = COALESCE(?, quantity),
			unit = COALESCE(?, unit)
		WHERE ean = ?`,
		nullText(p.Brand), nullText(p.Name), quantityText(p.Quantity), nullText(p.Unit), p.EAN,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update product %s", p.EAN)
	}
	return matchedOne(res)
}

// UpdateStore sets every attribute present in u on the chain's store.
func (s *SQLiteStore) UpdateStore(ctx context.Context, chainCode, storeCode string, u model.StoreUpdate) (bool, error) {
	var lat, lon any
	if u.Lat != nil {
		lat = *u.Lat
	}
	if u.Lon != nil {
		lon = *u.Lon
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET
			address = COALESCE(?, address),
			city = COALESCE(?, city),
			zipcode = COALESCE(?, zipcode),
			lat = COALESCE(?, lat),
			lon = COALESCE(?, lon),
			phone = COALESCE(?, phone)
		WHERE code = ? AND chain_id = (SELECT id FROM chains WHERE code = ?)`,
		nullText(u.Address), nullText(u.City), nullText(u.Zipcode), lat, lon, nullText(u.Phone),
		storeCode, chainCode,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update store %s/%s", chainCode, storeCode)
	}
	return matchedOne(res)
}

func matchedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}
