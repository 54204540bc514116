package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/pricewatch/internal/aggregate"
	"github.com/sells-group/pricewatch/internal/model"
)

// ComputeChainPrices summarizes the date's prices in Go and upserts the result.
func (s *SQLiteStore) ComputeChainPrices(ctx context.Context, date time.Time) (int64, error) {
	day := date.Format(model.DateLayout)
	rows, err := s.db.QueryContext(ctx,
		"SELECT chain_product_id, regular_price, special_price FROM prices WHERE price_date = ?", day)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: read prices %s", day)
	}

	var obs []aggregate.Observation
	for rows.Next() {
		var o aggregate.Observation
		var regular, special sql.NullString
		if err := rows.Scan(&o.ChainProductID, &regular, &special); err != nil {
			rows.Close() //nolint:errcheck
			return 0, eris.Wrap(err, "sqlite: scan price")
		}
		if o.Regular, err = toDecimal(regular); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		if o.Special, err = toDecimal(special); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		obs = append(obs, o)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: read prices")
	}

	aggs := aggregate.ChainPrices(date, obs)
	args := make([][]any, len(aggs))
	for i, a := range aggs {
		args[i] = []any{a.ChainProductID, day, a.MinPrice.StringFixed(2), a.MaxPrice.StringFixed(2), a.AvgPrice.StringFixed(2)}
	}

	var n int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = execEach(ctx, tx, `
			INSERT INTO chain_prices (chain_product_id, price_date, min_price, max_price, avg_price)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (chain_product_id, price_date) DO UPDATE SET
				min_price = excluded.min_price,
				max_price = excluded.max_price,
				avg_price = excluded.avg_price`, args)
		return err
	})
	return n, eris.Wrapf(err, "sqlite: compute chain prices %s", day)
}

// ComputeChainStats upserts price and store counts per chain for date.
func (s *SQLiteStore) ComputeChainStats(ctx context.Context, date time.Time) (int64, error) {
	day := date.Format(model.DateLayout)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_stats (chain_id, price_date, price_count, store_count, created_at)
		SELECT cp.chain_id, p.price_date, COUNT(*), COUNT(DISTINCT p.store_id), ?
		FROM prices p
		JOIN chain_products cp ON cp.id = p.chain_product_id
		WHERE p.price_date = ?
		GROUP BY cp.chain_id, p.price_date
		ON CONFLICT (chain_id, price_date) DO UPDATE SET
			price_count = excluded.price_count,
			store_count = excluded.store_count,
			created_at = excluded.created_at`,
		time.Now().UTC(), day,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: compute chain stats %s", day)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// ListChains returns all chains ordered by code.
func (s *SQLiteStore) ListChains(ctx context.Context) ([]model.Chain, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, code FROM chains ORDER BY code")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chains")
	}
	defer rows.Close() //nolint:errcheck

	var chains []model.Chain
	for rows.Next() {
		var c model.Chain
		if err := rows.Scan(&c.ID, &c.Code); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chain")
		}
		chains = append(chains, c)
	}
	return chains, eris.Wrap(rows.Err(), "sqlite: list chains")
}

// ListStores returns stores matching filter ordered by chain and store code.
// The radius and limit are applied after the text filters.
func (s *SQLiteStore) ListStores(ctx context.Context, filter StoreFilter) ([]model.Store, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if len(filter.Chains) > 0 {
		where = append(where, "c.code IN ("+placeholders(len(filter.Chains))+")")
		args = append(args, anys(filter.Chains)...)
	}
	if filter.City != "" {
		where = append(where, "LOWER(s.city) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.City)+"%")
	}
	if filter.Address != "" {
		where = append(where, "LOWER(s.address) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Address)+"%")
	}

	query := `SELECT s.id, s.chain_id, s.code, s.type, s.address, s.city, s.zipcode, s.lat, s.lon, s.phone
		FROM stores s JOIN chains c ON c.id = s.chain_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.code, s.code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close() //nolint:errcheck

	var stores []model.Store
	for rows.Next() {
		var st model.Store
		var typ, address, city, zipcode, phone sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.ChainID, &st.Code, &typ, &address, &city, &zipcode, &lat, &lon, &phone); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		st.Type, st.Address, st.City, st.Zipcode, st.Phone = fromNull(typ), fromNull(address), fromNull(city), fromNull(zipcode), fromNull(phone)
		if lat.Valid && lon.Valid {
			st.Lat, st.Lon = &lat.Float64, &lon.Float64
		}
		if filter.hasLocation() && !filter.within(st.Lat, st.Lon) {
			continue
		}
		stores = append(stores, st)
		if filter.Limit > 0 && len(stores) == filter.Limit {
			break
		}
	}
	return stores, eris.Wrap(rows.Err(), "sqlite: list stores")
}

// GetProductsByEAN returns the catalog products with the given barcodes.
func (s *SQLiteStore) GetProductsByEAN(ctx context.Context, eans []string) ([]model.Product, error) {
	if len(eans) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ean, brand, name, quantity, unit FROM products WHERE ean IN ("+placeholders(len(eans))+") ORDER BY ean",
		anys(eans)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get products by ean")
	}
	return scanSQLiteProducts(rows)
}

func scanSQLiteProducts(rows *sql.Rows) ([]model.Product, error) {
	defer rows.Close() //nolint:errcheck
	var products []model.Product
	for rows.Next() {
		var p model.Product
		var brand, name, qty, unit sql.NullString
		if err := rows.Scan(&p.ID, &p.EAN, &brand, &name, &qty, &unit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		p.Brand, p.Name, p.Unit = fromNull(brand), fromNull(name), fromNull(unit)
		var err error
		if p.Quantity, err = toDecimal(qty); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: scan products")
}

// ListChainProducts returns all chain listings of the given products.
func (s *SQLiteStore) ListChainProducts(ctx context.Context, productIDs []int64) ([]model.ChainProduct, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain_id, product_id, code, name, brand, category, unit, quantity
		FROM chain_products WHERE product_id IN (`+placeholders(len(productIDs))+`)
		ORDER BY product_id, chain_id`,
		anys(productIDs)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chain products")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChainProduct
	for rows.Next() {
		var cp model.ChainProduct
		var brand, category, unit, quantity sql.NullString
		if err := rows.Scan(&cp.ID, &cp.ChainID, &cp.ProductID, &cp.Code, &cp.Name, &brand, &category, &unit, &quantity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chain product")
		}
		cp.Brand, cp.Category, cp.Unit, cp.Quantity = fromNull(brand), fromNull(category), fromNull(unit), fromNull(quantity)
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list chain products")
}

// latestDatesSQL selects each chain's latest stats date, optionally capped by
// the first bound parameter.
const latestDatesSQL = `SELECT chain_id, MAX(price_date) AS price_date
	FROM chain_stats
	WHERE ? IS NULL OR price_date <= ?
	GROUP BY chain_id`

// GetChainPrices returns the aggregates of each chain's latest imported
// date on or before date.
func (s *SQLiteStore) GetChainPrices(ctx context.Context, productIDs []int64, date time.Time) ([]model.ChainPriceAggregate, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var until any
	if !date.IsZero() {
		until = date.Format(model.DateLayout)
	}

	args := append([]any{until, until}, anys(productIDs)...)
	rows, err := s.db.QueryContext(ctx, `
		WITH chain_dates AS (`+latestDatesSQL+`)
		SELECT cp.id, cp.product_id, c.code, ap.price_date, ap.min_price, ap.max_price, ap.avg_price
		FROM chain_dates cd
		JOIN chains c ON c.id = cd.chain_id
		JOIN chain_products cp ON cp.chain_id = c.id
		JOIN chain_prices ap ON ap.chain_product_id = cp.id AND ap.price_date = cd.price_date
		WHERE cp.product_id IN (`+placeholders(len(productIDs))+`)
		ORDER BY cp.product_id, c.code`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get chain prices")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChainPriceAggregate
	for rows.Next() {
		var a model.ChainPriceAggregate
		var day, minP, maxP, avgP string
		if err := rows.Scan(&a.ChainProductID, &a.ProductID, &a.ChainCode, &day, &minP, &maxP, &avgP); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chain price")
		}
		if a.PriceDate, err = model.ParseDate(day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", day)
		}
		if a.MinPrice, err = decimal.NewFromString(minP); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse min price")
		}
		if a.MaxPrice, err = decimal.NewFromString(maxP); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse max price")
		}
		if a.AvgPrice, err = decimal.NewFromString(avgP); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse avg price")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get chain prices")
}

// SearchProducts returns products whose chain listings contain every word
// of query, most listed first.
func (s *SQLiteStore) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	words := searchWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	where := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		where[i] = "LOWER(cp.name) LIKE ?"
		args[i] = "%" + w + "%"
	}
	q := `SELECT p.id, p.ean, p.brand, p.name, p.quantity, p.unit
		FROM chain_products cp JOIN products p ON p.id = cp.product_id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY p.id
		ORDER BY COUNT(cp.id) DESC, p.ean`
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search products")
	}
	return scanSQLiteProducts(rows)
}

// GetStorePrices returns store-level prices at each chain's latest imported date.
func (s *SQLiteStore) GetStorePrices(ctx context.Context, productIDs, storeIDs []int64) ([]model.StorePrice, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	args := append([]any{nil, nil}, anys(productIDs)...)
	storeClause := ""
	if storeIDs != nil {
		if len(storeIDs) == 0 {
			return nil, nil
		}
		storeClause = " AND st.id IN (" + placeholders(len(storeIDs)) + ")"
		args = append(args, anys(storeIDs)...)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH chain_dates AS (`+latestDatesSQL+`)
		SELECT pr.chain_product_id, pr.store_id, pr.price_date,
			pr.regular_price, pr.special_price, pr.unit_price, pr.best_price_30, pr.anchor_price,
			p.ean, st.code, c.code
		FROM chain_dates cd
		JOIN chains c ON c.id = cd.chain_id
		JOIN chain_products cp ON cp.chain_id = c.id
		JOIN products p ON p.id = cp.product_id
		JOIN prices pr ON pr.chain_product_id = cp.id AND pr.price_date = cd.price_date
		JOIN stores st ON st.id = pr.store_id
		WHERE p.id IN (`+placeholders(len(productIDs))+`)`+storeClause+`
		ORDER BY c.code, st.code`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get store prices")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StorePrice
	for rows.Next() {
		var sp model.StorePrice
		var day string
		var regular, special, unit, best, anchor sql.NullString
		if err := rows.Scan(&sp.ChainProductID, &sp.StoreID, &day,
			&regular, &special, &unit, &best, &anchor,
			&sp.EAN, &sp.StoreCode, &sp.ChainCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store price")
		}
		if sp.PriceDate, err = model.ParseDate(day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", day)
		}
		for _, f := range []struct {
			src sql.NullString
			dst *decimal.NullDecimal
		}{
			{regular, &sp.RegularPrice}, {special, &sp.SpecialPrice}, {unit, &sp.UnitPrice},
			{best, &sp.BestPrice30}, {anchor, &sp.AnchorPrice},
		} {
			if *f.dst, err = toDecimal(f.src); err != nil {
				return nil, err
			}
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get store prices")
}

// ListLatestChainStats returns each chain's most recent stats row.
func (s *SQLiteStore) ListLatestChainStats(ctx context.Context) ([]model.ChainStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.code, cs.price_date, cs.price_count, cs.store_count, cs.created_at
		FROM chains c
		JOIN chain_stats cs ON cs.chain_id = c.id
		WHERE cs.price_date = (SELECT MAX(price_date) FROM chain_stats WHERE chain_id = c.id)
		ORDER BY c.code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chain stats")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChainStats
	for rows.Next() {
		var cs model.ChainStats
		var day string
		if err := rows.Scan(&cs.ChainID, &cs.ChainCode, &day, &cs.PriceCount, &cs.StoreCount, &cs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chain stats")
		}
		if cs.PriceDate, err = model.ParseDate(day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", day)
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list chain stats")
}

func toDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, eris.Wrapf(err, "sqlite: parse decimal %q", s.String)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
