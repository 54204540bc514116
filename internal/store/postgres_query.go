package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/db"
	"github.com/sells-group/pricewatch/internal/model"
)

// effectivePriceSQL mirrors aggregate.EffectivePrice.
const effectivePriceSQL = `LEAST(COALESCE(regular_price, special_price), COALESCE(special_price, regular_price))`

// ComputeChainPrices upserts min/max/avg effective prices per chain product for date.
func (s *PostgresStore) ComputeChainPrices(ctx context.Context, date time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO chain_prices (chain_product_id, price_date, min_price, max_price, avg_price)
		SELECT chain_product_id, price_date, MIN(%[1]s), MAX(%[1]s), ROUND(AVG(%[1]s), 2)
		FROM prices
		WHERE price_date = $1
		GROUP BY chain_product_id, price_date
		HAVING COUNT(%[1]s) > 0
		ON CONFLICT (chain_product_id, price_date) DO UPDATE SET
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			avg_price = EXCLUDED.avg_price`, effectivePriceSQL),
		date,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: compute chain prices %s", date.Format(model.DateLayout))
	}
	return tag.RowsAffected(), nil
}

// ComputeChainStats upserts price and store counts per chain for date.
func (s *PostgresStore) ComputeChainStats(ctx context.Context, date time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chain_stats (chain_id, price_date, price_count, store_count)
		SELECT cp.chain_id, p.price_date, COUNT(*), COUNT(DISTINCT p.store_id)
		FROM prices p
		JOIN chain_products cp ON cp.id = p.chain_product_id
		WHERE p.price_date = $1
		GROUP BY cp.chain_id, p.price_date
		ON CONFLICT (chain_id, price_date) DO UPDATE SET
			price_count = EXCLUDED.price_count,
			store_count = EXCLUDED.store_count,
			created_at = now()`,
		date,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: compute chain stats %s", date.Format(model.DateLayout))
	}
	return tag.RowsAffected(), nil
}

// ListChains returns all chains ordered by code.
func (s *PostgresStore) ListChains(ctx context.Context) ([]model.Chain, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, code FROM chains ORDER BY code")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chains")
	}
	defer rows.Close()

	var chains []model.Chain
	for rows.Next() {
		var c model.Chain
		if err := rows.Scan(&c.ID, &c.Code); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chain")
		}
		chains = append(chains, c)
	}
	return chains, eris.Wrap(rows.Err(), "postgres: list chains")
}

// haversineSQL is the great-circle distance in km between the store and ($lat, $lon).
const haversineSQL = `6371 * 2 * ASIN(SQRT(
	POWER(SIN(RADIANS(s.lat - %[1]s) / 2), 2) +
	COS(RADIANS(%[1]s)) * COS(RADIANS(s.lat)) * POWER(SIN(RADIANS(s.lon - %[2]s) / 2), 2)))`

// ListStores returns stores matching filter ordered by chain and store code.
func (s *PostgresStore) ListStores(ctx context.Context, filter StoreFilter) ([]model.Store, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Chains) > 0 {
		where = append(where, "c.code = ANY("+arg(filter.Chains)+")")
	}
	if filter.City != "" {
		where = append(where, "s.city ILIKE "+arg("%"+filter.City+"%"))
	}
	if filter.Address != "" {
		where = append(where, "s.address ILIKE "+arg("%"+filter.Address+"%"))
	}
	if filter.hasLocation() {
		lat, lon := arg(*filter.Lat), arg(*filter.Lon)
		where = append(where, "s.lat IS NOT NULL AND s.lon IS NOT NULL AND "+
			fmt.Sprintf(haversineSQL, lat, lon)+" <= "+arg(filter.radius()))
	}

	query := `SELECT s.id, s.chain_id, s.code, s.type, s.address, s.city, s.zipcode, s.lat, s.lon, s.phone
		FROM stores s JOIN chains c ON c.id = s.chain_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.code, s.code"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		var st model.Store
		var typ, address, city, zipcode, phone *string
		if err := rows.Scan(&st.ID, &st.ChainID, &st.Code, &typ, &address, &city, &zipcode, &st.Lat, &st.Lon, &phone); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		st.Type, st.Address, st.City, st.Zipcode, st.Phone = deref(typ), deref(address), deref(city), deref(zipcode), deref(phone)
		stores = append(stores, st)
	}
	return stores, eris.Wrap(rows.Err(), "postgres: list stores")
}

// GetProductsByEAN returns the catalog products with the given barcodes.
func (s *PostgresStore) GetProductsByEAN(ctx context.Context, eans []string) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, ean, brand, name, quantity, unit FROM products WHERE ean = ANY($1) ORDER BY ean",
		eans,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get products by ean")
	}
	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()
	var products []model.Product
	for rows.Next() {
		var p model.Product
		var brand, name, unit *string
		var qty pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.EAN, &brand, &name, &qty, &unit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		p.Brand, p.Name, p.Unit = deref(brand), deref(name), deref(unit)
		p.Quantity = db.Decimal(qty)
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: scan products")
}

// ListChainProducts returns all chain listings of the given products.
func (s *PostgresStore) ListChainProducts(ctx context.Context, productIDs []int64) ([]model.ChainProduct, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chain_id, product_id, code, name, brand, category, unit, quantity
		FROM chain_products WHERE product_id = ANY($1)
		ORDER BY product_id, chain_id`,
		productIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chain products")
	}
	defer rows.Close()

	var out []model.ChainProduct
	for rows.Next() {
		var cp model.ChainProduct
		var brand, category, unit, quantity *string
		if err := rows.Scan(&cp.ID, &cp.ChainID, &cp.ProductID, &cp.Code, &cp.Name, &brand, &category, &unit, &quantity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chain product")
		}
		cp.Brand, cp.Category, cp.Unit, cp.Quantity = deref(brand), deref(category), deref(unit), deref(quantity)
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list chain products")
}

// GetChainPrices returns the aggregates of each chain's latest imported
// date on or before date.
func (s *PostgresStore) GetChainPrices(ctx context.Context, productIDs []int64, date time.Time) ([]model.ChainPriceAggregate, error) {
	var until *time.Time
	if !date.IsZero() {
		until = &date
	}

	rows, err := s.pool.Query(ctx, `
		WITH chain_dates AS (
			SELECT DISTINCT ON (chain_id) chain_id, price_date
			FROM chain_stats
			WHERE $2::date IS NULL OR price_date <= $2::date
			ORDER BY chain_id, price_date DESC
		)
		SELECT cp.id, cp.product_id, c.code, ap.price_date, ap.min_price, ap.max_price, ap.avg_price
		FROM chain_dates cd
		JOIN chains c ON c.id = cd.chain_id
		JOIN chain_products cp ON cp.chain_id = c.id
		JOIN chain_prices ap ON ap.chain_product_id = cp.id AND ap.price_date = cd.price_date
		WHERE cp.product_id = ANY($1)
		ORDER BY cp.product_id, c.code`,
		productIDs, until,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get chain prices")
	}
	defer rows.Close()

	var out []model.ChainPriceAggregate
	for rows.Next() {
		var a model.ChainPriceAggregate
		var minP, maxP, avgP pgtype.Numeric
		if err := rows.Scan(&a.ChainProductID, &a.ProductID, &a.ChainCode, &a.PriceDate, &minP, &maxP, &avgP); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chain price")
		}
		a.MinPrice, a.MaxPrice, a.AvgPrice = db.Decimal(minP).Decimal, db.Decimal(maxP).Decimal, db.Decimal(avgP).Decimal
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get chain prices")
}

// SearchProducts returns products whose chain listings contain every word
// of query, most listed first.
func (s *PostgresStore) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	words := searchWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	where := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		where[i] = fmt.Sprintf("cp.name ILIKE $%d", i+1)
		args[i] = "%" + w + "%"
	}
	sql := `SELECT p.id, p.ean, p.brand, p.name, p.quantity, p.unit
		FROM chain_products cp JOIN products p ON p.id = cp.product_id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY p.id
		ORDER BY COUNT(cp.id) DESC, p.ean`
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search products")
	}
	return scanProducts(rows)
}

// GetStorePrices returns store-level prices at each chain's latest imported date.
func (s *PostgresStore) GetStorePrices(ctx context.Context, productIDs, storeIDs []int64) ([]model.StorePrice, error) {
	rows, err := s.pool.Query(ctx, `
		WITH chain_dates AS (
			SELECT DISTINCT ON (chain_id) chain_id, price_date
			FROM chain_stats
			ORDER BY chain_id, price_date DESC
		)
		SELECT pr.chain_product_id, pr.store_id, pr.price_date,
			pr.regular_price, pr.special_price, pr.unit_price, pr.best_price_30, pr.anchor_price,
			p.ean, st.code, c.code
		FROM chain_dates cd
		JOIN chains c ON c.id = cd.chain_id
		JOIN chain_products cp ON cp.chain_id = c.id
		JOIN products p ON p.id = cp.product_id
		JOIN prices pr ON pr.chain_product_id = cp.id AND pr.price_date = cd.price_date
		JOIN stores st ON st.id = pr.store_id
		WHERE p.id = ANY($1) AND ($2::bigint[] IS NULL OR st.id = ANY($2))
		ORDER BY c.code, st.code`,
		productIDs, storeIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get store prices")
	}
	defer rows.Close()

	var out []model.StorePrice
	for rows.Next() {
		var sp model.StorePrice
		var regular, special, unit, best, anchor pgtype.Numeric
		if err := rows.Scan(&sp.ChainProductID, &sp.StoreID, &sp.PriceDate,
			&regular, &special, &unit, &best, &anchor,
			&sp.EAN, &sp.StoreCode, &sp.ChainCode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store price")
		}
		sp.RegularPrice, sp.SpecialPrice, sp.UnitPrice = db.Decimal(regular), db.Decimal(special), db.Decimal(unit)
		sp.BestPrice30, sp.AnchorPrice = db.Decimal(best), db.Decimal(anchor)
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get store prices")
}

// ListLatestChainStats returns each chain's most recent stats row.
func (s *PostgresStore) ListLatestChainStats(ctx context.Context) ([]model.ChainStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.code, cs.price_date, cs.price_count, cs.store_count, cs.created_at
		FROM chains c
		JOIN LATERAL (
			SELECT * FROM chain_stats WHERE chain_id = c.id ORDER BY price_date DESC LIMIT 1
		) cs ON true
		ORDER BY c.code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chain stats")
	}
	defer rows.Close()

	var out []model.ChainStats
	for rows.Next() {
		var cs model.ChainStats
		if err := rows.Scan(&cs.ChainID, &cs.ChainCode, &cs.PriceDate, &cs.PriceCount, &cs.StoreCount, &cs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chain stats")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list chain stats")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// searchWords splits a search query into lower-cased words with LIKE
// wildcards removed.
func searchWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.NewReplacer("%", "", "_", "").Replace(w)
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
