// Package enrich applies curated product and store attributes to the
// catalog. Provided values overwrite stored ones.
package enrich

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/model"
)

// Input column sets.
var (
	ProductColumns = []string{"barcode", "brand", "name", "unit", "quantity"}
	StoreColumns   = []string{"chain", "store_id", "address", "city", "zipcode", "lat", "lon", "phone"}
)

// ProductStore is the catalog surface product enrichment needs.
type ProductStore interface {
	GetProductsByEAN(ctx context.Context, eans []string) ([]model.Product, error)
	AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error)
	UpdateProduct(ctx context.Context, p model.Product) (bool, error)
}

// StoreUpdater is the catalog surface store enrichment needs.
type StoreUpdater interface {
	UpdateStore(ctx context.Context, chainCode, storeCode string, u model.StoreUpdate) (bool, error)
}

// Result counts the outcome of one enrichment file.
type Result struct {
	Rows    int
	Updated int
	Created int // products created for unknown barcodes
	Kept    int // products left alone because they already carry data
	Missing int // stores not in the catalog
	Invalid int
}

// ReadRows reads an enrichment file. Files ending in .xlsx are read from
// the first sheet, anything else as UTF-8 CSV.
func ReadRows(ctx context.Context, path string) ([]map[string]string, error) {
	var (
		rows []map[string]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = fetcher.ReadXLSXRecords(path, fetcher.XLSXOptions{})
	} else {
		rows, err = fetcher.ReadRecords(ctx, path, fetcher.CSVOptions{TrimSpace: true})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("enrich: %s has no rows", path)
	}
	return rows, nil
}

// checkColumns requires the row keys to be exactly want.
func checkColumns(row map[string]string, want []string) error {
	got := make([]string, 0, len(row))
	for k := range row {
		got = append(got, k)
	}
	sort.Strings(got)
	exp := append([]string(nil), want...)
	sort.Strings(exp)
	if strings.Join(got, ",") != strings.Join(exp, ",") {
		return eris.Errorf("enrich: columns %v do not match %v", got, want)
	}
	return nil
}

// ConvertUnit maps a source unit and quantity onto the catalog units kg, L,
// kom and m.
func ConvertUnit(unit, quantity string) (string, decimal.Decimal, error) {
	qty, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(quantity), ",", "."))
	if err != nil {
		return "", decimal.Zero, eris.Errorf("enrich: invalid quantity %q", quantity)
	}
	thousand := decimal.NewFromInt(1000)

	switch u := strings.ToLower(strings.TrimSpace(unit)); u {
	case "g":
		return "kg", qty.Div(thousand), nil
	case "ml":
		return "L", qty.Div(thousand), nil
	case "l":
		return "L", qty, nil
	case "par":
		return "kom", qty, nil
	case "kg", "kom", "m":
		return u, qty, nil
	default:
		return "", decimal.Zero, eris.Errorf("enrich: unsupported unit %q", unit)
	}
}

// Products applies product rows. Unknown barcodes are created first;
// products that already have a brand or a name are kept as they are.
func Products(ctx context.Context, st ProductStore, rows []map[string]string) (Result, error) {
	res := Result{Rows: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}
	if err := checkColumns(rows[0], ProductColumns); err != nil {
		return res, err
	}

	var eans []string
	seen := make(map[string]bool)
	for _, row := range rows {
		ean := strings.TrimSpace(row["barcode"])
		if ean != "" && !seen[ean] {
			seen[ean] = true
			eans = append(eans, ean)
		}
	}

	existing, err := st.GetProductsByEAN(ctx, eans)
	if err != nil {
		return res, eris.Wrap(err, "enrich: load products")
	}
	byEAN := make(map[string]model.Product, len(existing))
	for _, p := range existing {
		byEAN[p.EAN] = p
	}

	var unknown []string
	for _, ean := range eans {
		if _, ok := byEAN[ean]; !ok {
			unknown = append(unknown, ean)
		}
	}
	if len(unknown) > 0 {
		if _, err := st.AddManyEANs(ctx, unknown); err != nil {
			return res, eris.Wrap(err, "enrich: create products")
		}
		res.Created = len(unknown)
		for _, ean := range unknown {
			byEAN[ean] = model.Product{EAN: ean}
		}
	}

	for i, row := range rows {
		line := i + 2
		ean := strings.TrimSpace(row["barcode"])
		if ean == "" {
			zap.L().Warn("skipping enrichment row without barcode", zap.Int("line", line))
			res.Invalid++
			continue
		}
		if p := byEAN[ean]; p.Brand != "" || p.Name != "" {
			res.Kept++
			continue
		}

		unit, qty, err := ConvertUnit(row["unit"], row["quantity"])
		if err != nil {
			zap.L().Warn("skipping enrichment row", zap.Int("line", line), zap.String("ean", ean), zap.Error(err))
			res.Invalid++
			continue
		}

		p := model.Product{
			EAN:      ean,
			Brand:    strings.TrimSpace(row["brand"]),
			Name:     strings.TrimSpace(row["name"]),
			Unit:     unit,
			Quantity: decimal.NewNullDecimal(qty),
		}
		ok, err := st.UpdateProduct(ctx, p)
		if err != nil {
			return res, err
		}
		if ok {
			res.Updated++
			byEAN[ean] = p
		}
	}

	zap.L().Info("enriched products",
		zap.Int("rows", res.Rows),
		zap.Int("updated", res.Updated),
		zap.Int("created", res.Created),
		zap.Int("kept", res.Kept),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

// Stores applies store rows to existing stores.
func Stores(ctx context.Context, st StoreUpdater, rows []map[string]string) (Result, error) {
	res := Result{Rows: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}
	if err := checkColumns(rows[0], StoreColumns); err != nil {
		return res, err
	}

	for i, row := range rows {
		line := i + 2
		chain, code := strings.TrimSpace(row["chain"]), strings.TrimSpace(row["store_id"])
		if chain == "" || code == "" {
			zap.L().Warn("skipping store row without chain or store_id", zap.Int("line", line))
			res.Invalid++
			continue
		}

		lat, err := coordinate(row["lat"])
		if err != nil {
			zap.L().Warn("skipping store row", zap.Int("line", line), zap.Error(err))
			res.Invalid++
			continue
		}
		lon, err := coordinate(row["lon"])
		if err != nil {
			zap.L().Warn("skipping store row", zap.Int("line", line), zap.Error(err))
			res.Invalid++
			continue
		}

		ok, err := st.UpdateStore(ctx, chain, code, model.StoreUpdate{
			Address: strings.TrimSpace(row["address"]),
			City:    strings.TrimSpace(row["city"]),
			Zipcode: strings.TrimSpace(row["zipcode"]),
			Lat:     lat,
			Lon:     lon,
			Phone:   strings.TrimSpace(row["phone"]),
		})
		if err != nil {
			return res, err
		}
		if !ok {
			zap.L().Debug("store not in catalog", zap.String("chain", chain), zap.String("store", code))
			res.Missing++
			continue
		}
		res.Updated++
	}

	zap.L().Info("enriched stores",
		zap.Int("rows", res.Rows),
		zap.Int("updated", res.Updated),
		zap.Int("missing", res.Missing),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

func coordinate(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil, eris.Errorf("enrich: invalid coordinate %q", s)
	}
	return &v, nil
}
