// Package ingest reads one chain's canonical CSV triple and persists its
// stores, products and prices.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/export"
	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/normalize"
)

// MissingChainFileError means a chain directory lacks one of its CSV files.
type MissingChainFileError struct {
	Chain string
	File  string
}

func (e *MissingChainFileError) Error() string {
	return fmt.Sprintf("ingest: chain %s: missing %s", e.Chain, e.File)
}

// ChainFiles holds the parsed rows of one chain directory.
type ChainFiles struct {
	Chain    string
	Stores   []model.StoreRow
	Products []model.ProductRow
	Prices   []model.PriceRow
}

// ReadChain reads stores.csv, products.csv and prices.csv from dir. The
// chain code is the directory name.
func ReadChain(ctx context.Context, dir string) (*ChainFiles, error) {
	chain := filepath.Base(dir)

	for _, name := range []string{export.StoresFile, export.ProductsFile, export.PricesFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				return nil, &MissingChainFileError{Chain: chain, File: name}
			}
			return nil, eris.Wrapf(err, "ingest: stat %s", name)
		}
	}

	read := func(name string) ([]map[string]string, error) {
		recs, err := fetcher.ReadRecords(ctx, filepath.Join(dir, name), fetcher.CSVOptions{TrimSpace: true})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: chain %s", chain)
		}
		return recs, nil
	}

	files := &ChainFiles{Chain: chain}

	stores, err := read(export.StoresFile)
	if err != nil {
		return nil, err
	}
	files.Stores = storeRows(chain, stores)

	products, err := read(export.ProductsFile)
	if err != nil {
		return nil, err
	}
	files.Products = productRows(chain, products)

	prices, err := read(export.PricesFile)
	if err != nil {
		return nil, err
	}
	files.Prices = priceRows(chain, prices)

	return files, nil
}

// storeRows converts records into store rows, merging duplicate store codes
// so that the first non-empty value of each attribute wins.
func storeRows(chain string, recs []map[string]string) []model.StoreRow {
	byCode := make(map[string]int, len(recs))
	var out []model.StoreRow
	for i, r := range recs {
		row := model.StoreRow{
			Code:    r["store_id"],
			Type:    r["type"],
			Address: r["address"],
			City:    r["city"],
			Zipcode: r["zipcode"],
		}
		if row.Code == "" {
			zap.L().Warn("skipping store without id", zap.String("chain", chain), zap.Int("line", i+2))
			continue
		}
		idx, ok := byCode[row.Code]
		if !ok {
			byCode[row.Code] = len(out)
			out = append(out, row)
			continue
		}
		merged := &out[idx]
		fill(&merged.Type, row.Type)
		fill(&merged.Address, row.Address)
		fill(&merged.City, row.City)
		fill(&merged.Zipcode, row.Zipcode)
	}
	return out
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func productRows(chain string, recs []map[string]string) []model.ProductRow {
	out := make([]model.ProductRow, 0, len(recs))
	for i, r := range recs {
		row := model.ProductRow{
			Code:     r["product_id"],
			Barcode:  r["barcode"],
			Name:     r["name"],
			Brand:    r["brand"],
			Category: r["category"],
			Unit:     r["unit"],
			Quantity: r["quantity"],
		}
		if row.Code == "" {
			zap.L().Warn("skipping product without id", zap.String("chain", chain), zap.Int("line", i+2))
			continue
		}
		out = append(out, row)
	}
	return out
}

// priceRows parses price records. Zero secondary prices mean "not
// applicable" and are stored as absent.
func priceRows(chain string, recs []map[string]string) []model.PriceRow {
	out := make([]model.PriceRow, 0, len(recs))
	for i, r := range recs {
		row := model.PriceRow{StoreCode: r["store_id"], ProductCode: r["product_id"]}
		if row.StoreCode == "" || row.ProductCode == "" {
			zap.L().Warn("skipping price without store or product id", zap.String("chain", chain), zap.Int("line", i+2))
			continue
		}

		row.Price, _ = normalize.ParsePrice(r["price"], false)
		row.UnitPrice, _ = normalize.ParsePrice(r["unit_price"], false)
		row.BestPrice30, _ = normalize.ParsePrice(r["best_price_30"], false)
		row.AnchorPrice, _ = normalize.ParsePrice(r["anchor_price"], false)
		row.SpecialPrice, _ = normalize.ParsePrice(r["special_price"], false)

		row.UnitPrice = normalize.NonZero(row.UnitPrice)
		row.BestPrice30 = normalize.NonZero(row.BestPrice30)
		row.AnchorPrice = normalize.NonZero(row.AnchorPrice)
		row.SpecialPrice = normalize.NonZero(row.SpecialPrice)

		if !row.Price.Valid && strings.TrimSpace(r["price"]) != "" {
			zap.L().Warn("unparseable regular price", zap.String("chain", chain), zap.Int("line", i+2), zap.String("value", r["price"]))
		}
		out = append(out, row)
	}
	return out
}
