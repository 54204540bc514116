// Package export writes the canonical stores/products/prices CSV triple that
// a chain collector leaves under <date>/<chain>/.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/normalize"
)

// File names of the canonical CSV triple.
const (
	StoresFile   = "stores.csv"
	ProductsFile = "products.csv"
	PricesFile   = "prices.csv"
)

// Column layouts of the canonical CSV triple.
var (
	StoreColumns   = []string{"store_id", "type", "address", "city", "zipcode"}
	ProductColumns = []string{"product_id", "barcode", "name", "brand", "category", "unit", "quantity"}
	PriceColumns   = []string{"store_id", "product_id", "price", "unit_price", "best_price_30", "anchor_price", "special_price"}
)

// Tables holds the rows of the CSV triple, without headers.
type Tables struct {
	Stores   [][]string
	Products [][]string
	Prices   [][]string
}

// Build flattens normalized stores into the CSV triple. Products are
// deduplicated per chain by product id, keeping the first occurrence.
func Build(stores []normalize.StoreRecord) Tables {
	var t Tables
	seen := make(map[string]bool)

	for _, st := range stores {
		t.Stores = append(t.Stores, []string{st.StoreID, st.Type, st.Address, st.City, st.Zipcode})

		for _, p := range st.Items {
			key := normalize.SynthesizeBarcode(st.Chain, p.ProductID)
			if !seen[key] {
				seen[key] = true
				barcode := p.Barcode
				if barcode == "" {
					barcode = key
				}
				t.Products = append(t.Products, []string{
					p.ProductID, barcode, p.Product, p.Brand, p.Category, p.Unit, p.Quantity,
				})
			}

			t.Prices = append(t.Prices, []string{
				st.StoreID,
				p.ProductID,
				normalize.FormatPrice(p.Price),
				normalize.FormatPrice(p.UnitPrice),
				normalize.FormatPrice(p.BestPrice30),
				normalize.FormatPrice(p.AnchorPrice),
				normalize.FormatPrice(p.SpecialPrice),
			})
		}
	}
	return t
}

// WriteChain writes the CSV triple for one chain into dir, creating it.
// An empty table is logged and its file is not written.
func WriteChain(dir string, stores []normalize.StoreRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", dir)
	}

	t := Build(stores)
	for _, f := range []struct {
		name    string
		columns []string
		rows    [][]string
	}{
		{StoresFile, StoreColumns, t.Stores},
		{ProductsFile, ProductColumns, t.Products},
		{PricesFile, PriceColumns, t.Prices},
	} {
		if err := writeCSV(filepath.Join(dir, f.name), f.columns, f.rows); err != nil {
			return err
		}
	}

	zap.L().Info("chain exported",
		zap.String("dir", dir),
		zap.Int("stores", len(t.Stores)),
		zap.Int("products", len(t.Products)),
		zap.Int("prices", len(t.Prices)),
	)
	return nil
}

func writeCSV(path string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		zap.L().Warn("no data to save, skipping", zap.String("path", path))
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return eris.Wrapf(err, "export: write header %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "export: write rows %s", path)
	}
	return nil
}
