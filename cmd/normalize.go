package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricewatch/internal/export"
	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/normalize"
)

var (
	normalizeProfile string
	normalizeInput   string
	normalizeFormat  string
	normalizeOut     string
	normalizeStore   normalize.StoreRecord
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Convert a raw chain export into the canonical CSV triple",
	Long: `Reads a chain's raw CSV, XLSX or XML export, maps its columns through a
YAML profile and writes stores.csv, products.csv and prices.csv under
<out>/<chain>. Rows that fail validation are logged and skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, err := normalize.LoadProfile(normalizeProfile)
		if err != nil {
			return err
		}
		if normalizeFormat != "" {
			p.Format = normalizeFormat
		}

		rows, err := readRawRows(ctx, p, normalizeInput)
		if err != nil {
			return err
		}

		stores, rep, err := p.Stores(rows, normalizeStore)
		if err != nil {
			return err
		}

		dir := filepath.Join(normalizeOut, p.Chain)
		if err := export.WriteChain(dir, stores); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(os.Stdout, "%s: %d stores, %d products, %d rows skipped -> %s\n",
			p.Chain, len(stores), len(rep.Records), len(rep.Skipped), dir)
		return nil
	},
}

// readRawRows reads path in the profile's format.
func readRawRows(ctx context.Context, p *normalize.Profile, path string) ([]map[string]string, error) {
	switch p.Format {
	case "csv":
		opts := fetcher.CSVOptions{Encoding: p.Encoding, LazyQuotes: true, TrimSpace: true}
		if p.Delimiter != "" {
			r, _ := utf8.DecodeRuneInString(p.Delimiter)
			opts.Delimiter = r
		}
		return fetcher.ReadRecords(ctx, path, opts)
	case "xlsx":
		return fetcher.ReadXLSXRecords(path, fetcher.XLSXOptions{SheetIndex: p.Sheet})
	case "xml":
		if p.Element == "" {
			return nil, eris.New("normalize: xml profiles need an element")
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return fetcher.ReadXMLRecords(ctx, f, p.Element)
	default:
		return nil, eris.Errorf("normalize: unsupported format %q", p.Format)
	}
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeProfile, "profile", "", "chain profile YAML (required)")
	normalizeCmd.Flags().StringVar(&normalizeInput, "input", "", "raw export file (required)")
	normalizeCmd.Flags().StringVar(&normalizeFormat, "format", "", "input format csv, xlsx or xml (default from profile)")
	normalizeCmd.Flags().StringVar(&normalizeOut, "out", ".", "output root; files go to <out>/<chain>")
	normalizeCmd.Flags().StringVar(&normalizeStore.StoreID, "store-id", "", "store of every row when the profile has no store columns")
	normalizeCmd.Flags().StringVar(&normalizeStore.Type, "store-type", "", "store type for --store-id")
	normalizeCmd.Flags().StringVar(&normalizeStore.Address, "store-address", "", "store address for --store-id")
	normalizeCmd.Flags().StringVar(&normalizeStore.City, "store-city", "", "store city for --store-id")
	normalizeCmd.Flags().StringVar(&normalizeStore.Zipcode, "store-zipcode", "", "store zipcode for --store-id")
	_ = normalizeCmd.MarkFlagRequired("profile")
	_ = normalizeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(normalizeCmd)
}
