package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/pricewatch/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Apply curated product or store attributes",
}

var enrichProductsCmd = &cobra.Command{
	Use:   "products <file>",
	Short: "Enrich products from CSV or XLSX (barcode, brand, name, unit, quantity)",
	Long: `Sets brand, name, unit and quantity on products that have neither a brand
nor a name yet. Unknown barcodes are added to the catalog first. Units are
converted to kg, L, kom or m.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := enrich.ReadRows(ctx, args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := enrich.Products(ctx, st, rows)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d rows: %d updated, %d created, %d already enriched, %d invalid\n",
			res.Rows, res.Updated, res.Created, res.Kept, res.Invalid)
		return nil
	},
}

var enrichStoresCmd = &cobra.Command{
	Use:   "stores <file>",
	Short: "Enrich stores from CSV (chain, store_id, address, city, zipcode, lat, lon, phone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := enrich.ReadRows(ctx, args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := enrich.Stores(ctx, st, rows)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d rows: %d updated, %d unknown stores, %d invalid\n",
			res.Rows, res.Updated, res.Missing, res.Invalid)
		return nil
	},
}

func init() {
	enrichCmd.AddCommand(enrichProductsCmd)
	enrichCmd.AddCommand(enrichStoresCmd)
	rootCmd.AddCommand(enrichCmd)
}
