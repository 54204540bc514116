package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read chains, stores, products and prices",
}

// -- query chains --

var queryChainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List chains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			chains, err := st.ListChains(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCODE")
			for _, c := range chains {
				_, _ = fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Code)
			}
			return w.Flush()
		})
	},
}

// -- query stores --

var (
	storeFilter        store.StoreFilter
	storeLat, storeLon float64
)

var queryStoresCmd = &cobra.Command{
	Use:   "stores",
	Short: "List stores by chain, city, address or distance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter := storeFilter
		if cmd.Flags().Changed("lat") {
			filter.Lat = &storeLat
		}
		if cmd.Flags().Changed("lon") {
			filter.Lon = &storeLon
		}
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			stores, err := st.ListStores(ctx, filter)
			if err != nil {
				return err
			}
			formatStores(os.Stdout, stores)
			return nil
		})
	},
}

// -- query product --

var productDate string

var queryProductCmd = &cobra.Command{
	Use:   "product <ean>...",
	Short: "Show products with their chain listings and chain price aggregates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var date time.Time
		if productDate != "" {
			d, err := model.ParseDate(productDate)
			if err != nil {
				return eris.Errorf("invalid date %q, want YYYY-MM-DD", productDate)
			}
			date = d
		}
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			views, err := productDetails(ctx, st, args, date)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, views)
		})
	},
}

// -- query search --

var searchLimit int

var querySearchCmd = &cobra.Command{
	Use:   "search <words>...",
	Short: "Find products whose chain listings contain every word",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			products, err := st.SearchProducts(ctx, strings.Join(args, " "), searchLimit)
			if err != nil {
				return err
			}
			formatProducts(os.Stdout, products)
			return nil
		})
	},
}

// -- query store-prices --

var storePricesStores []int64

var queryStorePricesCmd = &cobra.Command{
	Use:   "store-prices <ean>...",
	Short: "Show the latest per-store prices of products",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var storeIDs []int64
		if cmd.Flags().Changed("store") {
			storeIDs = storePricesStores
		}
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			products, err := st.GetProductsByEAN(ctx, args)
			if err != nil {
				return err
			}
			prices, err := st.GetStorePrices(ctx, productIDs(products), storeIDs)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, prices)
		})
	},
}

// -- query chain-stats --

var queryChainStatsCmd = &cobra.Command{
	Use:   "chain-stats",
	Short: "Show each chain's latest price and store counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueryStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			stats, err := st.ListLatestChainStats(ctx)
			if err != nil {
				return err
			}
			formatChainStats(os.Stdout, stats)
			return nil
		})
	},
}

func withQueryStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st)
}

// productView is a product with its chain listings and price aggregates.
type productView struct {
	model.Product
	ChainProducts []model.ChainProduct        `json:"chain_products"`
	ChainPrices   []model.ChainPriceAggregate `json:"chain_prices"`
}

func productDetails(ctx context.Context, st store.Store, eans []string, date time.Time) ([]productView, error) {
	products, err := st.GetProductsByEAN(ctx, eans)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	ids := productIDs(products)

	listings, err := st.ListChainProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	prices, err := st.GetChainPrices(ctx, ids, date)
	if err != nil {
		return nil, err
	}

	views := make([]productView, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		views[i].Product = p
		index[p.ID] = i
	}
	for _, cp := range listings {
		if i, ok := index[cp.ProductID]; ok {
			views[i].ChainProducts = append(views[i].ChainProducts, cp)
		}
	}
	for _, agg := range prices {
		if i, ok := index[agg.ProductID]; ok {
			views[i].ChainPrices = append(views[i].ChainPrices, agg)
		}
	}
	return views, nil
}

func productIDs(products []model.Product) []int64 {
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatStores writes a tabular list of stores to w.
func formatStores(out io.Writer, stores []model.Store) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCHAIN\tCODE\tTYPE\tADDRESS\tCITY\tZIP\tLAT\tLON")
	for _, s := range stores {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.ChainID, s.Code, s.Type, s.Address, s.City, s.Zipcode, coord(s.Lat), coord(s.Lon))
	}
	_ = w.Flush()
}

func coord(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.5f", *v)
}

// formatProducts writes a tabular list of products to w.
func formatProducts(out io.Writer, products []model.Product) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEAN\tBRAND\tNAME\tQUANTITY\tUNIT")
	for _, p := range products {
		qty := ""
		if p.Quantity.Valid {
			qty = p.Quantity.Decimal.String()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.EAN, p.Brand, p.Name, qty, p.Unit)
	}
	_ = w.Flush()
}

// formatChainStats writes the latest stats per chain to w.
func formatChainStats(out io.Writer, stats []model.ChainStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tDATE\tPRICES\tSTORES")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.ChainCode, s.PriceDate.Format(model.DateLayout), s.PriceCount, s.StoreCount)
	}
	_ = w.Flush()
}

func init() {
	queryStoresCmd.Flags().StringSliceVar(&storeFilter.Chains, "chain", nil, "chain codes")
	queryStoresCmd.Flags().StringVar(&storeFilter.City, "city", "", "city substring")
	queryStoresCmd.Flags().StringVar(&storeFilter.Address, "address", "", "address substring")
	queryStoresCmd.Flags().Float64Var(&storeLat, "lat", 0, "latitude of the search center")
	queryStoresCmd.Flags().Float64Var(&storeLon, "lon", 0, "longitude of the search center")
	queryStoresCmd.Flags().Float64Var(&storeFilter.RadiusKm, "radius", store.DefaultRadiusKm, "search radius in km")
	queryStoresCmd.Flags().IntVar(&storeFilter.Limit, "limit", 0, "max stores (0 = all)")

	queryProductCmd.Flags().StringVar(&productDate, "date", "", "aggregates on or before this YYYY-MM-DD date (default latest)")
	querySearchCmd.Flags().IntVar(&searchLimit, "limit", 20, "max products")
	queryStorePricesCmd.Flags().Int64SliceVar(&storePricesStores, "store", nil, "store ids (default all stores)")

	queryCmd.AddCommand(queryChainsCmd)
	queryCmd.AddCommand(queryStoresCmd)
	queryCmd.AddCommand(queryProductCmd)
	queryCmd.AddCommand(querySearchCmd)
	queryCmd.AddCommand(queryStorePricesCmd)
	queryCmd.AddCommand(queryChainStatsCmd)
	rootCmd.AddCommand(queryCmd)
}
