package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/importer"
	"github.com/sells-group/pricewatch/internal/model"
)

var (
	collectChains  []string
	collectImport  bool
	collectArchive bool
)

var collectCmd = &cobra.Command{
	Use:   "collect <date>",
	Short: "Run the chain collectors for a date",
	Long: `Runs the configured collector command once per chain, writing
<archive_dir>/<date>/<chain>/{stores,products,prices}.csv. A collector that
fails or exceeds collect.timeout_secs yields an empty result and the other
chains continue. With --archive the day is packed into <date>.zip, and with
--import the collected snapshot is imported right away.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("collect"); err != nil {
			return err
		}
		date, err := model.ParseDate(args[0])
		if err != nil {
			return eris.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
		}

		chains := collectChains
		if len(chains) == 0 {
			chains = cfg.Collect.Chains
		}
		if len(chains) == 0 {
			return eris.Errorf("no chains to collect: set collect.chains or --chains")
		}

		results, zipPath, err := importer.Collect(ctx,
			importer.CommandCollector{Command: cfg.Collect.Command},
			date, cfg.Collect.ArchiveDir,
			importer.CollectOptions{
				Chains:      chains,
				Timeout:     cfg.Collect.Timeout(),
				Concurrency: cfg.Import.Concurrency,
				Archive:     collectArchive,
			})
		if err != nil {
			return err
		}
		formatCollectResults(os.Stdout, results)

		if !collectImport {
			return nil
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		path := zipPath
		if path == "" {
			path = filepath.Join(cfg.Collect.ArchiveDir, date.Format(model.DateLayout))
		}
		res, err := newImporter(st, cfg.Import.SkipStats).ImportPath(ctx, path)
		if err != nil {
			return err
		}
		zap.L().Info("collected snapshot imported", zap.String("path", path), zap.Int64("new_prices", res.NewPrices))
		formatImportResults(os.Stdout, []*importer.Result{res})
		return nil
	},
}

// formatCollectResults writes one line per chain to w.
func formatCollectResults(out io.Writer, results []importer.CollectResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tSTORES\tPRODUCTS\tPRICES\tELAPSED\tERROR")
	for _, r := range results {
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Chain, r.Stores, r.Products, r.Prices, r.Elapsed.Round(time.Millisecond), errMsg)
	}
	_ = w.Flush()
}

func init() {
	collectCmd.Flags().StringSliceVar(&collectChains, "chains", nil, "chains to collect (default collect.chains)")
	collectCmd.Flags().BoolVar(&collectImport, "import", false, "import the collected snapshot")
	collectCmd.Flags().BoolVar(&collectArchive, "archive", false, "pack the collected day into <date>.zip")
	rootCmd.AddCommand(collectCmd)
}
