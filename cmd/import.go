package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/importer"
	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/store"
)

var (
	importURLs      []string
	importSkipStats bool
)

var importCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Import price snapshots",
	Long: `Imports one or more daily snapshots. A snapshot is a <date> directory or a
<date>.zip archive holding one <chain> directory per retail chain with
stores.csv, products.csv and prices.csv. Remote archives are given with --url.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) == 0 && len(importURLs) == 0 {
			return eris.New("import: give at least one path or --url")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		im := newImporter(st, importSkipStats || cfg.Import.SkipStats)

		results, skipped, err := importSnapshots(ctx, im, args, importURLs)
		formatImportResults(os.Stdout, results)
		if err != nil {
			return err
		}
		if skipped > 0 {
			return eris.Errorf("import: %d snapshot(s) skipped", skipped)
		}
		return nil
	},
}

// snapshotImporter is the part of importer.Importer the import command drives.
type snapshotImporter interface {
	ImportPath(ctx context.Context, path string) (*importer.Result, error)
	ImportURL(ctx context.Context, rawURL string) (*importer.Result, error)
}

// importSnapshots imports every path, then every URL. A snapshot with a bad
// name or layout is logged and skipped; any other error stops the command.
func importSnapshots(ctx context.Context, im snapshotImporter, paths, urls []string) ([]*importer.Result, int, error) {
	type source struct {
		name string
		run  func(context.Context, string) (*importer.Result, error)
	}
	sources := make([]source, 0, len(paths)+len(urls))
	for _, p := range paths {
		sources = append(sources, source{p, im.ImportPath})
	}
	for _, u := range urls {
		sources = append(sources, source{u, im.ImportURL})
	}

	var (
		results []*importer.Result
		skipped int
	)
	for _, src := range sources {
		res, err := src.run(ctx, src.name)
		if err != nil {
			var formatErr *importer.ArchiveFormatError
			if errors.As(err, &formatErr) {
				zap.L().Error("skipping snapshot", zap.String("source", src.name), zap.Error(err))
				skipped++
				continue
			}
			return results, skipped, eris.Wrapf(err, "import %s", src.name)
		}
		results = append(results, res)
	}
	return results, skipped, nil
}

func newImporter(st store.Store, skipStats bool) *importer.Importer {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	web := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
	f := fetcher.SchemeFetcher{
		"http":  web,
		"https": web,
		"ftp":   fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
	return importer.New(st, f, importer.Options{
		Concurrency: cfg.Import.Concurrency,
		SkipStats:   skipStats,
		TempDir:     cfg.Import.TempDir,
	})
}

func formatImportResults(out io.Writer, results []*importer.Result) {
	for _, r := range results {
		line := fmt.Sprintf("%s: %d chains imported, %d skipped, %d new prices",
			r.Date.Format(model.DateLayout), r.ChainsImported, r.ChainsSkipped, r.NewPrices)
		if r.Aggregates != nil {
			line += fmt.Sprintf(", %d chain prices, %d chain stats", r.Aggregates.ChainPrices, r.Aggregates.ChainStats)
		}
		_, _ = fmt.Fprintln(out, line)
		zap.L().Debug("import result", zap.String("run_id", r.RunID))
	}
}

func init() {
	importCmd.Flags().StringSliceVar(&importURLs, "url", nil, "remote <date>.zip archive (http, https or ftp) to download and import (repeatable)")
	importCmd.Flags().BoolVar(&importSkipStats, "skip-stats", false, "skip computing chain aggregates after the import")
	rootCmd.AddCommand(importCmd)
}
