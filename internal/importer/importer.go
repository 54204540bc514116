// Package importer imports dated snapshot directories and archives: it
// walks the chain directories, writes catalog rows and prices in two
// phases, records the run and triggers aggregation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricewatch/internal/aggregate"
	"github.com/sells-group/pricewatch/internal/catalog"
	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/ingest"
	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/store"
)

// ArchiveFormatError means an import path is not a dated directory or a
// readable <date>.zip archive.
type ArchiveFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArchiveFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("importer: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("importer: %s: %s", e.Path, e.Reason)
}

func (e *ArchiveFormatError) Unwrap() error { return e.Err }

// Options configures an Importer.
type Options struct {
	Concurrency int    // concurrent chains in the price phase; default 1
	SkipStats   bool   // skip aggregation after the import
	TempDir     string // where archives are extracted; default os.TempDir()
}

// Result summarizes one import run.
type Result struct {
	RunID          string
	Date           time.Time
	ChainsImported int
	ChainsSkipped  int
	NewPrices      int64
	Aggregates     *aggregate.Result
}

// Importer imports snapshots into a store.
type Importer struct {
	store   store.Store
	fetcher fetcher.Fetcher
	opts    Options
}

// New creates an Importer. f may be nil when ImportURL is not used.
func New(st store.Store, f fetcher.Fetcher, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Importer{store: st, fetcher: f, opts: opts}
}

// ParseSnapshotName returns the price date encoded in a snapshot directory
// or archive name.
func ParseSnapshotName(path string) (time.Time, error) {
	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(name), ".zip") {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	d, err := model.ParseDate(name)
	if err != nil {
		return time.Time{}, &ArchiveFormatError{Path: path, Reason: "name is not a YYYY-MM-DD date"}
	}
	return d, nil
}

// ImportPath imports a <date> directory or a <date>.zip archive.
func (im *Importer) ImportPath(ctx context.Context, path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ArchiveFormatError{Path: path, Reason: "cannot access path", Err: err}
	}

	if info.IsDir() {
		date, err := ParseSnapshotName(path)
		if err != nil {
			return nil, err
		}
		return im.run(ctx, path, date, path)
	}

	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return nil, &ArchiveFormatError{Path: path, Reason: "neither a directory nor a zip archive"}
	}
	date, err := ParseSnapshotName(path)
	if err != nil {
		return nil, err
	}
	return im.importArchive(ctx, path, date, path)
}

// ImportURL downloads a remote <date>.zip archive and imports it.
func (im *Importer) ImportURL(ctx context.Context, rawURL string) (*Result, error) {
	if im.fetcher == nil {
		return nil, eris.New("importer: no fetcher configured")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ArchiveFormatError{Path: rawURL, Reason: "invalid url", Err: err}
	}
	if !strings.EqualFold(path.Ext(u.Path), ".zip") {
		return nil, &ArchiveFormatError{Path: rawURL, Reason: "url does not name a zip archive"}
	}
	date, err := ParseSnapshotName(path.Base(u.Path))
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(im.opts.TempDir, "pricewatch-download-*")
	if err != nil {
		return nil, eris.Wrap(err, "importer: create download dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	archive := filepath.Join(tmp, date.Format(model.DateLayout)+".zip")
	n, err := im.fetcher.DownloadToFile(ctx, rawURL, archive)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: download %s", rawURL)
	}
	zap.L().Info("archive downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))

	return im.importArchive(ctx, archive, date, rawURL)
}

func (im *Importer) importArchive(ctx context.Context, path string, date time.Time, source string) (*Result, error) {
	tmp, err := os.MkdirTemp(im.opts.TempDir, "pricewatch-import-*")
	if err != nil {
		return nil, eris.Wrap(err, "importer: create extract dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	files, err := fetcher.ExtractZIP(path, tmp)
	if err != nil {
		return nil, &ArchiveFormatError{Path: path, Reason: "cannot extract archive", Err: err}
	}
	zap.L().Debug("archive extracted", zap.String("path", path), zap.Int("files", len(files)))

	root := tmp
	nested := filepath.Join(tmp, date.Format(model.DateLayout))
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		root = nested
	}
	return im.run(ctx, root, date, source)
}

// chainDirs lists the chain subdirectories of root in name order.
func chainDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read %s", root)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// run imports every chain directory under root for date and records the run.
func (im *Importer) run(ctx context.Context, root string, date time.Time, source string) (*Result, error) {
	log := zap.L().With(zap.String("component", "importer"), zap.String("date", date.Format(model.DateLayout)))

	dirs, err := chainDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, &ArchiveFormatError{Path: source, Reason: "no chain directories"}
	}

	run, err := im.store.StartImportRun(ctx, date, source)
	if err != nil {
		return nil, eris.Wrap(err, "importer: start run")
	}

	res, err := im.importChains(ctx, dirs, date)
	res.RunID = run.ID
	res.Date = date
	if err != nil {
		log.Error("import failed", zap.Error(err))
		if logErr := im.store.FailImportRun(context.WithoutCancel(ctx), run.ID, err.Error()); logErr != nil {
			log.Error("failed to record import failure", zap.Error(logErr))
		}
		return res, err
	}

	if err := im.store.CompleteImportRun(ctx, run.ID, model.RunTotals{
		ChainsImported: res.ChainsImported,
		ChainsSkipped:  res.ChainsSkipped,
		NewPrices:      res.NewPrices,
	}); err != nil {
		log.Error("failed to record import completion", zap.Error(err))
	}

	log.Info("import complete",
		zap.Int("chains_imported", res.ChainsImported),
		zap.Int("chains_skipped", res.ChainsSkipped),
		zap.Int64("new_prices", res.NewPrices),
	)
	return res, nil
}

func (im *Importer) importChains(ctx context.Context, dirs []string, date time.Time) (*Result, error) {
	log := zap.L().With(zap.String("component", "importer"), zap.String("date", date.Format(model.DateLayout)))
	res := &Result{}

	reconciler := catalog.NewReconciler(im.store)
	if err := reconciler.Preload(ctx); err != nil {
		return res, err
	}
	ing := ingest.New(im.store, catalog.NewMapper(im.store, reconciler))

	start := time.Now()

	// Phase 1: catalog rows, one chain at a time.
	var prepared []*ingest.Prepared
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		files, err := ingest.ReadChain(ctx, dir)
		if err != nil {
			var missing *ingest.MissingChainFileError
			if errors.As(err, &missing) {
				log.Warn("skipping chain with missing file", zap.String("chain", missing.Chain), zap.String("file", missing.File))
			} else {
				log.Warn("skipping unreadable chain", zap.String("chain", filepath.Base(dir)), zap.Error(err))
			}
			res.ChainsSkipped++
			continue
		}
		p, err := ing.Prepare(ctx, files)
		if err != nil {
			return res, err
		}
		prepared = append(prepared, p)
	}

	// Phase 2: prices, concurrently per chain.
	var newPrices atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for _, p := range prepared {
		g.Go(func() error {
			n, err := ing.Prices(gctx, p, date)
			if err != nil {
				return err
			}
			newPrices.Add(n)
			return nil
		})
	}
	err := g.Wait()
	res.NewPrices = newPrices.Load()
	if err != nil {
		return res, err
	}
	res.ChainsImported = len(prepared)

	log.Info("chains imported",
		zap.Int("chains", len(prepared)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if im.opts.SkipStats {
		log.Debug("skipping aggregation")
		return res, nil
	}
	agg, err := aggregate.New(im.store).Run(ctx, date)
	if err != nil {
		return res, err
	}
	res.Aggregates = &agg
	return res, nil
}
