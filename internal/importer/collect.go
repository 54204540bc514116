package importer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/ingest"
	"github.com/sells-group/pricewatch/internal/model"
)

// Collector writes one chain's CSV triple for a date into dir.
type Collector interface {
	Collect(ctx context.Context, chain string, date time.Time, dir string) error
}

// CommandCollector runs an external program per chain. The placeholders
// {chain}, {date} and {dir} in Command are replaced per invocation.
type CommandCollector struct {
	Command []string
}

// Collect runs the command and waits for it to exit.
func (c CommandCollector) Collect(ctx context.Context, chain string, date time.Time, dir string) error {
	if len(c.Command) == 0 {
		return eris.New("collect: empty command")
	}
	r := strings.NewReplacer("{chain}", chain, "{date}", date.Format(model.DateLayout), "{dir}", dir)
	args := make([]string, len(c.Command))
	for i, a := range c.Command {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrapf(ctx.Err(), "collect: %s", chain)
		}
		return eris.Wrapf(err, "collect: %s: %s", chain, strings.TrimSpace(string(out)))
	}
	return nil
}

// CollectResult describes what one collector produced. A failed or timed
// out collector yields a zero result with Err set, and its chain directory
// is removed.
type CollectResult struct {
	Chain    string
	Elapsed  time.Duration
	Stores   int
	Products int
	Prices   int
	Err      error
}

// CollectOptions configures Collect.
type CollectOptions struct {
	Chains      []string
	Timeout     time.Duration // per chain; 0 means no limit
	Concurrency int
	Archive     bool // pack <root>/<date> into <root>/<date>.zip
}

// Collect runs the collector for every chain into <root>/<date>/<chain>.
// It returns one result per chain, in chain order, and the archive path
// when one was requested.
func Collect(ctx context.Context, c Collector, date time.Time, root string, opts CollectOptions) ([]CollectResult, string, error) {
	log := zap.L().With(zap.String("component", "collect"), zap.String("date", date.Format(model.DateLayout)))

	dayDir := filepath.Join(root, date.Format(model.DateLayout))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return nil, "", eris.Wrap(err, "collect: create output dir")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]CollectResult, len(opts.Chains))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chain := range opts.Chains {
		g.Go(func() error {
			results[i] = collectChain(gctx, c, chain, date, filepath.Join(dayDir, chain), opts.Timeout)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			log.Warn("collector failed", zap.String("chain", r.Chain), zap.Error(r.Err))
			continue
		}
		log.Info("collector finished",
			zap.String("chain", r.Chain),
			zap.Int("stores", r.Stores),
			zap.Int("products", r.Products),
			zap.Int("prices", r.Prices),
			zap.Duration("elapsed", r.Elapsed),
		)
	}

	if !opts.Archive {
		return results, "", nil
	}
	zipPath := dayDir + ".zip"
	n, err := fetcher.CreateZIP(dayDir, zipPath)
	if err != nil {
		return results, "", eris.Wrap(err, "collect: create archive")
	}
	log.Info("archive created", zap.String("path", zipPath), zap.Int("files", n))
	return results, zipPath, nil
}

func collectChain(ctx context.Context, c Collector, chain string, date time.Time, dir string, timeout time.Duration) CollectResult {
	res, err := runCollector(ctx, c, chain, date, dir, timeout)
	if err != nil {
		// Partial output must never reach the archive or an import.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			zap.L().Warn("collect: remove partial output", zap.String("dir", dir), zap.Error(rmErr))
		}
		return CollectResult{Chain: chain, Err: err}
	}
	return res
}

func runCollector(ctx context.Context, c Collector, chain string, date time.Time, dir string, timeout time.Duration) (CollectResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CollectResult{}, eris.Wrap(err, "collect: create chain dir")
	}

	start := time.Now()
	if err := c.Collect(ctx, chain, date, dir); err != nil {
		return CollectResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return CollectResult{}, eris.Wrapf(err, "collect: %s", chain)
	}
	elapsed := time.Since(start)

	files, err := ingest.ReadChain(ctx, dir)
	if err != nil {
		return CollectResult{}, err
	}
	products := make(map[string]struct{}, len(files.Products))
	for _, p := range files.Products {
		products[p.Code] = struct{}{}
	}
	return CollectResult{
		Chain:    chain,
		Elapsed:  elapsed,
		Stores:   len(files.Stores),
		Products: len(products),
		Prices:   len(files.Prices),
	}, nil
}
