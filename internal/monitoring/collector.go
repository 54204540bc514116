package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/model"
)

// runScanLimit bounds how many recent runs a snapshot inspects.
const runScanLimit = 1000

// MetricsSnapshot holds a point-in-time view of import health.
type MetricsSnapshot struct {
	// Import runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`
	NewPrices    int64   `json:"new_prices"`

	// LastCompletedAt is the finish time of the newest complete run, at any age.
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`

	// Chains whose latest stats date is behind the newest date of any chain.
	LatestPriceDate time.Time `json:"latest_price_date"`
	LaggingChains   []string  `json:"lagging_chains,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the storage surface the collector reads.
type Source interface {
	ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error)
	ListLatestChainStats(ctx context.Context) ([]model.ChainStats, error)
}

// Collector gathers import metrics from the store.
type Collector struct {
	store Source
}

// NewCollector creates a new metrics collector.
func NewCollector(st Source) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListImportRuns(ctx, runScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list import runs")
	}

	for _, r := range runs {
		if r.Status == model.RunStatusComplete && r.CompletedAt != nil {
			if snap.LastCompletedAt == nil || r.CompletedAt.After(*snap.LastCompletedAt) {
				at := *r.CompletedAt
				snap.LastCompletedAt = &at
			}
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			snap.NewPrices += r.NewPrices
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	stats, err := c.store.ListLatestChainStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list chain stats")
	}
	for _, s := range stats {
		if s.PriceDate.After(snap.LatestPriceDate) {
			snap.LatestPriceDate = s.PriceDate
		}
	}
	for _, s := range stats {
		if s.PriceDate.Before(snap.LatestPriceDate) {
			snap.LaggingChains = append(snap.LaggingChains, s.ChainCode)
		}
	}

	return snap, nil
}
