// Package aggregate derives per-date price statistics from stored prices.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/model"
)

// EffectivePrice is the price a shopper pays at a store: the lower of the
// regular and special price, with either standing in for the other when
// absent. A special price above the regular price never wins.
func EffectivePrice(regular, special decimal.NullDecimal) decimal.NullDecimal {
	a, b := regular, special
	if !a.Valid {
		a = special
	}
	if !b.Valid {
		b = regular
	}
	if !a.Valid {
		return decimal.NullDecimal{}
	}
	if b.Decimal.LessThan(a.Decimal) {
		return b
	}
	return a
}

// Summary holds the statistics of a set of effective prices.
type Summary struct {
	Min   decimal.Decimal
	Max   decimal.Decimal
	Avg   decimal.Decimal
	Count int
}

// Summarize computes min, max and the average rounded half-up to 2 places.
// Null prices are ignored; ok is false when nothing remains.
func Summarize(prices []decimal.NullDecimal) (s Summary, ok bool) {
	sum := decimal.Zero
	for _, p := range prices {
		if !p.Valid {
			continue
		}
		if s.Count == 0 || p.Decimal.LessThan(s.Min) {
			s.Min = p.Decimal
		}
		if s.Count == 0 || p.Decimal.GreaterThan(s.Max) {
			s.Max = p.Decimal
		}
		sum = sum.Add(p.Decimal)
		s.Count++
	}
	if s.Count == 0 {
		return Summary{}, false
	}
	s.Avg = sum.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
	return s, true
}

// Observation is the part of a stored price that aggregation reads.
type Observation struct {
	ChainProductID int64
	Regular        decimal.NullDecimal
	Special        decimal.NullDecimal
}

// ChainPrices groups observations of one date by chain product and
// summarizes their effective prices. Output is ordered by chain product id.
func ChainPrices(date time.Time, obs []Observation) []model.ChainPriceAggregate {
	grouped := make(map[int64][]decimal.NullDecimal)
	for _, o := range obs {
		grouped[o.ChainProductID] = append(grouped[o.ChainProductID], EffectivePrice(o.Regular, o.Special))
	}

	out := make([]model.ChainPriceAggregate, 0, len(grouped))
	for id, prices := range grouped {
		s, ok := Summarize(prices)
		if !ok {
			continue
		}
		out = append(out, model.ChainPriceAggregate{
			ChainProductID: id,
			PriceDate:      date,
			MinPrice:       s.Min,
			MaxPrice:       s.Max,
			AvgPrice:       s.Avg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainProductID < out[j].ChainProductID })
	return out
}

// Computer writes the derived tables for one date. Both calls must be
// idempotent.
type Computer interface {
	ComputeChainPrices(ctx context.Context, date time.Time) (int64, error)
	ComputeChainStats(ctx context.Context, date time.Time) (int64, error)
}

// Result reports how many rows each derived table received.
type Result struct {
	ChainPrices int64
	ChainStats  int64
}

// Aggregator recomputes chain price aggregates and chain stats.
type Aggregator struct {
	store Computer
}

// New creates an Aggregator writing through store.
func New(store Computer) *Aggregator {
	return &Aggregator{store: store}
}

// Run computes chain prices and then chain stats for date.
func (a *Aggregator) Run(ctx context.Context, date time.Time) (Result, error) {
	log := zap.L().With(zap.String("date", date.Format(model.DateLayout)))

	var res Result
	var err error

	start := time.Now()
	if res.ChainPrices, err = a.store.ComputeChainPrices(ctx, date); err != nil {
		return res, eris.Wrapf(err, "aggregate: chain prices for %s", date.Format(model.DateLayout))
	}
	log.Info("chain prices computed", zap.Int64("rows", res.ChainPrices), zap.Duration("took", time.Since(start)))

	start = time.Now()
	if res.ChainStats, err = a.store.ComputeChainStats(ctx, date); err != nil {
		return res, eris.Wrapf(err, "aggregate: chain stats for %s", date.Format(model.DateLayout))
	}
	log.Info("chain stats computed", zap.Int64("rows", res.ChainStats), zap.Duration("took", time.Since(start)))

	return res, nil
}
