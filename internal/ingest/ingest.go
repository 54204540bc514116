package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/catalog"
	"github.com/sells-group/pricewatch/internal/model"
)

// Store is the storage the Ingestor writes to.
type Store interface {
	AddChain(ctx context.Context, code string) (int64, error)
	AddManyStores(ctx context.Context, stores []model.Store) (map[string]int64, error)
	AddManyPrices(ctx context.Context, prices []model.Price) (int64, error)
}

// Ingestor persists chain files in two phases: Prepare writes the chain,
// its stores and its products; Prices writes the price observations.
type Ingestor struct {
	store  Store
	mapper *catalog.Mapper
}

// New creates an Ingestor.
func New(store Store, mapper *catalog.Mapper) *Ingestor {
	return &Ingestor{store: store, mapper: mapper}
}

// Prepared is a chain whose catalog rows are stored and whose prices are
// ready to be written.
type Prepared struct {
	Chain    string
	ChainID  int64
	Stores   map[string]int64
	Products map[string]int64
	Prices   []model.PriceRow
}

// Prepare ensures the chain exists, then upserts its stores and syncs its
// products, in that order.
func (i *Ingestor) Prepare(ctx context.Context, files *ChainFiles) (*Prepared, error) {
	log := zap.L().With(zap.String("chain", files.Chain))

	chainID, err := i.store.AddChain(ctx, files.Chain)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: chain %s", files.Chain)
	}

	stores := make([]model.Store, len(files.Stores))
	for n, row := range files.Stores {
		stores[n] = row.ToStore(chainID)
	}
	storeIDs, err := i.store.AddManyStores(ctx, stores)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: stores for %s", files.Chain)
	}

	productIDs, err := i.mapper.SyncProducts(ctx, chainID, files.Chain, files.Products)
	if err != nil {
		return nil, err
	}

	log.Info("chain prepared",
		zap.Int("stores", len(storeIDs)),
		zap.Int("products", len(productIDs)),
		zap.Int("price_rows", len(files.Prices)),
	)
	return &Prepared{
		Chain:    files.Chain,
		ChainID:  chainID,
		Stores:   storeIDs,
		Products: productIDs,
		Prices:   files.Prices,
	}, nil
}

// Prices writes the prepared price rows for date and returns how many new
// observations were stored. Rows naming an unknown store or product are
// skipped with a warning.
func (i *Ingestor) Prices(ctx context.Context, p *Prepared, date time.Time) (int64, error) {
	log := zap.L().With(zap.String("chain", p.Chain), zap.String("date", date.Format(model.DateLayout)))

	prices := make([]model.Price, 0, len(p.Prices))
	var unknownStores, unknownProducts int
	for _, row := range p.Prices {
		storeID, ok := p.Stores[row.StoreCode]
		if !ok {
			unknownStores++
			continue
		}
		productID, ok := p.Products[row.ProductCode]
		if !ok {
			unknownProducts++
			continue
		}
		prices = append(prices, model.Price{
			ChainProductID: productID,
			StoreID:        storeID,
			PriceDate:      date,
			RegularPrice:   row.Price,
			SpecialPrice:   row.SpecialPrice,
			UnitPrice:      row.UnitPrice,
			BestPrice30:    row.BestPrice30,
			AnchorPrice:    row.AnchorPrice,
		})
	}
	if unknownStores > 0 || unknownProducts > 0 {
		log.Warn("skipping prices for unknown stores or products",
			zap.Int("unknown_stores", unknownStores),
			zap.Int("unknown_products", unknownProducts),
		)
	}

	inserted, err := i.store.AddManyPrices(ctx, prices)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: prices for %s", p.Chain)
	}
	log.Info("prices imported", zap.Int("rows", len(prices)), zap.Int64("new_prices", inserted))
	return inserted, nil
}
