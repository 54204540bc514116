package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/normalize"
)

// ChainProductStore is the storage the Mapper needs.
type ChainProductStore interface {
	ChainProductMap(ctx context.Context, chainID int64) (map[string]int64, error)
	AddManyChainProducts(ctx context.Context, products []model.ChainProduct) (int64, error)
}

// Mapper keeps a chain's product listings in sync with its product rows.
type Mapper struct {
	store      ChainProductStore
	reconciler *Reconciler
}

// NewMapper creates a Mapper that resolves barcodes through reconciler.
func NewMapper(store ChainProductStore, reconciler *Reconciler) *Mapper {
	return &Mapper{store: store, reconciler: reconciler}
}

// SyncProducts inserts listings for product codes the chain has not listed
// before and returns the chain's full code to id map. Existing listings are
// never modified. When a code appears twice in rows, the first row wins.
func (m *Mapper) SyncProducts(ctx context.Context, chainID int64, chainCode string, rows []model.ProductRow) (map[string]int64, error) {
	log := zap.L().With(zap.String("chain", chainCode))

	existing, err := m.store.ChainProductMap(ctx, chainID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load products for %s", chainCode)
	}

	seen := make(map[string]bool, len(rows))
	var fresh []model.ProductRow
	for _, r := range rows {
		if r.Code == "" || seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		if _, ok := existing[r.Code]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		log.Debug("no new chain products", zap.Int("known", len(existing)))
		return existing, nil
	}

	barcodes := make([]string, len(fresh))
	for i, r := range fresh {
		barcodes[i] = normalize.CleanBarcode(chainCode, r.Code, r.Barcode)
	}
	ids, err := m.reconciler.ResolveOrCreate(ctx, barcodes)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: resolve barcodes for %s", chainCode)
	}

	listings := make([]model.ChainProduct, len(fresh))
	for i, r := range fresh {
		listings[i] = model.ChainProduct{
			ChainID:   chainID,
			ProductID: ids[barcodes[i]],
			Code:      r.Code,
			Name:      r.Name,
			Brand:     r.Brand,
			Category:  r.Category,
			Unit:      r.Unit,
			Quantity:  r.Quantity,
		}
	}

	inserted, err := m.store.AddManyChainProducts(ctx, listings)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: add products for %s", chainCode)
	}
	if inserted < int64(len(listings)) {
		log.Warn("identity conflict",
			zap.Int("attempted", len(listings)),
			zap.Int64("inserted", inserted),
		)
	}
	log.Info("chain products synced", zap.Int64("inserted", inserted))

	refreshed, err := m.store.ChainProductMap(ctx, chainID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: reload products for %s", chainCode)
	}
	return refreshed, nil
}
