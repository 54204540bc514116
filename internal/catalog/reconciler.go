// Package catalog resolves barcodes to global products and keeps each
// chain's product listings in sync with its exports.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ProductStore is the storage the Reconciler needs.
type ProductStore interface {
	ProductBarcodes(ctx context.Context) (map[string]int64, error)
	AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error)
}

// Reconciler maps barcodes to product ids, creating empty products for
// unseen barcodes. It caches every id it learns for the rest of the session.
type Reconciler struct {
	store ProductStore

	mu     sync.Mutex
	known  map[string]int64
	loaded bool
}

// NewReconciler creates a Reconciler backed by store.
func NewReconciler(store ProductStore) *Reconciler {
	return &Reconciler{store: store, known: make(map[string]int64)}
}

// Preload fills the cache with every barcode already in the catalog.
// ResolveOrCreate calls it on first use.
func (r *Reconciler) Preload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preload(ctx)
}

func (r *Reconciler) preload(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	all, err := r.store.ProductBarcodes(ctx)
	if err != nil {
		return eris.Wrap(err, "catalog: preload barcodes")
	}
	for ean, id := range all {
		r.known[ean] = id
	}
	r.loaded = true
	zap.L().Debug("barcode cache loaded", zap.Int("barcodes", len(all)))
	return nil
}

// ResolveOrCreate returns a product id for every barcode in barcodes.
// Unknown barcodes become empty products. Duplicate and empty inputs are
// tolerated; empty barcodes are not resolved.
func (r *Reconciler) ResolveOrCreate(ctx context.Context, barcodes []string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.preload(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(barcodes))
	missing := make(map[string]struct{})
	for _, b := range barcodes {
		if b == "" {
			continue
		}
		if id, ok := r.known[b]; ok {
			out[b] = id
			continue
		}
		missing[b] = struct{}{}
	}
	if len(missing) == 0 {
		return out, nil
	}

	eans := make([]string, 0, len(missing))
	for b := range missing {
		eans = append(eans, b)
	}
	sort.Strings(eans)

	created, err := r.store.AddManyEANs(ctx, eans)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create products")
	}
	for _, ean := range eans {
		id, ok := created[ean]
		if !ok {
			return nil, eris.Errorf("catalog: no product id returned for barcode %s", ean)
		}
		r.known[ean] = id
		out[ean] = id
	}

	zap.L().Info("created products for new barcodes", zap.Int("count", len(eans)))
	return out, nil
}

// Known returns the number of cached barcodes.
func (r *Reconciler) Known() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.known)
}
