// Package store persists the price catalog and serves the read queries
// built on top of it. PostgreSQL is the production backend; SQLite serves
// local runs and tests.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricewatch/internal/model"
)

// Catalog holds the write operations the import pipeline performs.
type Catalog interface {
	// AddChain returns the id of the chain with code, creating it if needed.
	AddChain(ctx context.Context, code string) (int64, error)
	// ProductBarcodes returns every known barcode with its product id.
	ProductBarcodes(ctx context.Context) (map[string]int64, error)
	// AddManyEANs creates empty products for unknown barcodes and returns
	// the ids of all given barcodes.
	AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error)
	// ChainProductMap returns the chain's product codes with their ids.
	ChainProductMap(ctx context.Context, chainID int64) (map[string]int64, error)
	// AddManyChainProducts inserts chain products, ignoring existing
	// (chain, code) pairs, and returns how many rows were inserted.
	AddManyChainProducts(ctx context.Context, products []model.ChainProduct) (int64, error)
	// AddManyStores inserts stores and fills attributes that are still
	// empty on existing ones. It returns the ids of all given store codes.
	AddManyStores(ctx context.Context, stores []model.Store) (map[string]int64, error)
	// AddManyPrices inserts prices, ignoring ones already recorded, and
	// returns how many rows were inserted.
	AddManyPrices(ctx context.Context, prices []model.Price) (int64, error)
}

// Enrichment updates catalog entries from curated data.
type Enrichment interface {
	// UpdateProduct overwrites the product's attributes with every value
	// present in p. It reports whether a product with p.EAN exists.
	UpdateProduct(ctx context.Context, p model.Product) (bool, error)
	// UpdateStore overwrites the store's attributes with every value
	// present in u. It reports whether the store exists.
	UpdateStore(ctx context.Context, chainCode, storeCode string, u model.StoreUpdate) (bool, error)
	GetProductsByEAN(ctx context.Context, eans []string) ([]model.Product, error)
}

// Aggregates recomputes the derived tables for a date.
type Aggregates interface {
	ComputeChainPrices(ctx context.Context, date time.Time) (int64, error)
	ComputeChainStats(ctx context.Context, date time.Time) (int64, error)
}

// Queries are the read-only lookups behind the query surface.
type Queries interface {
	ListChains(ctx context.Context) ([]model.Chain, error)
	ListStores(ctx context.Context, filter StoreFilter) ([]model.Store, error)
	ListChainProducts(ctx context.Context, productIDs []int64) ([]model.ChainProduct, error)
	// GetChainPrices returns, per chain, the aggregates at the chain's
	// latest imported date on or before date. A zero date means latest.
	GetChainPrices(ctx context.Context, productIDs []int64, date time.Time) ([]model.ChainPriceAggregate, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error)
	// GetStorePrices returns prices at each chain's latest imported date.
	// A nil storeIDs means all stores.
	GetStorePrices(ctx context.Context, productIDs, storeIDs []int64) ([]model.StorePrice, error)
	ListLatestChainStats(ctx context.Context) ([]model.ChainStats, error)
}

// RunLog records import runs.
type RunLog interface {
	StartImportRun(ctx context.Context, date time.Time, source string) (*model.ImportRun, error)
	CompleteImportRun(ctx context.Context, id string, totals model.RunTotals) error
	FailImportRun(ctx context.Context, id string, msg string) error
	ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error)
}

// Store is the full storage handle.
type Store interface {
	Catalog
	Enrichment
	Aggregates
	Queries
	RunLog

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// StoreFilter narrows ListStores. Lat, Lon and RadiusKm must be set together.
type StoreFilter struct {
	Chains   []string
	City     string // case-insensitive substring
	Address  string // case-insensitive substring
	Lat      *float64
	Lon      *float64
	RadiusKm float64
	Limit    int
}

// DefaultRadiusKm is used when a location filter has no radius.
const DefaultRadiusKm = 10.0

func (f StoreFilter) radius() float64 {
	if f.RadiusKm <= 0 {
		return DefaultRadiusKm
	}
	return f.RadiusKm
}

// hasLocation reports whether the filter asks for a radius search.
func (f StoreFilter) hasLocation() bool {
	return f.Lat != nil && f.Lon != nil
}

// StorageUnavailableError means the backend could not be reached. An import
// run that hits it stops.
type StorageUnavailableError struct {
	Backend string
	Err     error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Backend, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

func (f StoreFilter) validate() error {
	if (f.Lat == nil) != (f.Lon == nil) {
		return eris.New("store: lat and lon must be given together")
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
