package importer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/fetcher"
	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/resilience"
	"github.com/sells-group/pricewatch/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var snapshotDate = time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

// konzumFiles is one store, two products (one without a barcode) and three
// price rows, one of which names an unknown product.
var konzumFiles = map[string]string{
	"stores.csv": "store_id,type,address,city,zipcode\n" +
		"S1,supermarket,Ilica 1,Zagreb,10000\n",
	"products.csv": "product_id,barcode,name,brand,category,unit,quantity\n" +
		"123,,Kruh bijeli,,Pekara,kom,1\n" +
		"456,3850102123456,Mlijeko 2.8%,Dukat,Mlijeko,L,1\n",
	"prices.csv": "store_id,product_id,price,unit_price,best_price_30,anchor_price,special_price\n" +
		"S1,123,0.89,0.89,,,\n" +
		"S1,456,1.29,1.29,1.19,1.25,0.99\n" +
		"S1,999,5.00,,,,\n",
}

func writeSnapshot(t *testing.T, root string, chains map[string]map[string]string) string {
	t.Helper()
	day := filepath.Join(root, snapshotDate.Format(model.DateLayout))
	for chain, files := range chains {
		dir := filepath.Join(day, chain)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		}
	}
	return day
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestImportPath_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	day := writeSnapshot(t, t.TempDir(), map[string]map[string]string{"konzum": konzumFiles})

	im := New(st, nil, Options{Concurrency: 2, TempDir: t.TempDir()})
	res, err := im.ImportPath(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChainsImported)
	assert.Zero(t, res.ChainsSkipped)
	assert.Equal(t, int64(2), res.NewPrices)
	require.NotNil(t, res.Aggregates)
	assert.Equal(t, int64(2), res.Aggregates.ChainPrices)
	assert.True(t, res.Date.Equal(snapshotDate))

	stores, err := st.ListStores(ctx, store.StoreFilter{})
	require.NoError(t, err)
	assert.Len(t, stores, 1)

	barcodes, err := st.ProductBarcodes(ctx)
	require.NoError(t, err)
	assert.Len(t, barcodes, 2)
	assert.Contains(t, barcodes, "konzum:123")

	ids := []int64{barcodes["konzum:123"], barcodes["3850102123456"]}
	cps, err := st.ListChainProducts(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, cps, 2)

	aggs, err := st.GetChainPrices(ctx, ids, snapshotDate)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	// The milk's effective price is its special price.
	for _, a := range aggs {
		if a.ProductID == barcodes["3850102123456"] {
			assert.Equal(t, "0.99", a.MinPrice.StringFixed(2))
		}
	}

	runs, err := st.ListImportRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, int64(2), runs[0].NewPrices)
}

func TestImportPath_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	day := writeSnapshot(t, t.TempDir(), map[string]map[string]string{"konzum": konzumFiles})
	im := New(st, nil, Options{})

	first, err := im.ImportPath(ctx, day)
	require.NoError(t, err)
	barcodesBefore, err := st.ProductBarcodes(ctx)
	require.NoError(t, err)

	second, err := im.ImportPath(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.NewPrices)
	assert.Zero(t, second.NewPrices)

	barcodesAfter, err := st.ProductBarcodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, barcodesBefore, barcodesAfter)

	ids := make([]int64, 0, len(barcodesAfter))
	for _, id := range barcodesAfter {
		ids = append(ids, id)
	}
	prices, err := st.GetStorePrices(ctx, ids, nil)
	require.NoError(t, err)
	assert.Len(t, prices, 2)
}

func TestImportPath_SkipsChainWithMissingFile(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	broken := map[string]string{"stores.csv": konzumFiles["stores.csv"]}
	day := writeSnapshot(t, t.TempDir(), map[string]map[string]string{
		"konzum": konzumFiles,
		"spar":   broken,
	})

	res, err := New(st, nil, Options{SkipStats: true}).ImportPath(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChainsImported)
	assert.Equal(t, 1, res.ChainsSkipped)
	assert.Nil(t, res.Aggregates)

	chains, err := st.ListChains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, "konzum", chains[0].Code)

	stats, err := st.ListLatestChainStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestImportPath_Archive(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	root := t.TempDir()
	day := writeSnapshot(t, root, map[string]map[string]string{"konzum": konzumFiles})

	zipPath := filepath.Join(t.TempDir(), "2025-05-20.zip")
	_, err := fetcher.CreateZIP(day, zipPath)
	require.NoError(t, err)

	res, err := New(st, nil, Options{TempDir: t.TempDir()}).ImportPath(ctx, zipPath)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChainsImported)
	assert.Equal(t, int64(2), res.NewPrices)
}

func TestImportPath_BadNames(t *testing.T) {
	st := newSQLite(t)
	im := New(st, nil, Options{})
	dir := t.TempDir()

	notDate := filepath.Join(dir, "latest")
	require.NoError(t, os.MkdirAll(filepath.Join(notDate, "konzum"), 0o755))
	textFile := filepath.Join(dir, "2025-05-20.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("x"), 0o644))
	badZip := filepath.Join(dir, "2025-05-21.zip")
	require.NoError(t, os.WriteFile(badZip, []byte("not a zip"), 0o644))
	empty := filepath.Join(dir, "2025-05-22")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	for _, path := range []string{notDate, textFile, badZip, empty, filepath.Join(dir, "missing")} {
		_, err := im.ImportPath(context.Background(), path)
		require.Error(t, err, path)
		var afe *ArchiveFormatError
		assert.True(t, errors.As(err, &afe), path)
	}

	runs, err := st.ListImportRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestParseSnapshotName(t *testing.T) {
	d, err := ParseSnapshotName("/data/2025-05-20.ZIP")
	require.NoError(t, err)
	assert.True(t, d.Equal(snapshotDate))

	d, err = ParseSnapshotName("/data/2025-05-20")
	require.NoError(t, err)
	assert.True(t, d.Equal(snapshotDate))

	_, err = ParseSnapshotName("/data/2025-13-01")
	require.Error(t, err)
}

// failingPrices reports the storage as unreachable when prices are written.
type failingPrices struct {
	store.Store
}

func (failingPrices) AddManyPrices(context.Context, []model.Price) (int64, error) {
	return 0, &store.StorageUnavailableError{Backend: "sqlite", Err: errors.New("disk I/O error")}
}

func TestImportPath_StorageFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	day := writeSnapshot(t, t.TempDir(), map[string]map[string]string{"konzum": konzumFiles})

	_, err := New(failingPrices{st}, nil, Options{}).ImportPath(ctx, day)
	require.Error(t, err)
	var unavailable *store.StorageUnavailableError
	assert.True(t, errors.As(err, &unavailable))

	runs, err := st.ListImportRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "storage unavailable")

	stats, err := st.ListLatestChainStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestImportURL(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)
	day := writeSnapshot(t, t.TempDir(), map[string]map[string]string{"konzum": konzumFiles})
	zipPath := filepath.Join(t.TempDir(), "2025-05-20.zip")
	_, err := fetcher.CreateZIP(day, zipPath)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, zipPath)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	im := New(st, f, Options{TempDir: t.TempDir()})

	res, err := im.ImportURL(ctx, srv.URL+"/archive/2025-05-20.zip?token=x")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.NewPrices)

	runs, err := st.ListImportRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, srv.URL+"/archive/2025-05-20.zip?token=x", runs[0].Source)

	_, err = im.ImportURL(ctx, srv.URL+"/latest.zip")
	var afe *ArchiveFormatError
	assert.True(t, errors.As(err, &afe))
}
