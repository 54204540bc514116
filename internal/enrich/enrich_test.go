package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/pricewatch/internal/model"
	"github.com/sells-group/pricewatch/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConvertUnit(t *testing.T) {
	tests := []struct {
		unit, qty string
		wantUnit  string
		wantQty   string
	}{
		{"g", "500", "kg", "0.5"},
		{"ML", "330", "L", "0.33"},
		{"l", "1,5", "L", "1.5"},
		{"par", "2", "kom", "2"},
		{"kg", "1", "kg", "1"},
		{" kom ", "6", "kom", "6"},
		{"m", "10", "m", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			unit, qty, err := ConvertUnit(tt.unit, tt.qty)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnit, unit)
			assert.True(t, decimal.RequireFromString(tt.wantQty).Equal(qty), "got %s", qty)
		})
	}
}

func TestConvertUnit_Errors(t *testing.T) {
	_, _, err := ConvertUnit("box", "1")
	assert.ErrorContains(t, err, "unsupported unit")

	_, _, err = ConvertUnit("kg", "heavy")
	assert.ErrorContains(t, err, "invalid quantity")
}

func TestReadRows_CSVAndXLSX(t *testing.T) {
	ctx := context.Background()

	csvPath := writeFile(t, "products.csv", "barcode,brand,name,unit,quantity\n3850102123456, Dukat ,Mlijeko,l,1\n")
	rows, err := ReadRows(ctx, csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dukat", rows[0]["brand"])

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("products")
	require.NoError(t, err)
	for _, data := range [][]string{ProductColumns, {"3850102123456", "Dukat", "Mlijeko", "l", "1"}} {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	xlsxPath := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.Save(xlsxPath))

	rows, err = ReadRows(ctx, xlsxPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mlijeko", rows[0]["name"])

	_, err = ReadRows(ctx, writeFile(t, "empty.csv", "barcode,brand,name,unit,quantity\n"))
	assert.ErrorContains(t, err, "no rows")
}

func TestProducts_SQLite(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)

	_, err := st.AddManyEANs(ctx, []string{"3850102123456", "3850000000017"})
	require.NoError(t, err)
	_, err = st.UpdateProduct(ctx, model.Product{EAN: "3850000000017", Name: "Curated already"})
	require.NoError(t, err)

	rows, err := ReadRows(ctx, writeFile(t, "products.csv",
		"barcode,brand,name,unit,quantity\n"+
			"3850102123456,Dukat,Svježe mlijeko,ml,1000\n"+
			"3850000000017,Other,Overwrite attempt,kg,1\n"+
			"3859999999994,Kraš,Napolitanke,g,500\n"+
			"3851111111118,Acme,Crate,box,1\n"))
	require.NoError(t, err)

	res, err := Products(ctx, st, rows)
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 4, Updated: 2, Created: 2, Kept: 1, Invalid: 1}, res)

	products, err := st.GetProductsByEAN(ctx, []string{"3850000000017", "3850102123456", "3851111111118", "3859999999994"})
	require.NoError(t, err)
	require.Len(t, products, 4)
	byEAN := make(map[string]model.Product)
	for _, p := range products {
		byEAN[p.EAN] = p
	}

	milk := byEAN["3850102123456"]
	assert.Equal(t, "Dukat", milk.Brand)
	assert.Equal(t, "L", milk.Unit)
	assert.True(t, decimal.NewFromInt(1).Equal(milk.Quantity.Decimal))

	assert.Equal(t, "Curated already", byEAN["3850000000017"].Name)
	assert.Empty(t, byEAN["3850000000017"].Brand)

	wafer := byEAN["3859999999994"]
	assert.Equal(t, "Napolitanke", wafer.Name)
	assert.Equal(t, "kg", wafer.Unit)
	assert.True(t, decimal.RequireFromString("0.5").Equal(wafer.Quantity.Decimal))

	// created but left empty by the invalid row
	assert.Empty(t, byEAN["3851111111118"].Name)
}

func TestProducts_WrongColumns(t *testing.T) {
	rows := []map[string]string{{"barcode": "1", "name": "x"}}
	_, err := Products(context.Background(), new(mockProductStore), rows)
	assert.ErrorContains(t, err, "do not match")
}

type mockProductStore struct {
	mock.Mock
}

func (m *mockProductStore) GetProductsByEAN(ctx context.Context, eans []string) ([]model.Product, error) {
	args := m.Called(ctx, eans)
	if v := args.Get(0); v != nil {
		return v.([]model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProductStore) AddManyEANs(ctx context.Context, eans []string) (map[string]int64, error) {
	args := m.Called(ctx, eans)
	if v := args.Get(0); v != nil {
		return v.(map[string]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProductStore) UpdateProduct(ctx context.Context, p model.Product) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func TestProducts_UpdateErrorStops(t *testing.T) {
	ms := new(mockProductStore)
	ms.On("GetProductsByEAN", mock.Anything, []string{"3850102123456"}).
		Return([]model.Product{{ID: 1, EAN: "3850102123456"}}, nil)
	ms.On("UpdateProduct", mock.Anything, mock.AnythingOfType("model.Product")).
		Return(false, errors.New("connection reset"))

	rows := []map[string]string{{"barcode": "3850102123456", "brand": "Dukat", "name": "Mlijeko", "unit": "l", "quantity": "1"}}
	_, err := Products(context.Background(), ms, rows)
	assert.ErrorContains(t, err, "connection reset")
	ms.AssertNotCalled(t, "AddManyEANs", mock.Anything, mock.Anything)
	ms.AssertExpectations(t)
}

func TestStores_SQLite(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)

	chainID, err := st.AddChain(ctx, "konzum")
	require.NoError(t, err)
	_, err = st.AddManyStores(ctx, []model.Store{{ChainID: chainID, Code: "S1", City: "Zagreb"}})
	require.NoError(t, err)

	rows, err := ReadRows(ctx, writeFile(t, "stores.csv",
		"chain,store_id,address,city,zipcode,lat,lon,phone\n"+
			"konzum,S1,Ilica 1,Grad Zagreb,10000,\"45,8150\",15.9819,01 123\n"+
			"konzum,S9,Nowhere 1,,,,,\n"+
			"konzum,S1,,,,north,,\n"+
			",S1,,,,,,\n"))
	require.NoError(t, err)

	res, err := Stores(ctx, st, rows)
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 4, Updated: 1, Missing: 1, Invalid: 2}, res)

	stores, err := st.ListStores(ctx, store.StoreFilter{Chains: []string{"konzum"}})
	require.NoError(t, err)
	require.Len(t, stores, 1)
	s := stores[0]
	assert.Equal(t, "Ilica 1", s.Address)
	assert.Equal(t, "Grad Zagreb", s.City)
	assert.Equal(t, "10000", s.Zipcode)
	assert.Equal(t, "01 123", s.Phone)
	require.NotNil(t, s.Lat)
	assert.InDelta(t, 45.815, *s.Lat, 1e-9)
	require.NotNil(t, s.Lon)
	assert.InDelta(t, 15.9819, *s.Lon, 1e-9)
}
