package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"barcode", "brand", "name"},
			{"3850104005010", "Dukat", "Mlijeko"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"barcode", "brand", "name"}, rows[0])
	assert.Equal(t, []string{"3850104005010", "Dukat", "Mlijeko"}, rows[1])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Cjenik 20.05.2025"},
			{"sifra", "cijena"},
			{"1", "2,99"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"sifra", "cijena"}, rows[0])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Cjenik": {{"a"}, {"1"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Cjenik"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, writeTestFile(path, "nope"))

	_, err := ReadXLSX(path, XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestReadXLSXRecords(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"barcode", "unit", "quantity"},
			{"3850104005010", "g", "500"},
			{"", "", ""},
			{"3850104005027", "ml", "330"},
		},
	})

	recs, err := ReadXLSXRecords(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "g", recs[0]["unit"])
	assert.Equal(t, "330", recs[1]["quantity"])
}
