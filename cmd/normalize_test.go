package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricewatch/internal/normalize"
)

func TestReadRawRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Naziv;Cijena\nMlijeko;1,29\n"), 0o644))
	rows, err := readRawRows(ctx, &normalize.Profile{Chain: "konzum", Format: "csv", Delimiter: ";"}, csvPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1,29", rows[0]["Cijena"])

	xmlPath := filepath.Join(dir, "raw.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<root><item code="P1"><name>Mlijeko</name></item></root>`), 0o644))
	rows, err = readRawRows(ctx, &normalize.Profile{Chain: "spar", Format: "xml", Element: "item"}, xmlPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P1", rows[0]["code"])
	assert.Equal(t, "Mlijeko", rows[0]["name"])

	_, err = readRawRows(ctx, &normalize.Profile{Chain: "spar", Format: "xml"}, xmlPath)
	assert.ErrorContains(t, err, "need an element")

	_, err = readRawRows(ctx, &normalize.Profile{Chain: "spar", Format: "json"}, xmlPath)
	assert.ErrorContains(t, err, "unsupported format")
}
