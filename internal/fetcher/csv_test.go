package fetcher

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_SemicolonDelimited(t *testing.T) {
	input := "a;b;c\n1;2,50;3\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2,50", "3"}, rows[1])
}

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "name,price\nmlijeko,1.29\nkruh,0.99\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"mlijeko", "1.29"}, rows[0])
	assert.Equal(t, []string{"name", "price"}, <-headerCh)
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "a,b,c\n1,\"hello \"world\",3\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		LazyQuotes: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestStreamCSV_MalformedQuotes(t *testing.T) {
	input := "a,b\n1,\"x\"y\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := " a , b \n 1 , 2 \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestStreamCSV_Windows1250(t *testing.T) {
	encoded, err := charmap.Windows1250.NewEncoder().String("naziv\nČokolada šećer\n")
	require.NoError(t, err)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(encoded), CSVOptions{
		Encoding: "windows-1250",
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Čokolada šećer", rows[1][0])
}

func TestStreamCSV_UnknownEncoding(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{
		Encoding: "klingon",
	})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh {
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
	cancel()
}

func TestReadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, writeTestFile(path, "\ufeffstore_id,product_id,price\nS1,P1,1.29\nS1,P2\n"))

	recs, err := ReadRecords(context.Background(), path, CSVOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "S1", recs[0]["store_id"])
	assert.Equal(t, "1.29", recs[0]["price"])
	assert.Equal(t, "P2", recs[1]["product_id"])
	assert.Equal(t, "", recs[1]["price"])
}

func TestReadRecords_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.csv")
	require.NoError(t, writeTestFile(path, "store_id,type\n"))

	recs, err := ReadRecords(context.Background(), path, CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadRecords_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, writeTestFile(path, ""))

	recs, err := ReadRecords(context.Background(), path, CSVOptions{})
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestReadRecords_MissingFile(t *testing.T) {
	_, err := ReadRecords(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), CSVOptions{})
	assert.Error(t, err)
}

func TestRecords(t *testing.T) {
	recs := Records([]string{" a ", "b"}, [][]string{{"1", "2", "extra"}, {"3"}})
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, recs[0])
	assert.Equal(t, map[string]string{"a": "3", "b": ""}, recs[1])
}
