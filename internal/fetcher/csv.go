// Package fetcher reads tabular chain exports (CSV, XLSX, XML), handles ZIP
// archives and downloads remote archives over HTTP.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV parsers.
type CSVOptions struct {
	Delimiter  rune            // default ','
	Encoding   string          // WHATWG label such as "windows-1250"; default utf-8
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
	TrimSpace  bool
}

// decodeReader wraps r with a decoder for the named character encoding.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unsupported encoding %q", encoding)
	}
	return enc.NewDecoder().Reader(r), nil
}

func newCSVReader(r io.Reader, opts CSVOptions) (*csv.Reader, error) {
	dr, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(dr)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields
	return reader, nil
}

// StreamCSV reads CSV rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader, err := newCSVReader(r, opts)
		if err != nil {
			errCh <- err
			return
		}

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadRecords reads a CSV file with a header row and returns one map per
// data row keyed by column name.
func ReadRecords(ctx context.Context, path string, opts CSVOptions) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	opts.HasHeader = true
	opts.HeaderCh = headerCh

	rowCh, errCh := StreamCSV(ctx, f, opts)

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "csv: read %s", path)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, nil
	}

	return Records(header, rows), nil
}

// Records pairs each row with the header, producing column-keyed maps.
// Header names are trimmed and a UTF-8 byte order mark is dropped.
// Missing trailing cells map to "".
func Records(header []string, rows [][]string) []map[string]string {
	keys := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		keys[i] = strings.TrimSpace(h)
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(keys))
		for i, k := range keys {
			if i < len(row) {
				m[k] = row[i]
			} else {
				m[k] = ""
			}
		}
		out = append(out, m)
	}
	return out
}
