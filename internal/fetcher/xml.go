package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// StreamXML decodes XML elements matching the given local name and sends them to a channel.
// The type parameter T must be a struct with appropriate xml tags.
// Both channels are closed when processing completes.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != elementName {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// xmlRow captures the child elements of one row element.
type xmlRow struct {
	Attrs  []xml.Attr `xml:",any,attr"`
	Fields []struct {
		XMLName xml.Name
		Value   string `xml:",chardata"`
	} `xml:",any"`
}

// ReadXMLRecords flattens every elementName element into a map keyed by the
// local names of its attributes and child elements.
func ReadXMLRecords(ctx context.Context, r io.Reader, elementName string) ([]map[string]string, error) {
	rowCh, errCh := StreamXML[xmlRow](ctx, r, elementName)

	var out []map[string]string
	for row := range rowCh {
		m := make(map[string]string, len(row.Attrs)+len(row.Fields))
		for _, a := range row.Attrs {
			m[a.Name.Local] = a.Value
		}
		for _, f := range row.Fields {
			m[f.XMLName.Local] = strings.TrimSpace(f.Value)
		}
		out = append(out, m)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}
