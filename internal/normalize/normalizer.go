package normalize

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FieldSpec maps a canonical field to a source column.
type FieldSpec struct {
	Field    string `yaml:"field"`
	Column   string `yaml:"column"`
	Required bool   `yaml:"required"`
}

// PreHook adjusts a raw row before fields are extracted.
type PreHook func(row map[string]string)

// PostHook adjusts a record after the fallback chain has run.
type PostHook func(rec *ProductRecord)

// RowError describes why a single row was skipped.
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("row %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// RowResult is the outcome of normalizing one row: a record or a skip reason.
type RowResult struct {
	Line   int
	Record ProductRecord
	Err    *RowError
}

// OK reports whether the row produced a record.
func (r RowResult) OK() bool { return r.Err == nil }

// Report collects the records and skipped rows of one input.
type Report struct {
	Records []ProductRecord
	Skipped []RowResult
}

// Add appends a row result to the report.
func (r *Report) Add(res RowResult) {
	if res.OK() {
		r.Records = append(r.Records, res.Record)
		return
	}
	r.Skipped = append(r.Skipped, res)
}

// Normalizer extracts canonical records for one chain from raw rows.
type Normalizer struct {
	chain  string
	prices []FieldSpec
	fields []FieldSpec
	pre    []PreHook
	post   []PostHook
}

// New creates a Normalizer for chain with the given price and plain field maps.
func New(chain string, prices, fields []FieldSpec) (*Normalizer, error) {
	rec := &ProductRecord{}
	for _, f := range prices {
		if rec.price(f.Field) == nil {
			return nil, eris.Errorf("normalize: unknown price field %q", f.Field)
		}
	}
	for _, f := range fields {
		if rec.text(f.Field) == nil {
			return nil, eris.Errorf("normalize: unknown field %q", f.Field)
		}
	}
	return &Normalizer{chain: chain, prices: prices, fields: fields}, nil
}

// WithHooks returns the normalizer with pre and post hooks attached.
func (n *Normalizer) WithHooks(pre []PreHook, post []PostHook) *Normalizer {
	n.pre = append(n.pre, pre...)
	n.post = append(n.post, post...)
	return n
}

// Chain returns the chain code the normalizer builds records for.
func (n *Normalizer) Chain() string { return n.chain }

// Product normalizes one raw row. line is used for reporting only.
func (n *Normalizer) Product(line int, row map[string]string) RowResult {
	for _, hook := range n.pre {
		hook(row)
	}

	var rec ProductRecord
	for _, f := range n.prices {
		v, err := ParsePrice(row[f.Column], f.Required)
		if err != nil {
			return RowResult{Line: line, Err: &RowError{Line: line, Field: f.Field, Err: err}}
		}
		*rec.price(f.Field) = v
	}

	for _, f := range n.fields {
		v := strings.TrimSpace(row[f.Column])
		if v == "" && f.Required {
			return RowResult{Line: line, Err: &RowError{Line: line, Field: f.Field, Err: ErrMissingRequiredValue}}
		}
		*rec.text(f.Field) = v
	}

	if err := n.fix(&rec); err != nil {
		return RowResult{Line: line, Err: &RowError{Line: line, Err: err}}
	}

	for _, hook := range n.post {
		hook(&rec)
	}

	return RowResult{Line: line, Record: rec}
}

// fix applies the shared fallback chain, in order.
func (n *Normalizer) fix(rec *ProductRecord) error {
	if rec.Barcode == "" {
		rec.Barcode = SynthesizeBarcode(n.chain, rec.ProductID)
	}
	rec.Barcode = StripQuotes(rec.Barcode)

	if !rec.Price.Valid {
		switch {
		case rec.SpecialPrice.Valid:
			rec.Price = rec.SpecialPrice
		case rec.UnitPrice.Valid:
			rec.Price = rec.UnitPrice
		default:
			return ErrNoPrice
		}
	}

	if !rec.UnitPrice.Valid {
		rec.UnitPrice = rec.Price
	}

	if rec.AnchorPrice.Valid && rec.AnchorPriceDate == "" {
		rec.AnchorPriceDate = AnchorReferenceDate
	}

	return nil
}

// Products normalizes all rows, logging and skipping the ones that fail.
// Line numbers start at 2 to account for the header row.
func (n *Normalizer) Products(rows []map[string]string) Report {
	var rep Report
	for i, row := range rows {
		res := n.Product(i+2, row)
		if !res.OK() {
			zap.L().Warn("skipping product row",
				zap.String("chain", n.chain),
				zap.Int("line", res.Line),
				zap.Error(res.Err),
			)
		}
		rep.Add(res)
	}
	return rep
}

// Store normalizes one raw store row using a plain field map.
func Store(chain string, fields []FieldSpec, row map[string]string) (StoreRecord, error) {
	rec := StoreRecord{Chain: chain}
	for _, f := range fields {
		dst := rec.text(f.Field)
		if dst == nil {
			return rec, eris.Errorf("normalize: unknown store field %q", f.Field)
		}
		v := strings.TrimSpace(row[f.Column])
		if v == "" && f.Required {
			return rec, eris.Wrapf(ErrMissingRequiredValue, "store field %s", f.Field)
		}
		*dst = v
	}
	if rec.StoreID == "" {
		return rec, eris.Wrap(ErrMissingRequiredValue, "store field store_id")
	}
	return rec, nil
}
