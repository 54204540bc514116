package normalize

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Profile declares how one chain's raw export maps onto canonical records.
type Profile struct {
	Chain     string `yaml:"chain"`
	Format    string `yaml:"format"`    // csv, xlsx or xml
	Delimiter string `yaml:"delimiter"` // csv only, default ","
	Encoding  string `yaml:"encoding"`  // csv only, any WHATWG label; default utf-8
	Element   string `yaml:"element"`   // xml only, the element holding one row
	Sheet     int    `yaml:"sheet"`     // xlsx only

	Prices []FieldSpec `yaml:"prices"`
	Fields []FieldSpec `yaml:"fields"`

	// StoreFields maps per-row store columns. When empty, every row belongs
	// to the single store supplied by the caller.
	StoreFields []FieldSpec `yaml:"store_fields"`

	Pre  []string `yaml:"pre"`
	Post []string `yaml:"post"`
}

// LoadProfile reads a chain profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read profile %s", path)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "normalize: parse profile")
	}
	if p.Chain == "" {
		return nil, eris.New("normalize: profile chain is required")
	}
	if p.Format == "" {
		p.Format = "csv"
	}
	return &p, nil
}

// column returns the source column mapped to field, if any.
func (p *Profile) column(field string) string {
	for _, specs := range [][]FieldSpec{p.Prices, p.Fields} {
		for _, f := range specs {
			if f.Field == field {
				return f.Column
			}
		}
	}
	return ""
}

// Normalizer builds the normalizer described by the profile, resolving hook names.
func (p *Profile) Normalizer() (*Normalizer, error) {
	n, err := New(p.Chain, p.Prices, p.Fields)
	if err != nil {
		return nil, err
	}

	var pre []PreHook
	for _, name := range p.Pre {
		switch name {
		case "anchor_split":
			priceCol, dateCol := p.column(FieldAnchorPrice), p.column(FieldAnchorPriceDate)
			if priceCol == "" || dateCol == "" {
				return nil, eris.New("normalize: anchor_split needs anchor_price and anchor_price_date columns")
			}
			pre = append(pre, AnchorSplit(priceCol, dateCol))
		default:
			return nil, eris.Errorf("normalize: unknown pre hook %q", name)
		}
	}

	var post []PostHook
	for _, name := range p.Post {
		switch name {
		case "collapse_whitespace":
			post = append(post, CollapseWhitespace)
		default:
			return nil, eris.Errorf("normalize: unknown post hook %q", name)
		}
	}

	return n.WithHooks(pre, post), nil
}

// Stores normalizes rows and groups the resulting products by store.
// Rows whose store columns are invalid are skipped like any other bad row.
// Store order follows first appearance.
func (p *Profile) Stores(rows []map[string]string, fallback StoreRecord) ([]StoreRecord, Report, error) {
	n, err := p.Normalizer()
	if err != nil {
		return nil, Report{}, err
	}

	var rep Report
	byID := make(map[string]int)
	var stores []StoreRecord

	if len(p.StoreFields) == 0 {
		fallback.Chain = p.Chain
		if fallback.StoreID == "" {
			return nil, rep, eris.New("normalize: store id is required when the profile has no store fields")
		}
		stores = append(stores, fallback)
		byID[fallback.StoreID] = 0
	}

	for i, row := range rows {
		line := i + 2
		idx := 0
		if len(p.StoreFields) > 0 {
			st, err := Store(p.Chain, p.StoreFields, row)
			if err != nil {
				zap.L().Warn("skipping row with invalid store", zap.String("chain", p.Chain), zap.Int("line", line), zap.Error(err))
				rep.Add(RowResult{Line: line, Err: &RowError{Line: line, Err: err}})
				continue
			}
			var ok bool
			if idx, ok = byID[st.StoreID]; !ok {
				idx = len(stores)
				byID[st.StoreID] = idx
				stores = append(stores, st)
			}
		}

		res := n.Product(line, row)
		if !res.OK() {
			zap.L().Warn("skipping product row", zap.String("chain", p.Chain), zap.Int("line", line), zap.Error(res.Err))
		} else {
			stores[idx].Items = append(stores[idx].Items, res.Record)
		}
		rep.Add(res)
	}

	return stores, rep, nil
}
