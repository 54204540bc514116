package normalize

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// anchorPattern matches anchor prices encoded as "MPC 2.5.2025=7,99€".
var anchorPattern = regexp.MustCompile(`MPC\s+(\d+\.\d+\.\d+)=(.+)`)

var whitespace = regexp.MustCompile(`\s+`)

// AnchorSplit returns a pre-hook that splits an anchor price column holding
// "MPC <d.m.yyyy>=<price>" into the price and an ISO date written to dateColumn.
// Values that do not match clear the anchor price.
func AnchorSplit(priceColumn, dateColumn string) PreHook {
	return func(row map[string]string) {
		raw := row[priceColumn]
		row[dateColumn] = ""
		if raw == "" {
			return
		}

		m := anchorPattern.FindStringSubmatch(raw)
		if m == nil {
			row[priceColumn] = ""
			return
		}

		d, err := time.Parse("2.1.2006", m[1])
		if err != nil {
			zap.L().Warn("unparseable anchor date", zap.String("value", raw), zap.Error(err))
			row[priceColumn] = ""
			return
		}
		row[dateColumn] = d.Format("2006-01-02")
		row[priceColumn] = m[2]
	}
}

// CollapseWhitespace is a post-hook that strips quote characters around
// descriptive fields and collapses runs of whitespace in the product name.
// Quantities also get "," normalized to ".".
func CollapseWhitespace(rec *ProductRecord) {
	if rec.Product != "" {
		rec.Product = whitespace.ReplaceAllString(trimQuotes(rec.Product), " ")
	}
	rec.Brand = trimQuotes(rec.Brand)
	rec.Category = trimQuotes(rec.Category)
	rec.Unit = trimQuotes(rec.Unit)
	if rec.Quantity != "" {
		rec.Quantity = strings.ReplaceAll(trimQuotes(rec.Quantity), ",", ".")
	}
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
