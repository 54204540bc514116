// Package normalize turns raw chain rows into canonical product and store
// records using declarative column maps.
package normalize

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var (
	// ErrMissingRequiredValue is returned when a required field is empty.
	ErrMissingRequiredValue = eris.New("missing required value")
	// ErrInvalidValue is returned when a required price cannot be parsed.
	ErrInvalidValue = eris.New("invalid value")
	// ErrNoPrice is returned when a product has no regular, special or unit price.
	ErrNoPrice = eris.New("price, special price and unit price are all missing")
)

// ParsePrice parses a price string that may use either , or . as the decimal
// separator, may omit the leading zero and may carry a € or EUR marker.
// When both separators occur, the first one is a thousands separator.
// The result is rounded half-up to 2 decimal places. Empty or unparseable
// input yields an absent value unless required is set.
func ParsePrice(raw string, required bool) (decimal.NullDecimal, error) {
	s := raw

	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		if strings.Index(s, ",") < strings.Index(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "EUR", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)

	if s == "" {
		if required {
			return decimal.NullDecimal{}, ErrMissingRequiredValue
		}
		return decimal.NullDecimal{}, nil
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		if required {
			return decimal.NullDecimal{}, eris.Wrapf(ErrInvalidValue, "price %q", raw)
		}
		return decimal.NullDecimal{}, nil
	}

	return decimal.NewNullDecimal(d.Round(2)), nil
}

// FormatPrice renders an optional price with two decimals, or "" when absent.
func FormatPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// NonZero treats an exact zero as absent. Some sources use 0 as a
// placeholder for "not applicable" in secondary price columns.
func NonZero(d decimal.NullDecimal) decimal.NullDecimal {
	if d.Valid && d.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return d
}
