package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Numeric converts an optional decimal into a COPY/query argument.
// Absent values become SQL NULL.
func Numeric(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return pgtype.Numeric{Int: d.Decimal.Coefficient(), Exp: d.Decimal.Exponent(), Valid: true}
}

// Decimal converts a scanned numeric back into an optional decimal.
// NULL, NaN and infinities map to an absent value.
func Decimal(n pgtype.Numeric) decimal.NullDecimal {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromBigInt(n.Int, n.Exp), Valid: true}
}

// Text converts a string into a query argument, mapping "" to NULL.
func Text(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Float converts an optional float into a query argument.
func Float(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
