package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for directories, archives and queries.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Price is one store's observation for one chain product on one date.
// Identity is (ChainProductID, StoreID, PriceDate) and rows are never updated.
type Price struct {
	ChainProductID int64               `json:"chain_product_id"`
	StoreID        int64               `json:"store_id"`
	PriceDate      time.Time           `json:"price_date"`
	RegularPrice   decimal.NullDecimal `json:"regular_price"`
	SpecialPrice   decimal.NullDecimal `json:"special_price"`
	UnitPrice      decimal.NullDecimal `json:"unit_price"`
	BestPrice30    decimal.NullDecimal `json:"best_price_30"`
	AnchorPrice    decimal.NullDecimal `json:"anchor_price"`
}

// PriceRow is one row of a chain's prices.csv.
type PriceRow struct {
	StoreCode    string
	ProductCode  string
	Price        decimal.NullDecimal
	UnitPrice    decimal.NullDecimal
	BestPrice30  decimal.NullDecimal
	AnchorPrice  decimal.NullDecimal
	SpecialPrice decimal.NullDecimal
}

// ChainPriceAggregate holds the derived per-date price statistics of a chain product.
type ChainPriceAggregate struct {
	ChainProductID int64           `json:"chain_product_id"`
	ProductID      int64           `json:"product_id,omitempty"`
	ChainCode      string          `json:"chain_code,omitempty"`
	PriceDate      time.Time       `json:"price_date"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
}

// ChainStats holds derived per-date counts for a chain.
type ChainStats struct {
	ChainID    int64     `json:"chain_id"`
	ChainCode  string    `json:"chain_code,omitempty"`
	PriceDate  time.Time `json:"price_date"`
	PriceCount int64     `json:"price_count"`
	StoreCount int64     `json:"store_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// StorePrice is the latest known price of a chain product at one store.
type StorePrice struct {
	Price
	EAN       string `json:"ean"`
	StoreCode string `json:"store_code"`
	ChainCode string `json:"chain_code"`
}
