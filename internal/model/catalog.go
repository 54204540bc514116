// Package model defines the retail price domain types shared across packages.
package model

import (
	"github.com/shopspring/decimal"
)

// Chain is a retail brand, the top-level partition of all data.
type Chain struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// Store is one physical location of a chain. Identity is (ChainID, Code).
// Optional attributes are empty strings or nil when unknown.
type Store struct {
	ID      int64    `json:"id,omitempty"`
	ChainID int64    `json:"chain_id"`
	Code    string   `json:"code"`
	Type    string   `json:"type,omitempty"`
	Address string   `json:"address,omitempty"`
	City    string   `json:"city,omitempty"`
	Zipcode string   `json:"zipcode,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Phone   string   `json:"phone,omitempty"`
}

// StoreUpdate carries enrichment values for an existing store.
// Empty or nil fields keep the stored value.
type StoreUpdate struct {
	Address string
	City    string
	Zipcode string
	Lat     *float64
	Lon     *float64
	Phone   string
}

// Product is a global, barcode-identified catalog entry.
type Product struct {
	ID       int64               `json:"id"`
	EAN      string              `json:"ean"`
	Brand    string              `json:"brand,omitempty"`
	Name     string              `json:"name,omitempty"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Unit     string              `json:"unit,omitempty"`
}

// ChainProduct is a chain's own listing of a product. Identity is (ChainID, Code).
type ChainProduct struct {
	ID        int64  `json:"id,omitempty"`
	ChainID   int64  `json:"chain_id"`
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	Category  string `json:"category,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
}

// ProductRow is one row of a chain's products.csv.
type ProductRow struct {
	Code     string
	Barcode  string
	Name     string
	Brand    string
	Category string
	Unit     string
	Quantity string
}

// StoreRow is one row of a chain's stores.csv.
type StoreRow struct {
	Code    string
	Type    string
	Address string
	City    string
	Zipcode string
}

// ToStore converts the row into a store belonging to chainID.
func (r StoreRow) ToStore(chainID int64) Store {
	return Store{
		ChainID: chainID,
		Code:    r.Code,
		Type:    r.Type,
		Address: r.Address,
		City:    r.City,
		Zipcode: r.Zipcode,
	}
}
