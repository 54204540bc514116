package normalize

import "github.com/shopspring/decimal"

// Canonical product field names used in column maps.
const (
	FieldPrice           = "price"
	FieldUnitPrice       = "unit_price"
	FieldBestPrice30     = "best_price_30"
	FieldAnchorPrice     = "anchor_price"
	FieldSpecialPrice    = "special_price"
	FieldInitialPrice    = "initial_price"
	FieldProductID       = "product_id"
	FieldBarcode         = "barcode"
	FieldProduct         = "product"
	FieldBrand           = "brand"
	FieldCategory        = "category"
	FieldUnit            = "unit"
	FieldQuantity        = "quantity"
	FieldPackaging       = "packaging"
	FieldAnchorPriceDate = "anchor_price_date"
	FieldDateAdded       = "date_added"
)

// Canonical store field names used in column maps.
const (
	FieldStoreID   = "store_id"
	FieldStoreType = "store_type"
	FieldStoreName = "name"
	FieldAddress   = "address"
	FieldCity      = "city"
	FieldZipcode   = "zipcode"
)

// AnchorReferenceDate is stamped on anchor prices that arrive without a date.
const AnchorReferenceDate = "2025-05-02"

// ProductRecord is one canonical product observation at a store.
type ProductRecord struct {
	ProductID       string
	Barcode         string
	Product         string
	Brand           string
	Category        string
	Unit            string
	Quantity        string
	Packaging       string
	AnchorPriceDate string
	DateAdded       string

	Price        decimal.NullDecimal
	UnitPrice    decimal.NullDecimal
	BestPrice30  decimal.NullDecimal
	AnchorPrice  decimal.NullDecimal
	SpecialPrice decimal.NullDecimal
	InitialPrice decimal.NullDecimal
}

func (r *ProductRecord) price(field string) *decimal.NullDecimal {
	switch field {
	case FieldPrice:
		return &r.Price
	case FieldUnitPrice:
		return &r.UnitPrice
	case FieldBestPrice30:
		return &r.BestPrice30
	case FieldAnchorPrice:
		return &r.AnchorPrice
	case FieldSpecialPrice:
		return &r.SpecialPrice
	case FieldInitialPrice:
		return &r.InitialPrice
	}
	return nil
}

func (r *ProductRecord) text(field string) *string {
	switch field {
	case FieldProductID:
		return &r.ProductID
	case FieldBarcode:
		return &r.Barcode
	case FieldProduct:
		return &r.Product
	case FieldBrand:
		return &r.Brand
	case FieldCategory:
		return &r.Category
	case FieldUnit:
		return &r.Unit
	case FieldQuantity:
		return &r.Quantity
	case FieldPackaging:
		return &r.Packaging
	case FieldAnchorPriceDate:
		return &r.AnchorPriceDate
	case FieldDateAdded:
		return &r.DateAdded
	}
	return nil
}

// StoreRecord is one canonical store location with the products observed there.
type StoreRecord struct {
	Chain   string
	StoreID string
	Name    string
	Type    string
	Address string
	City    string
	Zipcode string
	Items   []ProductRecord
}

func (s *StoreRecord) text(field string) *string {
	switch field {
	case FieldStoreID:
		return &s.StoreID
	case FieldStoreType:
		return &s.Type
	case FieldStoreName:
		return &s.Name
	case FieldAddress:
		return &s.Address
	case FieldCity:
		return &s.City
	case FieldZipcode:
		return &s.Zipcode
	}
	return nil
}
