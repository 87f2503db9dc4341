package models

import "github.com/shopspring/decimal"

type SaleType string

const (
	SaleRegular SaleType = "REGULAR_SALE"
	SaleAuction SaleType = "AUCTION_SALE"
)

type Fee struct {
	SaleType   SaleType        `json:"sale_type"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Commission is price*percentage/100 rounded half-up to whole units.
func (f Fee) Commission(price int64) int64 {
	return decimal.NewFromInt(price).
		Mul(f.Percentage).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
