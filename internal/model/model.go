// Package model defines the core domain types shared across the listing engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"github.com/shopspring/decimal"
)

// Stock is a tradable instrument. The ID is assigned by the store on
// creation; Version is bumped by every successful version-checked save.
type Stock struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	CurrentPrice decimal.Decimal `json:"current_price" db:"current_price"`
	Version      int64           `json:"version" db:"version"`
}

// Exchange is a trading venue. LiveInMarket is derived from the current
// listing count — callers never set it directly; the engine recomputes it
// after every listing-count-changing operation.
type Exchange struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Description  string `json:"description" db:"description"`
	LiveInMarket bool   `json:"live_in_market" db:"live_in_market"`
	Version      int64  `json:"version" db:"version"`
}

// ListingKey is the composite identity of a listing: one exchange, one
// stock. A listing has no identity beyond this pair.
type ListingKey struct {
	ExchangeID int64 `json:"exchange_id"`
	StockID    int64 `json:"stock_id"`
}

// Listing associates one stock with one exchange. At most one listing per
// (exchange, stock) pair exists at any time; the store enforces uniqueness
// on the composite key.
type Listing struct {
	ExchangeID int64 `json:"exchange_id" db:"exchange_id"`
	StockID    int64 `json:"stock_id" db:"stock_id"`
}

// Key returns the composite key of the listing.
func (l Listing) Key() ListingKey {
	return ListingKey{ExchangeID: l.ExchangeID, StockID: l.StockID}
}

// ListingDetail is the composite view returned after a listing is created:
// the exchange (with its recomputed live status) and the listed stock.
type ListingDetail struct {
	Exchange Exchange `json:"exchange"`
	Stock    Stock    `json:"stock"`
}
