package model

import "github.com/shopspring/decimal"

// TradeStatus is the venue-terminal outcome of a sub-order.
type TradeStatus string

const (
	TradeFilled   TradeStatus = "FILLED"
	TradeCanceled TradeStatus = "CANCELED"
)

// Trade is the venue-terminal record of a sub-order's fill or cancellation.
// At most one Trade exists per sub-order, keyed by (Exchange, ExchangeOrderID).
type Trade struct {
	Exchange        string
	ExchangeOrderID string
	Price           decimal.Decimal
	Amount          decimal.Decimal
	Status          TradeStatus
}

// Clone returns a deep copy.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
