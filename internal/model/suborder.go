// Package model holds the broker's persisted aggregates: sub-orders, trades,
// withdrawals, on-chain transactions, and liabilities. Prices and amounts use
// arbitrary-precision decimals rather than float64 so that repeated
// comparisons (filledAmount == amount, balance thresholds) never drift.
package model

import "github.com/shopspring/decimal"

// SubOrderStatus is the lifecycle state of a SubOrder. Once a SubOrder
// reaches a terminal status (FILLED, CANCELED, REJECTED) it never changes,
// except the single hub-forced ACCEPTED->REJECTED override handled by the
// engine.
type SubOrderStatus string

const (
	StatusPrepare  SubOrderStatus = "PREPARE"
	StatusAccepted SubOrderStatus = "ACCEPTED"
	StatusFilled   SubOrderStatus = "FILLED"
	StatusCanceled SubOrderStatus = "CANCELED"
	StatusRejected SubOrderStatus = "REJECTED"
)

// IsTerminal reports whether s is one of the sticky terminal statuses.
func (s SubOrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// Side is the sub-order's trading direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SubOrder is a single venue-bound child order dispatched by the hub.
// Keyed by ID, which is assigned by the hub and never reused.
type SubOrder struct {
	ID           int64
	Symbol       string // BASE-QUOTE
	Side         Side
	Price        decimal.Decimal
	Amount       decimal.Decimal
	Exchange     string
	Timestamp    int64 // ms since epoch, assigned on insert
	Status       SubOrderStatus
	FilledAmount decimal.Decimal

	// ExchangeOrderID is nil until the venue accepts placement; it is
	// non-nil for every status the sub-order has ever held ACCEPTED or
	// later.
	ExchangeOrderID *string

	// SentToAggregator is true once the hub has acknowledged the current
	// terminal status; the resend loop stops retransmitting once set.
	SentToAggregator bool
}

// Clone returns a deep copy, safe for a caller to mutate without affecting
// the store's internal state.
func (s *SubOrder) Clone() *SubOrder {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ExchangeOrderID != nil {
		id := *s.ExchangeOrderID
		cp.ExchangeOrderID = &id
	}
	return &cp
}
