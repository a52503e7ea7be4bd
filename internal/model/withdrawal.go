package model

import "github.com/shopspring/decimal"

// WithdrawalStatus tracks an exchange withdrawal from submission to
// settlement. ok/failed/canceled are sticky terminal statuses.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalOK       WithdrawalStatus = "ok"
	WithdrawalFailed   WithdrawalStatus = "failed"
	WithdrawalCanceled WithdrawalStatus = "canceled"
)

// IsTerminal reports whether s will never change again.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalOK || s == WithdrawalFailed || s == WithdrawalCanceled
}

// Withdrawal is an exchange-side withdrawal initiated by the reconciler to
// discharge a liability, keyed by ExchangeWithdrawID.
type Withdrawal struct {
	ExchangeWithdrawID string
	Exchange           string
	Currency           string
	Amount             decimal.Decimal
	Status             WithdrawalStatus
}

// Clone returns a deep copy.
func (w *Withdrawal) Clone() *Withdrawal {
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}
