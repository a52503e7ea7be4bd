package model

import "github.com/shopspring/decimal"

// Liability is a read-only, on-chain-reported debt of the broker to the
// settlement contract. It is never persisted by the Store; the reconciler
// re-reads it from the Chain Client on every Liabilities tick.
type Liability struct {
	AssetName         string
	OutstandingAmount decimal.Decimal
	Timestamp         int64 // ms since epoch
}
