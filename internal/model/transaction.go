package model

import "github.com/shopspring/decimal"

// TransactionStatus is the persisted status of an on-chain transaction the
// broker has broadcast. PENDING is the only non-terminal value; the gateway
// additionally reports a transient "NONE" (not yet seen) which the
// reconciler promotes to FAIL after 10 minutes rather than persisting as-is.
type TransactionStatus string

const (
	TxPending TransactionStatus = "PENDING"
	TxOK      TransactionStatus = "OK"
	TxFail    TransactionStatus = "FAIL"
)

// IsTerminal reports whether s will never change again.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxOK || s == TxFail
}

// Method identifies which Chain Client write produced a Transaction.
type Method string

const (
	MethodDepositETH    Method = "depositETH"
	MethodDepositERC20  Method = "depositERC20"
	MethodWithdraw      Method = "withdraw"
	MethodApproveERC20  Method = "approveERC20"
	MethodLockStake     Method = "lockStake"
	MethodReleaseStake  Method = "releaseStake"
)

// Transaction is a broadcast on-chain transaction awaiting confirmation.
type Transaction struct {
	TransactionHash string
	Method          Method
	Asset           string
	Amount          decimal.Decimal
	CreateTime      int64 // ms since epoch
	Status          TransactionStatus
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
