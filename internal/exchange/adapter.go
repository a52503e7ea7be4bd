// Package exchange defines the narrow per-venue interface the engine and
// reconciler consume (C2), plus a deterministic paper adapter used in tests
// and dry-run deployments. A production venue talks to this interface
// through an HTTP adapter built on internal/transport.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/xerrors"
)

// WithdrawLimit is a venue's minimum withdrawal amount and flat fee for a
// currency, both in the currency's own units.
type WithdrawLimit struct {
	Min decimal.Decimal
	Fee decimal.Decimal
}

// WithdrawCheck is one entry of a checkWithdraws response: only non-pending
// statuses are ever returned by Adapter.CheckWithdraws.
type WithdrawCheck struct {
	ExchangeWithdrawID string
	Status             model.WithdrawalStatus
}

// TradeCallback is invoked by Adapter.CheckSubOrders for every sub-order
// that has reached a venue-terminal state (FILLED or CANCELED).
type TradeCallback func(trade *model.Trade)

// Adapter is implemented once per trading venue. Methods take a
// context.Context because every call suspends on exchange I/O; no method
// may block the caller beyond that I/O.
//
// Venue idiosyncrasies the adapter MUST paper over:
//   - some venues require an explicit account-to-account transfer before
//     withdrawal; the adapter performs it internally;
//   - some venues report a misleading "ok" for in-progress withdrawals —
//     the adapter must downgrade that to "pending" using venue-native
//     fields before it ever reaches CheckWithdraws's caller.
type Adapter interface {
	// Name identifies the venue (used as SubOrder.Exchange and as the key
	// into balance snapshots).
	Name() string

	// SubmitSubOrder places an order at the venue. clientOrderID (the
	// sub-order's own id) is passed through so a retried submit observes
	// the same placement rather than creating a duplicate. Returns a
	// *xerrors.Classified (see NewSubmitRejected) on any venue-reported
	// rejection.
	SubmitSubOrder(ctx context.Context, clientOrderID int64, symbol string, side model.Side, amount, price decimal.Decimal) (exchangeOrderID string, err error)

	// CancelSubOrder requests cancellation. The result is advisory only;
	// authoritative status arrives later via CheckSubOrders.
	CancelSubOrder(ctx context.Context, sub *model.SubOrder) error

	// GetBalances returns the venue's balances filtered to currencies the
	// chain recognizes.
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)

	// CheckSubOrders polls the venue for the given open sub-orders and
	// invokes cb for every one that has reached FILLED or CANCELED.
	CheckSubOrders(ctx context.Context, subs []*model.SubOrder, cb TradeCallback) error

	// HasWithdraw reports whether this venue supports on-chain withdrawal.
	HasWithdraw() bool

	// GetWithdrawLimit returns the venue's minimum withdrawal and fee for
	// currency.
	GetWithdrawLimit(ctx context.Context, currency string) (WithdrawLimit, error)

	// Withdraw initiates a withdrawal of amount currency to address.
	// Venue errors are swallowed and reported as ok=false rather than an
	// error value — the liability loop simply retries on its next tick.
	Withdraw(ctx context.Context, currency string, amount decimal.Decimal, address string) (exchangeWithdrawID string, ok bool)

	// CheckWithdraws polls the venue for the given pending withdrawals and
	// returns only the ones that resolved to a non-pending status.
	CheckWithdraws(ctx context.Context, withdrawals []*model.Withdrawal) ([]WithdrawCheck, error)
}

const (
	codeSubmitRejected = "ERR_SUBMIT_REJECTED"
	codeVenueIO        = "ERR_VENUE_IO"
)

// NewSubmitRejected wraps a venue's explicit order rejection as a
// NonRetryable error: the sub-order engine moves straight to REJECTED and
// never retries submission.
func NewSubmitRejected(reason string) *xerrors.Classified {
	return xerrors.NewNonRetryable(codeSubmitRejected, reason, nil)
}

// NewVenueIOError wraps a transient venue communication failure as
// Retryable: the caller's loop ticks again.
func NewVenueIOError(cause error) *xerrors.Classified {
	return xerrors.NewRetryable(codeVenueIO, "venue I/O failure", cause)
}
