package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/model"
)

// gasReserveETH is held back from the ETH wallet balance so a liability
// discharge never starves the broker's own gas wallet.
var gasReserveETH = decimal.RequireFromString("0.045")

// manageLiability decides how to discharge a single outstanding liability:
// deposit straight from the wallet if it already holds enough, otherwise
// pull the shortfall from whichever venue can cover it. It is a no-op
// whenever a discharge is already in flight or the liability isn't due yet.
func (r *Reconciler) manageLiability(ctx context.Context, l model.Liability) {
	log := r.log.With(zap.String("asset", l.AssetName))

	if !l.OutstandingAmount.IsPositive() {
		return
	}
	age := time.Now().UnixMilli() - l.Timestamp
	if age < r.duePeriod.Milliseconds() {
		return
	}

	pending, err := r.store.Transactions().GetPending()
	if err != nil {
		log.Error("failed to load pending transactions", zap.Error(err))
		return
	}
	if len(pending) > 0 {
		log.Debug("discharge already in flight, skipping")
		return
	}

	withdrawals, err := r.store.Withdrawals().GetToCheck()
	if err != nil {
		log.Error("failed to load pending withdrawals", zap.Error(err))
		return
	}
	if len(withdrawals) > 0 {
		log.Debug("withdrawal already in flight, skipping")
		return
	}

	wallet, err := r.chain.GetWalletBalance(ctx, l.AssetName)
	if err != nil {
		log.Error("failed to read wallet balance", zap.Error(err))
		return
	}
	if l.AssetName == "ETH" {
		wallet = wallet.Sub(gasReserveETH)
	}

	if wallet.GreaterThanOrEqual(l.OutstandingAmount) {
		r.deposit(ctx, l.AssetName, l.OutstandingAmount, log)
		return
	}

	remaining := l.OutstandingAmount.Sub(wallet)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	exchangeName, amount, ok := r.getExchangeForWithdraw(ctx, l.AssetName, remaining)
	if !ok {
		log.Warn("no venue can cover the shortfall this tick", zap.String("remaining", remaining.String()))
		return
	}

	adapter := r.adapters[exchangeName]
	withdrawID, submitted := adapter.Withdraw(ctx, l.AssetName, amount, r.chain.Address().Hex())
	if !submitted {
		log.Warn("withdraw request failed, will retry next tick", zap.String("exchange", exchangeName))
		return
	}

	w := &model.Withdrawal{
		ExchangeWithdrawID: withdrawID,
		Exchange:           exchangeName,
		Currency:           l.AssetName,
		Amount:             amount,
		Status:             model.WithdrawalPending,
	}
	if err := r.store.Withdrawals().Insert(w); err != nil {
		log.Error("failed to persist withdrawal", zap.Error(err))
	}
}

// deposit issues the on-chain deposit for asset/amount and persists the
// resulting pending transaction.
func (r *Reconciler) deposit(ctx context.Context, asset string, amount decimal.Decimal, log *zap.Logger) {
	var tx *model.Transaction
	var err error

	if asset == "ETH" {
		tx, err = r.chain.DepositETH(ctx, amount)
	} else {
		tx, err = r.chain.DepositERC20(ctx, amount, asset)
	}
	if err != nil {
		log.Error("deposit failed", zap.Error(err))
		return
	}
	if err := r.store.Transactions().Insert(tx); err != nil {
		log.Error("failed to persist deposit transaction", zap.Error(err))
	}
}

// getExchangeForWithdraw scans venues in registration order and returns the
// first one whose balance can cover remaining plus its own withdrawal fee,
// using the last balance snapshot rather than a live call.
func (r *Reconciler) getExchangeForWithdraw(ctx context.Context, asset string, remaining decimal.Decimal) (exchangeName string, amount decimal.Decimal, ok bool) {
	snapshot := r.snapshotBalances()

	for _, name := range r.exchangeOrder {
		adapter, exists := r.adapters[name]
		if !exists || !adapter.HasWithdraw() {
			continue
		}
		balance, hasBalance := snapshot[name][asset]
		if !hasBalance || !balance.IsPositive() {
			continue
		}

		limit, err := adapter.GetWithdrawLimit(ctx, asset)
		if err != nil {
			r.log.Warn("failed to read withdraw limit", zap.Error(err), zap.String("exchange", name), zap.String("asset", asset))
			continue
		}

		amountWithFee := remaining.Add(limit.Fee)
		if amountWithFee.LessThan(limit.Min) {
			amountWithFee = limit.Min
		}
		if balance.LessThan(amountWithFee) {
			continue
		}

		return name, amountWithFee, true
	}

	return "", decimal.Zero, false
}
