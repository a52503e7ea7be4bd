package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/hub"
	"github.com/yourusername/broker/internal/model"
)

// tickBalances polls every adapter for balances, replaces the in-memory
// snapshot atomically (copy-on-write), and forwards the result to the hub;
// JSONHub itself suppresses the send when the payload is unchanged.
func (r *Reconciler) tickBalances(ctx context.Context) error {
	next := make(map[string]map[string]decimal.Decimal, len(r.exchangeOrder))
	for _, name := range r.exchangeOrder {
		adapter, ok := r.adapters[name]
		if !ok {
			continue
		}
		balances, err := adapter.GetBalances(ctx)
		if err != nil {
			r.log.Warn("failed to poll balances", zap.Error(err), zap.String("exchange", name))
			continue
		}
		next[name] = balances
	}
	r.balances.Store(&next)

	payload := make(hub.Balances, len(next))
	for exchangeName, currencies := range next {
		row := make(map[string]string, len(currencies))
		for currency, amount := range currencies {
			row[currency] = amount.String()
		}
		payload[exchangeName] = row
	}
	return r.hub.SendBalances(ctx, payload)
}

// tickSubOrders resends unacknowledged terminal statuses and polls open
// sub-orders for venue-terminal fills/cancellations.
func (r *Reconciler) tickSubOrders(ctx context.Context) error {
	toResend, err := r.store.SubOrders().GetToResend()
	if err != nil {
		return fmt.Errorf("loading sub-orders to resend: %w", err)
	}
	for _, sub := range toResend {
		status, err := r.engine.OnCheckSubOrder(ctx, sub.ID)
		if err != nil {
			r.log.Warn("resend: check failed", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
			continue
		}
		if err := r.hub.SendSubOrderStatus(ctx, status); err != nil {
			r.log.Warn("resend: send failed", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
		}
	}

	toCheck, err := r.store.SubOrders().GetToCheck()
	if err != nil {
		return fmt.Errorf("loading sub-orders to check: %w", err)
	}
	byExchange := make(map[string][]*model.SubOrder)
	for _, sub := range toCheck {
		byExchange[sub.Exchange] = append(byExchange[sub.Exchange], sub)
	}

	for exchangeName, subs := range byExchange {
		adapter, ok := r.adapters[exchangeName]
		if !ok {
			continue
		}
		err := adapter.CheckSubOrders(ctx, subs, func(trade *model.Trade) {
			r.engine.OnTrade(ctx, trade)
		})
		if err != nil {
			r.log.Warn("checkSubOrders failed", zap.Error(err), zap.String("exchange", exchangeName))
		}
	}
	return nil
}

// tickWithdrawals polls each venue for the status of its pending
// withdrawals and persists the terminal ones.
func (r *Reconciler) tickWithdrawals(ctx context.Context) error {
	toCheck, err := r.store.Withdrawals().GetToCheck()
	if err != nil {
		return fmt.Errorf("loading withdrawals to check: %w", err)
	}

	byExchange := make(map[string][]*model.Withdrawal)
	for _, w := range toCheck {
		byExchange[w.Exchange] = append(byExchange[w.Exchange], w)
	}

	for exchangeName, withdrawals := range byExchange {
		adapter, ok := r.adapters[exchangeName]
		if !ok {
			continue
		}
		results, err := adapter.CheckWithdraws(ctx, withdrawals)
		if err != nil {
			r.log.Warn("checkWithdraws failed", zap.Error(err), zap.String("exchange", exchangeName))
			continue
		}
		for _, result := range results {
			if err := r.store.Withdrawals().UpdateStatus(result.ExchangeWithdrawID, result.Status); err != nil {
				r.log.Warn("failed to persist withdrawal status", zap.Error(err), zap.String("withdraw_id", result.ExchangeWithdrawID))
			}
		}
	}
	return nil
}

// transactionStaleAfter is how long a transaction may report NONE before
// the reconciler promotes it to FAIL.
const transactionStaleAfter = 10 * 60 * 1000 // ms

// tickTransactions polls the chain for every pending transaction's status,
// promoting a stale NONE to FAIL, and persists only terminal outcomes.
func (r *Reconciler) tickTransactions(ctx context.Context) error {
	pending, err := r.store.Transactions().GetPending()
	if err != nil {
		return fmt.Errorf("loading pending transactions: %w", err)
	}

	for _, tx := range pending {
		status, found, err := r.chain.GetTransactionStatus(ctx, tx.TransactionHash)
		if err != nil {
			r.log.Warn("getTransactionStatus failed", zap.Error(err), zap.String("tx_hash", tx.TransactionHash))
			continue
		}

		if !found {
			age := time.Now().UnixMilli() - tx.CreateTime
			if age <= transactionStaleAfter {
				continue
			}
			status = model.TxFail
		} else if !status.IsTerminal() {
			continue
		}

		if err := r.store.Transactions().UpdateStatus(tx.TransactionHash, status); err != nil {
			r.log.Warn("failed to persist transaction status", zap.Error(err), zap.String("tx_hash", tx.TransactionHash))
		}
	}
	return nil
}

// tickLiabilities reads outstanding on-chain liabilities and schedules
// discharge for each.
func (r *Reconciler) tickLiabilities(ctx context.Context) error {
	liabilities, err := r.chain.GetLiabilities(ctx)
	if err != nil {
		return fmt.Errorf("loading liabilities: %w", err)
	}
	for _, l := range liabilities {
		r.manageLiability(ctx, l)
	}
	return nil
}
