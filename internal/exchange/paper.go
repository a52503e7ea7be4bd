package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
)

// Paper is a deterministic, in-memory Adapter used in tests and dry-run
// deployments: every submitted order fills immediately at its requested
// price, and withdrawals settle on the next CheckWithdraws call. It never
// talks to the network.
type Paper struct {
	name string

	mu       sync.Mutex
	orders   map[string]*paperOrder
	balances map[string]decimal.Decimal
	nextID   atomic.Int64
}

type paperOrder struct {
	symbol string
	side   model.Side
	amount decimal.Decimal
	price  decimal.Decimal
	status model.TradeStatus
	cbFired bool
}

// NewPaper builds a Paper adapter seeded with the given starting balances.
func NewPaper(name string, balances map[string]decimal.Decimal) *Paper {
	seeded := make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		seeded[k] = v
	}
	return &Paper{name: name, orders: make(map[string]*paperOrder), balances: seeded}
}

func (p *Paper) Name() string { return p.name }

func (p *Paper) SubmitSubOrder(ctx context.Context, clientOrderID int64, symbol string, side model.Side, amount, price decimal.Decimal) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exchangeOrderID := fmt.Sprintf("paper-%d", clientOrderID)
	if _, exists := p.orders[exchangeOrderID]; exists {
		// Idempotent replay of the same clientOrderID: the placement
		// already happened, so return the same id rather than reject.
		return exchangeOrderID, nil
	}

	p.orders[exchangeOrderID] = &paperOrder{
		symbol: symbol,
		side:   side,
		amount: amount,
		price:  price,
		status: model.TradeFilled,
	}
	return exchangeOrderID, nil
}

func (p *Paper) CancelSubOrder(ctx context.Context, sub *model.SubOrder) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sub.ExchangeOrderID == nil {
		return nil
	}
	order, ok := p.orders[*sub.ExchangeOrderID]
	if !ok || order.cbFired {
		return nil
	}
	order.status = model.TradeCanceled
	return nil
}

func (p *Paper) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *Paper) CheckSubOrders(ctx context.Context, subs []*model.SubOrder, cb TradeCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range subs {
		if sub.ExchangeOrderID == nil {
			continue
		}
		order, ok := p.orders[*sub.ExchangeOrderID]
		if !ok || order.cbFired {
			continue
		}
		order.cbFired = true

		amount := order.amount
		if order.status == model.TradeCanceled {
			amount = decimal.Zero
		}
		cb(&model.Trade{
			Exchange:        p.name,
			ExchangeOrderID: *sub.ExchangeOrderID,
			Price:           order.price,
			Amount:          amount,
			Status:          order.status,
		})
	}
	return nil
}

func (p *Paper) HasWithdraw() bool { return true }

func (p *Paper) GetWithdrawLimit(ctx context.Context, currency string) (WithdrawLimit, error) {
	return WithdrawLimit{Min: decimal.NewFromInt(0), Fee: decimal.Zero}, nil
}

func (p *Paper) Withdraw(ctx context.Context, currency string, amount decimal.Decimal, address string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance, ok := p.balances[currency]
	if !ok || balance.LessThan(amount) {
		return "", false
	}
	p.balances[currency] = balance.Sub(amount)

	id := p.nextID.Add(1)
	return fmt.Sprintf("paper-wd-%d", id), true
}

func (p *Paper) CheckWithdraws(ctx context.Context, withdrawals []*model.Withdrawal) ([]WithdrawCheck, error) {
	results := make([]WithdrawCheck, 0, len(withdrawals))
	for _, w := range withdrawals {
		results = append(results, WithdrawCheck{ExchangeWithdrawID: w.ExchangeWithdrawID, Status: model.WithdrawalOK})
	}
	return results, nil
}

var _ Adapter = (*Paper)(nil)
