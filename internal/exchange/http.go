package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/transport"
)

// HTTP is a generic REST-backed Adapter skeleton: it assumes a venue
// exposes submit/cancel/balances/check endpoints shaped like the ones
// below, and relies on transport.Client's failover across mirrored API
// hosts. A venue whose API diverges from this shape gets its own adapter;
// most don't.
type HTTP struct {
	name   string
	client *transport.Client
}

// NewHTTP builds an HTTP adapter named name talking to the REST client.
func NewHTTP(name string, client *transport.Client) *HTTP {
	return &HTTP{name: name, client: client}
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) SubmitSubOrder(ctx context.Context, clientOrderID int64, symbol string, side model.Side, amount, price decimal.Decimal) (string, error) {
	reqBody, err := json.Marshal(struct {
		ClientOrderID int64  `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Amount        string `json:"amount"`
		Price         string `json:"price"`
	}{clientOrderID, symbol, string(side), amount.String(), price.String()})
	if err != nil {
		return "", fmt.Errorf("marshaling submit request: %w", err)
	}

	body, err := h.client.PostJSON(ctx, "/order", reqBody)
	if err != nil {
		return "", NewVenueIOError(err)
	}

	var resp struct {
		OrderID string `json:"orderId"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", NewVenueIOError(err)
	}
	if resp.Error != "" {
		return "", NewSubmitRejected(resp.Error)
	}
	return resp.OrderID, nil
}

func (h *HTTP) CancelSubOrder(ctx context.Context, sub *model.SubOrder) error {
	if sub.ExchangeOrderID == nil {
		return nil
	}
	_, err := h.client.PostJSON(ctx, "/order/"+*sub.ExchangeOrderID+"/cancel", nil)
	return err // advisory only; caller ignores the error
}

func (h *HTTP) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := h.client.Get(ctx, "/balances")
	if err != nil {
		return nil, NewVenueIOError(err)
	}

	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewVenueIOError(err)
	}

	balances := make(map[string]decimal.Decimal, len(resp))
	for currency, amount := range resp {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			continue
		}
		balances[currency] = d
	}
	return balances, nil
}

func (h *HTTP) CheckSubOrders(ctx context.Context, subs []*model.SubOrder, cb TradeCallback) error {
	for _, sub := range subs {
		if sub.ExchangeOrderID == nil {
			continue
		}
		body, err := h.client.Get(ctx, "/order/"+*sub.ExchangeOrderID)
		if err != nil {
			continue // request failed: skipped here, polled again next tick
		}

		var resp struct {
			Status string `json:"status"`
			Price  string `json:"price"`
			Filled string `json:"filled"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			continue
		}

		status := model.TradeStatus(resp.Status)
		if status != model.TradeFilled && status != model.TradeCanceled {
			continue
		}

		filled := resp.Filled
		if filled == "" {
			filled = "0"
		}
		amount, err := decimal.NewFromString(filled)
		if err != nil {
			amount = decimal.Zero
		}
		price, _ := decimal.NewFromString(resp.Price)

		cb(&model.Trade{
			Exchange:        h.name,
			ExchangeOrderID: *sub.ExchangeOrderID,
			Price:           price,
			Amount:          amount,
			Status:          status,
		})
	}
	return nil
}

func (h *HTTP) HasWithdraw() bool { return true }

func (h *HTTP) GetWithdrawLimit(ctx context.Context, currency string) (WithdrawLimit, error) {
	body, err := h.client.Get(ctx, "/withdraw/limit/"+currency)
	if err != nil {
		return WithdrawLimit{}, NewVenueIOError(err)
	}

	var resp struct {
		Min string `json:"min"`
		Fee string `json:"fee"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return WithdrawLimit{}, NewVenueIOError(err)
	}

	min, _ := decimal.NewFromString(resp.Min)
	fee, _ := decimal.NewFromString(resp.Fee)
	return WithdrawLimit{Min: min, Fee: fee}, nil
}

func (h *HTTP) Withdraw(ctx context.Context, currency string, amount decimal.Decimal, address string) (string, bool) {
	reqBody, err := json.Marshal(struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
		Address  string `json:"address"`
	}{currency, amount.String(), address})
	if err != nil {
		return "", false
	}

	body, err := h.client.PostJSON(ctx, "/withdraw", reqBody)
	if err != nil {
		return "", false
	}

	var resp struct {
		WithdrawID string `json:"withdrawId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.WithdrawID == "" {
		return "", false
	}
	return resp.WithdrawID, true
}

func (h *HTTP) CheckWithdraws(ctx context.Context, withdrawals []*model.Withdrawal) ([]WithdrawCheck, error) {
	results := make([]WithdrawCheck, 0, len(withdrawals))
	for _, w := range withdrawals {
		body, err := h.client.Get(ctx, "/withdraw/"+w.ExchangeWithdrawID)
		if err != nil {
			continue
		}

		var resp struct {
			Status   string `json:"status"`
			Pending  bool   `json:"stillProcessing"` // some venues report "ok" prematurely
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			continue
		}

		status := model.WithdrawalStatus(resp.Status)
		if status == model.WithdrawalOK && resp.Pending {
			status = model.WithdrawalPending
		}
		if status == model.WithdrawalPending {
			continue
		}
		results = append(results, WithdrawCheck{ExchangeWithdrawID: w.ExchangeWithdrawID, Status: status})
	}
	return results, nil
}

var _ Adapter = (*HTTP)(nil)
