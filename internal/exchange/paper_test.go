package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/broker/internal/model"
)

func TestPaper_SubmitSubOrderIsIdempotentOnReplay(t *testing.T) {
	p := NewPaper("binance", nil)

	id1, err := p.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(10))
	require.NoError(t, err)
	id2, err := p.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestPaper_CheckSubOrdersFiresOnceThenStopsFiring(t *testing.T) {
	p := NewPaper("binance", nil)
	id, err := p.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(2), decimal.NewFromInt(10))
	require.NoError(t, err)

	sub := &model.SubOrder{ID: 1, ExchangeOrderID: &id}

	var fires int
	var lastTrade *model.Trade
	cb := func(trade *model.Trade) {
		fires++
		lastTrade = trade
	}

	require.NoError(t, p.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, cb))
	require.NoError(t, p.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, cb))

	assert.Equal(t, 1, fires, "CheckSubOrders must not fire twice for the same order")
	require.NotNil(t, lastTrade)
	assert.Equal(t, model.TradeFilled, lastTrade.Status)
	assert.True(t, lastTrade.Amount.Equal(decimal.NewFromInt(2)))
}

func TestPaper_CancelSubOrderBeforeFillReportsCanceled(t *testing.T) {
	p := NewPaper("binance", nil)
	id, err := p.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(2), decimal.NewFromInt(10))
	require.NoError(t, err)
	sub := &model.SubOrder{ID: 1, ExchangeOrderID: &id}

	require.NoError(t, p.CancelSubOrder(context.Background(), sub))

	var lastTrade *model.Trade
	require.NoError(t, p.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, func(trade *model.Trade) {
		lastTrade = trade
	}))

	require.NotNil(t, lastTrade)
	assert.Equal(t, model.TradeCanceled, lastTrade.Status)
	assert.True(t, lastTrade.Amount.IsZero())
}

func TestPaper_CancelAfterFillIsANoOp(t *testing.T) {
	p := NewPaper("binance", nil)
	id, err := p.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(2), decimal.NewFromInt(10))
	require.NoError(t, err)
	sub := &model.SubOrder{ID: 1, ExchangeOrderID: &id}

	require.NoError(t, p.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, func(trade *model.Trade) {}))
	require.NoError(t, p.CancelSubOrder(context.Background(), sub))

	var fires int
	require.NoError(t, p.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, func(trade *model.Trade) { fires++ }))
	assert.Equal(t, 0, fires)
}

func TestPaper_WithdrawInsufficientBalanceFails(t *testing.T) {
	p := NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(1)})

	_, ok := p.Withdraw(context.Background(), "BTC", decimal.NewFromInt(5), "0xaddr")
	assert.False(t, ok)
}

func TestPaper_WithdrawDeductsBalance(t *testing.T) {
	p := NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(5)})

	id, ok := p.Withdraw(context.Background(), "BTC", decimal.NewFromInt(2), "0xaddr")
	require.True(t, ok)
	assert.NotEmpty(t, id)

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Equal(decimal.NewFromInt(3)))
}

func TestPaper_CheckWithdrawsAlwaysResolvesOK(t *testing.T) {
	p := NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(5)})
	id, ok := p.Withdraw(context.Background(), "BTC", decimal.NewFromInt(1), "0xaddr")
	require.True(t, ok)

	results, err := p.CheckWithdraws(context.Background(), []*model.Withdrawal{{ExchangeWithdrawID: id, Currency: "BTC"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.WithdrawalOK, results[0].Status)
}

func TestPaper_NewPaperDoesNotAliasCallerBalances(t *testing.T) {
	seed := map[string]decimal.Decimal{"BTC": decimal.NewFromInt(5)}
	p := NewPaper("binance", seed)
	seed["BTC"] = decimal.NewFromInt(999)

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Equal(decimal.NewFromInt(5)))
}
