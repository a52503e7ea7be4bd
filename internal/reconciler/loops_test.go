package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/engine"
	"github.com/yourusername/broker/internal/exchange"
	"github.com/yourusername/broker/internal/hub"
	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/store"
)

type fakeHub struct {
	balances     []hub.Balances
	subOrderSent []hub.SubOrderStatus
}

func (f *fakeHub) Connect(ctx context.Context, msg hub.ConnectMessage) error   { return nil }
func (f *fakeHub) Register(ctx context.Context, msg hub.RegisterMessage) error { return nil }
func (f *fakeHub) GetLastBalancesJson() string                                { return "" }
func (f *fakeHub) SendBalances(ctx context.Context, balances hub.Balances) error {
	f.balances = append(f.balances, balances)
	return nil
}
func (f *fakeHub) SendSubOrderStatus(ctx context.Context, status hub.SubOrderStatus) error {
	f.subOrderSent = append(f.subOrderSent, status)
	return nil
}

func TestTickBalances_PublishesSnapshotAndForwardsToHub(t *testing.T) {
	adapter := exchange.NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(3)})
	fh := &fakeHub{}
	r := New(Config{
		Store:         store.NewMemory(),
		Adapters:      map[string]exchange.Adapter{"binance": adapter},
		ExchangeOrder: []string{"binance"},
		Hub:           fh,
		Log:           zap.NewNop(),
	})

	require.NoError(t, r.tickBalances(context.Background()))

	snapshot := r.snapshotBalances()
	require.Contains(t, snapshot, "binance")
	assert.True(t, snapshot["binance"]["BTC"].Equal(decimal.NewFromInt(3)))

	require.Len(t, fh.balances, 1)
	assert.Equal(t, "3", fh.balances[0]["binance"]["BTC"])
}

func TestTickSubOrders_ResendsUnacknowledgedTerminal(t *testing.T) {
	st := store.NewMemory()
	adapter := exchange.NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(10)})
	fh := &fakeHub{}
	eng := engine.New(st, map[string]exchange.Adapter{"binance": adapter}, nil, fh, nil, nil, zap.NewNop())

	exchangeOrderID := "paper-1"
	require.NoError(t, st.SubOrders().Insert(&model.SubOrder{
		ID: 1, Symbol: "BTC-ETH", Side: model.SideBuy, Price: decimal.NewFromInt(1),
		Amount: decimal.NewFromInt(1), Exchange: "binance", Status: model.StatusCanceled,
		FilledAmount: decimal.Zero, ExchangeOrderID: &exchangeOrderID, SentToAggregator: false,
	}))

	r := New(Config{
		Store:         st,
		Adapters:      map[string]exchange.Adapter{"binance": adapter},
		ExchangeOrder: []string{"binance"},
		Hub:           fh,
		Engine:        eng,
		Log:           zap.NewNop(),
	})

	require.NoError(t, r.tickSubOrders(context.Background()))

	require.NotEmpty(t, fh.subOrderSent)
	sub, err := st.SubOrders().GetByID(1)
	require.NoError(t, err)
	assert.False(t, sub.SentToAggregator, "resending alone does not mark the status acknowledged; only the hub's acknowledgement does")
}

func TestTickSubOrders_PollsOpenOrdersAndFeedsTrades(t *testing.T) {
	st := store.NewMemory()
	adapter := exchange.NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(10)})
	fh := &fakeHub{}
	eng := engine.New(st, map[string]exchange.Adapter{"binance": adapter}, newGatewayStub(t, &gatewayStub{}), fh, nil, nil, zap.NewNop())

	ctx := context.Background()
	status, err := eng.OnCreateSubOrder(ctx, hub.CreateSubOrderRequest{
		ID: 2, Symbol: "BTC-ETH", Side: model.SideBuy, Price: "1", Amount: "1", Exchange: "binance",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusAccepted, status.Status)

	r := New(Config{
		Store:         st,
		Adapters:      map[string]exchange.Adapter{"binance": adapter},
		ExchangeOrder: []string{"binance"},
		Hub:           fh,
		Engine:        eng,
		Log:           zap.NewNop(),
	})

	require.NoError(t, r.tickSubOrders(ctx))

	sub, err := st.SubOrders().GetByID(2)
	require.NoError(t, err)
	assert.Equal(t, model.SubOrderStatus(model.TradeFilled), sub.Status)
}

func TestTickWithdrawals_PersistsTerminalResults(t *testing.T) {
	st := store.NewMemory()
	adapter := exchange.NewPaper("binance", map[string]decimal.Decimal{"BTC": decimal.NewFromInt(10)})
	require.NoError(t, st.Withdrawals().Insert(&model.Withdrawal{
		ExchangeWithdrawID: "wd-1", Exchange: "binance", Currency: "BTC",
		Amount: decimal.NewFromInt(1), Status: model.WithdrawalPending,
	}))

	r := New(Config{
		Store:         st,
		Adapters:      map[string]exchange.Adapter{"binance": adapter},
		ExchangeOrder: []string{"binance"},
		Log:           zap.NewNop(),
	})

	require.NoError(t, r.tickWithdrawals(context.Background()))

	withdrawals, err := st.Withdrawals().GetToCheck()
	require.NoError(t, err)
	assert.Empty(t, withdrawals, "paper adapter always resolves to OK, so nothing should remain pending")
}

func TestTickTransactions_PromotesStaleNoneToFail(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Transactions().Insert(&model.Transaction{
		TransactionHash: "0xstale",
		Method:          model.MethodDepositETH,
		Asset:           "ETH",
		Amount:          decimal.NewFromInt(1),
		CreateTime:      time.Now().Add(-time.Hour).UnixMilli(),
		Status:          model.TxPending,
	}))

	stub := &gatewayStub{} // getTransactionStatus returns NONE for any hash by default
	r := New(Config{
		Store: st,
		Chain: newGatewayStub(t, stub),
		Log:   zap.NewNop(),
	})

	require.NoError(t, r.tickTransactions(context.Background()))

	pending, err := st.Transactions().GetPending()
	require.NoError(t, err)
	assert.Empty(t, pending, "a transaction stale beyond transactionStaleAfter should be promoted out of pending")
}
