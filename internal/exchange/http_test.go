package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/transport"
)

func newTestHTTPAdapter(t *testing.T, mux *http.ServeMux) *HTTP {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := transport.NewClient([]string{server.URL}, 5*time.Second)
	require.NoError(t, err)
	return NewHTTP("venue", client)
}

func TestHTTP_SubmitSubOrderReturnsOrderID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "venue-1"})
	})
	h := newTestHTTPAdapter(t, mux)

	id, err := h.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "venue-1", id)
}

func TestHTTP_SubmitSubOrderVenueRejectionSurfacesAsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient balance"})
	})
	h := newTestHTTPAdapter(t, mux)

	_, err := h.SubmitSubOrder(context.Background(), 1, "BTC-ETH", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(10))
	assert.Error(t, err)
}

func TestHTTP_CancelSubOrderWithoutExchangeIDIsANoOp(t *testing.T) {
	h := newTestHTTPAdapter(t, http.NewServeMux())
	err := h.CancelSubOrder(context.Background(), &model.SubOrder{})
	assert.NoError(t, err)
}

func TestHTTP_GetBalancesSkipsUnparseableEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/balances", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"BTC": "1.5", "garbage": "not-a-number"})
	})
	h := newTestHTTPAdapter(t, mux)

	balances, err := h.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Equal(decimal.RequireFromString("1.5")))
	_, hasGarbage := balances["garbage"]
	assert.False(t, hasGarbage, "a malformed balance entry should be dropped, not propagate an error")
}

func TestHTTP_CheckSubOrders_OnlyFiresOnTerminalStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order/ex-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OPEN"})
	})
	h := newTestHTTPAdapter(t, mux)

	exchangeID := "ex-1"
	sub := &model.SubOrder{ExchangeOrderID: &exchangeID}

	var fires int
	require.NoError(t, h.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, func(trade *model.Trade) {
		fires++
	}))
	assert.Equal(t, 0, fires, "an open order must not invoke the trade callback")
}

func TestHTTP_CheckSubOrders_FiresOnFilled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order/ex-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(model.TradeFilled), "price": "10", "filled": "2"})
	})
	h := newTestHTTPAdapter(t, mux)

	exchangeID := "ex-1"
	sub := &model.SubOrder{ExchangeOrderID: &exchangeID}

	var trade *model.Trade
	require.NoError(t, h.CheckSubOrders(context.Background(), []*model.SubOrder{sub}, func(tr *model.Trade) {
		trade = tr
	}))

	require.NotNil(t, trade)
	assert.Equal(t, model.TradeFilled, trade.Status)
	assert.True(t, trade.Amount.Equal(decimal.NewFromInt(2)))
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(10)))
}

func TestHTTP_GetWithdrawLimitParsesMinAndFee(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/withdraw/limit/BTC", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"min": "0.001", "fee": "0.0005"})
	})
	h := newTestHTTPAdapter(t, mux)

	limit, err := h.GetWithdrawLimit(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, limit.Min.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, limit.Fee.Equal(decimal.RequireFromString("0.0005")))
}

func TestHTTP_Withdraw_ReturnsFalseOnMissingWithdrawID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/withdraw", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})
	h := newTestHTTPAdapter(t, mux)

	id, ok := h.Withdraw(context.Background(), "BTC", decimal.NewFromInt(1), "0xaddr")
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestHTTP_Withdraw_ReturnsIDOnSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/withdraw", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"withdrawId": "wd-1"})
	})
	h := newTestHTTPAdapter(t, mux)

	id, ok := h.Withdraw(context.Background(), "BTC", decimal.NewFromInt(1), "0xaddr")
	assert.True(t, ok)
	assert.Equal(t, "wd-1", id)
}

func TestHTTP_CheckWithdraws_DowngradesPrematureOKToPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/withdraw/wd-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "stillProcessing": true})
	})
	h := newTestHTTPAdapter(t, mux)

	results, err := h.CheckWithdraws(context.Background(), []*model.Withdrawal{{ExchangeWithdrawID: "wd-1"}})
	require.NoError(t, err)
	assert.Empty(t, results, "a venue-side still-processing flag must keep the withdrawal out of the terminal result set")
}

func TestHTTP_CheckWithdraws_ReturnsGenuineTerminalStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/withdraw/wd-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "stillProcessing": false})
	})
	h := newTestHTTPAdapter(t, mux)

	results, err := h.CheckWithdraws(context.Background(), []*model.Withdrawal{{ExchangeWithdrawID: "wd-1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.WithdrawalOK, results[0].Status)
}
