package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSender() (Sender, *[]string, *[][]byte) {
	var types []string
	var payloads [][]byte
	return func(ctx context.Context, messageType string, payload []byte) error {
		types = append(types, messageType)
		payloads = append(payloads, payload)
		return nil
	}, &types, &payloads
}

func TestJSONHub_SendBalancesSuppressesUnchangedPayload(t *testing.T) {
	send, types, payloads := recordingSender()
	h := NewJSONHub(send)

	balances := Balances{"binance": {"BTC": "1"}}
	require.NoError(t, h.SendBalances(context.Background(), balances))
	require.NoError(t, h.SendBalances(context.Background(), balances))

	assert.Len(t, *types, 1, "an unchanged balances payload must not be resent")
	assert.Len(t, *payloads, 1)
}

func TestJSONHub_SendBalancesResendsOnChange(t *testing.T) {
	send, types, _ := recordingSender()
	h := NewJSONHub(send)

	require.NoError(t, h.SendBalances(context.Background(), Balances{"binance": {"BTC": "1"}}))
	require.NoError(t, h.SendBalances(context.Background(), Balances{"binance": {"BTC": "2"}}))

	assert.Len(t, *types, 2)
}

func TestJSONHub_GetLastBalancesJsonTracksLatestSend(t *testing.T) {
	send, _, _ := recordingSender()
	h := NewJSONHub(send)

	assert.Empty(t, h.GetLastBalancesJson())

	require.NoError(t, h.SendBalances(context.Background(), Balances{"binance": {"BTC": "1"}}))
	assert.Contains(t, h.GetLastBalancesJson(), "BTC")
}

func TestJSONHub_ConnectAndRegisterEncodeEnvelope(t *testing.T) {
	send, types, _ := recordingSender()
	h := NewJSONHub(send)

	require.NoError(t, h.Connect(context.Background(), ConnectMessage{}))
	require.NoError(t, h.Register(context.Background(), RegisterMessage{}))

	require.Len(t, *types, 2)
	assert.Equal(t, "connect", (*types)[0])
	assert.Equal(t, "register", (*types)[1])
}

func TestJSONHub_SendSubOrderStatusPropagatesSenderError(t *testing.T) {
	boom := assert.AnError
	h := NewJSONHub(func(ctx context.Context, messageType string, payload []byte) error {
		return boom
	})

	err := h.SendSubOrderStatus(context.Background(), SubOrderStatus{})
	assert.ErrorIs(t, err, boom)
}
