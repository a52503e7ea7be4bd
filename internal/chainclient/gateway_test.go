package chainclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/broker/internal/transport"
)

func newTestGasFeedGateway(t *testing.T, fast float64) *Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"fast": fast})
	}))
	t.Cleanup(server.Close)

	gasFeed, err := transport.NewClient([]string{server.URL}, time.Second)
	require.NoError(t, err)
	return NewGateway(nil, gasFeed)
}

func TestFastGasGwei_RoundsUpFractionalResult(t *testing.T) {
	g := newTestGasFeedGateway(t, 105)

	gwei, err := g.FastGasGwei(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(11), gwei, "105/10 = 10.5, which must round up to 11, not truncate to 10")
}

func TestFastGasGwei_ExactMultipleOfTenIsUnchanged(t *testing.T) {
	g := newTestGasFeedGateway(t, 200)

	gwei, err := g.FastGasGwei(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(20), gwei)
}
