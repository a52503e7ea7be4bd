package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/hub"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb1522d741beb41cdbd3d8a78f8e9e74d62aa0"

func newTestChain(t *testing.T) *chainclient.Client {
	t.Helper()
	signer, err := chainclient.NewSigner(testPrivateKeyHex)
	require.NoError(t, err)
	return chainclient.New(chainclient.Config{Signer: signer})
}

// hubServer is a minimal stand-in for the hub's websocket endpoint: it
// upgrades the connection and hands it to the test, which is the connection's
// only reader/writer from then on (gorilla/websocket permits one reader and
// one writer goroutine at a time, never two readers).
type hubServer struct {
	*httptest.Server
	conn chan *websocket.Conn
}

func newHubServer(t *testing.T) *hubServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	hs := &hubServer{conn: make(chan *websocket.Conn, 1)}

	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hs.conn <- conn
	}))
	t.Cleanup(hs.Close)
	return hs
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestSupervisor_StartPerformsConnectHandshake(t *testing.T) {
	server := newHubServer(t)

	sup := NewSupervisor(Config{
		URL:     wsURL(server.URL),
		Chain:   newTestChain(t),
		Name:    "test-broker",
		Version: "1.0.0",
		Log:     zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop()

	var conn *websocket.Conn
	select {
	case conn = <-server.conn:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the hub-side connection")
	}

	connectEnv := readEnvelope(t, conn)
	registerEnv := readEnvelope(t, conn)

	assert.Equal(t, "connect", connectEnv.Type)
	assert.Equal(t, "register", registerEnv.Type)

	var registerMsg hub.RegisterMessage
	require.NoError(t, json.Unmarshal(registerEnv.Payload, &registerMsg))
	assert.Equal(t, "test-broker", registerMsg.Name)
}

func TestSupervisor_OnConnectedFiresOnceOnFirstConnect(t *testing.T) {
	server := newHubServer(t)

	var fired int
	sup := NewSupervisor(Config{
		URL:         wsURL(server.URL),
		Chain:       newTestChain(t),
		Log:         zap.NewNop(),
		OnConnected: func(ctx context.Context) { fired++ },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop()

	assert.Equal(t, 1, fired)
}

func TestSupervisor_DispatchRoutesCreateSubOrderToHandlerAndRepliesToHub(t *testing.T) {
	server := newHubServer(t)

	var receivedID int64
	sup := NewSupervisor(Config{
		URL:   wsURL(server.URL),
		Chain: newTestChain(t),
		Log:   zap.NewNop(),
		Handlers: hub.Handlers{
			OnCreateSubOrder: func(ctx context.Context, req hub.CreateSubOrderRequest) (hub.SubOrderStatus, error) {
				receivedID = req.ID
				return hub.SubOrderStatus{ID: req.ID, Status: "ACCEPTED"}, nil
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Start(ctx))
	defer sup.Stop()

	conn := <-server.conn
	// Drain the connect/register handshake envelopes before pushing a
	// create_sub_order message down to the supervisor.
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	payload, err := json.Marshal(hub.CreateSubOrderRequest{ID: 42, Symbol: "BTC-ETH", Exchange: "binance"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Type: "create_sub_order", Payload: payload}))

	reply := readEnvelope(t, conn)
	assert.Equal(t, "sub_order_status", reply.Type)

	var status hub.SubOrderStatus
	require.NoError(t, json.Unmarshal(reply.Payload, &status))
	assert.Equal(t, int64(42), status.ID)
	assert.Equal(t, int64(42), receivedID)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}
