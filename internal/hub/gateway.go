package hub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Gateway is the outbound half of C4, consumed by the engine and the
// reconciler. Implementations are transport-agnostic; JSONHub below is the
// reference one.
type Gateway interface {
	Connect(ctx context.Context, msg ConnectMessage) error
	SendSubOrderStatus(ctx context.Context, status SubOrderStatus) error
	SendBalances(ctx context.Context, balances Balances) error
	Register(ctx context.Context, msg RegisterMessage) error

	// GetLastBalancesJson returns the last balances payload successfully
	// sent, used to suppress duplicate sends.
	GetLastBalancesJson() string
}

// Handlers are the inbound half of C4: callbacks the transport invokes on
// message receipt. They are exposed on the Broker (see internal/broker) so
// the Hub transport can hold a read-only reference to them without the Hub
// and the Broker needing to construct each other simultaneously.
type Handlers struct {
	OnCreateSubOrder         func(ctx context.Context, req CreateSubOrderRequest) (SubOrderStatus, error)
	OnCancelSubOrder         func(ctx context.Context, id int64) (*SubOrderStatus, error)
	OnCheckSubOrder          func(ctx context.Context, id int64) (SubOrderStatus, error)
	OnSubOrderStatusAccepted func(ctx context.Context, msg SubOrderStatusAccepted) error
	OnReconnect              func(ctx context.Context) error
}

// Sender delivers an already-encoded outbound message over whatever
// transport the caller chooses (websocket frame, HTTP POST, in-memory
// channel for tests).
type Sender func(ctx context.Context, messageType string, payload []byte) error

// JSONHub is a Gateway that JSON-encodes each outbound message and hands it
// to an injected Sender, keeping the wire framing decision (message
// envelope, transport) entirely outside this package.
type JSONHub struct {
	send Sender

	lastBalancesJSON string
}

// NewJSONHub builds a JSONHub over the given Sender.
func NewJSONHub(send Sender) *JSONHub {
	return &JSONHub{send: send}
}

func (h *JSONHub) Connect(ctx context.Context, msg ConnectMessage) error {
	return h.sendJSON(ctx, "connect", msg)
}

func (h *JSONHub) SendSubOrderStatus(ctx context.Context, status SubOrderStatus) error {
	return h.sendJSON(ctx, "sub_order_status", status)
}

func (h *JSONHub) SendBalances(ctx context.Context, balances Balances) error {
	payload, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("marshaling balances: %w", err)
	}
	if string(payload) == h.lastBalancesJSON {
		return nil
	}
	if err := h.send(ctx, "balances", payload); err != nil {
		return err
	}
	h.lastBalancesJSON = string(payload)
	return nil
}

func (h *JSONHub) Register(ctx context.Context, msg RegisterMessage) error {
	return h.sendJSON(ctx, "register", msg)
}

func (h *JSONHub) GetLastBalancesJson() string {
	return h.lastBalancesJSON
}

func (h *JSONHub) sendJSON(ctx context.Context, messageType string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", messageType, err)
	}
	return h.send(ctx, messageType, payload)
}

var _ Gateway = (*JSONHub)(nil)
