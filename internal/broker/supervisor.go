// Package broker implements the Broker Supervisor (C7): the websocket
// connection to the hub, its reconnect-with-backoff behavior, and the
// message-envelope dispatch into the Sub-order Engine's handlers. It is the
// only component that knows the wire framing; everything downstream talks
// in terms of internal/hub's transport-agnostic types.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/hub"
)

// envelope is the wire framing around every message exchanged with the hub:
// a type tag plus its JSON-encoded payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Config wires a Supervisor to its collaborators.
type Config struct {
	URL      string
	Chain    *chainclient.Client
	Handlers hub.Handlers
	Name     string
	Version  string
	Log      *zap.Logger

	// OnConnected is invoked once, the first time the supervisor
	// establishes a session (not on subsequent reconnects). Typically
	// starts the reconciler's loops.
	OnConnected func(ctx context.Context)
}

// Supervisor is C7.
type Supervisor struct {
	url      string
	chain    *chainclient.Client
	handlers hub.Handlers
	name     string
	version  string
	log      *zap.Logger

	hub *hub.JSONHub

	conn   *websocket.Conn
	connMu sync.RWMutex

	closeChan    chan struct{}
	closed       atomic.Bool
	reconnecting atomic.Bool
	started      atomic.Bool

	onConnected func(ctx context.Context)

	reconnectBackoff     time.Duration
	maxReconnectInterval time.Duration
}

// NewSupervisor builds a Supervisor from cfg.
func NewSupervisor(cfg Config) *Supervisor {
	s := &Supervisor{
		url:                  cfg.URL,
		chain:                cfg.Chain,
		handlers:             cfg.Handlers,
		name:                 cfg.Name,
		version:              cfg.Version,
		log:                  cfg.Log.With(zap.String("component", "broker")),
		closeChan:            make(chan struct{}),
		onConnected:          cfg.OnConnected,
		reconnectBackoff:     time.Second,
		maxReconnectInterval: 60 * time.Second,
	}
	s.hub = hub.NewJSONHub(s.send)
	return s
}

// Hub returns the Gateway the engine and reconciler should use to talk to
// the hub. It remains valid across reconnects.
func (s *Supervisor) Hub() hub.Gateway {
	return s.hub
}

// Start dials the hub, performs the connect handshake, and begins the read
// loop. It makes a single connection attempt and returns an error if that
// attempt fails.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("initial connect to hub failed: %w", err)
	}
	go s.readLoop(ctx)
	return nil
}

// Stop closes the connection and stops all reconnect attempts.
func (s *Supervisor) Stop() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.closeChan)

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Supervisor) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if err := s.connectToOrion(ctx); err != nil {
		return fmt.Errorf("hub handshake failed: %w", err)
	}

	if !s.started.Swap(true) {
		if s.onConnected != nil {
			s.onConnected(ctx)
		}
	} else if s.handlers.OnReconnect != nil {
		if err := s.handlers.OnReconnect(ctx); err != nil {
			s.log.Warn("OnReconnect handler failed", zap.Error(err))
		}
	}

	return nil
}

// connectToOrion performs the identity handshake: a personal-message
// signature of the current Unix time proves control of the broker's
// address, followed by operator metadata registration.
func (s *Supervisor) connectToOrion(ctx context.Context) error {
	now := time.Now().Unix()
	sig, err := s.chain.Sign(strconv.FormatInt(now, 10))
	if err != nil {
		return fmt.Errorf("signing connect challenge: %w", err)
	}

	if err := s.hub.Connect(ctx, hub.ConnectMessage{
		Address:   s.chain.Address().Hex(),
		Time:      now,
		Signature: sig,
	}); err != nil {
		return fmt.Errorf("sending connect message: %w", err)
	}

	return s.hub.Register(ctx, hub.RegisterMessage{
		Name:    s.name,
		Version: s.version,
		Address: s.chain.Address().Hex(),
	})
}

// send implements hub.Sender over the current websocket connection.
func (s *Supervisor) send(ctx context.Context, messageType string, payload []byte) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("broker: not connected to hub")
	}
	return conn.WriteJSON(envelope{Type: messageType, Payload: payload})
}

// readLoop continuously reads messages from the hub and dispatches them to
// the Sub-order Engine's handlers, sending back whatever reply each handler
// produces. A read error triggers reconnection.
func (s *Supervisor) readLoop(ctx context.Context) {
	for {
		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if s.closed.Load() {
				return
			}
			s.log.Warn("hub connection lost, reconnecting", zap.Error(err))
			go s.reconnect(ctx)
			return
		}

		s.dispatch(ctx, env)
	}
}

func (s *Supervisor) dispatch(ctx context.Context, env envelope) {
	switch env.Type {
	case "create_sub_order":
		var req hub.CreateSubOrderRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.log.Error("malformed create_sub_order", zap.Error(err))
			return
		}
		status, err := s.handlers.OnCreateSubOrder(ctx, req)
		if err != nil {
			s.log.Error("OnCreateSubOrder failed", zap.Error(err), zap.Int64("sub_order_id", req.ID))
			return
		}
		if err := s.hub.SendSubOrderStatus(ctx, status); err != nil {
			s.log.Warn("failed to send sub_order_status", zap.Error(err), zap.Int64("sub_order_id", req.ID))
		}

	case "cancel_sub_order":
		var msg struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.log.Error("malformed cancel_sub_order", zap.Error(err))
			return
		}
		status, err := s.handlers.OnCancelSubOrder(ctx, msg.ID)
		if err != nil {
			s.log.Error("OnCancelSubOrder failed", zap.Error(err), zap.Int64("sub_order_id", msg.ID))
			return
		}
		if status != nil {
			if err := s.hub.SendSubOrderStatus(ctx, *status); err != nil {
				s.log.Warn("failed to send sub_order_status", zap.Error(err), zap.Int64("sub_order_id", msg.ID))
			}
		}

	case "check_sub_order":
		var msg struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.log.Error("malformed check_sub_order", zap.Error(err))
			return
		}
		status, err := s.handlers.OnCheckSubOrder(ctx, msg.ID)
		if err != nil {
			s.log.Error("OnCheckSubOrder failed", zap.Error(err), zap.Int64("sub_order_id", msg.ID))
			return
		}
		if err := s.hub.SendSubOrderStatus(ctx, status); err != nil {
			s.log.Warn("failed to send sub_order_status", zap.Error(err), zap.Int64("sub_order_id", msg.ID))
		}

	case "sub_order_status_accepted":
		var msg hub.SubOrderStatusAccepted
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.log.Error("malformed sub_order_status_accepted", zap.Error(err))
			return
		}
		if err := s.handlers.OnSubOrderStatusAccepted(ctx, msg); err != nil {
			s.log.Error("OnSubOrderStatusAccepted failed", zap.Error(err), zap.Int64("sub_order_id", msg.ID))
		}

	default:
		s.log.Debug("ignoring unknown message type", zap.String("type", env.Type))
	}
}

// reconnect retries connect with exponential backoff, capped at
// maxReconnectInterval, until it succeeds or the supervisor is stopped.
func (s *Supervisor) reconnect(ctx context.Context) {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer s.reconnecting.Store(false)

	backoff := s.reconnectBackoff

	for {
		select {
		case <-s.closeChan:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			if err := s.connect(ctx); err != nil {
				s.log.Warn("reconnect attempt failed", zap.Error(err), zap.Duration("backoff", backoff))
				backoff *= 2
				if backoff > s.maxReconnectInterval {
					backoff = s.maxReconnectInterval
				}
				continue
			}
			s.log.Info("reconnected to hub")
			go s.readLoop(ctx)
			return
		}
	}
}
