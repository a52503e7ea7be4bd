// Package engine implements the Sub-order Engine (C5): the state machine
// that takes a sub-order from hub dispatch through exchange placement,
// fill/cancellation, trade signing, and acknowledgement. Every exported
// handler is serialized per sub-order id via idLocks so the status machine
// stays race-free while distinct ids proceed concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/audit"
	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/exchange"
	"github.com/yourusername/broker/internal/hub"
	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/ratelimit"
	"github.com/yourusername/broker/internal/store"
)

// ErrNotFound is returned by OnCancelSubOrder for an unknown id.
var ErrNotFound = errors.New("sub-order not found")

// Engine wires the Store, the per-venue Adapters, and the Chain Client into
// the five C5 handlers.
type Engine struct {
	store    store.Store
	adapters map[string]exchange.Adapter
	chain    *chainclient.Client
	hub      hub.Gateway
	log      *zap.Logger
	limiter  *ratelimit.Limiter
	audit    *audit.Logger

	locks *idLocks
}

// New builds an Engine. adapters is keyed by venue name (SubOrder.Exchange).
// limiter and auditLog may be nil: a nil limiter never throttles, a nil
// auditLog simply skips the audit trail.
func New(st store.Store, adapters map[string]exchange.Adapter, chain *chainclient.Client, hubGateway hub.Gateway, limiter *ratelimit.Limiter, auditLog *audit.Logger, log *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		adapters: adapters,
		chain:    chain,
		hub:      hubGateway,
		log:      log.With(zap.String("component", "engine")),
		limiter:  limiter,
		audit:    auditLog,
		locks:    newIDLocks(),
	}
}

// logEvent records a lifecycle event to the audit trail, if one is
// configured. Failures are logged but never surfaced to the caller: the
// audit trail is best-effort and must not block the state machine.
func (e *Engine) logEvent(id int64, event string, status model.SubOrderStatus, detail string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(audit.Entry{SubOrderID: id, Event: event, Status: status, Detail: detail}); err != nil {
		e.log.Warn("failed to write audit entry", zap.Error(err), zap.Int64("sub_order_id", id))
	}
}

// SetHub rebinds the Gateway the engine pushes sub-order statuses to. It
// exists because the broker supervisor's Gateway is only available once the
// supervisor itself has been built, after the Engine that the supervisor's
// handlers reference.
func (e *Engine) SetHub(hubGateway hub.Gateway) {
	e.hub = hubGateway
}

func (e *Engine) adapterFor(exchangeName string) (exchange.Adapter, error) {
	a, ok := e.adapters[exchangeName]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for exchange %q", exchangeName)
	}
	return a, nil
}

// OnCreateSubOrder handles create_sub_order. A replayed request for an
// existing id is idempotent: the adapter is never invoked twice for the
// same id.
func (e *Engine) OnCreateSubOrder(ctx context.Context, req hub.CreateSubOrderRequest) (hub.SubOrderStatus, error) {
	var result hub.SubOrderStatus
	var resultErr error

	e.locks.withLock(req.ID, func() {
		existing, err := e.store.SubOrders().GetByID(req.ID)
		if err != nil {
			resultErr = err
			return
		}
		if existing != nil {
			result, resultErr = e.checkSubOrderLocked(ctx, req.ID)
			return
		}

		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			resultErr = fmt.Errorf("invalid price %q: %w", req.Price, err)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			resultErr = fmt.Errorf("invalid amount %q: %w", req.Amount, err)
			return
		}

		sub := &model.SubOrder{
			ID:           req.ID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Price:        price,
			Amount:       amount,
			Exchange:     req.Exchange,
			Timestamp:    time.Now().UnixMilli(),
			Status:       model.StatusPrepare,
			FilledAmount: decimal.Zero,
		}
		if err := e.store.SubOrders().Insert(sub); err != nil {
			resultErr = err
			return
		}
		e.logEvent(sub.ID, "CREATED", sub.Status, "")

		adapter, err := e.adapterFor(req.Exchange)
		if err != nil {
			sub.Status = model.StatusRejected
			_ = e.store.SubOrders().Update(sub)
			e.log.Error("no adapter for exchange, rejecting", zap.Error(err), zap.Int64("sub_order_id", req.ID))
			e.logEvent(sub.ID, "REJECTED", sub.Status, err.Error())
			result, resultErr = e.checkSubOrderLocked(ctx, req.ID)
			return
		}

		if e.limiter != nil && !e.limiter.Allow(req.Exchange) {
			sub.Status = model.StatusRejected
			_ = e.store.SubOrders().Update(sub)
			e.log.Warn("venue rate-limited, rejecting", zap.String("exchange", req.Exchange), zap.Int64("sub_order_id", req.ID))
			e.logEvent(sub.ID, "REJECTED", sub.Status, "venue rate limit exceeded")
			result, resultErr = e.checkSubOrderLocked(ctx, req.ID)
			return
		}

		exchangeOrderID, err := adapter.SubmitSubOrder(ctx, sub.ID, sub.Symbol, sub.Side, sub.Amount, sub.Price)
		if err != nil {
			sub.Status = model.StatusRejected
			e.log.Warn("venue rejected submit", zap.Error(err), zap.Int64("sub_order_id", req.ID))
			e.logEvent(sub.ID, "REJECTED", sub.Status, err.Error())
		} else {
			sub.ExchangeOrderID = &exchangeOrderID
			sub.Status = model.StatusAccepted
			e.logEvent(sub.ID, "ACCEPTED", sub.Status, exchangeOrderID)
		}

		if err := e.store.SubOrders().Update(sub); err != nil {
			resultErr = err
			return
		}

		result, resultErr = e.checkSubOrderLocked(ctx, req.ID)
	})

	return result, resultErr
}

// OnCancelSubOrder handles cancel_sub_order. Returns (nil, nil) when
// cancellation produces no immediate status (PREPARE, or ACCEPTED pending
// the venue's authoritative response via checkSubOrders).
func (e *Engine) OnCancelSubOrder(ctx context.Context, id int64) (*hub.SubOrderStatus, error) {
	var result *hub.SubOrderStatus
	var resultErr error

	e.locks.withLock(id, func() {
		sub, err := e.store.SubOrders().GetByID(id)
		if err != nil {
			resultErr = err
			return
		}
		if sub == nil {
			resultErr = ErrNotFound
			return
		}

		switch sub.Status {
		case model.StatusPrepare:
			// Cancellation in PREPARE is unsupported: the placement
			// in-flight cannot be revoked.
			return
		case model.StatusAccepted:
			adapter, err := e.adapterFor(sub.Exchange)
			if err != nil {
				resultErr = err
				return
			}
			if err := adapter.CancelSubOrder(ctx, sub); err != nil {
				e.log.Warn("cancel request failed, advisory only", zap.Error(err), zap.Int64("sub_order_id", id))
			}
			return
		default:
			status, err := e.checkSubOrderLocked(ctx, id)
			if err != nil {
				resultErr = err
				return
			}
			result = &status
		}
	})

	return result, resultErr
}

// OnCheckSubOrder handles check_sub_order.
func (e *Engine) OnCheckSubOrder(ctx context.Context, id int64) (hub.SubOrderStatus, error) {
	var result hub.SubOrderStatus
	var resultErr error

	e.locks.withLock(id, func() {
		result, resultErr = e.checkSubOrderLocked(ctx, id)
	})
	return result, resultErr
}

// checkSubOrderLocked assumes the caller already holds the id's lock.
func (e *Engine) checkSubOrderLocked(ctx context.Context, id int64) (hub.SubOrderStatus, error) {
	sub, err := e.store.SubOrders().GetByID(id)
	if err != nil {
		return hub.SubOrderStatus{}, err
	}
	if sub == nil {
		// The hub may be polling an id this broker has not persisted yet,
		// e.g. after a restart.
		return hub.SubOrderStatus{ID: id, Status: "", FilledAmount: "0"}, nil
	}

	reported := sub.Status
	if reported == model.StatusPrepare {
		// The PREPARE sliver is private; the hub only ever sees ACCEPTED
		// or later.
		reported = model.StatusAccepted
	}

	status := hub.SubOrderStatus{
		ID:           id,
		Status:       reported,
		FilledAmount: sub.FilledAmount.String(),
	}

	if sub.ExchangeOrderID != nil {
		trade, err := e.store.Trades().GetBySubOrder(sub.Exchange, *sub.ExchangeOrderID)
		if err != nil {
			return hub.SubOrderStatus{}, err
		}
		if trade != nil {
			order, err := e.chain.SignTrade(sub, trade)
			if err != nil {
				return hub.SubOrderStatus{}, fmt.Errorf("signing trade for sub-order %d: %w", id, err)
			}
			status.BlockchainOrder = order
		}
	}

	return status, nil
}

// OnSubOrderStatusAccepted resolves whether the hub has durably accepted
// the last reported status.
func (e *Engine) OnSubOrderStatusAccepted(ctx context.Context, msg hub.SubOrderStatusAccepted) error {
	var resultErr error

	e.locks.withLock(msg.ID, func() {
		sub, err := e.store.SubOrders().GetByID(msg.ID)
		if err != nil {
			resultErr = err
			return
		}
		if sub == nil {
			return
		}

		switch {
		case msg.Status == model.StatusRejected && !sub.Status.IsTerminal():
			// Hub is authoritative on rejection of a non-terminal sub-order;
			// a terminal status is never overridden. The hub's rejection is
			// also its acknowledgement of the resulting status.
			sub.Status = model.StatusRejected
			sub.SentToAggregator = true
			resultErr = e.store.SubOrders().Update(sub)
		case msg.Status == sub.Status && sub.Status.IsTerminal():
			sub.SentToAggregator = true
			resultErr = e.store.SubOrders().Update(sub)
		default:
			// Mismatch on a non-terminal status: the resend loop will
			// retry, nothing to do here.
		}
	})

	return resultErr
}

// OnTrade is the callback an Adapter invokes for every sub-order that
// reaches a venue-terminal state. Partial fills are rejected as an
// invariant violation; at most one trade is ever recorded per sub-order.
func (e *Engine) OnTrade(ctx context.Context, trade *model.Trade) {
	sub, err := e.store.SubOrders().GetByExchangeOrderID(trade.Exchange, trade.ExchangeOrderID)
	if err != nil {
		e.log.Error("trade lookup failed", zap.Error(err), zap.String("exchange", trade.Exchange), zap.String("exchange_order_id", trade.ExchangeOrderID))
		return
	}
	if sub == nil {
		e.log.Warn("trade for unknown sub-order", zap.String("exchange", trade.Exchange), zap.String("exchange_order_id", trade.ExchangeOrderID))
		return
	}

	e.locks.withLock(sub.ID, func() {
		current, err := e.store.SubOrders().GetByID(sub.ID)
		if err != nil || current == nil {
			return
		}
		if current.Status.IsTerminal() {
			// A terminal status never regresses; a redelivered trade
			// event for an already-terminal sub-order is a no-op.
			return
		}

		if trade.Status != model.TradeFilled && trade.Status != model.TradeCanceled {
			e.log.Error("invariant violation: unexpected trade status", zap.String("status", string(trade.Status)), zap.Int64("sub_order_id", sub.ID))
			return
		}
		if trade.Status == model.TradeFilled && !trade.Amount.Equal(current.Amount) {
			e.log.Error("invariant violation: partial fill observed", zap.Int64("sub_order_id", sub.ID))
			return
		}

		current.FilledAmount = trade.Amount
		current.Status = model.SubOrderStatus(trade.Status)
		e.logEvent(sub.ID, "TRADE", current.Status, trade.Amount.String())

		if trade.Amount.IsPositive() {
			if err := e.store.Trades().Insert(trade); err != nil {
				e.log.Error("failed to persist trade", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
				return
			}
		}
		if err := e.store.SubOrders().Update(current); err != nil {
			e.log.Error("failed to persist sub-order status", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
			return
		}

		status, err := e.checkSubOrderLocked(ctx, sub.ID)
		if err != nil {
			e.log.Error("failed to build status after trade", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
			return
		}
		if err := e.hub.SendSubOrderStatus(ctx, status); err != nil {
			e.log.Warn("failed to push status to hub, resend loop will retry", zap.Error(err), zap.Int64("sub_order_id", sub.ID))
		}
	})
}
