// Package reconciler implements the Reconciler (C6): five independent
// periodic loops that broadcast balances, resend and poll sub-orders, poll
// withdrawals and on-chain transactions, and plan liability discharge. Each
// loop wraps its body in a catch-all that logs and continues, and never
// starts a new tick while its previous one is still running.
package reconciler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/engine"
	"github.com/yourusername/broker/internal/exchange"
	"github.com/yourusername/broker/internal/hub"
	"github.com/yourusername/broker/internal/store"
)

// Loop periods, bit-exact.
const (
	balancesPeriod    = 10 * time.Second
	subOrdersPeriod   = 10 * time.Second
	withdrawalsPeriod = 60 * time.Second
	transactionsPeriod = 10 * time.Second
	liabilitiesPeriod = 5 * time.Minute
)

// Config carries the tunables the spec leaves as configuration rather than
// hard constants, plus the collaborators the Reconciler drives.
type Config struct {
	Store         store.Store
	Adapters      map[string]exchange.Adapter
	ExchangeOrder []string // insertion order, scanned by getExchangeForWithdraw
	Chain         *chainclient.Client
	Hub           hub.Gateway
	Engine        *engine.Engine
	Log           *zap.Logger

	// DuePeriod is how long a liability may sit outstanding before
	// manageLiability acts on it.
	DuePeriod time.Duration
}

// Reconciler is C6.
type Reconciler struct {
	store         store.Store
	adapters      map[string]exchange.Adapter
	exchangeOrder []string
	chain         *chainclient.Client
	hub           hub.Gateway
	engine        *engine.Engine
	log           *zap.Logger
	duePeriod     time.Duration

	balances *atomic.Pointer[map[string]map[string]decimal.Decimal]
}

// New builds a Reconciler from cfg.
func New(cfg Config) *Reconciler {
	duePeriod := cfg.DuePeriod
	if duePeriod <= 0 {
		duePeriod = time.Hour
	}

	r := &Reconciler{
		store:         cfg.Store,
		adapters:      cfg.Adapters,
		exchangeOrder: cfg.ExchangeOrder,
		chain:         cfg.Chain,
		hub:           cfg.Hub,
		engine:        cfg.Engine,
		log:           cfg.Log.With(zap.String("component", "reconciler")),
		duePeriod:     duePeriod,
		balances:      &atomic.Pointer[map[string]map[string]decimal.Decimal]{},
	}
	empty := map[string]map[string]decimal.Decimal{}
	r.balances.Store(&empty)
	return r
}

// Start launches the five loops. It returns immediately; the loops run
// until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context) {
	go r.runLoop(ctx, "balances", balancesPeriod, r.tickBalances)
	go r.runLoop(ctx, "sub-orders", subOrdersPeriod, r.tickSubOrders)
	go r.runLoop(ctx, "withdrawals", withdrawalsPeriod, r.tickWithdrawals)
	go r.runLoop(ctx, "transactions", transactionsPeriod, r.tickTransactions)
	go r.runLoop(ctx, "liabilities", liabilitiesPeriod, r.tickLiabilities)
}

// runLoop drives a single periodic loop with an at-most-one-in-flight
// guard and a catch-all recover so a single tick's panic never kills the
// process.
func (r *Reconciler) runLoop(ctx context.Context, name string, period time.Duration, tick func(context.Context) error) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var inFlight atomic.Bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inFlight.CompareAndSwap(false, true) {
				r.log.Debug("previous tick still running, skipping", zap.String("loop", name))
				continue
			}
			go func() {
				defer inFlight.Store(false)
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("loop panicked", zap.Any("panic", rec), zap.String("loop", name))
					}
				}()
				if err := tick(ctx); err != nil {
					r.log.Error("loop tick failed", zap.Error(err), zap.String("loop", name))
				}
			}()
		}
	}
}

func (r *Reconciler) snapshotBalances() map[string]map[string]decimal.Decimal {
	return *r.balances.Load()
}
