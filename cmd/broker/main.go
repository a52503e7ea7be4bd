// Command broker runs the broker agent: it authenticates to the hub, keeps
// the sub-order state machine (C5) fed by venue adapters (C2) and the chain
// client (C3), and lets the reconciler (C6) reconcile balances, sub-orders,
// withdrawals, transactions, and liabilities on their own schedules.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/broker/internal/audit"
	"github.com/yourusername/broker/internal/broker"
	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/config"
	"github.com/yourusername/broker/internal/engine"
	"github.com/yourusername/broker/internal/exchange"
	"github.com/yourusername/broker/internal/hub"
	"github.com/yourusername/broker/internal/ratelimit"
	"github.com/yourusername/broker/internal/reconciler"
	"github.com/yourusername/broker/internal/store"
	"github.com/yourusername/broker/internal/tokenregistry"
	"github.com/yourusername/broker/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg.Production)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting broker", zap.String("name", cfg.Name), zap.String("version", cfg.Version))

	signer, err := chainclient.NewSigner(cfg.OperatorPrivateKey)
	if err != nil {
		return fmt.Errorf("initializing operator signer: %w", err)
	}

	tokens, err := tokenregistry.New(cfg.Tokens, cfg.FeeAssetAddress)
	if err != nil {
		return fmt.Errorf("initializing token registry: %w", err)
	}

	restClient, err := transport.NewClient(cfg.ChainGatewayEndpoints, 30*time.Second)
	if err != nil {
		return fmt.Errorf("initializing chain gateway client: %w", err)
	}
	gasFeedEndpoints := cfg.ChainGatewayEndpoints
	if cfg.GasFeedEndpoint != "" {
		gasFeedEndpoints = []string{cfg.GasFeedEndpoint}
	}
	gasFeedClient, err := transport.NewClient(gasFeedEndpoints, 10*time.Second)
	if err != nil {
		return fmt.Errorf("initializing gas feed client: %w", err)
	}

	chain := chainclient.New(chainclient.Config{
		Gateway:            chainclient.NewGateway(restClient, gasFeedClient),
		Signer:             signer,
		Tokens:             tokens,
		Matcher:            cfg.MatcherAddress,
		SettlementContract: cfg.SettlementContract,
		Production:         cfg.Production,
		Salt:               cfg.Salt,
	})

	adapters, exchangeOrder, err := buildAdapters(cfg.Exchanges)
	if err != nil {
		return fmt.Errorf("building exchange adapters: %w", err)
	}

	var baseStore store.Dumpable = store.NewMemory()
	var st store.Store = baseStore
	var fileStore *store.FileStore
	if cfg.StorePath != "" {
		fileStore, err = store.NewFileStore(baseStore, cfg.StorePath)
		if err != nil {
			return fmt.Errorf("initializing file store at %s: %w", cfg.StorePath, err)
		}
		st = fileStore
	}

	limiter := ratelimit.New(5, 10*time.Second)

	var auditLog *audit.Logger
	if cfg.StorePath != "" {
		auditLog, err = audit.New(cfg.StorePath + ".audit.ndjson")
		if err != nil {
			return fmt.Errorf("initializing audit log: %w", err)
		}
	}

	// eng and rec are built without a Gateway/OnConnected target respectively:
	// the supervisor that provides the Gateway isn't constructed until after
	// eng exists (its Handlers reference eng's own methods), and rec itself
	// is only assigned once sup exists. Both loose ends are tied off before
	// sup.Start ever fires its first OnConnected.
	eng := engine.New(st, adapters, chain, nil, limiter, auditLog, log)

	var rec *reconciler.Reconciler

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := broker.NewSupervisor(broker.Config{
		URL:     cfg.HubURL,
		Chain:   chain,
		Name:    cfg.Name,
		Version: cfg.Version,
		Log:     log,
		Handlers: hub.Handlers{
			OnCreateSubOrder:         eng.OnCreateSubOrder,
			OnCancelSubOrder:         eng.OnCancelSubOrder,
			OnCheckSubOrder:          eng.OnCheckSubOrder,
			OnSubOrderStatusAccepted: eng.OnSubOrderStatusAccepted,
			OnReconnect: func(ctx context.Context) error {
				log.Info("reconnected to hub, reconciler loops continue uninterrupted")
				return nil
			},
		},
		OnConnected: func(ctx context.Context) {
			rec.Start(ctx)
		},
	})
	eng.SetHub(sup.Hub())

	rec = reconciler.New(reconciler.Config{
		Store:         st,
		Adapters:      adapters,
		ExchangeOrder: exchangeOrder,
		Chain:         chain,
		Hub:           sup.Hub(),
		Engine:        eng,
		Log:           log,
		DuePeriod:     cfg.LiabilityDuePeriod,
	})

	if fileStore != nil {
		go fileStore.RunPeriodicSnapshot(ctx.Done(), cfg.SnapshotInterval)
	}

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("connecting to hub: %w", err)
	}
	defer sup.Stop()

	log.Info("broker running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	if fileStore != nil {
		if err := fileStore.Snapshot(); err != nil {
			log.Warn("final store snapshot failed", zap.Error(err))
		}
	}
	return sup.Stop()
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildAdapters constructs one Adapter per configured venue, in
// configuration order, which doubles as the order getExchangeForWithdraw
// scans when choosing where to pull a liability shortfall from.
func buildAdapters(exchanges []config.ExchangeConfig) (map[string]exchange.Adapter, []string, error) {
	adapters := make(map[string]exchange.Adapter, len(exchanges))
	order := make([]string, 0, len(exchanges))

	for _, ec := range exchanges {
		switch ec.Kind {
		case "paper":
			adapters[ec.Name] = exchange.NewPaper(ec.Name, map[string]decimal.Decimal{})
		case "http":
			if ec.Endpoint == "" {
				return nil, nil, fmt.Errorf("exchange %s: kind=http requires an endpoint", ec.Name)
			}
			endpoints := strings.Split(ec.Endpoint, ",")
			client, err := transport.NewClient(endpoints, 15*time.Second)
			if err != nil {
				return nil, nil, fmt.Errorf("exchange %s: %w", ec.Name, err)
			}
			adapters[ec.Name] = exchange.NewHTTP(ec.Name, client)
		default:
			return nil, nil, fmt.Errorf("exchange %s: unknown kind %q", ec.Name, ec.Kind)
		}
		order = append(order, ec.Name)
	}

	return adapters, order, nil
}
