package infrastructure

import (
	"context"
	"log/slog"
	"os"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/repository"
	"bankledger/internal/service"
	transportGRPC "bankledger/internal/transport/grpc"
	transportHTTP "bankledger/internal/transport/http"
	transportLocal "bankledger/internal/transport/local"
	transportNATS "bankledger/internal/transport/nats"
	"bankledger/internal/worker"

	"github.com/nats-io/nats.go"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	slog.SetDefault(NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	var cleanupFns []func()

	shutdownTelemetry, err := initTelemetry(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	})

	// ── Store ──────────────────────────────────────────────────────────────────
	var store service.Store
	switch cfg.StoreProvider {
	case config.ProviderPostgres:
		db, err := connectPostgres(cfg.DSN())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, db.Close)
		store = repository.NewLedgerRepo(db)
	case config.ProviderMemory:
		slog.Warn("using in-memory store, balances are lost on restart")
		store = repository.NewMemoryStore()
	}

	var opts []service.Option
	if cfg.CacheEnabled {
		rdb, err := connectRedis(cfg.RedisAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
		opts = append(opts, service.WithCache(repository.NewAccountCache(rdb, cfg.CachePrefix, cfg.CacheTTL)))
	}

	// ── Bus ────────────────────────────────────────────────────────────────────
	var (
		bus      repository.MessageBus
		nc       *nats.Conn
		js       nats.JetStreamContext
		localBus *transportLocal.Bus
		proc     *worker.Processor
	)

	if cfg.BusProvider == config.ProviderNats || cfg.WorkerProvider == config.ProviderNats {
		nc, js, err = connectNats(cfg.NatsAddr(), cfg.ServiceName)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
	}

	switch cfg.BusProvider {
	case config.ProviderNats:
		bus = transportNATS.NewBus(js)
	case config.ProviderGRPC:
		grpcBus, cleanup, err := transportGRPC.NewGrpcBusFromAddr(cfg.GRPCAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, cleanup)
		bus = grpcBus
	case config.ProviderLocal:
		// proc is assigned below, before any message can be published.
		localBus = transportLocal.NewBus(cfg.BusBufferSize, func(ctx context.Context, data []byte) error {
			return proc.Handle(ctx, data)
		})
		bus = localBus
	}

	svc := service.NewLedger(store, bus, opts...)
	proc = worker.NewProcessor(svc)

	// ── Servers ────────────────────────────────────────────────────────────────
	var servers []Server

	var events repository.MessageBus
	switch cfg.WorkerProvider {
	case config.ProviderNats:
		servers = append(servers, worker.NewCashbackWorker(js, proc))
	case config.ProviderGRPC:
		// EventService only queues; the queue's consumer applies cashback.
		queue := transportLocal.NewBus(cfg.BusBufferSize, proc.Handle)
		servers = append(servers, queue)
		events = queue
	case config.ProviderLocal:
		servers = append(servers, localBus)
	}

	// Consumers are registered first so App stops them last, after the
	// inbound transports have finished publishing.
	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(svc, nc))
	}
	servers = append(servers, transportGRPC.NewServer(cfg.GRPCListenAddr, svc, events))
	if cfg.ApiEnabled == "true" {
		addr, err := cfg.ApiAddr()
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		servers = append(servers, transportHTTP.NewServer(addr, svc))
	}

	slog.Info("application wired",
		"store", cfg.StoreProvider,
		"bus", cfg.BusProvider,
		"worker", cfg.WorkerProvider,
		"cache", cfg.CacheEnabled,
	)
	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
