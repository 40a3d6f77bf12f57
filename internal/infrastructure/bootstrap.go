package infrastructure

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"pixwallet/internal/config"
	"pixwallet/internal/notify"
	"pixwallet/internal/service"
	"pixwallet/internal/storage"
	transportHTTP "pixwallet/internal/transport/http"
	transportNATS "pixwallet/internal/transport/nats"
	"pixwallet/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
//
// Backend selection happens here, once, at process start: the durable backend
// (Postgres + Redis) is used when configured and reachable, otherwise the
// process degrades to the in-memory backend. There is no lazy re-selection
// later; a backend that comes up mid-flight is picked up on the next restart.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()

	store := selectStore(cfg, &cleanupFns)

	var nc *nats.Conn
	var notifier notify.Notifier = notify.Noop{}
	if cfg.HasNats() {
		nc, err = connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		notifier = notify.NewNats(nc)
	} else {
		slog.Warn("NATS not configured, notifications disabled")
	}

	ledger := service.NewLedger(store, notifier)
	withdrawals := service.NewWithdrawals(store, ledger, notifier)
	webhook := service.NewWebhookGuard(store, ledger, notifier)
	processor := worker.NewProcessor(withdrawals, worker.SimulatedPayer{})

	var servers []Server
	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(processor, nc))
	}
	handler := transportHTTP.NewHandler(ledger, withdrawals, webhook, processor)
	servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), handler))

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// selectStore returns the durable backend when it is configured and reachable,
// logging one degraded-mode warning otherwise.
func selectStore(cfg *config.Config, cleanupFns *[]func()) storage.Store {
	if !cfg.HasPostgres() {
		slog.Warn("durable backend not configured, using in-memory storage (data is lost on restart)")
		return storage.NewMemory()
	}

	pool, err := connectPostgres(cfg.DSN())
	if err != nil {
		slog.Warn("postgres unreachable, falling back to in-memory storage", "error", err)
		return storage.NewMemory()
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		pool.Close()
		slog.Warn("redis unreachable, falling back to in-memory storage", "error", err)
		return storage.NewMemory()
	}

	store := storage.NewPostgres(pool, rdb)
	*cleanupFns = append(*cleanupFns, store.Close)
	slog.Info("using durable backend (postgres + redis)")
	return store
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
