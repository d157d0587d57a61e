package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/config"
	"github.com/gighire/backend/internal/eligibility"
	"github.com/gighire/backend/internal/jobs"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/lock"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/payment"
	"github.com/gighire/backend/internal/registry"
	"github.com/gighire/backend/internal/repository"
	"github.com/gighire/backend/internal/repository/memory"
)

// App holds the services the admin commands operate on.
type App struct {
	Store    repository.Store
	Ledger   ledger.Service
	Engine   autorelease.Engine
	Jobs     jobs.Service
	Registry registry.Service
}

// Opener builds an App from config. The returned func releases connections.
type Opener func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, func(), error)

// OpenApp connects to the configured store. Notifications raised by CLI
// operations are logged rather than queued.
func OpenApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, func(), error) {
	var (
		store   repository.Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create database pool: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("reach postgres: %w", err)
		}
		store = repository.NewPgStore(pool)
	default:
		store = memory.New()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		closers = append(closers, func() { _ = rdb.Close() })
		locker = lock.NewRedisLocker(rdb, "gighire:lock:")
	}

	app, err := NewApp(store, locker, log, cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return app, closeAll, nil
}

func NewApp(store repository.Store, locker lock.Locker, log *slog.Logger, cfg *config.Config) (*App, error) {
	validator, err := autorelease.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile rule schemas: %w", err)
	}
	notifier := notify.NewInlineNotifier(notify.NewLogSender(log), log, nil)
	l := ledger.NewService(store, payment.NewSandbox(), log)
	return &App{
		Store:  store,
		Ledger: l,
		Engine: autorelease.NewEngine(store, l, locker, validator, notifier, log,
			autorelease.WithBatchSize(cfg.Sweeps.BatchSize), autorelease.WithLockTTL(cfg.Sweeps.LockTTL)),
		Jobs: jobs.NewService(store, l, eligibility.NewUserChecker(store.Users()), notifier, log,
			jobs.WithAcceptanceWindow(cfg.Marketplace.AcceptanceWindow)),
		Registry: registry.NewService(store.Users(), notifier, log),
	}, nil
}
