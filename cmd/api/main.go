package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/gighire/backend/internal/auth"
	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/booking"
	"github.com/gighire/backend/internal/cancellation"
	"github.com/gighire/backend/internal/config"
	"github.com/gighire/backend/internal/dashboard"
	"github.com/gighire/backend/internal/eligibility"
	"github.com/gighire/backend/internal/jobs"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/lock"
	"github.com/gighire/backend/internal/logging"
	"github.com/gighire/backend/internal/metrics"
	"github.com/gighire/backend/internal/notify"
	"github.com/gighire/backend/internal/payment"
	"github.com/gighire/backend/internal/registry"
	"github.com/gighire/backend/internal/repository"
	"github.com/gighire/backend/internal/repository/memory"
	"github.com/gighire/backend/internal/router"
	"github.com/gighire/backend/internal/scheduler"
)

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfig, "path to configuration file (empty for env only)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	sender, closeSender, err := newSender(cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	var provider payment.Provider = payment.NewSandbox()
	if !cfg.Payment.Sandbox() {
		provider = payment.NewHTTPProvider(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.CallbackURL, cfg.Payment.Timeout, logger)
	} else {
		logger.Warn("payment gateway not configured, using sandbox provider")
	}

	// Notifications go through river when Postgres is available. The insert
	// func is set after the river client exists.
	var insertMu sync.Mutex
	var insertFn notify.InsertFunc
	insertDelivery := func(ctx context.Context, args notify.DeliverArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("notification queue not ready")
		}
		return fn(ctx, args)
	}

	var (
		store    repository.Store
		pool     *pgxpool.Pool
		notifier notify.Notifier
		health   func(context.Context) error
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err = pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("create database pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("reach postgres: %w", err)
		}
		logger.Info("connected to postgres")

		if cfg.Store.Migrate {
			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
			if err != nil {
				return fmt.Errorf("create river migrator: %w", err)
			}
			if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
				return fmt.Errorf("river migrate up: %w", err)
			}
			logger.Info("migrations applied")
		}
		store = repository.NewPgStore(pool)
		notifier = notify.NewQueueNotifier(insertDelivery, logger, m)
		health = pool.Ping
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.New()
		notifier = notify.NewInlineNotifier(sender, logger, m)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("reach redis: %w", err)
		}
		locker = lock.NewRedisLocker(rdb, "gighire:lock:")
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	validator, err := autorelease.NewValidator()
	if err != nil {
		return fmt.Errorf("compile rule schemas: %w", err)
	}

	ledgerSvc := ledger.NewService(store, provider, logger, ledger.WithMetrics(m))
	authSvc := auth.NewService(store.Users(), store.Wallets(), cfg.Auth.JWTSecret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL), auth.WithAutoVerify(cfg.Auth.AutoVerifyWorkers))
	jobsSvc := jobs.NewService(store, ledgerSvc, eligibility.NewUserChecker(store.Users()), notifier, logger,
		jobs.WithAcceptanceWindow(cfg.Marketplace.AcceptanceWindow), jobs.WithMetrics(m))
	bookingSvc := booking.NewService(store, ledgerSvc, notifier, logger)
	policy := cancellation.NewPolicy(store, ledgerSvc, notifier, logger, cancellation.WithWindow(cfg.Marketplace.CancellationWindow))
	engine := autorelease.NewEngine(store, ledgerSvc, locker, validator, notifier, logger,
		autorelease.WithMetrics(m), autorelease.WithBatchSize(cfg.Sweeps.BatchSize), autorelease.WithLockTTL(cfg.Sweeps.LockTTL))
	registrySvc := registry.NewService(store.Users(), notifier, logger)

	seed := cfg.AutoRelease.Rules
	if len(seed) == 0 && cfg.AutoRelease.SeedDefaults {
		seed = autorelease.DefaultRules()
	}
	if _, err := engine.SeedRules(ctx, seed); err != nil {
		return fmt.Errorf("seed auto-release rules: %w", err)
	}

	intervals := scheduler.Intervals{
		AutoRelease:     cfg.Sweeps.AutoReleaseInterval,
		SelectionExpiry: cfg.Sweeps.SelectionExpiryInterval,
		JobExpiry:       cfg.Sweeps.JobExpiryInterval,
	}
	var riverClient *river.Client[pgx.Tx]
	if pool != nil {
		riverClient, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues:       scheduler.Queues(cfg.Sweeps.MaxWorkers),
			Workers:      scheduler.Workers(scheduler.Deps{Engine: engine, Jobs: jobsSvc, Sender: sender, Metrics: m, Log: logger}),
			PeriodicJobs: scheduler.PeriodicJobs(intervals),
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		insertMu.Lock()
		insertFn = func(ctx context.Context, args notify.DeliverArgs) error {
			_, err := riverClient.Insert(ctx, args, nil)
			return err
		}
		insertMu.Unlock()

		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river: %w", err)
		}
	} else {
		go scheduler.RunLocal(ctx, intervals, engine, jobsSvc, logger)
	}

	api := router.New(router.Handlers{
		Auth:         auth.NewHandler(authSvc, logger),
		Jobs:         jobs.NewHandler(jobsSvc, logger),
		Bookings:     booking.NewHandler(bookingSvc, logger),
		Cancellation: cancellation.NewHandler(policy, logger),
		AutoRelease:  autorelease.NewHandler(engine, logger),
		Dashboard:    dashboard.NewHandler(store.Users(), ledgerSvc, logger),
		Registry:     registry.NewHandler(registrySvc, logger),
	}, router.Options{Tokens: authSvc, Metrics: m.Handler(), Health: health})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.Store.Driver, "payment", provider.Name())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if riverClient != nil {
		if err := riverClient.Stop(shutdownCtx); err != nil {
			logger.Error("river shutdown", "error", err)
		}
	}
	return nil
}

// newSender picks the delivery channel for notifications. The returned func
// releases its connection.
func newSender(cfg config.NotifyConfig, log *slog.Logger) (notify.Sender, func(), error) {
	switch cfg.Sender {
	case "webhook":
		return notify.NewWebhookSender(cfg.WebhookURL, cfg.Timeout), func() {}, nil
	case "amqp":
		s, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey, log)
		if err != nil {
			return nil, nil, fmt.Errorf("notification broker: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return notify.NewLogSender(log), func() {}, nil
	}
}
