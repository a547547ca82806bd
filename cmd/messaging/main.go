package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/event-messaging/internal/api"
	"github.com/LeventeLantos/event-messaging/internal/cache"
	"github.com/LeventeLantos/event-messaging/internal/client"
	"github.com/LeventeLantos/event-messaging/internal/config"
	"github.com/LeventeLantos/event-messaging/internal/ledger"
	"github.com/LeventeLantos/event-messaging/internal/repo"
	"github.com/LeventeLantos/event-messaging/internal/scheduler"
	"github.com/LeventeLantos/event-messaging/internal/service"
	"github.com/LeventeLantos/event-messaging/internal/webhook"
	"github.com/LeventeLantos/event-messaging/internal/worker"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(config.NewLogger())

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		slog.Error("messaging app stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	sentCache, closeCache := openCache(cfg.Redis)
	defer closeCache()

	sender := client.New(client.Options{
		APIBase:       cfg.Provider.APIBase,
		PhoneNumberID: cfg.Provider.PhoneNumberID,
		AccessToken:   cfg.Provider.AccessToken,
		Timeout:       cfg.Provider.Timeout,
		RatePerSecond: cfg.Provider.RatePerSecond,
	})

	l := ledger.New(nil)
	dispatcher := service.NewDispatcher(store, sender, sentCache, service.DispatcherConfig{
		BaseURL:     cfg.Server.BaseURL,
		Concurrency: cfg.Dispatch.Concurrency,
		ClaimTTL:    cfg.Scheduler.ClaimTTL,
	})

	pool, err := worker.New(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, func(ctx context.Context, id string) error {
		_, err := dispatcher.Dispatch(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	pool.Start()
	defer pool.Stop()

	poller := scheduler.NewPoller(store, pool, scheduler.PollerConfig{
		BatchSize: cfg.Scheduler.BatchSize,
		ClaimTTL:  cfg.Scheduler.ClaimTTL,
	})
	sched, err := scheduler.New(cfg.Scheduler.Interval, poller.Tick)
	if err != nil {
		return err
	}
	if cfg.Scheduler.AutoStart {
		sched.Start()
	}
	defer sched.Stop()

	h := api.NewHandler(api.Deps{
		Scheduler:  sched,
		Workspaces: service.NewWorkspaces(store, l, cfg.Credits.Initial, nil),
		Events:     service.NewEvents(store, nil),
		Messages:   service.NewMessages(store, l, pool, service.MessagesConfig{ContentMax: cfg.Provider.ContentMax}),
		Webhook: webhook.NewProcessor(store, sender, webhook.Config{
			VerifyToken: cfg.Provider.VerifyToken,
			AppSecret:   cfg.Provider.AppSecret,
		}),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("messaging app starting",
			"addr", cfg.Server.Address,
			"store", cfg.Database.Driver,
			"interval", cfg.Scheduler.Interval.String(),
			"batch", cfg.Scheduler.BatchSize,
			"workers", cfg.Dispatch.Workers,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repo.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return repo.NewMemoryStore(), func() {}, nil
	}

	db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := repo.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repo.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func openCache(cfg config.RedisConfig) (cache.SentCache, func()) {
	if !cfg.Enabled {
		return cache.Nop{}, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return cache.NewRedisCache(rdb, cfg.TTL), func() { _ = rdb.Close() }
}
