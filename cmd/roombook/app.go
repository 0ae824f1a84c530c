package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/roombook/internal/application"
	"github.com/example/roombook/internal/catalog"
	"github.com/example/roombook/internal/config"
	"github.com/example/roombook/internal/events"
	httptransport "github.com/example/roombook/internal/http"
	"github.com/example/roombook/internal/metrics"
	"github.com/example/roombook/internal/persistence"
	"github.com/example/roombook/internal/persistence/memory"
	"github.com/example/roombook/internal/persistence/postgres"
	"github.com/example/roombook/internal/persistence/sqlite"
)

// migrator is implemented by the durable stores.
type migrator interface {
	Migrate(ctx context.Context) error
}

// openStore connects to the configured backend and applies migrations.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	var store persistence.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memory.Open()
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	if m, ok := store.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	return store, nil
}

// app is the wired service graph behind the HTTP handler.
type app struct {
	handler    http.Handler
	store      persistence.Store
	redis      *redis.Client
	dispatcher *events.Dispatcher
	hub        *events.Hub
	logger     *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	retry := persistence.DefaultRetryConfig()
	retry.MaxRetries = cfg.ReadRetries
	reads := persistence.NewRetryingStore(store, retry)

	a := &app{store: store, logger: logger}

	var backend catalog.Backend = catalog.NewMemoryBackend(16, nil)
	sinks := []events.Sink{events.NewLogSink(logger)}
	if cfg.RedisEnabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.CacheTimeout)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The cache degrades to the store on redis errors, so startup continues.
			logger.Warn("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		}
		backend = catalog.NewRedisBackend(a.redis)
		sinks = append(sinks, events.NewRedisSink(a.redis, cfg.EventChannel))
	}

	cache := catalog.New[[]persistence.Resource](backend, reads.ListResources, catalog.Options{
		TTL:         cfg.CatalogTTL,
		Timeout:     cfg.CacheTimeout,
		LoadTimeout: cfg.StoreTimeout,
		Logger:      logger,
	})

	a.hub = events.NewHub(logger, nil)
	sinks = append(sinks, a.hub)
	a.dispatcher = events.NewDispatcher(events.DispatcherOptions{
		Buffer: cfg.EventBuffer,
		Logger: logger,
	}, sinks...)

	newID := uuid.NewString
	now := time.Now

	engine := application.NewReservationEngine(application.ReservationEngineDeps{
		Store:        reads,
		Resources:    reads,
		Catalog:      cache,
		Events:       a.dispatcher,
		IDGenerator:  newID,
		Now:          now,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})
	resources := application.NewResourceServiceWithLogger(reads, cache, newID, now, cfg.StoreTimeout, logger).
		WithCascadeEvents(reads, a.dispatcher)
	users := application.NewUserServiceWithLogger(reads, now, cfg.StoreTimeout, logger).
		WithCascadeEvents(reads, a.dispatcher)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Reservations: httptransport.NewReservationHandler(engine, logger),
		Resources:    httptransport.NewResourceHandler(resources, logger),
		Users:        httptransport.NewUserHandler(users, logger),
		Health:       httptransport.NewHealthHandler(store, cfg.StoreTimeout, logger),
		Events:       a.hub,
		Metrics:      metrics.Handler(),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Identify(httptransport.HeaderIdentityResolver{}, logger),
		},
	})
	return a, nil
}

// close drains pending events before releasing the store and redis client.
func (a *app) close(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.dispatcher.Close(drainCtx); err != nil {
		a.logger.Warn("event dispatcher did not drain", "error", err)
	}
	a.hub.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
