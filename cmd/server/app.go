package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/todo-api/internal/config"
	"github.com/phrazzld/todo-api/internal/events"
	"github.com/phrazzld/todo-api/internal/platform/memory"
	"github.com/phrazzld/todo-api/internal/platform/postgres"
	"github.com/phrazzld/todo-api/internal/platform/rediscache"
	"github.com/phrazzld/todo-api/internal/redact"
	"github.com/phrazzld/todo-api/internal/service"
	"github.com/phrazzld/todo-api/internal/store"
	"github.com/redis/go-redis/v9"
)

// application holds the shared dependencies and releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	taskStore       store.TaskStore
	eventEmitter    *events.InMemoryEventEmitter
	eventDispatcher *events.AsyncEmitter
	taskService     service.TaskService
}

// newApplication wires the configured backend, the optional cache, the
// event emitter and the task service.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.setupTaskStore(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(events.NewAuditLogHandler(logger))
	app.eventDispatcher = events.NewAsyncEmitter(app.eventEmitter, events.AsyncEmitterConfig{
		WorkerCount: cfg.Events.Workers,
		QueueSize:   cfg.Events.QueueSize,
	}, logger)
	app.eventDispatcher.Start()

	policy := service.Policy{
		MaxActiveTasks: int64(cfg.Rules.MaxActiveTasks),
		MinDeleteAge:   cfg.Rules.MinDeleteAge(),
	}
	svc, err := service.NewTaskService(app.taskStore, app.eventDispatcher, logger, service.WithPolicy(policy))
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.taskService = svc

	logger.Info("task service initialized",
		slog.Int64("max_active_tasks", policy.MaxActiveTasks),
		slog.Duration("min_delete_age", policy.MinDeleteAge))
	return app, nil
}

func (app *application) setupTaskStore(ctx context.Context) error {
	cfg := app.config

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := setupAppDatabase(ctx, cfg.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db

		if cfg.Database.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, db); err != nil {
				return fmt.Errorf("failed to ensure database schema: %w", err)
			}
			app.logger.Info("database schema ensured")
		}
		app.taskStore = postgres.NewPostgresTaskStore(db, app.logger)

	case config.BackendMemory:
		app.taskStore = memory.NewTaskStore(memory.WithLogger(app.logger))

	default:
		return fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}

	if cfg.Cache.Enabled() {
		rdb, err := setupRedis(ctx, cfg.Cache, app.logger)
		if err != nil {
			return err
		}
		app.redis = rdb
		app.taskStore = rediscache.NewTaskStore(app.taskStore, rdb,
			rediscache.WithTTL(cfg.Cache.TTL()),
			rediscache.WithLogger(app.logger))
	}

	app.logger.Info("task store initialized",
		slog.String("backend", cfg.Store.Backend),
		slog.Bool("cache_enabled", cfg.Cache.Enabled()))
	return nil
}

// cleanup drains pending events and closes external connections.
// It is safe to call more than once.
func (app *application) cleanup() {
	if app.eventDispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
		if err := app.eventDispatcher.Stop(ctx); err != nil {
			app.logger.Warn("pending events were not delivered", slog.String("error", redact.Error(err)))
		}
		cancel()
		app.eventDispatcher = nil
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("failed to close redis client", slog.String("error", redact.Error(err)))
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", redact.Error(err)))
		}
		app.db = nil
	}
}
