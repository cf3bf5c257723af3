package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"meal-subscription/internal/coach"
	"meal-subscription/internal/config"
	"meal-subscription/internal/database"
	"meal-subscription/internal/ghost"
	"meal-subscription/internal/llm"
	"meal-subscription/internal/menu"
	"meal-subscription/internal/metrics"
	"meal-subscription/internal/notify"
	"meal-subscription/internal/storage"
	"meal-subscription/internal/subscription"
)

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	db           *database.DB
	rdb          redis.UniversalClient
	kv           storage.Store
	metricsStore *metrics.Store
	registry     *subscription.Registry
	coach        *coach.Coach
	feed         *menu.Feed
	publisher    *notify.Publisher

	closers []func() error
}

// New wires the storage backend, the impact ledger and the optional
// integrations described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	// The ledger always lives in SQLite, whatever the KV backend.
	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.metricsStore = metrics.NewStore(db.SQL)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		a.publisher = notify.NewPublisher(rdb, cfg.DeliveryChannel, logger)
	}

	switch cfg.StorageBackend {
	case config.BackendRedis:
		a.kv = storage.NewRedisStore(a.rdb)
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.StorageDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		a.kv = fs
	default:
		a.kv = storage.NewSQLStore(db.SQL)
	}
	logger.Info("storage ready", "backend", cfg.StorageBackend)

	gen, err := a.textGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.coach = coach.New(gen, a.metricsStore, logger)

	opts := []subscription.Option{subscription.WithImpactRecorder(a.metricsStore)}
	if cfg.GhostEnabled() {
		a.feed = menu.NewFeed(ghost.NewClient(cfg), menu.DefaultTag, logger)
		opts = append(opts, subscription.WithMenuSource(a.feed))
		logger.Info("vendor menu feed enabled", "url", cfg.GhostURL)
	}
	a.registry = subscription.NewRegistry(a.kv, logger, opts...)
	if a.publisher != nil {
		a.registry.OnDelivery(a.publisher.Listener())
	}
	return a, nil
}

// textGenerator returns Gemini, Groq or both as a fallback chain. Nil when
// neither key is set.
func (a *App) textGenerator(ctx context.Context) (llm.TextGenerator, error) {
	var chain llm.Fallback
	if a.cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, a.cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		a.closers = append(a.closers, gemini.Close)
		chain = append(chain, gemini)
	}
	if a.cfg.GroqAPIKey != "" {
		chain = append(chain, llm.NewGroqClient(a.cfg.GroqAPIKey))
	}
	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

func (a *App) Config() *config.Config           { return a.cfg }
func (a *App) Logger() *slog.Logger             { return a.logger }
func (a *App) Registry() *subscription.Registry { return a.registry }
func (a *App) Advisor() *coach.Coach            { return a.coach }
func (a *App) Metrics() *metrics.Store          { return a.metricsStore }
func (a *App) Redis() redis.UniversalClient     { return a.rdb }
func (a *App) KV() storage.Store                { return a.kv }

// Close stops delivery simulations and releases connections in reverse order.
func (a *App) Close() error {
	if a.registry != nil {
		a.registry.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
