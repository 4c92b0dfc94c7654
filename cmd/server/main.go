// Package main is the entry point of the progression API server.
//
// The server owns the rewards engine: it records completions, sells hints and
// cosmetics, and serves snapshots and leaderboards over HTTP. PostgreSQL is the
// durable store when DATABASE_URL is set; otherwise state lives in memory.
// Redis is optional and only ever holds derived data.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codequest-jr/progression-hub/config"
	"github.com/codequest-jr/progression-hub/internal/application/command"
	"github.com/codequest-jr/progression-hub/internal/application/eventhandler"
	"github.com/codequest-jr/progression-hub/internal/application/query"
	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/catalog"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/messaging"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/redis"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/scheduler"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/codequest-jr/progression-hub/internal/interface/http"
	"github.com/codequest-jr/progression-hub/internal/interface/http/handlers"
	"github.com/codequest-jr/progression-hub/pkg/circuitbreaker"
	"github.com/codequest-jr/progression-hub/pkg/logger"
	"github.com/codequest-jr/progression-hub/pkg/timeutil"
)

// store is what the server needs from a storage backend.
type store interface {
	progression.Store
	progression.CatalogSeeder
}

// eventBus is satisfied by the in-memory bus and its Redis fan-out wrapper.
type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progression server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.Progression.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Progression.SeedCatalog {
		content, err := catalog.Load(cfg.Progression.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		if err := st.SeedCatalog(ctx, content); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		log.Info("catalog seeded",
			logger.Int("activities", len(content.Activities)),
			logger.Int("badges", len(content.Badges)),
			logger.Int("cosmetics", len(content.Cosmetics)),
		)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(st))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		snapshotCache    query.SnapshotCache
		leaderboardCache query.LeaderboardCache
		invalidator      eventhandler.SnapshotInvalidator
		boardUpdater     eventhandler.LeaderboardUpdater
		boardRebuilder   jobs.LeaderboardRebuilder
		redisClient      goredis.UniversalClient
	)

	if cfg.Redis.Enabled() {
		cache, err := redis.NewCache(ctx, redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,

			BreakerThreshold:     cfg.Redis.BreakerThreshold,
			BreakerCooldown:      cfg.Redis.BreakerCooldown,
			OnBreakerStateChange: logBreakerState(log),
		})
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()

			snapshots := redis.NewSnapshotCache(cache, cfg.Redis.SnapshotTTL)
			boards := redis.NewLeaderboardCache(cache)
			snapshotCache, invalidator = snapshots, snapshots
			leaderboardCache, boardUpdater, boardRebuilder = boards, boards, boards
			redisClient = cache.Client()

			health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established", logger.String("addr", cfg.Redis.Addr))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := openEventBus(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	projector := eventhandler.NewProgressProjector(st, invalidator, boardUpdater, log, eventhandler.ProgressProjectorConfig{
		Enabled: cfg.Features.Toggle(config.FeatureEventProjection),
	})
	if err := projector.Register(bus); err != nil {
		return fmt.Errorf("failed to register projector: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled && boardRebuilder != nil {
		sched := scheduler.New(scheduler.Config{Logger: log, JobTimeout: cfg.Scheduler.JobTimeout})
		rebuild := jobs.NewRebuildLeaderboardJob(st, boardRebuilder, log)
		schedule, err := scheduler.NewIntervalSchedule(cfg.Scheduler.LeaderboardRebuildInterval)
		if err != nil {
			return fmt.Errorf("invalid rebuild interval: %w", err)
		}
		if err := sched.Register(rebuild, schedule); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
		if _, err := sched.RunNow(ctx, rebuild.Name()); err != nil {
			log.Warn("initial leaderboard rebuild failed", logger.Err(err))
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}
	loc := cfg.Progression.Location

	awarder := command.NewBadgeAwarder(st, bus, log, command.BadgeAwarderConfig{
		Location: loc,
		Enabled:  cfg.Features.Toggle(config.FeatureBadges),
	})

	completionCfg := command.DefaultRecordCompletionHandlerConfig()
	completionCfg.Location = loc
	completionCfg.TxAttempts = cfg.Progression.TxAttempts

	purchaseCfg := command.DefaultPurchaseCosmeticHandlerConfig()
	purchaseCfg.TxAttempts = cfg.Progression.TxAttempts

	hintCfg := command.DefaultUnlockHintHandlerConfig()
	hintCfg.Costs = progression.HintCosts(cfg.Progression.HintCosts)
	hintCfg.TxAttempts = cfg.Progression.TxAttempts

	deps := httpapi.Dependencies{
		CreateStudent:    command.NewCreateStudentHandler(st, bus, clock, log),
		RecordCompletion: command.NewRecordCompletionHandler(st, awarder, bus, clock, log, completionCfg),
		PurchaseCosmetic: command.NewPurchaseCosmeticHandler(st, awarder, bus, clock, log, purchaseCfg),
		UnlockHint:       command.NewUnlockHintHandler(st, bus, clock, log, hintCfg),
		GetSnapshot: query.NewGetProgressionSnapshotHandler(
			st, snapshotCache, cfg.Features.Toggle(config.FeatureSnapshotCache), clock, log),
		GetLeaderboard: query.NewGetLeaderboardHandler(
			st, leaderboardCache, cfg.Features.Toggle(config.FeatureLeaderboardCache), clock, loc, log),
		HealthChecker: health,
		Logger:        log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.RetryAfter = cfg.HTTP.RetryAfter

	server := httpapi.NewServer(serverCfg, deps)
	errCh := server.StartAsync()
	log.Info("progression server is running", logger.String("addr", serverCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func logBreakerState(log *logger.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		log.Warn("cache circuit changed state",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.IsDevelopment() {
		opts.Format = "text"
	}

	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

// openStore connects to PostgreSQL and applies migrations, or falls back to
// the in-memory store when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using the in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	log.Info("connecting to database")
	pgCfg := postgres.DefaultConfig()
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeFn := func() {
		log.Info("closing database connection")
		conn.Close()
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	return postgres.NewProgressionStore(conn), closeFn, nil
}

func openEventBus(ctx context.Context, cfg *config.Config, client goredis.UniversalClient, log *logger.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if client == nil {
		return messaging.NewInMemoryEventBus(local), nil
	}

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:  client,
		Channel: cfg.Redis.EventChannel,
		Local:   local,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start event bus: %w", err)
	}
	return bus, nil
}
