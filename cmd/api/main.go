// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelamos/tenfold/internal/admin"
	"github.com/angelamos/tenfold/internal/config"
	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
	"github.com/angelamos/tenfold/internal/health"
	"github.com/angelamos/tenfold/internal/middleware"
	"github.com/angelamos/tenfold/internal/outbox"
	"github.com/angelamos/tenfold/internal/payment"
	"github.com/angelamos/tenfold/internal/provision"
	"github.com/angelamos/tenfold/internal/server"
	"github.com/angelamos/tenfold/internal/session"
	"github.com/angelamos/tenfold/internal/state"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	sessionManager, err := session.NewManager(cfg.Session)
	if err != nil {
		return err
	}
	logger.Info("session manager initialized",
		"algorithm", "ES256",
		"key_id", sessionManager.KeyID(),
	)

	userRepo := funnel.NewRepository(db.DB)
	outboxRepo := outbox.NewRepository(db.DB)
	folderRepo := provision.NewRepository(db.DB)

	engine := funnel.NewEngine(db.DB, userRepo, outboxRepo, logger)

	// External collaborators are interfaces; the mocks are the in-tree
	// implementations and real SDKs plug in behind the same contracts.
	identityProvider := newIdentityProvider(cfg.Provider, logger)
	billingProvider := newBillingProvider(cfg.Provider, logger)
	driveProvider := newDriveProvider(cfg.Provider, logger)

	progress := provision.NewRedisProgress(redis.Client)
	worker := provision.NewWorker(
		driveProvider,
		folderRepo,
		engine,
		progress,
		logger,
	)

	trigger := provision.NewTrigger(userRepo, folderRepo, engine, worker, logger)
	consumer := outbox.NewConsumer(
		outboxRepo,
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		logger,
	)
	trigger.Register(consumer)

	sessionSvc := session.NewService(
		identityProvider,
		userRepo,
		engine,
		sessionManager,
		logger,
	)
	sessionHandler := session.NewHandler(sessionSvc, sessionManager)

	paymentSvc := payment.NewService(billingProvider, userRepo, engine, logger)
	paymentHandler := payment.NewHandler(paymentSvc)

	stateHandler := state.NewHandler(engine, folderRepo, progress, logger)

	healthHandler := health.NewHandler(db, redis, outboxRepo)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:      db.Stats,
		RedisStats:   redis.PoolStats,
		DBPing:       db.Ping,
		RedisPing:    redis.Ping,
		FunnelCounts: userRepo.CountByState,
		OutboxLag:    outboxRepo.Backlog,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", sessionManager.JWKSHandler())

	optionalSession := middleware.OptionalSession(
		sessionManager,
		cfg.Session.CookieName,
	)
	authenticator := middleware.Authenticator(
		sessionManager,
		cfg.Session.CookieName,
	)
	adminOnly := middleware.RequireAdmin

	router.Route("/api/state", func(r chi.Router) {
		stateHandler.RegisterRoutes(r, optionalSession, authenticator)
		sessionHandler.RegisterRoutes(r)
		paymentHandler.RegisterRoutes(r, authenticator)
	})

	router.Route("/v1", func(r chi.Router) {
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	go consumer.Run(ctx)
	go worker.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func newIdentityProvider(
	cfg config.ProviderConfig,
	logger *slog.Logger,
) session.IdentityProvider {
	if !cfg.IdentityMock {
		logger.Warn("no identity SDK wired, using mock credential verifier")
	}
	return session.NewMockIdentity()
}

func newBillingProvider(
	cfg config.ProviderConfig,
	logger *slog.Logger,
) payment.BillingProvider {
	if !cfg.BillingMock {
		logger.Warn("no billing SDK wired, using mock checkout provider")
	}
	return payment.NewMockBilling(cfg.CheckoutURL)
}

func newDriveProvider(
	cfg config.ProviderConfig,
	logger *slog.Logger,
) provision.DriveProvider {
	if !cfg.DriveMock {
		logger.Warn("no drive SDK wired, using mock storage provider")
	}
	return provision.NewMockDrive()
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
