// Strategy Analyser Server
// Entry point for the log ingestion and analysis service

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/mayura26/strategy-analyser-sub000/internal/api/http"
	"github.com/mayura26/strategy-analyser-sub000/internal/cache"
	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/db"
	"github.com/mayura26/strategy-analyser-sub000/internal/db/repository"
	"github.com/mayura26/strategy-analyser-sub000/internal/events"
	"github.com/mayura26/strategy-analyser-sub000/internal/ingest"
	"github.com/mayura26/strategy-analyser-sub000/internal/parser"
	"github.com/mayura26/strategy-analyser-sub000/internal/scheduler"
	"github.com/mayura26/strategy-analyser-sub000/web"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Strategy Analyser",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Env),
		zap.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Application error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Strategy Analyser stopped")
}

// run initializes and runs all application components.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 1. Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL...")
	pool, err := db.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.EnsureSchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("Database schema ensured")
	}

	repos := repository.NewRepositories(pool)

	// 2. Run cache (Redis), optional
	var runCache *cache.RunCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, run cache disabled", zap.Error(err))
		} else {
			runCache = cache.NewRunCache(rdb, cfg.Redis.CacheTTL(), logger)
			defer runCache.Close()
			logger.Info("Run cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 3. Event publisher (RabbitMQ), optional
	var publisher events.Publisher = events.NewNoOpPublisher()
	if cfg.RabbitMQ.URL != "" {
		logger.Info("Connecting to RabbitMQ...")
		p, err := events.NewRabbitMQPublisher(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn("Failed to connect to RabbitMQ, using no-op publisher", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
			logger.Info("Connected to RabbitMQ")
		}
	} else {
		logger.Info("RabbitMQ not configured, using no-op publisher")
	}

	// 4. WebSocket hub and ingest service
	hub := httpapi.NewHub(logger)
	go hub.Run()
	defer hub.Shutdown()

	p := parser.NewParser(parser.DefaultRegistry(), logger, parser.WithPointValue(cfg.Parser.PointValue))
	svc := ingest.NewService(p, repos, runCache, publisher, hub, logger)

	// 5. Remote log submissions (RabbitMQ), optional
	var subscriber events.Subscriber = events.NewNoOpSubscriber()
	if cfg.RabbitMQ.URL != "" {
		sub, err := events.NewRabbitMQSubscriber(&cfg.RabbitMQ, cfg.RabbitMQ.SubmitQueue, logger)
		if err != nil {
			logger.Warn("Failed to create RabbitMQ subscriber, remote submissions disabled", zap.Error(err))
		} else {
			subscriber = sub
		}
	}
	defer subscriber.Close()

	handler := events.NewSubmissionHandler(svc.HandleSubmission, logger)
	if err := subscriber.Subscribe(ctx, []string{events.RoutingKeyLogSubmitted}, handler); err != nil {
		logger.Warn("Failed to subscribe to log submissions", zap.Error(err))
	}

	// 6. Inbox scheduler, optional
	var inbox *scheduler.Scheduler
	if cfg.Inbox.Enabled {
		inbox = scheduler.NewScheduler(&cfg.Inbox, svc, logger)
		if err := inbox.Start(); err != nil {
			return fmt.Errorf("failed to start inbox scheduler: %w", err)
		}
	}

	// 7. HTTP server
	apiHandler := httpapi.NewHandler(svc, cfg.Server.MaxBodyBytes, logger)
	httpServer := httpapi.NewServer(&cfg.Server, apiHandler, Version, logger)
	httpServer.SetDatabase(pool)
	httpServer.SetHub(hub)
	if inbox != nil {
		httpServer.SetInbox(inbox)
	}
	if dashboard, err := web.Dashboard(); err != nil {
		logger.Warn("Dashboard files unavailable", zap.Error(err))
	} else {
		httpServer.SetStatic(dashboard)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Strategy Analyser initialized and running",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Bool("inbox", inbox != nil),
		zap.Bool("cache", runCache != nil),
	)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("Shutting down Strategy Analyser...")

	shutdownTimeout := 30 * time.Second
	if d, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err == nil {
		shutdownTimeout = d
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	if inbox != nil {
		if err := inbox.Stop(); err != nil {
			logger.Error("Error stopping inbox scheduler", zap.Error(err))
		}
	}

	return nil
}

// initLogger initializes the zap logger based on configuration.
func initLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapCfg.Level = level

	if cfg.OutputPath != "" {
		zapCfg.OutputPaths = []string{cfg.OutputPath}
	}

	return zapCfg.Build()
}
