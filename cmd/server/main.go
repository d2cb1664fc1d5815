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
	"syscall"
	"time"

	"github.com/jmr-leaderboard/internal/auth"
	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/handler"
	"github.com/jmr-leaderboard/internal/kafka"
	"github.com/jmr-leaderboard/internal/memory"
	"github.com/jmr-leaderboard/internal/metrics"
	"github.com/jmr-leaderboard/internal/postgres"
	"github.com/jmr-leaderboard/internal/redis"
	"github.com/jmr-leaderboard/internal/replay"
	"github.com/jmr-leaderboard/internal/service"
	"github.com/jmr-leaderboard/internal/storage"
	"github.com/jmr-leaderboard/internal/websocket"
	"github.com/jmr-leaderboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, sink, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	replays, err := replay.NewStore(cfg.Replay.Dir, logger)
	if err != nil {
		logger.Error("failed to open replay store", "dir", cfg.Replay.Dir, "error", err)
		os.Exit(1)
	}

	var metricsManager *metrics.Manager
	if cfg.Metrics.Enabled {
		metricsManager = metrics.NewManager()
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)

	leaderboardService := service.NewLeaderboardService(
		store,
		store,
		replays,
		cfg.Options,
		&cfg.Leaderboard,
		logger,
	)
	leaderboardService.SetHub(wsHub)
	leaderboardService.SetMetrics(metricsManager)
	if sink != nil {
		leaderboardService.AddEventSink(sink)
	}

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		logger.Info("initializing kafka publisher", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		publisher, err = kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create kafka publisher, continuing without kafka", "error", err)
		} else {
			leaderboardService.AddEventSink(publisher)
		}
	}

	janitor := worker.NewJanitor(replays, &cfg.Replay, metricsManager, logger)
	if cfg.Replay.JanitorEnabled {
		janitor.Start(ctx)
	}

	authService := auth.New(store, auth.Config{Register: cfg.Options.Register}, logger)
	messages := handler.NewMessageSource(cfg.Message.Path, cfg.Message.Default, logger)

	httpHandler := handler.NewHandler(leaderboardService, authService, replays, wsHub, messages, cfg.Server, logger)
	if metricsManager != nil {
		httpHandler.SetMetrics(metricsManager, cfg.Metrics.Path)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"storage", cfg.Storage.Driver,
			"register", cfg.Options.Register,
			"multi_scores", cfg.Options.MultiScores,
			"no_scores", cfg.Options.NoScores,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// In-flight submissions finish before the stores close.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	janitor.Stop()
	cancel()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka publisher", "error", err)
		}
	}

	logger.Info("server stopped")
}

// openStorage connects the configured record store. The returned sink is
// non-nil when the backend keeps its own score audit log.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, service.EventSink, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, repo, nil

	case config.DriverRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		store, err := redis.New(&cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.DriverMemory:
		logger.Warn("using in-memory storage; records are lost on restart")
		return memory.New(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
