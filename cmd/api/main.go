package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/internal/cache"
	"github.com/Dezexus/subvision/internal/config"
	"github.com/Dezexus/subvision/internal/database"
	"github.com/Dezexus/subvision/internal/logging"
	"github.com/Dezexus/subvision/internal/metrics"
	"github.com/Dezexus/subvision/internal/middleware"
	"github.com/Dezexus/subvision/internal/session"
	"github.com/Dezexus/subvision/internal/storage"
	"github.com/Dezexus/subvision/internal/tracing"
	"github.com/Dezexus/subvision/internal/upload"
)

// API wires the HTTP surface to the editor core and its backing services.
type API struct {
	repo     *database.Repository
	db       *database.DB
	storage  *storage.Storage
	cache    *cache.Cache
	uploads  *upload.Service
	sessions *session.Manager
	hub      *backend.Hub
	client   *backend.Client
	log      zerolog.Logger
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	logger, err := logging.NewDefaultLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zl := logger.Zerolog()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	if cfg.Tracing.Enabled {
		tracer, closer, err := tracing.InitTracer("subvision-api", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
		_ = tracer
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, zl)

	sessions := session.NewManager(client, session.Options{
		DebounceDelay:   cfg.Editor.DebounceDelay,
		EffectCacheSize: cfg.Editor.EffectCacheSize,
		FrameCacheSize:  cfg.Editor.FrameCacheSize,
		SeekGuardDelay:  cfg.Editor.SeekGuardDelay,
	}, zl)

	uploads := upload.NewService(cfg.Editor.UploadTempDir, cfg.Editor.UploadChunkSize, stor, zl)

	api := &API{
		repo:     repo,
		db:       db,
		storage:  stor,
		cache:    redisCache,
		uploads:  uploads,
		sessions: sessions,
		hub:      backend.NewHub(),
		client:   client,
		log:      zl,
	}

	// Relay broker events into the in-process hub and open sessions.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	consumer, err := backend.NewEventConsumer(cfg.Queue, "subvision_events.api", zl)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(consumerCtx, api.handleJobEvent); err != nil && consumerCtx.Err() == nil {
			zl.Error().Err(err).Msg("event consumer stopped")
		}
	}()

	metricsSrv := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsSrv.Start(); err != nil && err != http.ErrServerClosed {
			zl.Error().Err(err).Msg("metrics server failed")
		}
	}()

	router := setupRouter(api, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zl.Info().Str("addr", addr).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zl.Info().Msg("shutting down")
	stopConsumer()
	sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	metricsSrv.Shutdown(ctx)

	zl.Info().Msg("server stopped")
}
