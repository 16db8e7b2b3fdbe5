package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/internal/cache"
	"github.com/Dezexus/subvision/internal/config"
	"github.com/Dezexus/subvision/internal/database"
	"github.com/Dezexus/subvision/internal/logging"
	"github.com/Dezexus/subvision/pkg/models"
)

const snapshotTTL = 24 * time.Hour

// Worker persists extraction results so a crash or a closed browser never
// loses recognized subtitles: events accumulate in Redis while a job runs
// and are flushed to the database when it finishes.
type Worker struct {
	repo  *database.Repository
	cache *cache.Cache
	log   *logging.Logger
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

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	consumer, err := backend.NewEventConsumer(cfg.Queue, "subvision_events.worker", logger.Zerolog())
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer consumer.Close()

	worker := &Worker{
		repo:  database.NewRepository(db),
		cache: redisCache,
		log:   logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	logger.Info("Worker started, consuming job events")
	if err := consumer.Consume(ctx, worker.handleEvent); err != nil && ctx.Err() == nil {
		logger.Fatalf("Consumer failed: %v", err)
	}
	logger.Info("Worker stopped")
}

// handleEvent folds one job event into the persisted state for its source.
// The client identifier on the push channel is the source ID.
func (w *Worker) handleEvent(event models.JobEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case models.JobEventSubtitleNew, models.JobEventSubtitleUpdate:
		if event.Subtitle == nil {
			return nil
		}
		return w.applySubtitle(ctx, event.ClientID, *event.Subtitle)

	case models.JobEventFinish:
		return w.flush(ctx, event.ClientID, event.Success)

	case models.JobEventProgress:
		if event.Progress != nil {
			w.log.WithClientID(event.ClientID).Debugf("progress %d/%d eta %.1fs",
				event.Progress.Current, event.Progress.Total, event.Progress.ETA)
		}
		return nil

	case models.JobEventLog:
		w.log.WithClientID(event.ClientID).Debug(event.Log)
		return nil
	}
	return nil
}

func (w *Worker) applySubtitle(ctx context.Context, sourceID string, a models.Annotation) error {
	items, err := w.cache.GetSnapshot(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	replaced := false
	for i := range items {
		if items[i].ID == a.ID {
			items[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, a)
	}

	return w.cache.SetSnapshot(ctx, sourceID, items, snapshotTTL)
}

func (w *Worker) flush(ctx context.Context, sourceID string, success bool) error {
	items, err := w.cache.GetSnapshot(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	if err := w.repo.SaveSnapshot(ctx, sourceID, items); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	w.cache.DeleteSnapshot(ctx, sourceID)

	w.log.WithSourceID(sourceID).Infof("job finished (success=%v), persisted %d annotations", success, len(items))
	return nil
}
