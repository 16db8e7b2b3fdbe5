package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dezexus/subvision/pkg/models"
)

// Cache provides cross-restart session state caching using Redis: view
// state, last annotation snapshot, and resumable-upload bookkeeping.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// View State Operations

// SetViewState caches a session's timeline view
func (c *Cache) SetViewState(ctx context.Context, sourceID string, view models.ViewState, ttl time.Duration) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal view state: %w", err)
	}

	key := fmt.Sprintf("view:%s", sourceID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetViewState retrieves a cached view state. A miss returns ok=false, not
// an error.
func (c *Cache) GetViewState(ctx context.Context, sourceID string) (models.ViewState, bool, error) {
	key := fmt.Sprintf("view:%s", sourceID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.ViewState{}, false, nil // Cache miss
		}
		return models.ViewState{}, false, fmt.Errorf("failed to get view state from cache: %w", err)
	}

	var view models.ViewState
	if err := json.Unmarshal(data, &view); err != nil {
		return models.ViewState{}, false, fmt.Errorf("failed to unmarshal view state: %w", err)
	}

	return view, true, nil
}

// Snapshot Operations

// SetSnapshot caches the latest annotation collection for a source
func (c *Cache) SetSnapshot(ctx context.Context, sourceID string, items []models.Annotation, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshot:%s", sourceID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSnapshot retrieves the cached annotation collection for a source
func (c *Cache) GetSnapshot(ctx context.Context, sourceID string) ([]models.Annotation, error) {
	key := fmt.Sprintf("snapshot:%s", sourceID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get snapshot from cache: %w", err)
	}

	var items []models.Annotation
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return items, nil
}

// DeleteSnapshot removes a cached snapshot. No-op when absent.
func (c *Cache) DeleteSnapshot(ctx context.Context, sourceID string) error {
	key := fmt.Sprintf("snapshot:%s", sourceID)
	return c.client.Del(ctx, key).Err()
}

// Upload Session Operations

// SetUploadSession caches resumable-upload bookkeeping so an interrupted
// upload survives an API restart
func (c *Cache) SetUploadSession(ctx context.Context, upload *models.UploadSession, ttl time.Duration) error {
	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("failed to marshal upload session: %w", err)
	}

	key := fmt.Sprintf("upload:%s", upload.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetUploadSession retrieves a cached upload session
func (c *Cache) GetUploadSession(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	key := fmt.Sprintf("upload:%s", uploadID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get upload session from cache: %w", err)
	}

	var upload models.UploadSession
	if err := json.Unmarshal(data, &upload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload session: %w", err)
	}

	return &upload, nil
}

// DeleteUploadSession removes a cached upload session
func (c *Cache) DeleteUploadSession(ctx context.Context, uploadID string) error {
	key := fmt.Sprintf("upload:%s", uploadID)
	return c.client.Del(ctx, key).Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
