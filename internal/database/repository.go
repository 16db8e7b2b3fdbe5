package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Dezexus/subvision/pkg/models"
)

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Sources

// CreateSource creates a new source record
func (r *Repository) CreateSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		source.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sources (id, filename, size, duration, fps, total_frames, width, height, object_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		source.ID, source.Filename, source.Size, source.Duration, source.FPS,
		source.TotalFrames, source.Width, source.Height, source.ObjectKey,
	).Scan(&source.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

// GetSource retrieves a source by ID
func (r *Repository) GetSource(ctx context.Context, id string) (*models.Source, error) {
	query := `
		SELECT id, filename, size, duration, fps, total_frames, width, height, object_key, created_at
		FROM sources
		WHERE id = $1
	`

	var source models.Source
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&source.ID, &source.Filename, &source.Size, &source.Duration, &source.FPS,
		&source.TotalFrames, &source.Width, &source.Height, &source.ObjectKey,
		&source.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("source not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return &source, nil
}

// ListSources lists sources, newest first
func (r *Repository) ListSources(ctx context.Context, limit, offset int) ([]*models.Source, error) {
	query := `
		SELECT id, filename, size, duration, fps, total_frames, width, height, object_key, created_at
		FROM sources
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		var source models.Source
		err := rows.Scan(
			&source.ID, &source.Filename, &source.Size, &source.Duration, &source.FPS,
			&source.TotalFrames, &source.Width, &source.Height, &source.ObjectKey,
			&source.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, &source)
	}

	return sources, rows.Err()
}

// DeleteSource removes a source and its snapshot
func (r *Repository) DeleteSource(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM snapshots WHERE source_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// Snapshots
//
// The annotation collection persists as one flat JSON document per source.
// No format versioning beyond this.

// SaveSnapshot upserts the annotation collection for a source
func (r *Repository) SaveSnapshot(ctx context.Context, sourceID string, items []models.Annotation) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (source_id, annotations, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_id) DO UPDATE SET annotations = $2, updated_at = now()
	`

	if _, err := r.db.Pool.Exec(ctx, query, sourceID, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves the annotation collection for a source. A missing
// snapshot returns an empty collection.
func (r *Repository) LoadSnapshot(ctx context.Context, sourceID string) ([]models.Annotation, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT annotations FROM snapshots WHERE source_id = $1`, sourceID,
	).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var items []models.Annotation
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return items, nil
}
