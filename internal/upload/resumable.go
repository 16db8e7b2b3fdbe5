// Package upload implements resumable chunked uploads of source videos.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/metrics"
	"github.com/Dezexus/subvision/pkg/models"
)

// ObjectStore is the slice of the storage layer the upload service needs:
// moving an assembled file into object storage.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
}

const (
	DefaultChunkSize  = 5 * 1024 * 1024   // 5MB
	MaxChunkSize      = 100 * 1024 * 1024 // 100MB
	SessionExpiration = 24 * time.Hour
)

// Service manages resumable upload sessions. The session ID is derived from
// file identity, so re-initiating an interrupted upload of the same file
// resumes the existing session and the client only sends the missing chunks.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]*models.UploadSession
	tempDir   string
	chunkSize int64
	store     ObjectStore
	log       zerolog.Logger
}

// NewService creates an upload service writing chunks under tempDir and
// assembling completed files into object storage.
func NewService(tempDir string, chunkSize int64, store ObjectStore, log zerolog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}

	return &Service{
		sessions:  make(map[string]*models.UploadSession),
		tempDir:   tempDir,
		chunkSize: chunkSize,
		store:     store,
		log:       log.With().Str("component", "upload").Logger(),
	}
}

// SessionID derives the upload identifier from file identity.
func SessionID(filename string, totalSize int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d", filename, totalSize)))
	return hex.EncodeToString(sum[:])
}

// Initiate starts a new upload session, or returns the existing active one
// for the same file so the client can resume.
func (s *Service) Initiate(filename string, totalSize int64) (*models.UploadSession, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("invalid total size: %d", totalSize)
	}

	id := SessionID(filename, totalSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok && existing.Status == models.UploadStatusActive {
		if time.Now().Before(existing.ExpiresAt) {
			return existing, nil
		}
		delete(s.sessions, id)
	}

	totalChunks := int((totalSize + s.chunkSize - 1) / s.chunkSize)
	session := &models.UploadSession{
		ID:          id,
		Filename:    filename,
		TotalSize:   totalSize,
		ChunkSize:   s.chunkSize,
		TotalChunks: totalChunks,
		Received:    make(map[int]bool),
		Status:      models.UploadStatusActive,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(SessionExpiration),
	}

	if err := os.MkdirAll(s.sessionDir(id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Recover chunks already on disk from a previous run.
	for i := 0; i < totalChunks; i++ {
		if _, err := os.Stat(s.chunkPath(id, i)); err == nil {
			session.Received[i] = true
		}
	}

	s.sessions[id] = session
	metrics.UploadsInitiated.Inc()
	s.log.Info().Str("upload_id", id).Str("filename", filename).
		Int64("size", totalSize).Int("chunks", totalChunks).Msg("upload initiated")

	return session, nil
}

// PutChunk stores one chunk. Re-sending a chunk overwrites it harmlessly.
func (s *Service) PutChunk(uploadID string, index int, data io.Reader) error {
	session, err := s.activeSession(uploadID)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.TotalChunks {
		return fmt.Errorf("invalid chunk index: %d", index)
	}

	file, err := os.Create(s.chunkPath(uploadID, index))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}

	s.mu.Lock()
	session.Received[index] = true
	s.mu.Unlock()

	metrics.UploadChunksReceived.Inc()
	return nil
}

// Status returns the session with its missing-chunk set.
func (s *Service) Status(uploadID string) (*models.UploadSession, []int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return nil, nil, fmt.Errorf("upload not found: %s", uploadID)
	}
	return session, session.MissingChunks(), nil
}

// Complete assembles the chunks in order and moves the object into storage
// under the returned key. Fails while chunks are still missing.
func (s *Service) Complete(ctx context.Context, uploadID string) (string, error) {
	session, err := s.activeSession(uploadID)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	missing := session.MissingChunks()
	s.mu.RUnlock()
	if len(missing) > 0 {
		return "", fmt.Errorf("upload incomplete: %d chunks missing", len(missing))
	}

	assembled := filepath.Join(s.sessionDir(uploadID), "assembled")
	out, err := os.Create(assembled)
	if err != nil {
		return "", fmt.Errorf("failed to create assembly file: %w", err)
	}

	for i := 0; i < session.TotalChunks; i++ {
		if err := appendChunk(out, s.chunkPath(uploadID, i)); err != nil {
			out.Close()
			return "", err
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to finish assembly: %w", err)
	}

	objectKey := fmt.Sprintf("sources/%s/%s", uploadID, session.Filename)
	if err := s.store.UploadFile(ctx, objectKey, assembled); err != nil {
		return "", err
	}

	s.mu.Lock()
	session.Status = models.UploadStatusCompleted
	s.mu.Unlock()

	os.RemoveAll(s.sessionDir(uploadID))
	metrics.UploadsCompleted.Inc()
	s.log.Info().Str("upload_id", uploadID).Str("object_key", objectKey).Msg("upload completed")

	return objectKey, nil
}

// Abort discards a session and its chunks. Idempotent.
func (s *Service) Abort(uploadID string) {
	s.mu.Lock()
	if session, ok := s.sessions[uploadID]; ok {
		session.Status = models.UploadStatusAborted
		delete(s.sessions, uploadID)
	}
	s.mu.Unlock()
	os.RemoveAll(s.sessionDir(uploadID))
}

func (s *Service) activeSession(uploadID string) (*models.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return nil, fmt.Errorf("upload not found: %s", uploadID)
	}
	if session.Status != models.UploadStatusActive {
		return nil, fmt.Errorf("upload is not active")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("upload has expired")
	}
	return session, nil
}

func (s *Service) sessionDir(uploadID string) string {
	return filepath.Join(s.tempDir, "uploads", uploadID)
}

func (s *Service) chunkPath(uploadID string, index int) string {
	return filepath.Join(s.sessionDir(uploadID), fmt.Sprintf("chunk_%d", index))
}

func appendChunk(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open chunk: %w", err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to append chunk: %w", err)
	}
	return nil
}
