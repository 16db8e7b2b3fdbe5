package models

import "time"

// Upload session statuses.
const (
	UploadStatusActive    = "active"
	UploadStatusCompleted = "completed"
	UploadStatusAborted   = "aborted"
)

// UploadSession tracks a resumable chunked upload. The ID is derived from
// file identity so an interrupted upload of the same file resumes under the
// same session.
type UploadSession struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	TotalSize   int64        `json:"total_size"`
	ChunkSize   int64        `json:"chunk_size"`
	TotalChunks int          `json:"total_chunks"`
	Received    map[int]bool `json:"received"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// MissingChunks returns the sorted set of chunk indices not yet received,
// which is what a resuming client asks for.
func (u *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, u.TotalChunks)
	for i := 0; i < u.TotalChunks; i++ {
		if !u.Received[i] {
			missing = append(missing, i)
		}
	}
	return missing
}
