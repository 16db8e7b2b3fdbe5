package models

import "time"

// DefaultFPS is assumed when the backend probe omits a frame rate.
const DefaultFPS = 25.0

// Source represents an uploaded video under annotation.
type Source struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	Size        int64     `json:"size" db:"size"`
	Duration    float64   `json:"duration" db:"duration"`
	FPS         float64   `json:"fps" db:"fps"`
	TotalFrames int       `json:"total_frames" db:"total_frames"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	ObjectKey   string    `json:"object_key" db:"object_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// EffectiveFPS returns the probed frame rate, or DefaultFPS when unknown.
func (s Source) EffectiveFPS() float64 {
	if s.FPS <= 0 {
		return DefaultFPS
	}
	return s.FPS
}
