// Package session implements the editor session: one open video, its
// annotation collection, view state, history, and preview pipelines.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/internal/history"
	"github.com/Dezexus/subvision/internal/metrics"
	"github.com/Dezexus/subvision/internal/preview"
	"github.com/Dezexus/subvision/internal/subtitle"
	"github.com/Dezexus/subvision/internal/timeline"
	"github.com/Dezexus/subvision/pkg/models"
)

// Options tunes a session; zero values fall back to the preview package
// defaults.
type Options struct {
	DebounceDelay   time.Duration
	EffectCacheSize int
	FrameCacheSize  int
	SeekGuardDelay  time.Duration

	// Measure estimates rendered text width when deriving the effect region
	// from the active annotation. Defaults to the rune-count heuristic.
	Measure subtitle.TextMeasurer
}

func (o *Options) fill() {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = preview.DebounceDelay
	}
	if o.EffectCacheSize <= 0 {
		o.EffectCacheSize = preview.EffectCacheCapacity
	}
	if o.FrameCacheSize <= 0 {
		o.FrameCacheSize = preview.FrameCacheCapacity
	}
	if o.SeekGuardDelay <= 0 {
		o.SeekGuardDelay = 150 * time.Millisecond
	}
	if o.Measure == nil {
		o.Measure = subtitle.MeasureByRuneCount
	}
}

// Session serializes every mutation of one editor's state behind a single
// mutex, the moral equivalent of the original single-task model: pointer and
// keyboard handling are synchronous, and only preview fetches suspend.
type Session struct {
	ID     string
	Source models.Source

	mu        sync.Mutex
	store     *subtitle.Store
	hist      *history.History
	zoom      *timeline.ZoomPan
	drag      timeline.Drag
	clock     *timeline.Clock
	effects   *preview.Pipeline
	frames    *preview.Pipeline
	params    models.EffectParams
	measure   subtitle.TextMeasurer
	seekGuard bool
	guard     time.Duration
	closed    bool

	latestMu     sync.RWMutex
	latestEffect renderedImage
	latestFrame  renderedImage

	log zerolog.Logger
}

// New opens a session for a source. The backend client feeds both preview
// pipelines.
func New(source models.Source, client *backend.Client, opts Options, log zerolog.Logger) *Session {
	opts.fill()

	s := &Session{
		ID:      uuid.New().String(),
		Source:  source,
		store:   subtitle.NewStore(),
		hist:    history.New(),
		zoom:    timeline.NewZoomPan(),
		clock:   timeline.NewClock(source.EffectiveFPS(), source.TotalFrames),
		params:  models.EffectParams{Mode: models.EffectModeBlur, Strength: 10, ScaleFactor: 1},
		measure: opts.Measure,
		guard:   opts.SeekGuardDelay,
	}
	s.log = log.With().Str("session_id", s.ID).Str("source_id", source.ID).Logger()

	s.effects = preview.NewPipeline("effect", opts.EffectCacheSize, opts.DebounceDelay,
		func(ctx context.Context, req preview.Request) (*preview.Image, error) {
			data, ct, err := client.FetchEffectPreview(ctx, req.SourceID, req.FrameIndex, req.Params, req.ActiveText)
			if err != nil {
				return nil, err
			}
			return preview.NewImage(data, ct, nil), nil
		}, s.log)

	s.frames = preview.NewPipeline("frame", opts.FrameCacheSize, opts.DebounceDelay,
		func(ctx context.Context, req preview.Request) (*preview.Image, error) {
			data, ct, err := client.FetchFrame(ctx, req.SourceID, req.FrameIndex)
			if err != nil {
				return nil, err
			}
			return preview.NewImage(data, ct, nil), nil
		}, s.log)

	s.effects.OnResult = func(_ preview.Request, img *preview.Image) {
		s.keepLatest(&s.latestEffect, img)
	}
	s.frames.OnResult = func(_ preview.Request, img *preview.Image) {
		s.keepLatest(&s.latestFrame, img)
	}

	s.clock.OnFrame = func(int) { s.refreshPreviews() }

	metrics.SessionsActive.Inc()
	return s
}

// renderedImage is a session-owned copy of the most recent preview, safe to
// serve after the cache has evicted the original.
type renderedImage struct {
	bytes       []byte
	contentType string
}

func (s *Session) keepLatest(dst *renderedImage, img *preview.Image) {
	buf := make([]byte, len(img.Bytes))
	copy(buf, img.Bytes)
	s.latestMu.Lock()
	dst.bytes = buf
	dst.contentType = img.ContentType
	s.latestMu.Unlock()
}

// LatestEffectPreview returns the most recent effect preview, if any.
func (s *Session) LatestEffectPreview() ([]byte, string, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latestEffect.bytes, s.latestEffect.contentType, len(s.latestEffect.bytes) > 0
}

// LatestFramePreview returns the most recent raw frame, if any.
func (s *Session) LatestFramePreview() ([]byte, string, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latestFrame.bytes, s.latestFrame.contentType, len(s.latestFrame.bytes) > 0
}

// Close tears the session down, releasing every preview resource not already
// owned by a cache and stopping playback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.clock.Stop()
	s.effects.Close()
	s.frames.Close()
	metrics.SessionsActive.Dec()
	s.log.Info().Msg("session closed")
}

// Store exposes the annotation collection.
func (s *Session) Store() *subtitle.Store { return s.store }

// EffectPipeline exposes the effect preview pipeline (result callbacks).
func (s *Session) EffectPipeline() *preview.Pipeline { return s.effects }

// FramePipeline exposes the raw frame pipeline.
func (s *Session) FramePipeline() *preview.Pipeline { return s.frames }

// ViewState returns the current timeline view.
func (s *Session) ViewState() models.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ViewState{
		ZoomLevel:    s.zoom.Zoom,
		ScrollOffset: s.zoom.Scroll,
		FrameIndex:   s.clock.Frame(),
		IsPlaying:    s.clock.Playing(),
	}
}

// Zoom applies an anchor-preserving zoom change. State commit, layout read
// and scroll write happen back to back here since the server owns the
// content-width model.
func (s *Session) Zoom(delta, anchorX float64) models.ViewState {
	s.mu.Lock()
	if s.zoom.ZoomBy(delta, anchorX) {
		s.zoom.CommitScroll()
	}
	s.mu.Unlock()
	return s.ViewState()
}

// Pan scrolls the view horizontally.
func (s *Session) Pan(delta float64) models.ViewState {
	s.mu.Lock()
	s.zoom.Pan(delta)
	s.mu.Unlock()
	return s.ViewState()
}

// ResetZoom restores zoom 1 at the origin.
func (s *Session) ResetZoom() models.ViewState {
	s.mu.Lock()
	s.zoom.Reset()
	s.mu.Unlock()
	return s.ViewState()
}

// SeekClick interprets a timeline click as a seek. Ignored while a boundary
// drag is in progress or within the guard delay after one ended, so the
// drag's terminating pointer-up can't double as a seek.
func (s *Session) SeekClick(screenX, baseWidth float64) bool {
	s.mu.Lock()
	if s.drag.Active() || s.seekGuard {
		s.mu.Unlock()
		return false
	}
	t := s.zoom.TimeAt(screenX, baseWidth, s.Source.Duration)
	frame := int(t*s.Source.EffectiveFPS() + 0.5)
	s.mu.Unlock()

	s.clock.Seek(frame)
	return true
}

// Seek jumps straight to a frame index.
func (s *Session) Seek(frame int) {
	s.clock.Seek(frame)
}

// TogglePlay flips playback (keyboard space).
func (s *Session) TogglePlay() {
	s.clock.Toggle()
}

// Step moves the playhead by delta frames (keyboard arrows).
func (s *Session) Step(delta int) {
	s.clock.Step(delta)
}

// HandleKey routes a keyboard shortcut. Everything is suppressed while a
// text-editing control owns focus.
func (s *Session) HandleKey(key string, textFocus bool) {
	if textFocus {
		return
	}
	switch key {
	case " ", "space":
		s.TogglePlay()
	case "left":
		s.Step(-1)
	case "right":
		s.Step(1)
	case "+", "=":
		s.Zoom(1, 0)
	case "-":
		s.Zoom(-1, 0)
	case "0":
		s.ResetZoom()
	}
}

// BeginDrag starts a boundary drag, snapshotting once so the whole drag
// undoes as a unit. Returns false for an unknown annotation.
func (s *Session) BeginDrag(id int64, edge timeline.Edge, pointerX float64) bool {
	a, ok := s.store.Get(id)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.hist.Snapshot(s.store.All(), s.store.Rev())
	s.drag.Begin(a, edge, pointerX)
	s.mu.Unlock()
	return true
}

// DragTo applies a pointer move: the boundary updates live, and the preview
// for the current frame is invalidated and re-requested.
func (s *Session) DragTo(pointerX, baseWidth float64) (timeline.DragUpdate, bool) {
	s.mu.Lock()
	update, ok := s.drag.Move(
		pointerX,
		s.zoom.ContentWidth(baseWidth),
		s.Source.Duration,
		s.Source.EffectiveFPS(),
		s.Source.TotalFrames,
	)
	s.mu.Unlock()
	if !ok {
		return update, false
	}

	s.store.SetBoundary(update)
	s.refreshPreviews()
	return update, true
}

// EndDrag finishes the drag and arms the seek guard for the configured
// delay.
func (s *Session) EndDrag() {
	s.mu.Lock()
	s.drag.End()
	s.seekGuard = true
	guard := s.guard
	s.mu.Unlock()

	time.AfterFunc(guard, func() {
		s.mu.Lock()
		s.seekGuard = false
		s.mu.Unlock()
	})
}

// Delete removes an annotation behind an implicit snapshot.
func (s *Session) Delete(id int64) bool {
	s.mu.Lock()
	s.hist.Snapshot(s.store.All(), s.store.Rev())
	s.mu.Unlock()
	ok := s.store.Delete(id)
	if ok {
		s.refreshPreviews()
	}
	return ok
}

// Merge combines an annotation with its successor behind an implicit
// snapshot, so a single undo restores both originals.
func (s *Session) Merge(id int64) (models.Annotation, bool) {
	s.mu.Lock()
	s.hist.Snapshot(s.store.All(), s.store.Rev())
	s.mu.Unlock()
	merged, ok := s.store.Merge(id)
	if ok {
		s.refreshPreviews()
	}
	return merged, ok
}

// BeginTextEdit snapshots once at the start of a text-edit burst; the
// following SetText calls then undo as one unit. Calling it again without an
// intervening mutation is a no-op.
func (s *Session) BeginTextEdit() {
	s.mu.Lock()
	s.hist.Snapshot(s.store.All(), s.store.Rev())
	s.mu.Unlock()
}

// SetText writes an annotation's text.
func (s *Session) SetText(id int64, text string) bool {
	ok := s.store.SetText(id, text)
	if ok {
		s.refreshPreviews()
	}
	return ok
}

// Undo restores the previous snapshot. Returns false when history is empty.
func (s *Session) Undo() bool {
	s.mu.Lock()
	restored, ok := s.hist.Undo(s.store.All(), s.store.Rev())
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.store.Replace(restored)
	metrics.HistoryOperations.WithLabelValues("undo").Inc()
	s.refreshPreviews()
	return true
}

// Redo restores the next snapshot.
func (s *Session) Redo() bool {
	s.mu.Lock()
	restored, ok := s.hist.Redo(s.store.All(), s.store.Rev())
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.store.Replace(restored)
	metrics.HistoryOperations.WithLabelValues("redo").Inc()
	s.refreshPreviews()
	return true
}

// SetEffectParams replaces the effect parameter set and schedules a new
// debounced effect preview.
func (s *Session) SetEffectParams(p models.EffectParams) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	s.refreshPreviews()
}

// EffectParams returns the current parameter set.
func (s *Session) EffectParams() models.EffectParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Import replaces the collection with a parsed subtitle file, behind a
// snapshot so the import is undoable.
func (s *Session) Import(items []models.Annotation) {
	s.mu.Lock()
	s.hist.Snapshot(s.store.All(), s.store.Rev())
	s.mu.Unlock()
	s.store.Replace(items)
	s.refreshPreviews()
}

// refreshPreviews re-requests both pipelines for the current frame and
// parameter set. Stale in-flight fetches for older inputs will see a bumped
// generation and discard themselves.
func (s *Session) refreshPreviews() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	frame := s.clock.Frame()
	params := s.params
	s.mu.Unlock()

	t := float64(frame) / s.Source.EffectiveFPS()
	var activeText string
	if a, ok := s.store.ActiveAt(t); ok {
		activeText = a.Text
	}

	// A caller-pinned region passes through verbatim; otherwise derive the
	// region of interest from the active annotation's text.
	if params.Region == (models.Rect{}) && activeText != "" {
		x, y, w, h := subtitle.EffectRegion(activeText, s.Source.Width, s.Source.Height, s.measure)
		params.Region = models.Rect{X: x, Y: y, Width: w, Height: h}
	}

	s.effects.Request(preview.Request{
		SourceID:   s.Source.ID,
		FrameIndex: frame,
		Params:     params,
		ActiveText: activeText,
	})
	s.frames.Request(preview.Request{
		SourceID:   s.Source.ID,
		FrameIndex: frame,
	})
}
