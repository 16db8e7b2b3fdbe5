package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/internal/subtitle"
	"github.com/Dezexus/subvision/internal/timeline"
	"github.com/Dezexus/subvision/pkg/models"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL, 2*time.Second, zerolog.Nop())
	source := models.Source{
		ID:          "src-1",
		Filename:    "clip.mp4",
		Duration:    10,
		FPS:         10,
		TotalFrames: 100,
		Width:       1920,
		Height:      1080,
	}

	s := New(source, client, Options{
		DebounceDelay:  time.Millisecond,
		SeekGuardDelay: 50 * time.Millisecond,
	}, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestMergeUndoRestoresBothOriginals(t *testing.T) {
	s := newTestSession(t)

	a := models.Annotation{ID: 1, Start: 0, End: 2, Text: "A", Confidence: 0.9}
	b := models.Annotation{ID: 2, Start: 3, End: 4, Text: "B", Confidence: 0.7}
	s.Store().Add(a)
	s.Store().Add(b)

	merged, ok := s.Merge(1)
	assert.True(t, ok)
	assert.Equal(t, models.Annotation{
		ID: 1, Start: 0, End: 4, Text: "A B", Confidence: 0.8, Edited: true,
	}, merged)
	assert.Equal(t, 1, s.Store().Len())

	assert.True(t, s.Undo())
	assert.Equal(t, []models.Annotation{a, b}, s.Store().All())

	assert.True(t, s.Redo())
	assert.Equal(t, []models.Annotation{merged}, s.Store().All())
}

func TestDragUndoesAsSingleUnit(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 1, End: 2, Text: "x"})

	assert.True(t, s.BeginDrag(1, timeline.EdgeEnd, 500))

	// Several live moves during one gesture.
	for _, x := range []float64{520.0, 560.0, 600.0} {
		_, ok := s.DragTo(x, 1000)
		assert.True(t, ok)
	}
	s.EndDrag()

	a, _ := s.Store().Get(1)
	assert.Equal(t, 3.0, a.End)
	assert.True(t, a.Edited)

	// One undo takes the whole gesture back.
	assert.True(t, s.Undo())
	a, _ = s.Store().Get(1)
	assert.Equal(t, 2.0, a.End)
	assert.False(t, s.Undo(), "only one history entry for the gesture")
}

func TestDragToQuantizesBoundary(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 1, End: 2})

	assert.True(t, s.BeginDrag(1, timeline.EdgeEnd, 500))
	update, ok := s.DragTo(405, 1000)
	assert.True(t, ok)
	assert.Equal(t, 11, update.Frame)
	assert.InDelta(t, 1.1, update.Time, 1e-9)

	a, _ := s.Store().Get(1)
	assert.InDelta(t, 1.1, a.End, 1e-9)
}

func TestBeginDragUnknownAnnotation(t *testing.T) {
	s := newTestSession(t)
	assert.False(t, s.BeginDrag(99, timeline.EdgeStart, 0))
}

func TestSeekClickBlockedWhileDragging(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 1, End: 2})

	s.BeginDrag(1, timeline.EdgeEnd, 500)
	assert.False(t, s.SeekClick(300, 1000), "click during drag must not seek")

	s.EndDrag()
	assert.False(t, s.SeekClick(300, 1000), "click within the guard window must not seek")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, s.SeekClick(300, 1000))
}

func TestSeekClickSeeksToTime(t *testing.T) {
	s := newTestSession(t)

	// zoom 1, base width 1000: x=500 is 5s, frame 50 at 10fps.
	assert.True(t, s.SeekClick(500, 1000))
	assert.Equal(t, 50, s.ViewState().FrameIndex)
}

func TestTextEditUndoesAsSingleUnit(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 0, End: 1, Text: "orig"})

	s.BeginTextEdit()
	s.BeginTextEdit() // duplicate focus event, must not add a second entry
	assert.True(t, s.SetText(1, "o"))
	assert.True(t, s.SetText(1, "ne"))
	assert.True(t, s.SetText(1, "new"))

	assert.True(t, s.Undo())
	a, _ := s.Store().Get(1)
	assert.Equal(t, "orig", a.Text)
	assert.False(t, s.Undo())
}

func TestDeleteUndoable(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 0, End: 1, Text: "keep me"})

	assert.True(t, s.Delete(1))
	assert.Equal(t, 0, s.Store().Len())

	assert.True(t, s.Undo())
	a, ok := s.Store().Get(1)
	assert.True(t, ok)
	assert.Equal(t, "keep me", a.Text)
}

func TestImportUndoable(t *testing.T) {
	s := newTestSession(t)
	s.Store().Add(models.Annotation{ID: 1, Start: 0, End: 1, Text: "old"})

	s.Import([]models.Annotation{
		{ID: 1, Start: 0, End: 2, Text: "imported A"},
		{ID: 2, Start: 3, End: 5, Text: "imported B"},
	})
	assert.Equal(t, 2, s.Store().Len())

	assert.True(t, s.Undo())
	assert.Equal(t, 1, s.Store().Len())
	a, _ := s.Store().Get(1)
	assert.Equal(t, "old", a.Text)
}

func TestHandleKeySuppressedWhileTextFocused(t *testing.T) {
	s := newTestSession(t)

	s.HandleKey(" ", true)
	assert.False(t, s.ViewState().IsPlaying, "space with text focus must not toggle playback")

	s.HandleKey("right", true)
	assert.Equal(t, 0, s.ViewState().FrameIndex)

	s.HandleKey("right", false)
	assert.Equal(t, 1, s.ViewState().FrameIndex)
}

func TestHandleKeyShortcuts(t *testing.T) {
	s := newTestSession(t)

	s.HandleKey("+", false)
	assert.Equal(t, 2.0, s.ViewState().ZoomLevel)

	s.HandleKey("-", false)
	assert.Equal(t, 1.0, s.ViewState().ZoomLevel)

	s.HandleKey(" ", false)
	assert.True(t, s.ViewState().IsPlaying)
	s.HandleKey("space", false)
	assert.False(t, s.ViewState().IsPlaying)

	s.Zoom(3, 0)
	s.Pan(100)
	s.HandleKey("0", false)
	view := s.ViewState()
	assert.Equal(t, 1.0, view.ZoomLevel)
	assert.Equal(t, 0.0, view.ScrollOffset)
}

func TestUndoEmptyHistory(t *testing.T) {
	s := newTestSession(t)
	assert.False(t, s.Undo())
	assert.False(t, s.Redo())
}

func TestSetEffectParams(t *testing.T) {
	s := newTestSession(t)

	p := models.EffectParams{Mode: models.EffectModeInpaint, Strength: 25, ScaleFactor: 0.5}
	s.SetEffectParams(p)
	assert.Equal(t, p, s.EffectParams())
}

func TestLatestPreviewAfterFetch(t *testing.T) {
	s := newTestSession(t)

	s.SetEffectParams(models.EffectParams{Mode: models.EffectModeBlur, Strength: 5, ScaleFactor: 1})

	assert.Eventually(t, func() bool {
		_, _, ok := s.LatestEffectPreview()
		return ok
	}, 2*time.Second, 5*time.Millisecond, "effect preview never rendered")

	data, contentType, ok := s.LatestEffectPreview()
	assert.True(t, ok)
	assert.Equal(t, "image/png", contentType)
	assert.NotEmpty(t, data)
}

func TestEffectRequestDerivesRegionFromActiveText(t *testing.T) {
	regions := make(chan models.Rect, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/effects/") {
			var body struct {
				Params models.EffectParams `json:"params"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			regions <- body.Params.Region
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, 2*time.Second, zerolog.Nop())
	source := models.Source{
		ID: "src-1", Duration: 10, FPS: 10, TotalFrames: 100, Width: 1920, Height: 1080,
	}
	s := New(source, client, Options{DebounceDelay: time.Millisecond}, zerolog.Nop())
	defer s.Close()

	s.Store().Add(models.Annotation{ID: 1, Start: 0, End: 2, Text: "hello"})
	s.SetEffectParams(models.EffectParams{Mode: models.EffectModeBlur, Strength: 5, ScaleFactor: 1})

	x, y, w, h := subtitle.EffectRegion("hello", 1920, 1080, subtitle.MeasureByRuneCount)
	select {
	case got := <-regions:
		assert.Equal(t, models.Rect{X: x, Y: y, Width: w, Height: h}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("effect preview never requested")
	}

	// An explicitly pinned region is not overridden.
	pinned := models.Rect{X: 10, Y: 20, Width: 300, Height: 40}
	s.SetEffectParams(models.EffectParams{Mode: models.EffectModeBlur, Strength: 5, ScaleFactor: 1, Region: pinned})
	select {
	case got := <-regions:
		assert.Equal(t, pinned, got)
	case <-time.After(2 * time.Second):
		t.Fatal("pinned-region preview never requested")
	}
}

func TestManagerLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{1})
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, time.Second, zerolog.Nop())
	m := NewManager(client, Options{}, zerolog.Nop())

	source := models.Source{ID: "src-1", FPS: 10, TotalFrames: 10, Duration: 1}
	s := m.Open(source)

	got, err := m.Get(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, s, got)

	bySource, ok := m.BySource("src-1")
	assert.True(t, ok)
	assert.Equal(t, s, bySource)

	m.Close(s.ID)
	_, err = m.Get(s.ID)
	assert.Error(t, err)

	m.Close(s.ID) // idempotent
}
