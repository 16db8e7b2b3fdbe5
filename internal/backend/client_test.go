package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Dezexus/subvision/pkg/models"
)

func TestFetchFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/frames/src-1/42", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	data, contentType, err := c.FetchFrame(context.Background(), "src-1", 42)
	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestFetchEffectPreviewPostsParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/effects/src-1/7", r.URL.Path)

		var body struct {
			Params     models.EffectParams `json:"params"`
			ActiveText string              `json:"active_text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, models.EffectModeBlur, body.Params.Mode)
		assert.Equal(t, 15, body.Params.Strength)
		assert.Equal(t, "hello", body.ActiveText)

		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	params := models.EffectParams{Mode: models.EffectModeBlur, Strength: 15, ScaleFactor: 1}
	data, _, err := c.FetchEffectPreview(context.Background(), "src-1", 7, params, "hello")
	assert.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestRejectionCarriesVerbatimReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("frame index out of range"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	_, _, err := c.FetchFrame(context.Background(), "src-1", 9999)

	var rejected *RejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Status)
	assert.Equal(t, "frame index out of range", rejected.Reason)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestUnreachableBackend(t *testing.T) {
	// A closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, 200*time.Millisecond, zerolog.Nop())
	_, _, err := c.FetchFrame(context.Background(), "src-1", 0)
	assert.True(t, errors.Is(err, ErrUnreachable), "connection refused should classify as unreachable, got %v", err)
}

func TestStartAndStopJob(t *testing.T) {
	var started, stopped bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/start":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "client-1", body["client_id"])
			assert.Equal(t, "src-1", body["source_id"])
			started = true
		case "/jobs/stop":
			stopped = true
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	assert.NoError(t, c.StartJob(context.Background(), "client-1", "src-1", models.EffectParams{}))
	assert.NoError(t, c.StopJob(context.Background(), "client-1"))
	assert.True(t, started)
	assert.True(t, stopped)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sources/src-1", r.URL.Path)
		json.NewEncoder(w).Encode(models.Source{
			ID: "src-1", Duration: 12.5, FPS: 24, TotalFrames: 300, Width: 1280, Height: 720,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	src, err := c.Probe(context.Background(), "src-1")
	assert.NoError(t, err)
	assert.Equal(t, 24.0, src.FPS)
	assert.Equal(t, 300, src.TotalFrames)
}
