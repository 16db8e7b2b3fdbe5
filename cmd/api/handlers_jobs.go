package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/pkg/models"
)

// startJob asks the extraction backend to run the configured effect over the
// whole source. Subtitle events stream back over the broker while it runs.
func (api *API) startJob(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	err = api.client.StartJob(c.Request.Context(), sess.Source.ID, sess.Source.ID, sess.EffectParams())
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"client_id": sess.Source.ID})
}

// stopJob cancels the running backend job for this session's source.
func (api *API) stopJob(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := api.client.StopJob(c.Request.Context(), sess.Source.ID); err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": sess.Source.ID})
}

// streamEvents relays broker job events for one session's source as
// server-sent events until the client disconnects.
func (api *API) streamEvents(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	events, unsubscribe := api.hub.Subscribe(sess.Source.ID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		}
	})
}

// getEffectPreview serves the most recent rendered effect preview.
func (api *API) getEffectPreview(c *gin.Context) {
	api.servePreview(c, func(s sessionPreviews) ([]byte, string, bool) {
		return s.LatestEffectPreview()
	})
}

// getFramePreview serves the most recent raw frame.
func (api *API) getFramePreview(c *gin.Context) {
	api.servePreview(c, func(s sessionPreviews) ([]byte, string, bool) {
		return s.LatestFramePreview()
	})
}

// getRegionPreview proxies a one-off region-of-interest render at an explicit
// crop and scale, bypassing the debounced pipelines. Used for detail
// inspection around a boundary without disturbing the cached previews.
func (api *API) getRegionPreview(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	frame, err := strconv.Atoi(c.DefaultQuery("frame", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid frame index"})
		return
	}
	region := models.Rect{
		X:      intQuery(c, "x"),
		Y:      intQuery(c, "y"),
		Width:  intQuery(c, "w"),
		Height: intQuery(c, "h"),
	}
	scale, err := strconv.ParseFloat(c.DefaultQuery("scale", "1"), 64)
	if err != nil || scale <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scale factor"})
		return
	}

	data, contentType, err := api.client.FetchPreview(c.Request.Context(), sess.Source.ID, frame, region, scale)
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

type sessionPreviews interface {
	LatestEffectPreview() ([]byte, string, bool)
	LatestFramePreview() ([]byte, string, bool)
}

func (api *API) servePreview(c *gin.Context, latest func(sessionPreviews) ([]byte, string, bool)) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	data, contentType, ok := latest(sess)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No preview rendered yet"})
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// previewStatus reports pipeline load state and cache occupancy.
func (api *API) previewStatus(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"effect": gin.H{"loading": sess.EffectPipeline().Loading(), "cached": sess.EffectPipeline().CacheLen()},
		"frame":  gin.H{"loading": sess.FramePipeline().Loading(), "cached": sess.FramePipeline().CacheLen()},
	})
}

// writeBackendError maps backend client failures onto HTTP statuses: an
// unreachable backend is a gateway problem, a rejection passes the backend's
// reason through verbatim.
func writeBackendError(c *gin.Context, err error) {
	var rejected *backend.RejectedError
	switch {
	case errors.Is(err, backend.ErrUnreachable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Extraction backend is unreachable"})
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejected.Reason, "backend_status": rejected.Status})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// health reports liveness of the API and its dependencies.
func (api *API) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"status": "healthy"}

	if err := api.db.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
	}
	if err := api.cache.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["redis"] = err.Error()
	}

	code := http.StatusOK
	if status["status"] != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// handleJobEvent feeds broker events into the hub and applies subtitle
// payloads to any open session for the source.
func (api *API) handleJobEvent(event models.JobEvent) error {
	api.hub.Publish(event)

	sess, ok := api.sessions.BySource(event.ClientID)
	if !ok {
		return nil
	}

	switch event.Type {
	case models.JobEventSubtitleNew, models.JobEventSubtitleUpdate:
		if event.Subtitle != nil {
			sess.Store().Upsert(*event.Subtitle)
		}
	}
	return nil
}
