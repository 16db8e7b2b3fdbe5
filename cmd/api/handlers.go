package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dezexus/subvision/internal/subtitle"
	"github.com/Dezexus/subvision/internal/timeline"
	"github.com/Dezexus/subvision/pkg/models"
)

// createSession opens an editor session for a stored source, restoring the
// persisted snapshot and any cached view state.
func (api *API) createSession(c *gin.Context) {
	var req struct {
		SourceID string `json:"source_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := api.repo.GetSource(c.Request.Context(), req.SourceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	sess := api.sessions.Open(*source)

	if items, err := api.repo.LoadSnapshot(c.Request.Context(), source.ID); err == nil && len(items) > 0 {
		sess.Store().Replace(items)
	}
	if view, ok, err := api.cache.GetViewState(c.Request.Context(), source.ID); err == nil && ok {
		sess.Seek(view.FrameIndex)
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"source":     sess.Source,
		"view":       sess.ViewState(),
	})
}

// closeSession persists the snapshot and view state, then tears the session
// down.
func (api *API) closeSession(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := api.repo.SaveSnapshot(ctx, sess.Source.ID, sess.Store().All()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to persist snapshot: %v", err)})
		return
	}
	api.cache.SetViewState(ctx, sess.Source.ID, sess.ViewState(), 24*time.Hour)

	api.sessions.Close(sess.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

// getTimeline returns the laned annotation layout and the current view.
func (api *API) getTimeline(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	laned := sess.Store().Laned()
	c.JSON(http.StatusOK, gin.H{
		"annotations": laned,
		"lanes":       timeline.LaneCount(laned),
		"view":        sess.ViewState(),
	})
}

// applyView mutates the view through the timeline controllers.
func (api *API) applyView(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Op        string  `json:"op" binding:"required"` // zoom, pan, reset, seek, seek_click, toggle_play, step, key
		Delta     float64 `json:"delta"`
		AnchorX   float64 `json:"anchor_x"`
		Frame     int     `json:"frame"`
		ScreenX   float64 `json:"screen_x"`
		BaseWidth float64 `json:"base_width"`
		Key       string  `json:"key"`
		TextFocus bool    `json:"text_focus"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Op {
	case "zoom":
		sess.Zoom(req.Delta, req.AnchorX)
	case "pan":
		sess.Pan(req.Delta)
	case "reset":
		sess.ResetZoom()
	case "seek":
		sess.Seek(req.Frame)
	case "seek_click":
		sess.SeekClick(req.ScreenX, req.BaseWidth)
	case "toggle_play":
		sess.TogglePlay()
	case "step":
		sess.Step(int(req.Delta))
	case "key":
		sess.HandleKey(req.Key, req.TextFocus)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown view op: %s", req.Op)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"view": sess.ViewState()})
}

// dragBoundary drives the boundary-drag state machine over HTTP: one begin,
// any number of moves, one end.
func (api *API) dragBoundary(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Phase     string  `json:"phase" binding:"required"` // begin, move, end
		ID        int64   `json:"annotation_id"`
		Edge      string  `json:"edge"` // start, end
		PointerX  float64 `json:"pointer_x"`
		BaseWidth float64 `json:"base_width"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Phase {
	case "begin":
		edge := timeline.EdgeStart
		if strings.EqualFold(req.Edge, "end") {
			edge = timeline.EdgeEnd
		}
		if !sess.BeginDrag(req.ID, edge, req.PointerX) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dragging": true})
	case "move":
		update, ok := sess.DragTo(req.PointerX, req.BaseWidth)
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "No drag in progress"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"update": update})
	case "end":
		sess.EndDrag()
		c.JSON(http.StatusOK, gin.H{"dragging": false})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown drag phase: %s", req.Phase)})
	}
}

// updateAnnotation edits text or deletes/merges annotations.
func (api *API) updateAnnotation(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Op   string `json:"op" binding:"required"` // set_text, begin_text_edit, delete, merge
		ID   int64  `json:"annotation_id"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Op {
	case "begin_text_edit":
		sess.BeginTextEdit()
		c.JSON(http.StatusOK, gin.H{"editing": true})
	case "set_text":
		if !sess.SetText(req.ID, req.Text) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": req.ID})
	case "delete":
		if !sess.Delete(req.ID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": req.ID})
	case "merge":
		merged, ok := sess.Merge(req.ID)
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "Annotation has no successor to merge with"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"merged": merged})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown annotation op: %s", req.Op)})
	}
}

// undoRedo applies one history operation.
func (api *API) undoRedo(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var applied bool
	switch c.Param("op") {
	case "undo":
		applied = sess.Undo()
	case "redo":
		applied = sess.Redo()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Operation must be undo or redo"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applied":     applied,
		"annotations": sess.Store().All(),
	})
}

// setEffectParams replaces the effect parameter set, scheduling a debounced
// preview fetch.
func (api *API) setEffectParams(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var params models.EffectParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.SetEffectParams(params)
	c.JSON(http.StatusOK, gin.H{"params": sess.EffectParams()})
}

// exportSRT renders the collection as a SubRip file, locally.
func (api *API) exportSRT(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/x-subrip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.Source.Filename+".srt"))
	if err := subtitle.WriteSRT(c.Writer, sess.Store().All()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to export: %v", err)})
	}
}

// importSRT replaces the collection with an uploaded subtitle file.
func (api *API) importSRT(c *gin.Context) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing subtitle file"})
		return
	}
	defer file.Close()

	items, err := subtitle.ParseSRT(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to parse subtitle file: %v", err)})
		return
	}

	sess.Import(items)
	c.JSON(http.StatusOK, gin.H{"imported": len(items)})
}
