package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Dezexus/subvision/pkg/models"
)

// listSources returns stored sources with basic pagination.
func (api *API) listSources(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sources, err := api.repo.ListSources(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}

// getSource returns one source record.
func (api *API) getSource(c *gin.Context) {
	source, err := api.repo.GetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	c.JSON(http.StatusOK, source)
}

// getSourceURL returns a presigned download link for the stored object.
func (api *API) getSourceURL(c *gin.Context) {
	source, err := api.repo.GetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	url, err := api.storage.GetURL(c.Request.Context(), source.ObjectKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// deleteSource removes the record, the stored object and any cached state.
func (api *API) deleteSource(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	source, err := api.repo.GetSource(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	if sess, ok := api.sessions.BySource(id); ok {
		api.sessions.Close(sess.ID)
	}
	if err := api.repo.DeleteSource(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete source"})
		return
	}
	api.storage.Delete(ctx, source.ObjectKey)
	api.cache.DeleteSnapshot(ctx, id)

	c.JSON(http.StatusOK, gin.H{"message": "Source deleted"})
}

// initiateUpload opens or resumes a chunked upload session.
func (api *API) initiateUpload(c *gin.Context) {
	var req struct {
		Filename  string `json:"filename" binding:"required"`
		TotalSize int64  `json:"total_size" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := api.uploads.Initiate(req.Filename, req.TotalSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	api.cache.SetUploadSession(c.Request.Context(), session, 24*time.Hour)
	c.JSON(http.StatusCreated, gin.H{
		"upload_id":      session.ID,
		"chunk_size":     session.ChunkSize,
		"total_chunks":   session.TotalChunks,
		"missing_chunks": session.MissingChunks(),
	})
}

// putChunk stores one chunk of a resumable upload.
func (api *API) putChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chunk index"})
		return
	}

	if err := api.uploads.PutChunk(c.Param("id"), index, c.Request.Body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": index})
}

// uploadStatus reports progress and the missing-chunk set for resumption.
func (api *API) uploadStatus(c *gin.Context) {
	session, missing, err := api.uploads.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_id":      session.ID,
		"status":         session.Status,
		"total_chunks":   session.TotalChunks,
		"missing_chunks": missing,
	})
}

// completeUpload assembles the chunks, stores the object, probes the backend
// for media properties and creates the source record.
func (api *API) completeUpload(c *gin.Context) {
	ctx := c.Request.Context()
	uploadID := c.Param("id")

	session, _, err := api.uploads.Status(uploadID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	objectKey, err := api.uploads.Complete(ctx, uploadID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	source := &models.Source{
		ID:        uuid.New().String(),
		Filename:  session.Filename,
		Size:      session.TotalSize,
		ObjectKey: objectKey,
		CreatedAt: time.Now(),
	}

	// Media properties come from the extraction backend; a probe failure
	// leaves defaults in place rather than failing the upload.
	if probed, err := api.client.Probe(ctx, source.ID); err == nil {
		source.Duration = probed.Duration
		source.FPS = probed.FPS
		source.TotalFrames = probed.TotalFrames
		source.Width = probed.Width
		source.Height = probed.Height
	} else {
		api.log.Warn().Err(err).Str("source_id", source.ID).Msg("backend probe failed, keeping defaults")
	}

	if err := api.repo.CreateSource(ctx, source); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create source: %v", err)})
		return
	}
	api.cache.DeleteUploadSession(ctx, uploadID)

	c.JSON(http.StatusCreated, gin.H{"source": source})
}

// abortUpload discards an upload session and its chunks.
func (api *API) abortUpload(c *gin.Context) {
	api.uploads.Abort(c.Param("id"))
	api.cache.DeleteUploadSession(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "Upload aborted"})
}
