package main

import (
	"github.com/gin-gonic/gin"

	"github.com/Dezexus/subvision/internal/config"
	"github.com/Dezexus/subvision/internal/middleware"
)

func setupRouter(api *API, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	limiter := middleware.NewRateLimiter(cfg.Auth.RateRPS, cfg.Auth.RateBurst)
	router.Use(middleware.RateLimit(limiter))

	router.GET("/health", api.health)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	{
		// Uploads
		v1.POST("/uploads", api.initiateUpload)
		v1.PUT("/uploads/:id/chunks/:index", api.putChunk)
		v1.GET("/uploads/:id", api.uploadStatus)
		v1.POST("/uploads/:id/complete", api.completeUpload)
		v1.DELETE("/uploads/:id", api.abortUpload)

		// Sources
		v1.GET("/sources", api.listSources)
		v1.GET("/sources/:id", api.getSource)
		v1.GET("/sources/:id/url", api.getSourceURL)
		v1.DELETE("/sources/:id", api.deleteSource)

		// Sessions
		v1.POST("/sessions", api.createSession)
		v1.DELETE("/sessions/:id", api.closeSession)
		v1.GET("/sessions/:id/timeline", api.getTimeline)
		v1.POST("/sessions/:id/view", api.applyView)
		v1.POST("/sessions/:id/drag", api.dragBoundary)
		v1.POST("/sessions/:id/annotations", api.updateAnnotation)
		v1.POST("/sessions/:id/history/:op", api.undoRedo)
		v1.PUT("/sessions/:id/effect", api.setEffectParams)

		// Previews
		v1.GET("/sessions/:id/preview/effect", api.getEffectPreview)
		v1.GET("/sessions/:id/preview/frame", api.getFramePreview)
		v1.GET("/sessions/:id/preview/region", api.getRegionPreview)
		v1.GET("/sessions/:id/preview/status", api.previewStatus)

		// Subtitles
		v1.GET("/sessions/:id/export.srt", api.exportSRT)
		v1.POST("/sessions/:id/import", api.importSRT)

		// Extraction jobs
		v1.POST("/sessions/:id/jobs/start", api.startJob)
		v1.POST("/sessions/:id/jobs/stop", api.stopJob)
		v1.GET("/sessions/:id/events", api.streamEvents)
	}

	return router
}
