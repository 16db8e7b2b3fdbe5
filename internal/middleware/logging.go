package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Dezexus/subvision/internal/metrics"
)

// Logger middleware logs request details and records HTTP metrics
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration_ms", latency).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(latency.Seconds())
	}
}
