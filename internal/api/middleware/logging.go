package middleware

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

func Logging() gin.HandlerFunc {
	hostname, err := os.Hostname()
	if err != nil {
		log := logger.Get()
		log.Error().Err(err).Msg("Failed to get hostname")
		hostname = "unknown"
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		log := logger.WithRequestID(requestID).With().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_addr", c.Request.RemoteAddr).
			Str("hostname", hostname).
			Logger()

		log.Debug().Msg("→ Request received")

		c.Next()

		// Scrapes are too frequent to log when they succeed.
		isMetrics := c.Request.URL.Path == "/metrics"
		if isMetrics && c.Writer.Status() == 200 {
			return
		}

		respLog := log.With().
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Int("body_size", c.Writer.Size()).
			Logger()

		if c.Writer.Status() >= 500 {
			respLog.Error().Msg("← Request failed")
		} else if c.Writer.Status() >= 400 {
			respLog.Warn().Msg("← Request rejected")
		} else {
			respLog.Info().Msg("← Request completed")
		}
	}
}
