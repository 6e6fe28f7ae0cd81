package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
)

// TimeoutConfig holds the global request deadline.
type TimeoutConfig struct {
	DefaultTimeout time.Duration
}

// TimeoutMiddleware bounds every request with a deadline. Signaling
// itself rides the WebSocket; this protects the REST surface from
// slow database or storage calls holding connections open.
type TimeoutMiddleware struct {
	config *TimeoutConfig
}

// NewTimeoutMiddleware creates a timeout middleware. A nil config gets
// a 30 second default.
func NewTimeoutMiddleware(config *TimeoutConfig) *TimeoutMiddleware {
	if config == nil || config.DefaultTimeout <= 0 {
		config = &TimeoutConfig{DefaultTimeout: 30 * time.Second}
	}
	return &TimeoutMiddleware{config: config}
}

// Middleware returns the gin handler applying the deadline.
func (tm *TimeoutMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timeout := tm.config.DefaultTimeout

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		select {
		case <-ctx.Done():
			metrics.RecordRequestTimeout(timeout, duration, c.Request.Method, c.Request.URL.Path)
			logger.Warn("request timed out",
				zap.Duration("timeout", timeout),
				zap.Duration("duration", duration),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
				"code":  "REQUEST_TIMEOUT",
			})
			c.Abort()
		default:
			metrics.RecordRequestDuration(duration, c.Request.Method, c.Request.URL.Path, strconv.Itoa(c.Writer.Status()))
		}
	}
}
