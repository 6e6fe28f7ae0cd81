package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medconnect-backend/internal/database"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
)

// poolUsageThreshold is the fraction of the pool in use above which
// new database-backed requests are shed. Signaling keeps working; only
// the REST surface backs off.
const poolUsageThreshold = 0.8

// DBPoolGuard sheds load when the CockroachDB pool is near exhaustion,
// so in-flight consultation writes finish instead of everything timing
// out together.
type DBPoolGuard struct {
	db *database.DB
}

// NewDBPoolGuard creates a guard over the shared pool.
func NewDBPoolGuard(db *database.DB) *DBPoolGuard {
	return &DBPoolGuard{db: db}
}

// Middleware reports pool gauges and rejects requests with 503 when
// usage crosses the threshold.
func (g *DBPoolGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := g.db.Stats()
		inUse := int64(stats.AcquiredConns())
		idle := int64(stats.IdleConns())
		maxConns := int64(stats.MaxConns())

		metrics.RecordDBConnectionsInUse(int(inUse))
		metrics.RecordDBConnectionsIdle(int(idle))

		if maxConns > 0 && float64(inUse)/float64(maxConns) >= poolUsageThreshold {
			logger.Warn("Database connection pool near exhaustion, shedding request",
				zap.Int64("in_use", inUse),
				zap.Int64("max_conns", maxConns),
				zap.String("path", c.Request.URL.Path),
			)
			metrics.RecordDBPoolExhausted()

			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service temporarily unavailable",
				"code":  "DB_POOL_EXHAUSTED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
