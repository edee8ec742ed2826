// Package http serves the operational endpoints of long-running commands:
// liveness, readiness and Prometheus metrics.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
)

// RouterConfig holds the handlers mounted by NewRouter.  Nil fields leave
// their routes unregistered.
type RouterConfig struct {
	Health  *HealthHandler
	Metrics http.Handler
	Logger  logging.Logger
}

// NewRouter builds the route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(logging.OrNop(cfg.Logger)), gin.Recovery())

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Liveness)
		r.GET("/readyz", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return r
}

// requestLogger logs every request at debug, and failed ones at warn.
func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request served", fields...)
	}
}
