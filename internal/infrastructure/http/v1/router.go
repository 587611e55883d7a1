package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.Default()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("tileproxy"))
	}

	r.Use(ginZapLogger(l))

	// Tile and cache paths are what the map client expects; they stay
	// unversioned.
	r.GET("/tiles/:z/:x/:y", handler.Tile)

	r.GET("/cache/stats", handler.CacheStats)
	r.DELETE("/cache", handler.ClearCache)
	r.DELETE("/cache/zoom/:level", handler.ClearCacheZoom)
	r.POST("/cache/preload", handler.Preload)
	r.GET("/cache/preload/status", handler.PreloadStatus)

	r.POST("/route", handler.SetRoute)
	r.DELETE("/route", handler.ClearRoute)

	r.GET("/healthz", handler.Healthz)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
