// Package router provides BookQA service routing.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/bookqa/handler"
)

// New builds the gin engine with all BookQA routes registered.
func New(h *handler.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/ingest", h.Ingest)
		v1.POST("/query", h.Query)
		v1.DELETE("/sources/:locator", h.PurgeSource)

		v1.POST("/sessions", h.CreateSession)
		v1.GET("/sessions/:id", h.SessionHistory)

		v1.GET("/stats", h.Stats)
	}

	return engine
}

// requestLogger logs each request through the global structured logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
