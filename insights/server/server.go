// Package server exposes analysis sessions over HTTP for a browser dashboard.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/theimaginaryfoundation/review-insights/insights/metrics"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes int64 = 4 << 20

type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64
}

// NewRouter builds the gin engine with every route of the dashboard API.
func NewRouter(sessions *Registry, m *metrics.Metrics, opts Options) *gin.Engine {
	h := NewHandler(sessions, m)
	sessions.OnChange(func(n int) { m.SessionsActive.Set(float64(n)) })

	r := gin.New()
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	r.Use(gin.Recovery(), withLogging(), limitBody(maxBody))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/analysis", h.Analyze)
	api.PUT("/sessions/:id/filter", h.SetFilter)
	api.GET("/sessions/:id/messages", h.Messages)
	api.POST("/sessions/:id/chat", h.Chat)
	return r
}

// limitBody caps how much of a request body handlers may read.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// withLogging logs every request once it has been served.
func withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
