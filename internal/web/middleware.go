package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sitecontent/internal/observability"
)

const (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD"
	corsHeaders = "Origin, Content-Type, Accept, Authorization, X-Requested-With, If-Match"
	corsExpose  = "X-Asset-Source, Content-Length"
)

// cors applies permissive cross-origin headers to every response, errors
// included, and answers preflight requests with 204. Credentials are never
// allowed cross-origin, so admin routes stay unreadable from other sites.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		if origin := c.GetHeader("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Expose-Headers", corsExpose)
		h.Set("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.ClientIP()),
		)
	}
}

func requestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// requireAdmin checks HTTP Basic credentials against the users collection
// when auth is enabled.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.auth {
			c.Next()
			return
		}
		name, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="sitecontent"`)
			fail(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		user, err := s.svc.Authenticate(c.Request.Context(), name, password)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="sitecontent"`)
			s.failErr(c, err)
			return
		}
		c.Set("user", user.String("username"))
		c.Next()
	}
}
