package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"okx-scanner/internal/logging"
	"okx-scanner/internal/security"
)

const requestIDHeader = "X-Request-ID"

// requestContext tags each request with an id and a request-scoped logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		ctx := security.WithRequestID(c.Request.Context(), id)
		ctx = logging.WithLogger(ctx, logger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := logging.FromContext(c.Request.Context())
		ev := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(route, c.Request.Method, c.Writer.Status())
	}
}

// recoverJSON turns panics into a JSON 500.
func (s *Server) recoverJSON() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		s.logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":   "-2",
			"error":  "server_exception",
			"detail": security.SanitizeText(fmt.Sprint(recovered)),
		})
	})
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, source := security.ExtractAPIKey(c.Request)
		if !security.KeyMatches(s.cfg.Server.APIKey, key) {
			if err := s.audit.LogAuthFailed(c.Request.Context(), c.Request.URL.Path, c.ClientIP(), source); err != nil {
				s.logger.Warn().Err(err).Msg("Audit write failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
