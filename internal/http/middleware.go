// Package http provides the gateway HTTP server: router assembly, logging
// and CORS middleware, health endpoints, and the metrics server.
package http

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsdash/dashgate/internal/database"
)

// CustomLoggerMiddleware logs HTTP requests with structured fields.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", requestid.Get(c)),
		)
	}
}

// RequestIDMiddleware tags every request with a UUIDv7 request identifier.
func RequestIDMiddleware() gin.HandlerFunc {
	return requestid.New(
		requestid.WithGenerator(func() string {
			return uuid.Must(uuid.NewV7()).String()
		}),
	)
}

// HealthHandler returns a simple liveness check handler.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// ReadinessHandler returns a readiness check handler that verifies the
// database connection.
func ReadinessHandler(db *sql.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Healthcheck(c.Request.Context(), db); err != nil {
			logger.Error("readiness check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
