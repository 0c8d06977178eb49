package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdash/dashgate/internal/guard"
	sessionHTTP "github.com/opsdash/dashgate/internal/session/http"
)

// RouterConfig holds the assembly options for the gateway router.
type RouterConfig struct {
	GinMode                      string
	CORSEnabled                  bool
	CORSAllowOrigins             string
	RateLimitLoginEnabled        bool
	RateLimitLoginRequestsPerSec float64
	RateLimitLoginBurst          int
}

// RouterDeps are the components the router mounts.
type RouterDeps struct {
	Table             *guard.Table
	Guard             *guard.Guard
	SessionHandler    *sessionHTTP.SessionHandler
	PreferenceHandler *sessionHTTP.PreferenceHandler
	SessionMiddleware gin.HandlerFunc
	MetricsMiddleware gin.HandlerFunc // optional
	DB                *sql.DB
	Logger            *slog.Logger
}

// NewRouter assembles the gateway router: ambient middleware, health
// endpoints, the auth API, and one guarded mount per route table entry.
// Unlisted paths fall through to the guarded catch-all.
func NewRouter(config RouterConfig, deps RouterDeps) *gin.Engine {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(CustomLoggerMiddleware(deps.Logger))

	if corsMiddleware := createCORSMiddleware(
		config.CORSEnabled, config.CORSAllowOrigins, deps.Logger,
	); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if deps.MetricsMiddleware != nil {
		router.Use(deps.MetricsMiddleware)
	}

	// Health endpoints bypass session resolution.
	router.GET("/health", HealthHandler())
	router.GET("/ready", ReadinessHandler(deps.DB, deps.Logger))

	// Auth API. Login carries its own per-IP rate limit since it is the
	// one unauthenticated endpoint forwarding credentials.
	auth := router.Group("/", deps.SessionMiddleware)
	loginHandlers := []gin.HandlerFunc{}
	if config.RateLimitLoginEnabled {
		loginHandlers = append(loginHandlers, sessionHTTP.LoginRateLimitMiddleware(
			config.RateLimitLoginRequestsPerSec,
			config.RateLimitLoginBurst,
			deps.Logger,
		))
	}
	loginHandlers = append(loginHandlers, deps.SessionHandler.Login)
	auth.POST("/auth/login", loginHandlers...)
	auth.GET("/auth/session", deps.SessionHandler.Session)
	auth.POST("/auth/check", deps.SessionHandler.CheckAuth)
	auth.POST("/auth/logout", deps.SessionHandler.Logout)
	auth.GET("/auth/sessions", deps.SessionHandler.Sessions)
	auth.POST("/auth/revoke-all", deps.SessionHandler.RevokeAll)
	auth.GET("/user/profile", deps.SessionHandler.Profile)
	auth.GET("/user/permissions", deps.SessionHandler.Permissions)

	if deps.PreferenceHandler != nil {
		auth.GET("/user/preferences/:name", deps.PreferenceHandler.Get)
		auth.PUT("/user/preferences/:name", deps.PreferenceHandler.Set)
		auth.DELETE("/user/preferences/:name", deps.PreferenceHandler.Delete)
	}

	// Guarded route table mounts. The auth gate always runs before the
	// role gate.
	for _, route := range deps.Table.Routes() {
		router.Any(route.Path,
			deps.SessionMiddleware,
			deps.Guard.Authentication(route),
			deps.Guard.RequireRole(route),
			contentHandler(route, deps.Logger),
		)
	}

	// Any path not in the table falls through to the guarded catch-all.
	notFound := deps.Table.NotFound()
	router.NoRoute(
		deps.SessionMiddleware,
		deps.Guard.Authentication(notFound),
		deps.Guard.RequireRole(notFound),
		guard.NewNotFoundHandler(),
	)

	return router
}

// contentHandler picks the content for a guarded route: the upstream proxy
// when one is configured, otherwise a page descriptor the SPA shell renders.
func contentHandler(route *guard.Route, logger *slog.Logger) gin.HandlerFunc {
	if route.Upstream != nil {
		return guard.NewProxyHandler(route, logger)
	}
	return func(c *gin.Context) {
		response := gin.H{"route": route.Path}
		if session, ok := guard.GetSession(c.Request.Context()); ok && session.IsAuthenticated() {
			response["user"] = gin.H{
				"id":           session.Profile.ID,
				"display_name": session.Profile.DisplayName,
				"role":         session.Role.String(),
			}
		}
		c.JSON(http.StatusOK, response)
	}
}

// Server represents the gateway HTTP server.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server for the given router.
func NewServer(host string, port int, router *gin.Engine, logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
