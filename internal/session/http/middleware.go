package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsdash/dashgate/internal/guard"
	"github.com/opsdash/dashgate/internal/metrics"
	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// SessionMiddleware resolves the browser-session cookie to a session manager
// and attaches it to the request context for guards and handlers.
//
// The middleware:
//  1. Reads and verifies the signed session cookie
//  2. Looks up (or creates) the manager for the session identifier
//  3. Issues a fresh cookie when the request carried none or an invalid one
//  4. Exposes the session to guards via guard.WithSessionSource and to
//     handlers via WithSessionUseCase
//
// A tampered or malformed cookie is treated exactly like a missing one: the
// caller gets a brand-new anonymous session. Session state mutation still
// goes through the manager only; the middleware never touches it.
func SessionMiddleware(
	registry *sessionUseCase.Registry,
	codec *CookieCodec,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) gin.HandlerFunc {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}

	return func(c *gin.Context) {
		id, ok := codec.Read(c)
		if !ok {
			id = uuid.Must(uuid.NewV7())
			codec.Issue(c, id)
			logger.Debug("issued new browser session", slog.String("session_id", id.String()))
		}

		manager := registry.GetOrCreate(c.Request.Context(), id)
		useCase := sessionUseCase.NewSessionUseCaseWithMetrics(manager, businessMetrics)

		ctx := WithSessionUseCase(c.Request.Context(), useCase)
		ctx = guard.WithSessionSource(ctx, useCase)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
