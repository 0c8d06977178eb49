package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsdash/dashgate/internal/metrics"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// Guard decision outcomes as recorded in metrics.
const (
	outcomeContent              = "content"
	outcomePlaceholder          = "placeholder"
	outcomeRedirectLogin        = "redirect_login"
	outcomeRedirectUnauthorized = "redirect_unauthorized"
)

// Config holds the guard layer's navigation targets.
type Config struct {
	// LoginPath is where anonymous callers of privileged routes are sent.
	LoginPath string

	// UnauthorizedPath is where authenticated but under-privileged callers
	// are sent. It is deliberately distinct from LoginPath.
	UnauthorizedPath string

	// RetryAfterSeconds is the Retry-After hint on placeholder responses.
	// Zero means 1.
	RetryAfterSeconds int
}

// Guard produces per-route middleware implementing the access decision for
// each route table entry. Exactly three outcomes are reachable from a guarded
// route: the content is served, a validation placeholder is returned, or the
// caller is redirected (to login or to the unauthorized page). Guards read
// session state and trigger validation but never mutate the session.
type Guard struct {
	config          Config
	businessMetrics metrics.BusinessMetrics
	logger          *slog.Logger
}

// NewGuard creates a guard layer. If businessMetrics is nil a no-op
// implementation is used.
func NewGuard(config Config, businessMetrics metrics.BusinessMetrics, logger *slog.Logger) *Guard {
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	if config.UnauthorizedPath == "" {
		config.UnauthorizedPath = "/unauthorized"
	}
	if config.RetryAfterSeconds <= 0 {
		config.RetryAfterSeconds = 1
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &Guard{
		config:          config,
		businessMetrics: businessMetrics,
		logger:          logger,
	}
}

// Authentication returns the middleware resolving the session state for
// the route. It is always mounted first, with RequireRole behind it.
//
// Routes without a privilege pass every caller through, with the session
// snapshot attached when one exists. For privileged routes the decision
// follows the session state machine:
//
//   - Authenticated: the snapshot is attached to the context and the
//     request proceeds to the role gate.
//   - Anonymous, or no session at all: redirect to the login page with the
//     original path in the next parameter.
//   - Unknown or Checking: a neutral placeholder response with a Retry-After
//     hint. Unknown additionally triggers a background validation so a
//     retrying client converges to Authenticated or Anonymous.
func (g *Guard) Authentication(route *Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		source, ok := GetSessionSource(c.Request.Context())
		if !ok || source == nil {
			if !route.RequiresAuth() {
				c.Next()
				return
			}
			// Missing session infrastructure is treated as anonymous, the
			// safe default.
			g.redirectToLogin(c, route)
			return
		}

		session := source.State()

		if !route.RequiresAuth() {
			// Public routes still expose the session to handlers so pages
			// like the login form can show who is already signed in.
			c.Request = c.Request.WithContext(WithSession(c.Request.Context(), session))
			g.record(c, route, outcomeContent)
			c.Next()
			return
		}

		switch session.State {
		case sessionDomain.StateAuthenticated:
			c.Request = c.Request.WithContext(WithSession(c.Request.Context(), session))
			c.Next()

		case sessionDomain.StateAnonymous:
			g.redirectToLogin(c, route)

		case sessionDomain.StateUnknown:
			g.startValidation(c, source)
			g.placeholder(c, route)

		case sessionDomain.StateChecking:
			g.placeholder(c, route)

		default:
			// Unreachable with the current state machine. Fail closed.
			g.redirectToLogin(c, route)
		}
	}
}

// RequireRole returns the middleware enforcing the route's allowed-role
// set. It runs behind Authentication, so on privileged routes it only ever
// sees requests that carry an authenticated session snapshot.
//
//   - Satisfying role: the content is served.
//   - Insufficient role: redirect to the unauthorized page, which is
//     deliberately distinct from the login page. Content is never served,
//     not even transiently.
//   - No snapshot at all: the chain was mounted without Authentication.
//     Fail closed and redirect to login.
func (g *Guard) RequireRole(route *Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !route.RequiresAuth() {
			c.Next()
			return
		}

		session, ok := GetSession(c.Request.Context())
		if !ok {
			g.redirectToLogin(c, route)
			return
		}

		if !route.Allows(session.Role) {
			g.logger.Info("route access denied",
				slog.String("route", route.Path),
				slog.String("role", session.Role.String()),
				slog.String("privilege", string(route.Privilege)),
			)
			g.record(c, route, outcomeRedirectUnauthorized)
			c.Redirect(http.StatusFound, g.config.UnauthorizedPath)
			c.Abort()
			return
		}

		g.record(c, route, outcomeContent)
		c.Next()
	}
}

// redirectToLogin sends the caller to the login page, preserving the
// requested path so the client can return after authenticating.
func (g *Guard) redirectToLogin(c *gin.Context, route *Route) {
	g.record(c, route, outcomeRedirectLogin)
	target := g.config.LoginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// placeholder answers with a neutral in-progress response. It must not serve
// content and must not redirect: a session still being validated is neither
// authorized nor anonymous yet.
func (g *Guard) placeholder(c *gin.Context, route *Route) {
	g.record(c, route, outcomePlaceholder)
	c.Header("Retry-After", strconv.Itoa(g.config.RetryAfterSeconds))
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "checking",
		"message": "session validation in progress, retry shortly",
	})
	c.Abort()
}

// startValidation kicks off a background session validation. The call is
// detached from the request context so a client disconnect does not cancel
// it; concurrent kicks collapse inside the session manager.
func (g *Guard) startValidation(c *gin.Context, source SessionSource) {
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := source.CheckAuth(ctx); err != nil {
			g.logger.Debug("background session validation failed", slog.Any("error", err))
		}
	}()
}

func (g *Guard) record(c *gin.Context, route *Route, outcome string) {
	g.businessMetrics.RecordGuardDecision(c.Request.Context(), route.Path, outcome)
}
