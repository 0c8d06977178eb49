package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"

	"github.com/gin-gonic/gin"

	httpUtil "github.com/opsdash/dashgate/internal/httputil"
)

// Identity headers injected for upstream services. Inbound copies are always
// stripped so a client cannot spoof an identity past the guard.
const (
	HeaderUserID      = "X-Dashgate-User-Id"
	HeaderUserRole    = "X-Dashgate-User-Role"
	HeaderDisplayName = "X-Dashgate-Display-Name"
)

// NewProxyHandler returns a handler forwarding guarded requests to the
// route's upstream. The guard-approved session identity travels in trusted
// headers; requests without a session snapshot (public routes) are forwarded
// without identity headers.
func NewProxyHandler(route *Route, logger *slog.Logger) gin.HandlerFunc {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(route.Upstream)
			pr.SetXForwarded()

			pr.Out.Header.Del(HeaderUserID)
			pr.Out.Header.Del(HeaderUserRole)
			pr.Out.Header.Del(HeaderDisplayName)

			if session, ok := GetSession(pr.In.Context()); ok && session.IsAuthenticated() {
				pr.Out.Header.Set(HeaderUserID, session.Profile.ID)
				pr.Out.Header.Set(HeaderUserRole, session.Role.String())
				pr.Out.Header.Set(HeaderDisplayName, session.Profile.DisplayName)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				slog.String("route", route.Path),
				slog.String("upstream", route.Upstream.String()),
				slog.Any("error", err),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(httpUtil.ErrorResponse{
				Error:   "bad_gateway",
				Message: "The upstream service is unreachable",
			})
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// NewNotFoundHandler returns the catch-all content handler. It serves a JSON
// not-found page and requires no privilege, so it stays reachable for
// anonymous and authenticated callers alike.
func NewNotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httpUtil.ErrorResponse{
			Error:   "not_found",
			Message: "The requested page does not exist",
		})
	}
}
