package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpUtil "github.com/opsdash/dashgate/internal/httputil"
	"github.com/opsdash/dashgate/internal/rbac"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// proxyRequest runs one request through a proxy handler for a route pointing
// at upstreamURL, optionally attaching a guard-approved session snapshot.
func proxyRequest(
	t *testing.T,
	upstreamURL string,
	session *sessionDomain.Session,
	mutate func(*http.Request),
) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	table, err := NewTable([]RouteSpec{
		{Path: "/dashboard", Privilege: "authenticated", Upstream: upstreamURL},
	}, RouteSpec{})
	require.NoError(t, err)
	route := table.Lookup("/dashboard")

	router := gin.New()
	router.GET("/dashboard", func(c *gin.Context) {
		if session != nil {
			c.Request = c.Request.WithContext(WithSession(c.Request.Context(), *session))
		}
		c.Next()
	}, NewProxyHandler(route, testGuardLogger()))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	// ReverseProxy watches for client aborts through the request context;
	// without a cancellable one it reaches for http.CloseNotifier, which
	// the recorder does not implement
	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()
	request = request.WithContext(ctx)
	if mutate != nil {
		mutate(request)
	}
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestNewProxyHandler(t *testing.T) {
	t.Run("forwards request with identity headers", func(t *testing.T) {
		var gotHeaders http.Header
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("upstream content"))
		}))
		defer upstream.Close()

		session := sessionDomain.Session{
			ID:    uuid.Must(uuid.NewV7()),
			State: sessionDomain.StateAuthenticated,
			Role:  rbac.RoleAdmin,
			Profile: sessionDomain.Profile{
				ID:          "u-1",
				DisplayName: "Ada Lovelace",
			},
		}
		recorder := proxyRequest(t, upstream.URL, &session, nil)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "upstream content", recorder.Body.String())
		assert.Equal(t, "u-1", gotHeaders.Get(HeaderUserID))
		assert.Equal(t, "admin", gotHeaders.Get(HeaderUserRole))
		assert.Equal(t, "Ada Lovelace", gotHeaders.Get(HeaderDisplayName))
	})

	t.Run("strips spoofed identity headers", func(t *testing.T) {
		var gotHeaders http.Header
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		defer upstream.Close()

		recorder := proxyRequest(t, upstream.URL, nil, func(r *http.Request) {
			r.Header.Set(HeaderUserID, "u-spoofed")
			r.Header.Set(HeaderUserRole, "super_admin")
			r.Header.Set(HeaderDisplayName, "Mallory")
		})

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Empty(t, gotHeaders.Get(HeaderUserID))
		assert.Empty(t, gotHeaders.Get(HeaderUserRole))
		assert.Empty(t, gotHeaders.Get(HeaderDisplayName))
	})

	t.Run("spoofed headers are replaced by the approved identity", func(t *testing.T) {
		var gotHeaders http.Header
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		defer upstream.Close()

		session := sessionDomain.Session{
			State: sessionDomain.StateAuthenticated,
			Role:  rbac.RoleUser,
			Profile: sessionDomain.Profile{
				ID:          "u-1",
				DisplayName: "Ada Lovelace",
			},
		}
		proxyRequest(t, upstream.URL, &session, func(r *http.Request) {
			r.Header.Set(HeaderUserRole, "super_admin")
		})

		assert.Equal(t, []string{"user"}, gotHeaders.Values(HeaderUserRole))
	})

	t.Run("unreachable upstream returns bad gateway", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		upstream.Close()

		recorder := proxyRequest(t, upstream.URL, nil, nil)

		assert.Equal(t, http.StatusBadGateway, recorder.Code)

		var response httpUtil.ErrorResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "bad_gateway", response.Error)
	})
}

func TestNewNotFoundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.NoRoute(NewNotFoundHandler())

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/no-such-page", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)

	var response httpUtil.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "not_found", response.Error)
}
