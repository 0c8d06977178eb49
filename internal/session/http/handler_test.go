package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/rbac"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// mockSessionUseCase is a mock implementation of SessionUseCase for testing.
type mockSessionUseCase struct {
	mock.Mock
}

func (m *mockSessionUseCase) Login(
	ctx context.Context,
	creds sessionDomain.Credentials,
) (*sessionDomain.Session, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sessionDomain.Session), args.Error(1)
}

func (m *mockSessionUseCase) CheckAuth(ctx context.Context) (*sessionDomain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sessionDomain.Session), args.Error(1)
}

func (m *mockSessionUseCase) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSessionUseCase) State() sessionDomain.Session {
	args := m.Called()
	return args.Get(0).(sessionDomain.Session)
}

func (m *mockSessionUseCase) Sessions(
	ctx context.Context,
	offset, limit int,
) ([]service.RemoteSession, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.RemoteSession), args.Error(1)
}

func (m *mockSessionUseCase) RevokeAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testHandlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authenticatedSession() sessionDomain.Session {
	return sessionDomain.Session{
		ID:    uuid.Must(uuid.NewV7()),
		State: sessionDomain.StateAuthenticated,
		Role:  rbac.RoleAdmin,
		Profile: sessionDomain.Profile{
			ID:          "u-1",
			DisplayName: "Ada Lovelace",
		},
		LastValidatedAt: time.Now().UTC(),
	}
}

// setupHandlerRouter wires the handler routes behind a middleware injecting
// the given use case, mirroring what SessionMiddleware does in production.
func setupHandlerRouter(t *testing.T, useCase sessionUseCase.SessionUseCase) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := NewCookieCodec("dashgate_session", bytes.Repeat([]byte{0x42}, 32), time.Hour, false)
	require.NoError(t, err)
	handler := NewSessionHandler(codec, rbac.NewResolver(false), testHandlerLogger())

	router := gin.New()
	if useCase != nil {
		router.Use(func(c *gin.Context) {
			ctx := WithSessionUseCase(c.Request.Context(), useCase)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
	router.POST("/auth/login", handler.Login)
	router.GET("/auth/session", handler.Session)
	router.POST("/auth/check", handler.CheckAuth)
	router.GET("/user/profile", handler.Profile)
	router.GET("/user/permissions", handler.Permissions)
	router.POST("/auth/logout", handler.Logout)
	router.GET("/auth/sessions", handler.Sessions)
	router.POST("/auth/revoke-all", handler.RevokeAll)
	return router
}

func performJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestSessionHandlerLogin(t *testing.T) {
	t.Run("returns created session on success", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		session := authenticatedSession()
		useCase.On("Login", mock.Anything, sessionDomain.Credentials{
			Email:    "a@b.com",
			Password: "x",
		}).Return(&session, nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"a@b.com","password":"x"}`)

		require.Equal(t, http.StatusCreated, recorder.Code)

		var response SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "authenticated", response.State)
		require.NotNil(t, response.User)
		assert.Equal(t, "u-1", response.User.ID)
		assert.Equal(t, "Ada Lovelace", response.User.DisplayName)
		assert.Equal(t, "admin", response.Role)
		useCase.AssertExpectations(t)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		router := setupHandlerRouter(t, useCase)

		recorder := performJSON(router, http.MethodPost, "/auth/login", `{"email":`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		useCase.AssertNotCalled(t, "Login")
	})

	t.Run("rejects invalid email without calling the backend", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		router := setupHandlerRouter(t, useCase)

		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"not-an-email","password":"x"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		useCase.AssertNotCalled(t, "Login")
	})

	t.Run("rejects missing password", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		router := setupHandlerRouter(t, useCase)

		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"a@b.com"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		useCase.AssertNotCalled(t, "Login")
	})

	t.Run("maps rejected credentials to unauthorized", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("Login", mock.Anything, mock.Anything).
			Return(nil, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid credentials"))

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"a@b.com","password":"wrong"}`)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("maps unreachable backend to service unavailable", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("Login", mock.Anything, mock.Anything).
			Return(nil, apperrors.Wrap(apperrors.ErrUnavailable, "backend request failed"))

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"a@b.com","password":"x"}`)

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	})

	t.Run("fails without session middleware", func(t *testing.T) {
		router := setupHandlerRouter(t, nil)

		recorder := performJSON(router, http.MethodPost, "/auth/login",
			`{"email":"a@b.com","password":"x"}`)

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})
}

func TestSessionHandlerSession(t *testing.T) {
	t.Run("reports anonymous state without identity fields", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(sessionDomain.Session{State: sessionDomain.StateAnonymous})

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/auth/session", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "anonymous", response.State)
		assert.Nil(t, response.User)
		assert.Empty(t, response.Role)
	})

	t.Run("reports checking state during validation", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(sessionDomain.Session{State: sessionDomain.StateChecking})

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/auth/session", "")

		var response SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "checking", response.State)
	})
}

func TestSessionHandlerCheckAuth(t *testing.T) {
	t.Run("returns resolved state", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		session := authenticatedSession()
		useCase.On("CheckAuth", mock.Anything).Return(&session, nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/check", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "authenticated", response.State)
	})

	t.Run("expired session resolves to anonymous, not an error", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		anonymous := sessionDomain.Session{State: sessionDomain.StateAnonymous}
		useCase.On("CheckAuth", mock.Anything).Return(&anonymous, nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/check", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response SessionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "anonymous", response.State)
	})
}

func TestSessionHandlerProfile(t *testing.T) {
	t.Run("returns profile for authenticated session", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/user/profile", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response UserResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "u-1", response.ID)
		assert.Equal(t, "Ada Lovelace", response.DisplayName)
	})

	t.Run("rejects anonymous session", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(sessionDomain.Session{State: sessionDomain.StateAnonymous})

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/user/profile", "")

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestSessionHandlerPermissions(t *testing.T) {
	t.Run("resolves the role's permission set", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/user/permissions", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response PermissionListResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "admin", response.Role)
		assert.Contains(t, response.Permissions, PermissionResponse{
			Action:   rbac.ActionManage,
			Resource: rbac.ResourceQueues,
		})
		assert.NotContains(t, response.Permissions, PermissionResponse{
			Action:   rbac.ActionManage,
			Resource: rbac.ResourceUsers,
		})
	})

	t.Run("rejects anonymous session", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(sessionDomain.Session{State: sessionDomain.StateAnonymous})

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/user/permissions", "")

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestSessionHandlerLogout(t *testing.T) {
	t.Run("clears state and expires the cookie", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("Logout", mock.Anything).Return(nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/logout", "")

		assert.Equal(t, http.StatusNoContent, recorder.Code)

		cookies := recorder.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "dashgate_session", cookies[0].Name)
		assert.Negative(t, cookies[0].MaxAge)
		useCase.AssertExpectations(t)
	})

	t.Run("succeeds even without session middleware", func(t *testing.T) {
		router := setupHandlerRouter(t, nil)

		recorder := performJSON(router, http.MethodPost, "/auth/logout", "")

		assert.Equal(t, http.StatusNoContent, recorder.Code)
		require.Len(t, recorder.Result().Cookies(), 1)
	})
}

func TestSessionHandlerSessions(t *testing.T) {
	t.Run("lists backend sessions with pagination", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("Sessions", mock.Anything, 10, 20).Return([]service.RemoteSession{
			{ID: "s-1", UserAgent: "Firefox", IPAddress: "203.0.113.7"},
		}, nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/auth/sessions?offset=10&limit=20", "")

		require.Equal(t, http.StatusOK, recorder.Code)

		var response RemoteSessionListResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Sessions, 1)
		assert.Equal(t, "s-1", response.Sessions[0].ID)
		assert.Equal(t, 10, response.Offset)
		assert.Equal(t, 20, response.Limit)
	})

	t.Run("rejects invalid pagination", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		router := setupHandlerRouter(t, useCase)

		recorder := performJSON(router, http.MethodGet, "/auth/sessions?limit=1000", "")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		useCase.AssertNotCalled(t, "Sessions")
	})

	t.Run("requires an active session", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("Sessions", mock.Anything, 0, 50).
			Return(nil, apperrors.Wrap(apperrors.ErrUnauthorized, "no active session"))

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodGet, "/auth/sessions", "")

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestSessionHandlerRevokeAll(t *testing.T) {
	t.Run("revokes sessions and expires the cookie", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("RevokeAll", mock.Anything).Return(nil)

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/revoke-all", "")

		assert.Equal(t, http.StatusNoContent, recorder.Code)

		cookies := recorder.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Negative(t, cookies[0].MaxAge)
		useCase.AssertExpectations(t)
	})

	t.Run("keeps the cookie when revocation fails", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("RevokeAll", mock.Anything).
			Return(apperrors.Wrap(apperrors.ErrUnavailable, "backend request failed"))

		router := setupHandlerRouter(t, useCase)
		recorder := performJSON(router, http.MethodPost, "/auth/revoke-all", "")

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		assert.Empty(t, recorder.Result().Cookies())
	})
}
