package http

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/store"
	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// setupPreferenceRouter wires the preference routes over an in-memory blob
// repository, with the given use case injected the way SessionMiddleware
// does in production.
func setupPreferenceRouter(t *testing.T, useCase sessionUseCase.SessionUseCase) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prefs := store.NewPreferenceStore(newMemoryRepo(), testHandlerLogger())
	handler := NewPreferenceHandler(prefs, testHandlerLogger())

	router := gin.New()
	if useCase != nil {
		router.Use(func(c *gin.Context) {
			ctx := WithSessionUseCase(c.Request.Context(), useCase)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
	router.GET("/user/preferences/:name", handler.Get)
	router.PUT("/user/preferences/:name", handler.Set)
	router.DELETE("/user/preferences/:name", handler.Delete)
	return router
}

func TestPreferenceHandler(t *testing.T) {
	t.Run("set then get round-trips the value", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "PUT", "/user/preferences/sidebar_collapsed", `{"value": true}`)
		assert.Equal(t, 204, recorder.Code)

		recorder = performJSON(router, "GET", "/user/preferences/sidebar_collapsed", "")
		assert.Equal(t, 200, recorder.Code)
		assert.JSONEq(t, `{"name": "sidebar_collapsed", "value": true}`, recorder.Body.String())
	})

	t.Run("preserves structured values", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "PUT", "/user/preferences/layout",
			`{"value": {"columns": ["jobs", "queues"], "dense": false}}`)
		assert.Equal(t, 204, recorder.Code)

		recorder = performJSON(router, "GET", "/user/preferences/layout", "")
		assert.Equal(t, 200, recorder.Code)
		assert.JSONEq(t,
			`{"name": "layout", "value": {"columns": ["jobs", "queues"], "dense": false}}`,
			recorder.Body.String())
	})

	t.Run("returns not found for an unset preference", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "GET", "/user/preferences/theme", "")
		assert.Equal(t, 404, recorder.Code)
	})

	t.Run("delete removes the preference", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "PUT", "/user/preferences/theme", `{"value": "dark"}`)
		assert.Equal(t, 204, recorder.Code)

		recorder = performJSON(router, "DELETE", "/user/preferences/theme", "")
		assert.Equal(t, 204, recorder.Code)

		recorder = performJSON(router, "GET", "/user/preferences/theme", "")
		assert.Equal(t, 404, recorder.Code)
	})

	t.Run("delete of a missing preference is a no-op", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "DELETE", "/user/preferences/theme", "")
		assert.Equal(t, 204, recorder.Code)
	})

	t.Run("rejects an invalid preference name", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "PUT", "/user/preferences/Bad%20Name", `{"value": 1}`)
		assert.Equal(t, 400, recorder.Code)
	})

	t.Run("rejects a missing value", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(authenticatedSession())
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "PUT", "/user/preferences/theme", `{}`)
		assert.Equal(t, 422, recorder.Code)
	})

	t.Run("requires an authenticated session", func(t *testing.T) {
		useCase := &mockSessionUseCase{}
		useCase.On("State").Return(sessionDomain.Session{State: sessionDomain.StateAnonymous})
		router := setupPreferenceRouter(t, useCase)

		recorder := performJSON(router, "GET", "/user/preferences/theme", "")
		assert.Equal(t, 401, recorder.Code)

		recorder = performJSON(router, "PUT", "/user/preferences/theme", `{"value": 1}`)
		assert.Equal(t, 401, recorder.Code)

		recorder = performJSON(router, "DELETE", "/user/preferences/theme", "")
		assert.Equal(t, 401, recorder.Code)
	})

	t.Run("scopes preferences per user", func(t *testing.T) {
		first := &mockSessionUseCase{}
		firstSession := authenticatedSession()
		first.On("State").Return(firstSession)

		second := &mockSessionUseCase{}
		secondSession := authenticatedSession()
		secondSession.Profile.ID = "u-2"
		second.On("State").Return(secondSession)

		prefs := store.NewPreferenceStore(newMemoryRepo(), testHandlerLogger())
		handler := NewPreferenceHandler(prefs, testHandlerLogger())

		buildRouter := func(useCase sessionUseCase.SessionUseCase) *gin.Engine {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				ctx := WithSessionUseCase(c.Request.Context(), useCase)
				c.Request = c.Request.WithContext(ctx)
				c.Next()
			})
			router.GET("/user/preferences/:name", handler.Get)
			router.PUT("/user/preferences/:name", handler.Set)
			return router
		}

		recorder := performJSON(buildRouter(first), "PUT", "/user/preferences/theme", `{"value": "dark"}`)
		assert.Equal(t, 204, recorder.Code)

		recorder = performJSON(buildRouter(second), "GET", "/user/preferences/theme", "")
		assert.Equal(t, 404, recorder.Code)
	})

	t.Run("returns internal error without session middleware", func(t *testing.T) {
		router := setupPreferenceRouter(t, nil)

		recorder := performJSON(router, "GET", "/user/preferences/theme", "")
		assert.Equal(t, 500, recorder.Code)
	})
}
