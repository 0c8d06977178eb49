package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/guard"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	"github.com/opsdash/dashgate/internal/session/service"
	"github.com/opsdash/dashgate/internal/session/store"
	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// stubBackend is a Backend that rejects everything, enough for middleware
// wiring tests that never authenticate.
type stubBackend struct{}

func (stubBackend) Login(ctx context.Context, creds sessionDomain.Credentials) (*service.Identity, error) {
	return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid credentials")
}

func (stubBackend) Profile(ctx context.Context, credential string) (*service.Identity, error) {
	return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "session expired")
}

func (stubBackend) Logout(ctx context.Context, credential string) error { return nil }

func (stubBackend) Sessions(
	ctx context.Context,
	credential string,
	offset, limit int,
) ([]service.RemoteSession, error) {
	return nil, nil
}

func (stubBackend) RevokeAll(ctx context.Context, credential string) error { return nil }

// memoryRepo is an in-memory BlobRepository for middleware tests.
type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*sessionDomain.BlobRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*sessionDomain.BlobRecord)}
}

func (r *memoryRepo) Upsert(ctx context.Context, record *sessionDomain.BlobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *record
	r.records[record.StorageKey] = &clone
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, storageKey string) (*sessionDomain.BlobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[storageKey]
	if !ok {
		return nil, sessionDomain.ErrBlobNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *memoryRepo) Delete(ctx context.Context, storageKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, storageKey)
	return nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestRegistry(t *testing.T) *sessionUseCase.Registry {
	t.Helper()
	logger := testHandlerLogger()

	cipher, err := service.NewAESGCMBlobCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	secureStore := store.NewSecureStore(newMemoryRepo(), cipher, "test", true, 24*time.Hour, logger)

	factory := func(ctx context.Context, id uuid.UUID) *sessionUseCase.Manager {
		return sessionUseCase.NewManager(ctx, id, stubBackend{}, secureStore, time.Second, logger)
	}
	return sessionUseCase.NewRegistry(factory, time.Hour, logger)
}

// setupMiddlewareRouter mounts the session middleware and a probe handler
// reporting what reached the request context.
func setupMiddlewareRouter(
	t *testing.T,
	registry *sessionUseCase.Registry,
	codec *CookieCodec,
) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(SessionMiddleware(registry, codec, nil, testHandlerLogger()))
	router.GET("/probe", func(c *gin.Context) {
		useCase, useCaseOK := GetSessionUseCase(c.Request.Context())
		source, sourceOK := guard.GetSessionSource(c.Request.Context())
		if !useCaseOK || !sourceOK {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": useCase.State().ID.String(),
			"state":      source.State().State.String(),
		})
	})
	return router
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("issues a cookie and a fresh session without one", func(t *testing.T) {
		registry := newTestRegistry(t)
		codec := testCookieCodec(t)
		router := setupMiddlewareRouter(t, registry, codec)

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/probe", nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		cookies := recorder.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, codec.Name(), cookies[0].Name)
		assert.Contains(t, recorder.Body.String(), `"state":"unknown"`)
	})

	t.Run("reuses the manager across requests with the same cookie", func(t *testing.T) {
		registry := newTestRegistry(t)
		codec := testCookieCodec(t)
		router := setupMiddlewareRouter(t, registry, codec)

		first := httptest.NewRecorder()
		router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/probe", nil))
		cookies := first.Result().Cookies()
		require.Len(t, cookies, 1)

		second := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/probe", nil)
		request.AddCookie(cookies[0])
		router.ServeHTTP(second, request)

		require.Equal(t, http.StatusOK, second.Code)
		assert.Empty(t, second.Result().Cookies(), "no new cookie for a valid session")
		assert.Equal(t, first.Body.String(), second.Body.String())
	})

	t.Run("treats a tampered cookie as absent", func(t *testing.T) {
		registry := newTestRegistry(t)
		codec := testCookieCodec(t)
		router := setupMiddlewareRouter(t, registry, codec)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/probe", nil)
		request.AddCookie(&http.Cookie{
			Name:  codec.Name(),
			Value: uuid.Must(uuid.NewV7()).String() + ".forged",
		})
		router.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		require.Len(t, recorder.Result().Cookies(), 1, "a fresh cookie replaces the tampered one")
	})

	t.Run("registers the manager in the registry", func(t *testing.T) {
		registry := newTestRegistry(t)
		codec := testCookieCodec(t)
		router := setupMiddlewareRouter(t, registry, codec)

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/probe", nil))

		cookies := recorder.Result().Cookies()
		require.Len(t, cookies, 1)

		// Re-read the issued cookie to recover the session identifier.
		probe := httptest.NewRequest(http.MethodGet, "/probe", nil)
		probe.AddCookie(cookies[0])
		id, ok := readCookieFromRequest(t, codec, probe)
		require.True(t, ok)

		_, found := registry.Get(id)
		assert.True(t, found)
	})
}

// readCookieFromRequest runs codec.Read against an already-built request.
func readCookieFromRequest(
	t *testing.T,
	codec *CookieCodec,
	request *http.Request,
) (uuid.UUID, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var gotID uuid.UUID
	var gotOK bool
	router := gin.New()
	router.GET("/probe", func(c *gin.Context) {
		gotID, gotOK = codec.Read(c)
		c.Status(http.StatusOK)
	})
	router.ServeHTTP(httptest.NewRecorder(), request)
	return gotID, gotOK
}
