package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsdash/dashgate/internal/guard"
	internalHTTP "github.com/opsdash/dashgate/internal/http"
	"github.com/opsdash/dashgate/internal/metrics"
	"github.com/opsdash/dashgate/internal/rbac"
	sessionHTTP "github.com/opsdash/dashgate/internal/session/http"
	sessionRepository "github.com/opsdash/dashgate/internal/session/repository"
	"github.com/opsdash/dashgate/internal/session/service"
	"github.com/opsdash/dashgate/internal/session/store"
	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// BlobRepository returns the blob repository based on database driver.
func (c *Container) BlobRepository() (store.BlobRepository, error) {
	var err error
	c.blobRepositoryInit.Do(func() {
		c.blobRepository, err = c.initBlobRepository()
		if err != nil {
			c.initErrors["blobRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["blobRepository"]; exists {
		return nil, storedErr
	}
	return c.blobRepository, nil
}

// BlobCipher returns the profile blob cipher.
func (c *Container) BlobCipher() (service.BlobCipher, error) {
	var err error
	c.blobCipherInit.Do(func() {
		c.blobCipher, err = c.initBlobCipher()
		if err != nil {
			c.initErrors["blobCipher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["blobCipher"]; exists {
		return nil, storedErr
	}
	return c.blobCipher, nil
}

// SecureStore returns the encrypted identity store.
func (c *Container) SecureStore() (*store.SecureStore, error) {
	var err error
	c.secureStoreInit.Do(func() {
		c.secureStore, err = c.initSecureStore()
		if err != nil {
			c.initErrors["secureStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secureStore"]; exists {
		return nil, storedErr
	}
	return c.secureStore, nil
}

// PreferenceStore returns the user preference store.
func (c *Container) PreferenceStore() (*store.PreferenceStore, error) {
	var err error
	c.preferenceStoreInit.Do(func() {
		c.preferenceStore, err = c.initPreferenceStore()
		if err != nil {
			c.initErrors["preferenceStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["preferenceStore"]; exists {
		return nil, storedErr
	}
	return c.preferenceStore, nil
}

// Backend returns the backend API client.
func (c *Container) Backend() (service.Backend, error) {
	var err error
	c.backendInit.Do(func() {
		c.backend, err = c.initBackend()
		if err != nil {
			c.initErrors["backend"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["backend"]; exists {
		return nil, storedErr
	}
	return c.backend, nil
}

// Registry returns the session manager registry.
func (c *Container) Registry() (*sessionUseCase.Registry, error) {
	var err error
	c.registryInit.Do(func() {
		c.registry, err = c.initRegistry()
		if err != nil {
			c.initErrors["registry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["registry"]; exists {
		return nil, storedErr
	}
	return c.registry, nil
}

// Resolver returns the role permission resolver.
func (c *Container) Resolver() *rbac.Resolver {
	c.resolverInit.Do(func() {
		c.resolver = rbac.NewResolver(c.config.DevModeGrantAll)
	})
	return c.resolver
}

// RouteTable returns the declarative route table.
func (c *Container) RouteTable() (*guard.Table, error) {
	var err error
	c.routeTableInit.Do(func() {
		c.routeTable, err = c.initRouteTable()
		if err != nil {
			c.initErrors["routeTable"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["routeTable"]; exists {
		return nil, storedErr
	}
	return c.routeTable, nil
}

// Guard returns the route guard.
func (c *Container) Guard() (*guard.Guard, error) {
	var err error
	c.routeGuardInit.Do(func() {
		c.routeGuard, err = c.initGuard()
		if err != nil {
			c.initErrors["routeGuard"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["routeGuard"]; exists {
		return nil, storedErr
	}
	return c.routeGuard, nil
}

// CookieCodec returns the signed session cookie codec.
func (c *Container) CookieCodec() (*sessionHTTP.CookieCodec, error) {
	var err error
	c.cookieCodecInit.Do(func() {
		c.cookieCodec, err = c.initCookieCodec()
		if err != nil {
			c.initErrors["cookieCodec"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["cookieCodec"]; exists {
		return nil, storedErr
	}
	return c.cookieCodec, nil
}

// SessionHandler returns the HTTP handler for the session lifecycle endpoints.
func (c *Container) SessionHandler() (*sessionHTTP.SessionHandler, error) {
	var err error
	c.sessionHandlerInit.Do(func() {
		c.sessionHandler, err = c.initSessionHandler()
		if err != nil {
			c.initErrors["sessionHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionHandler"]; exists {
		return nil, storedErr
	}
	return c.sessionHandler, nil
}

// PreferenceHandler returns the HTTP handler for user preferences.
func (c *Container) PreferenceHandler() (*sessionHTTP.PreferenceHandler, error) {
	var err error
	c.preferenceHandlerInit.Do(func() {
		c.preferenceHandler, err = c.initPreferenceHandler()
		if err != nil {
			c.initErrors["preferenceHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["preferenceHandler"]; exists {
		return nil, storedErr
	}
	return c.preferenceHandler, nil
}

// Router returns the assembled gateway router.
func (c *Container) Router() (*gin.Engine, error) {
	var err error
	c.routerInit.Do(func() {
		c.router, err = c.initRouter()
		if err != nil {
			c.initErrors["router"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["router"]; exists {
		return nil, storedErr
	}
	return c.router, nil
}

// initBlobRepository creates the blob repository based on the database driver.
func (c *Container) initBlobRepository() (store.BlobRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for blob repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return sessionRepository.NewPostgreSQLBlobRepository(db), nil
	case "mysql":
		return sessionRepository.NewMySQLBlobRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initBlobCipher loads the master key and creates the profile blob cipher.
// When a KMS provider is configured, the configured key is unwrapped through
// it first.
func (c *Container) initBlobCipher() (service.BlobCipher, error) {
	masterKey, err := service.LoadMasterKey(
		context.Background(),
		c.config.BlobMasterKey,
		c.config.KMSProvider,
		c.config.KMSKeyURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob master key: %w", err)
	}

	cipher, err := service.NewAESGCMBlobCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob cipher: %w", err)
	}
	return cipher, nil
}

// initSecureStore creates the encrypted identity store.
func (c *Container) initSecureStore() (*store.SecureStore, error) {
	repo, err := c.BlobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob repository for secure store: %w", err)
	}

	cipher, err := c.BlobCipher()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob cipher for secure store: %w", err)
	}

	return store.NewSecureStore(
		repo,
		cipher,
		c.config.Environment,
		c.config.EnvironmentSensitive,
		c.config.SessionTTL,
		c.Logger(),
	), nil
}

// initPreferenceStore creates the user preference store.
func (c *Container) initPreferenceStore() (*store.PreferenceStore, error) {
	repo, err := c.BlobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob repository for preference store: %w", err)
	}

	return store.NewPreferenceStore(repo, c.Logger()), nil
}

// initBackend creates the backend API client.
func (c *Container) initBackend() (service.Backend, error) {
	if c.config.BackendBaseURL == "" {
		return nil, fmt.Errorf("backend base URL is not configured")
	}

	return service.NewHTTPBackend(c.config.BackendBaseURL, c.config.BackendTimeout, c.Logger()), nil
}

// initRegistry creates the session manager registry.
func (c *Container) initRegistry() (*sessionUseCase.Registry, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, fmt.Errorf("failed to get backend for session registry: %w", err)
	}

	secureStore, err := c.SecureStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get secure store for session registry: %w", err)
	}

	logger := c.Logger()
	timeout := c.config.BackendTimeout

	factory := func(ctx context.Context, id uuid.UUID) *sessionUseCase.Manager {
		return sessionUseCase.NewManager(ctx, id, backend, secureStore, timeout, logger)
	}

	return sessionUseCase.NewRegistry(factory, c.config.SessionIdleTTL, logger), nil
}

// initRouteTable loads the route table from the configured file.
func (c *Container) initRouteTable() (*guard.Table, error) {
	table, err := guard.Load(c.config.RouteTablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load route table: %w", err)
	}
	return table, nil
}

// initGuard creates the route guard.
func (c *Container) initGuard() (*guard.Guard, error) {
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for guard: %w", err)
	}

	return guard.NewGuard(guard.Config{
		LoginPath:        c.config.LoginPath,
		UnauthorizedPath: c.config.UnauthorizedPath,
	}, businessMetrics, c.Logger()), nil
}

// initCookieCodec creates the signed session cookie codec.
func (c *Container) initCookieCodec() (*sessionHTTP.CookieCodec, error) {
	codec, err := sessionHTTP.NewCookieCodec(
		c.config.SessionCookieName,
		[]byte(c.config.SessionCookieSecret),
		c.config.SessionTTL,
		c.config.EnvironmentSensitive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie codec: %w", err)
	}
	return codec, nil
}

// initSessionHandler creates the session HTTP handler.
func (c *Container) initSessionHandler() (*sessionHTTP.SessionHandler, error) {
	codec, err := c.CookieCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie codec for session handler: %w", err)
	}

	return sessionHTTP.NewSessionHandler(codec, c.Resolver(), c.Logger()), nil
}

// initPreferenceHandler creates the preference HTTP handler.
func (c *Container) initPreferenceHandler() (*sessionHTTP.PreferenceHandler, error) {
	prefs, err := c.PreferenceStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get preference store for preference handler: %w", err)
	}

	return sessionHTTP.NewPreferenceHandler(prefs, c.Logger()), nil
}

// initRouter assembles the gateway router with all its dependencies.
func (c *Container) initRouter() (*gin.Engine, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for router: %w", err)
	}

	table, err := c.RouteTable()
	if err != nil {
		return nil, fmt.Errorf("failed to get route table for router: %w", err)
	}

	routeGuard, err := c.Guard()
	if err != nil {
		return nil, fmt.Errorf("failed to get guard for router: %w", err)
	}

	sessionHandler, err := c.SessionHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get session handler for router: %w", err)
	}

	preferenceHandler, err := c.PreferenceHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get preference handler for router: %w", err)
	}

	registry, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get session registry for router: %w", err)
	}

	codec, err := c.CookieCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie codec for router: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for router: %w", err)
	}

	logger := c.Logger()

	var metricsMiddleware gin.HandlerFunc
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for router: %w", err)
	}
	if provider != nil {
		metricsMiddleware = metrics.HTTPMetricsMiddleware(provider.MeterProvider(), c.config.MetricsNamespace)
	}

	routerConfig := internalHTTP.RouterConfig{
		GinMode:                      c.config.GetGinMode(),
		CORSEnabled:                  c.config.CORSEnabled,
		CORSAllowOrigins:             c.config.CORSAllowOrigins,
		RateLimitLoginEnabled:        c.config.RateLimitLoginEnabled,
		RateLimitLoginRequestsPerSec: c.config.RateLimitLoginRequestsPerSec,
		RateLimitLoginBurst:          c.config.RateLimitLoginBurst,
	}

	routerDeps := internalHTTP.RouterDeps{
		Table:             table,
		Guard:             routeGuard,
		SessionHandler:    sessionHandler,
		PreferenceHandler: preferenceHandler,
		SessionMiddleware: sessionHTTP.SessionMiddleware(registry, codec, businessMetrics, logger),
		MetricsMiddleware: metricsMiddleware,
		DB:                db,
		Logger:            logger,
	}

	return internalHTTP.NewRouter(routerConfig, routerDeps), nil
}
