package http

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/httputil"
	"github.com/opsdash/dashgate/internal/rbac"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
	customValidation "github.com/opsdash/dashgate/internal/validation"
)

// SessionHandler handles HTTP requests for the session lifecycle endpoints.
type SessionHandler struct {
	codec    *CookieCodec
	resolver *rbac.Resolver
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler with required dependencies.
func NewSessionHandler(codec *CookieCodec, resolver *rbac.Resolver, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		codec:    codec,
		resolver: resolver,
		logger:   logger,
	}
}

// LoginRequest contains the login credentials forwarded to the backend.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks if the login request is valid.
func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required,
			customValidation.NotBlank,
			customValidation.Email,
			validation.Length(1, 255),
		),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(1, 1024),
		),
	)
}

// UserResponse represents the authenticated user in API responses.
type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SessionResponse represents the session state in API responses. User and
// role are only present for authenticated sessions.
type SessionResponse struct {
	State           string        `json:"state"`
	User            *UserResponse `json:"user,omitempty"`
	Role            string        `json:"role,omitempty"`
	LastValidatedAt *time.Time    `json:"last_validated_at,omitempty"`
}

// RemoteSessionResponse represents one active backend session.
type RemoteSessionResponse struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// RemoteSessionListResponse is the paginated sessions listing.
type RemoteSessionListResponse struct {
	Sessions []RemoteSessionResponse `json:"sessions"`
	Offset   int                     `json:"offset"`
	Limit    int                     `json:"limit"`
}

// mapSessionToResponse converts a session snapshot to an API response.
func mapSessionToResponse(session sessionDomain.Session) SessionResponse {
	response := SessionResponse{State: session.State.String()}
	if session.IsAuthenticated() {
		response.User = &UserResponse{
			ID:          session.Profile.ID,
			DisplayName: session.Profile.DisplayName,
		}
		response.Role = session.Role.String()
		if !session.LastValidatedAt.IsZero() {
			validatedAt := session.LastValidatedAt
			response.LastValidatedAt = &validatedAt
		}
	}
	return response
}

// Login handles POST /auth/login.
//
// Exchanges credentials for an authenticated session. The backend session
// cookie stays inside the gateway; the browser only ever holds the signed
// gateway session cookie.
//
// Returns:
//   - 201 Created with the session state on success
//   - 400 Bad Request for malformed JSON
//   - 422 Unprocessable Entity for invalid credentials format
//   - 401 Unauthorized when the backend rejects the credentials
//   - 503 Service Unavailable when the backend cannot be reached
func (h *SessionHandler) Login(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	var request LoginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	session, err := useCase.Login(c.Request.Context(), sessionDomain.Credentials{
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, mapSessionToResponse(*session))
}

// Session handles GET /auth/session.
//
// Returns the current session state without contacting the backend. The
// dashboard polls this after receiving a validation placeholder.
func (h *SessionHandler) Session(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	c.JSON(http.StatusOK, mapSessionToResponse(useCase.State()))
}

// CheckAuth handles POST /auth/check.
//
// Validates the session against the backend and returns the resolved state.
// Validation failures of any kind resolve to the anonymous state rather than
// an error response.
func (h *SessionHandler) CheckAuth(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	session, err := useCase.CheckAuth(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, mapSessionToResponse(*session))
}

// Profile handles GET /user/profile.
//
// Returns:
//   - 200 OK with the user profile for an authenticated session
//   - 401 Unauthorized otherwise
func (h *SessionHandler) Profile(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	session := useCase.State()
	if !session.IsAuthenticated() {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:          session.Profile.ID,
		DisplayName: session.Profile.DisplayName,
	})
}

// PermissionResponse represents one granted permission.
type PermissionResponse struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// PermissionListResponse is the permission set resolved for the session's role.
type PermissionListResponse struct {
	Role        string               `json:"role"`
	Permissions []PermissionResponse `json:"permissions"`
}

// Permissions handles GET /user/permissions.
//
// Resolves the session's role to its permission set so the dashboard can
// decide which controls to show without duplicating the permission table.
//
// Returns:
//   - 200 OK with the resolved permission set
//   - 401 Unauthorized without an authenticated session
func (h *SessionHandler) Permissions(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	session := useCase.State()
	if !session.IsAuthenticated() {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	resolved := h.resolver.PermissionsFor(session.Role)
	response := PermissionListResponse{
		Role:        session.Role.String(),
		Permissions: make([]PermissionResponse, 0, len(resolved)),
	}
	for perm := range resolved {
		response.Permissions = append(response.Permissions, PermissionResponse{
			Action:   perm.Action,
			Resource: perm.Resource,
		})
	}
	sort.Slice(response.Permissions, func(i, j int) bool {
		if response.Permissions[i].Resource != response.Permissions[j].Resource {
			return response.Permissions[i].Resource < response.Permissions[j].Resource
		}
		return response.Permissions[i].Action < response.Permissions[j].Action
	})

	c.JSON(http.StatusOK, response)
}

// Logout handles POST /auth/logout.
//
// Local session state is cleared unconditionally and the gateway cookie is
// expired, so the response is 204 No Content even when the backend logout
// call fails.
func (h *SessionHandler) Logout(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if ok {
		_ = useCase.Logout(c.Request.Context())
	}

	h.codec.Expire(c)
	c.Status(http.StatusNoContent)
}

// Sessions handles GET /auth/sessions.
//
// Lists the user's active backend sessions with offset/limit pagination.
//
// Returns:
//   - 200 OK with the session list
//   - 400 Bad Request for invalid pagination parameters
//   - 401 Unauthorized without an authenticated session
func (h *SessionHandler) Sessions(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	remoteSessions, err := useCase.Sessions(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	response := RemoteSessionListResponse{
		Sessions: make([]RemoteSessionResponse, 0, len(remoteSessions)),
		Offset:   offset,
		Limit:    limit,
	}
	for _, remote := range remoteSessions {
		response.Sessions = append(response.Sessions, RemoteSessionResponse{
			ID:         remote.ID,
			UserAgent:  remote.UserAgent,
			IPAddress:  remote.IPAddress,
			CreatedAt:  remote.CreatedAt,
			LastSeenAt: remote.LastSeenAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// RevokeAll handles POST /auth/revoke-all.
//
// Invalidates every backend session of the user, clears local state, and
// expires the gateway cookie.
//
// Returns:
//   - 204 No Content on success
//   - 401 Unauthorized without an authenticated session
//   - 503 Service Unavailable when the backend cannot be reached
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	useCase, ok := GetSessionUseCase(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("session middleware not configured"), h.logger)
		return
	}

	if err := useCase.RevokeAll(c.Request.Context()); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.codec.Expire(c)
	c.Status(http.StatusNoContent)
}
