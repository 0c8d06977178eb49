package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/httputil"
	"github.com/opsdash/dashgate/internal/session/store"
	customValidation "github.com/opsdash/dashgate/internal/validation"
)

// preferenceNamePattern restricts preference names to a flat namespace of
// dash/underscore separated words (e.g. "sidebar_collapsed").
var preferenceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// PreferenceHandler handles HTTP requests for per-user display preferences.
// Preferences live in a separate storage namespace from identity blobs and
// deliberately survive logout.
type PreferenceHandler struct {
	prefs  *store.PreferenceStore
	logger *slog.Logger
}

// NewPreferenceHandler creates a new preference handler.
func NewPreferenceHandler(prefs *store.PreferenceStore, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, logger: logger}
}

// PreferenceRequest carries the preference value to store.
type PreferenceRequest struct {
	Value json.RawMessage `json:"value"`
}

// Validate checks if the preference request is valid.
func (r *PreferenceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value, validation.Required),
	)
}

// PreferenceResponse represents one stored preference.
type PreferenceResponse struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// validatePreferenceName checks the :name path parameter.
func validatePreferenceName(name string) error {
	return validation.Validate(name,
		validation.Required,
		customValidation.NotBlank,
		validation.Length(1, 128),
		validation.Match(preferenceNamePattern),
	)
}

// preferenceKey scopes a preference to the authenticated user so that two
// users on the same deployment never see each other's layout.
func preferenceKey(userID, name string) string {
	return userID + ":" + name
}

// Get handles GET /user/preferences/:name.
//
// Returns:
//   - 200 OK with the stored value
//   - 404 Not Found when the preference was never set
//   - 401 Unauthorized without an authenticated session
func (h *PreferenceHandler) Get(c *gin.Context) {
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

	name := c.Param("name")
	if err := validatePreferenceName(name); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	var value json.RawMessage
	if !h.prefs.Get(c.Request.Context(), preferenceKey(session.Profile.ID, name), &value) {
		httputil.HandleErrorGin(c, apperrors.ErrNotFound, h.logger)
		return
	}

	c.JSON(http.StatusOK, PreferenceResponse{Name: name, Value: value})
}

// Set handles PUT /user/preferences/:name.
//
// Returns:
//   - 204 No Content on success
//   - 400 Bad Request for malformed JSON or an invalid name
//   - 422 Unprocessable Entity for a missing value
//   - 401 Unauthorized without an authenticated session
func (h *PreferenceHandler) Set(c *gin.Context) {
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

	name := c.Param("name")
	if err := validatePreferenceName(name); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	var request PreferenceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := h.prefs.Set(c.Request.Context(), preferenceKey(session.Profile.ID, name), request.Value); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /user/preferences/:name.
//
// Deleting a preference that was never set is a no-op.
//
// Returns:
//   - 204 No Content on success
//   - 401 Unauthorized without an authenticated session
func (h *PreferenceHandler) Delete(c *gin.Context) {
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

	name := c.Param("name")
	if err := validatePreferenceName(name); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := h.prefs.Delete(c.Request.Context(), preferenceKey(session.Profile.ID, name)); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}
