package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/rbac"
	sessionDomain "github.com/opsdash/dashgate/internal/session/domain"
)

// userPayload is the backend's wire representation of a user.
type userPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// httpBackend implements Backend over net/http with a fixed per-call timeout.
//
// Error classification:
//   - transport errors and timeouts → ErrBackendUnavailable
//   - 401 → ErrSessionExpired (profile) / ErrInvalidCredentials (login)
//   - 403 → ErrInvalidCredentials
//   - undecodable success payloads → ErrMalformedProfile
//
// The classification only affects logging and response mapping; the session
// manager collapses all of them into the Anonymous transition.
type httpBackend struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPBackend creates a Backend for the given base URL. The timeout is
// applied to every call; a call that exceeds it counts as a failure.
func NewHTTPBackend(baseURL string, timeout time.Duration, logger *slog.Logger) Backend {
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// do performs a request with the session credential attached as a cookie
// header and classifies transport failures.
func (b *httpBackend) do(ctx context.Context, method, path, credential string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build backend request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Cookie", credential)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err))
		return nil, apperrors.Wrap(sessionDomain.ErrBackendUnavailable, err.Error())
	}

	return resp, nil
}

// identityFromPayload converts a wire user into an Identity, applying the
// role normalization boundary.
func identityFromPayload(user userPayload, credential string) (*Identity, error) {
	if user.ID == "" {
		return nil, sessionDomain.ErrMalformedProfile
	}

	return &Identity{
		Profile: sessionDomain.Profile{
			ID:          user.ID,
			DisplayName: user.DisplayName,
		},
		Role:       rbac.ParseRole(user.Role),
		Credential: credential,
	}, nil
}

// credentialFromResponse serializes the backend's session cookies into the
// opaque credential string forwarded on subsequent calls.
func credentialFromResponse(resp *http.Response) string {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(pairs, "; ")
}

// Login exchanges credentials for a backend session cookie and the user's
// identity.
func (b *httpBackend) Login(ctx context.Context, creds sessionDomain.Credentials) (*Identity, error) {
	resp, err := b.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, sessionDomain.ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, apperrors.Wrap(sessionDomain.ErrBackendUnavailable,
			fmt.Sprintf("login returned status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, apperrors.Wrap(sessionDomain.ErrInvalidCredentials,
			fmt.Sprintf("login returned status %d", resp.StatusCode))
	}

	var payload struct {
		User userPayload `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, sessionDomain.ErrMalformedProfile
	}

	return identityFromPayload(payload.User, credentialFromResponse(resp))
}

// Profile validates the backend session and returns the current identity.
func (b *httpBackend) Profile(ctx context.Context, credential string) (*Identity, error) {
	resp, err := b.do(ctx, http.MethodGet, "/user/profile", credential, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, sessionDomain.ErrSessionExpired
	case resp.StatusCode == http.StatusForbidden:
		return nil, sessionDomain.ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, apperrors.Wrap(sessionDomain.ErrBackendUnavailable,
			fmt.Sprintf("profile returned status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, apperrors.Wrap(sessionDomain.ErrInvalidCredentials,
			fmt.Sprintf("profile returned status %d", resp.StatusCode))
	}

	var user userPayload
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, sessionDomain.ErrMalformedProfile
	}

	return identityFromPayload(user, credential)
}

// Logout invalidates the backend session. Best-effort by contract.
func (b *httpBackend) Logout(ctx context.Context, credential string) error {
	resp, err := b.do(ctx, http.MethodPost, "/auth/logout", credential, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperrors.Wrap(sessionDomain.ErrBackendUnavailable,
			fmt.Sprintf("logout returned status %d", resp.StatusCode))
	}
	return nil
}

// Sessions lists the user's active backend sessions.
func (b *httpBackend) Sessions(ctx context.Context, credential string, offset, limit int) ([]RemoteSession, error) {
	path := fmt.Sprintf("/auth/sessions?offset=%d&limit=%d", offset, limit)
	resp, err := b.do(ctx, http.MethodGet, path, credential, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, sessionDomain.ErrSessionExpired
	case resp.StatusCode >= 300:
		return nil, apperrors.Wrap(sessionDomain.ErrBackendUnavailable,
			fmt.Sprintf("sessions returned status %d", resp.StatusCode))
	}

	var payload struct {
		Sessions []RemoteSession `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode sessions payload")
	}

	return payload.Sessions, nil
}

// RevokeAll invalidates every backend session of the user.
func (b *httpBackend) RevokeAll(ctx context.Context, credential string) error {
	resp, err := b.do(ctx, http.MethodPost, "/auth/revoke-all", credential, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return sessionDomain.ErrSessionExpired
	case resp.StatusCode >= 300:
		return apperrors.Wrap(sessionDomain.ErrBackendUnavailable,
			fmt.Sprintf("revoke-all returned status %d", resp.StatusCode))
	}
	return nil
}
