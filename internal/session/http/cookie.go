// Package http provides the gateway's HTTP surface for the session
// lifecycle: the signed browser-session cookie, the middleware resolving it
// to a session manager, and the auth endpoint handlers.
package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/opsdash/dashgate/internal/errors"
)

// cookieKeyMinLength is the minimum HMAC key length in bytes.
const cookieKeyMinLength = 32

// CookieCodec issues and reads the gateway's browser-session cookie. The
// cookie carries only a session identifier signed with HMAC-SHA256; the
// backend credential never leaves the server. A forged or tampered cookie
// fails verification and is treated as absent.
type CookieCodec struct {
	name   string
	key    []byte
	ttl    time.Duration
	secure bool
}

// NewCookieCodec creates a cookie codec. The signing key must be at least 32
// bytes. Set secure to false only for local development over plain HTTP.
func NewCookieCodec(name string, key []byte, ttl time.Duration, secure bool) (*CookieCodec, error) {
	if name == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "cookie name must not be empty")
	}
	if len(key) < cookieKeyMinLength {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput,
			"cookie signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "cookie TTL must be positive")
	}
	return &CookieCodec{
		name:   name,
		key:    key,
		ttl:    ttl,
		secure: secure,
	}, nil
}

// Name returns the cookie name.
func (cc *CookieCodec) Name() string {
	return cc.name
}

// Issue sets the signed session cookie on the response.
func (cc *CookieCodec) Issue(c *gin.Context, id uuid.UUID) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cc.name,
		Value:    cc.encode(id),
		Path:     "/",
		MaxAge:   int(cc.ttl.Seconds()),
		HttpOnly: true,
		Secure:   cc.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read extracts and verifies the session identifier from the request cookie.
// Returns false for a missing, malformed, or tampered cookie.
func (cc *CookieCodec) Read(c *gin.Context) (uuid.UUID, bool) {
	raw, err := c.Cookie(cc.name)
	if err != nil {
		return uuid.Nil, false
	}

	value, signature, found := strings.Cut(raw, ".")
	if !found {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false
	}

	want := cc.sign(value)
	got, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil || !hmac.Equal(want, got) {
		return uuid.Nil, false
	}

	return id, true
}

// Expire instructs the browser to drop the session cookie.
func (cc *CookieCodec) Expire(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cc.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// encode produces the signed cookie value "<uuid>.<base64 signature>".
func (cc *CookieCodec) encode(id uuid.UUID) string {
	value := id.String()
	return value + "." + base64.RawURLEncoding.EncodeToString(cc.sign(value))
}

// sign computes the HMAC-SHA256 signature of a cookie value.
func (cc *CookieCodec) sign(value string) []byte {
	mac := hmac.New(sha256.New, cc.key)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}
