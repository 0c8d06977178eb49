package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	t.Run("parses comma-separated origins", func(t *testing.T) {
		origins := parseOrigins("https://a.example.com, https://b.example.com")
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, origins)
	})

	t.Run("drops empty entries", func(t *testing.T) {
		origins := parseOrigins("https://a.example.com,, ,https://b.example.com")
		assert.Len(t, origins, 2)
	})

	t.Run("returns nil for empty input", func(t *testing.T) {
		assert.Nil(t, parseOrigins(""))
	})
}

func TestCreateCORSMiddleware(t *testing.T) {
	logger := testLogger()

	t.Run("returns nil when disabled", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(false, "https://a.example.com", logger))
	})

	t.Run("returns nil when enabled without origins", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(true, "", logger))
	})

	t.Run("returns middleware for configured origins", func(t *testing.T) {
		assert.NotNil(t, createCORSMiddleware(true, "https://a.example.com", logger))
	})
}
