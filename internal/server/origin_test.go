package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestOriginPolicyAllowsConfiguredOrigins(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080", "HTTPS://Chat.Example.COM"}, zap.NewNop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, p.check(r))

	// Scheme and host comparison is case-insensitive.
	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, p.check(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, p.check(r))
}

func TestOriginPolicyRejectsMissingOrMalformedOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080"}, zap.NewNop())

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, p.check(r))

	r.Header.Set("Origin", "not a url")
	assert.False(t, p.check(r))
}

func TestOriginPolicyWildcardAllowsAnyValidOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zap.NewNop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, p.check(r))

	// Wildcard still requires a parseable Origin header.
	r.Header.Del("Origin")
	assert.False(t, p.check(r))
}

func TestOriginPolicySkipsInvalidConfigEntries(t *testing.T) {
	p := newOriginPolicy([]string{"", "   ", "no-scheme", "http://ok.example"}, zap.NewNop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://ok.example")
	assert.True(t, p.check(r))
}
