package unit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-relay/internal/server"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

// TestOriginAllowAll verifies the wildcard policy accepts anything,
// including requests with no Origin header at all.
func TestOriginAllowAll(t *testing.T) {
	policy := server.NewOriginPolicy([]string{"*"}, slog.Default())

	for _, origin := range []string{"", "http://evil.example", "https://app.example.com"} {
		if !policy.Check(requestWithOrigin(origin)) {
			t.Errorf("Wildcard policy rejected origin %q", origin)
		}
	}
}

// TestOriginAllowList verifies only configured origins pass, compared
// case-insensitively on scheme and host.
func TestOriginAllowList(t *testing.T) {
	policy := server.NewOriginPolicy([]string{"https://app.example.com"}, slog.Default())

	if !policy.Check(requestWithOrigin("https://app.example.com")) {
		t.Error("Configured origin was rejected")
	}
	if !policy.Check(requestWithOrigin("HTTPS://APP.EXAMPLE.COM")) {
		t.Error("Origin comparison should be case-insensitive")
	}
	if policy.Check(requestWithOrigin("https://other.example.com")) {
		t.Error("Unlisted origin was accepted")
	}
	if policy.Check(requestWithOrigin("")) {
		t.Error("Missing origin was accepted by a restrictive policy")
	}
}

// TestOriginInvalidEntriesIgnored verifies malformed configuration entries
// are dropped instead of becoming accidental allow rules.
func TestOriginInvalidEntriesIgnored(t *testing.T) {
	policy := server.NewOriginPolicy([]string{"not a url", "", "   "}, slog.Default())

	if policy.Check(requestWithOrigin("not a url")) {
		t.Error("Malformed configured entry should not match anything")
	}
	if policy.Check(requestWithOrigin("http://localhost:8080")) {
		t.Error("Policy with no valid entries should reject all origins")
	}
}
