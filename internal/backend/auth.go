package backend

import (
	"net/http"
	"strings"
)

// TokenAuth maps static bearer tokens to user IDs. It stands in for
// the real authentication service: good enough to exercise the
// gateway's session semantics, not a real auth protocol.
type TokenAuth struct {
	tokens map[string]string
}

// NewTokenAuth creates an authenticator from a token -> userID map.
func NewTokenAuth(tokens map[string]string) *TokenAuth {
	if tokens == nil {
		tokens = map[string]string{}
	}
	return &TokenAuth{tokens: tokens}
}

// Authenticate resolves the request's bearer token to a user ID.
// The second result is false when no valid session is present.
func (a *TokenAuth) Authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	userID, ok := a.tokens[token]
	return userID, ok
}
