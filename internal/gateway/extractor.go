package gateway

import (
	"net/http"
	"strings"
)

// Credential sources, in precedence order.
const (
	SourceBearer = "authorization_bearer"
	SourceHeader = "x_api_token"
	SourceField  = "api_token_field"
)

const (
	bearerPrefix   = "Bearer "
	apiTokenHeader = "X-API-Token"
	apiTokenField  = "api_token"
)

// ExtractCredential pulls the token secret out of the request. Sources are
// checked in a fixed order and the first non-empty value wins: the
// Authorization Bearer header, then the X-API-Token header, then the
// api_token query or form field. Returns the secret and the source it came
// from, or empty strings when no source carries a value.
func ExtractCredential(r *http.Request) (string, string) {
	if value := extractBearer(r); value != "" {
		return value, SourceBearer
	}

	if value := strings.TrimSpace(r.Header.Get(apiTokenHeader)); value != "" {
		return value, SourceHeader
	}

	if value := strings.TrimSpace(r.FormValue(apiTokenField)); value != "" {
		return value, SourceField
	}

	return "", ""
}

// extractBearer returns the bearer token from the Authorization header, or
// empty when the header is absent or carries another scheme.
func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(bearerPrefix):])
}
