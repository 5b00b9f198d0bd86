// ABOUTME: HTTP middleware for bearer authentication on API endpoints
// ABOUTME: Extracts the bearer token, authenticates it, and adds AuthContext to the request

package auth

import (
	"net/http"
	"strings"

	"github.com/2389/moltbot-gateway/internal/httpapi"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerToken returns the bearer token on r, or "" when absent or malformed.
func BearerToken(r *http.Request) string {
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// HTTPAuthMiddleware rejects requests without a valid bearer token using the
// standard 401 envelope. Authenticated requests carry an operator AuthContext.
func HTTPAuthMiddleware(authn *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				authn.logger.Debug("rejecting request", "path", r.URL.Path, "reason", errMsg)
				httpapi.SendUnauthorized(w)
				return
			}

			authCtx, err := authn.Authenticate(r.Context(), Credentials{Token: token, Role: RoleOperator})
			if err != nil {
				authn.logger.Debug("rejecting request", "path", r.URL.Path, "error", err)
				httpapi.SendUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires operator.admin.
// Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				httpapi.SendUnauthorized(w)
				return
			}

			if !authCtx.IsAdmin() {
				httpapi.SendError(w, http.StatusForbidden, httpapi.ErrorTypeForbidden, "operator.admin scope required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
