// ABOUTME: Authentication context for tracking identity through handlers and connections
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
	"slices"
)

// Authentication methods recorded on an AuthContext.
const (
	MethodToken    = "token"
	MethodPassword = "password"
	MethodJWT      = "jwt"
)

// AuthContext holds the authenticated identity of an HTTP request or a
// WebSocket connection.
type AuthContext struct {
	PrincipalID string   // set only for JWT principals
	Role        string   // "operator" | "node"
	Scopes      []string // granted scopes after capping
	Method      string   // how the caller authenticated
}

// IsOperator reports whether the caller connected with the operator role.
func (a *AuthContext) IsOperator() bool {
	return a != nil && a.Role == RoleOperator
}

// HasScope reports whether scope was granted explicitly.
func (a *AuthContext) HasScope(scope string) bool {
	return a != nil && slices.Contains(a.Scopes, scope)
}

// IsAdmin returns true for operators holding operator.admin.
func (a *AuthContext) IsAdmin() bool {
	return a.IsOperator() && a.HasScope(ScopeAdmin)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
