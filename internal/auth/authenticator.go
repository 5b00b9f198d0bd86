// ABOUTME: Resolves connect credentials into an AuthContext
// ABOUTME: Shared token, bcrypt password, or JWT principal tokens backed by the store

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/moltbot-gateway/internal/store"
)

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNoCredentials    = errors.New("no credentials supplied")
	ErrInvalidRole      = errors.New("invalid role")
	ErrPrincipalRevoked = errors.New("principal has been revoked")
)

// Credentials are what a client presents when connecting.
type Credentials struct {
	Token    string
	Password string
	Role     string   // requested role, defaults to operator
	Scopes   []string // requested scopes
}

// PrincipalLookup resolves JWT subjects to stored principals.
type PrincipalLookup interface {
	GetPrincipal(ctx context.Context, id string) (*store.Principal, error)
	TouchPrincipal(ctx context.Context, id string, at time.Time) error
}

// AuthenticatorConfig configures which credential kinds are accepted.
// Unset fields disable the corresponding method.
type AuthenticatorConfig struct {
	Token        string
	PasswordHash string
	Verifier     TokenVerifier
	Principals   PrincipalLookup
	Logger       *slog.Logger
}

// Authenticator validates credentials for both HTTP and WebSocket callers.
type Authenticator struct {
	token        []byte
	passwordHash []byte
	verifier     TokenVerifier
	principals   PrincipalLookup
	logger       *slog.Logger
}

// NewAuthenticator creates an authenticator from cfg.
func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		verifier:   cfg.Verifier,
		principals: cfg.Principals,
		logger:     logger.With("component", "auth"),
	}
	if cfg.Token != "" {
		a.token = []byte(cfg.Token)
	}
	if cfg.PasswordHash != "" {
		a.passwordHash = []byte(cfg.PasswordHash)
	}
	return a
}

// Authenticate checks creds and returns the resulting auth context.
//
// A shared token or password grants the requested role and scopes; an
// operator requesting no scopes receives operator.admin. A JWT grants the
// principal's stored role and the requested scopes capped to the
// principal's grant.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error) {
	role := creds.Role
	if role == "" {
		role = RoleOperator
	}
	if role != RoleOperator && role != RoleNode {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	switch {
	case creds.Token != "":
		if a.token != nil && subtle.ConstantTimeCompare([]byte(creds.Token), a.token) == 1 {
			return declaredContext(role, creds.Scopes, MethodToken), nil
		}
		if a.verifier != nil && a.principals != nil {
			return a.authenticateJWT(ctx, creds)
		}
		return nil, ErrUnauthorized

	case creds.Password != "":
		if a.passwordHash == nil {
			return nil, ErrUnauthorized
		}
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(creds.Password)); err != nil {
			return nil, ErrUnauthorized
		}
		return declaredContext(role, creds.Scopes, MethodPassword), nil

	default:
		return nil, ErrNoCredentials
	}
}

func (a *Authenticator) authenticateJWT(ctx context.Context, creds Credentials) (*AuthContext, error) {
	principalID, err := a.verifier.Verify(creds.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	principal, err := a.principals.GetPrincipal(ctx, principalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown principal", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up principal: %w", err)
	}
	if !principal.IsActive() {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrPrincipalRevoked)
	}

	if err := a.principals.TouchPrincipal(ctx, principal.ID, time.Now()); err != nil {
		a.logger.Warn("failed to record principal last_seen", "principal_id", principal.ID, "error", err)
	}

	return &AuthContext{
		PrincipalID: principal.ID,
		Role:        principal.Role,
		Scopes:      CapScopes(creds.Scopes, principal.Scopes),
		Method:      MethodJWT,
	}, nil
}

func declaredContext(role string, scopes []string, method string) *AuthContext {
	if role == RoleOperator && len(scopes) == 0 {
		scopes = []string{ScopeAdmin}
	}
	return &AuthContext{
		Role:   role,
		Scopes: append([]string(nil), scopes...),
		Method: method,
	}
}

// HashPassword returns a bcrypt hash suitable for auth.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
