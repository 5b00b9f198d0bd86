// ABOUTME: Tests for credential resolution across token, password, and JWT methods
// ABOUTME: Uses an in-memory principal lookup to cover revocation and scope capping

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/moltbot-gateway/internal/store"
)

// mockPrincipals is an in-memory PrincipalLookup.
type mockPrincipals struct {
	mu         sync.Mutex
	principals map[string]*store.Principal
	touched    []string
	err        error
}

func (m *mockPrincipals) GetPrincipal(_ context.Context, id string) (*store.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.principals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *mockPrincipals) TouchPrincipal(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	return nil
}

func newJWTAuthenticator(t *testing.T, principals ...*store.Principal) (*Authenticator, *JWTVerifier, *mockPrincipals) {
	t.Helper()
	verifier := newTestVerifier(t)
	lookup := &mockPrincipals{principals: map[string]*store.Principal{}}
	for _, p := range principals {
		lookup.principals[p.ID] = p
	}
	return NewAuthenticator(AuthenticatorConfig{Verifier: verifier, Principals: lookup}), verifier, lookup
}

func TestAuthenticate_SharedToken(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	ac, err := authn.Authenticate(context.Background(), Credentials{Token: "s3cret", Scopes: []string{ScopeRead}})
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, ac.Role)
	assert.Equal(t, []string{ScopeRead}, ac.Scopes)
	assert.Equal(t, MethodToken, ac.Method)
	assert.Empty(t, ac.PrincipalID)
}

func TestAuthenticate_SharedTokenDefaultsToAdmin(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	ac, err := authn.Authenticate(context.Background(), Credentials{Token: "s3cret"})
	require.NoError(t, err)
	assert.True(t, ac.IsAdmin())
}

func TestAuthenticate_NodeRoleKeepsDeclaredScopes(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	ac, err := authn.Authenticate(context.Background(), Credentials{Token: "s3cret", Role: RoleNode})
	require.NoError(t, err)
	assert.Equal(t, RoleNode, ac.Role)
	assert.Empty(t, ac.Scopes)
}

func TestAuthenticate_WrongSharedToken(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	_, err := authn.Authenticate(context.Background(), Credentials{Token: "nope"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_InvalidRole(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	_, err := authn.Authenticate(context.Background(), Credentials{Token: "s3cret", Role: "superuser"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAuthenticate_NoCredentials(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	_, err := authn.Authenticate(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthenticate_Password(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	authn := NewAuthenticator(AuthenticatorConfig{PasswordHash: string(hash)})

	ac, err := authn.Authenticate(context.Background(), Credentials{Password: "hunter2", Scopes: []string{ScopePairing}})
	require.NoError(t, err)
	assert.Equal(t, MethodPassword, ac.Method)
	assert.Equal(t, []string{ScopePairing}, ac.Scopes)

	_, err = authn.Authenticate(context.Background(), Credentials{Password: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_PasswordNotConfigured(t *testing.T) {
	authn := NewAuthenticator(AuthenticatorConfig{Token: "s3cret"})

	_, err := authn.Authenticate(context.Background(), Credentials{Password: "anything"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_JWTPrincipal(t *testing.T) {
	authn, verifier, lookup := newJWTAuthenticator(t, &store.Principal{
		ID: "p-1", Role: RoleOperator, Scopes: []string{ScopeRead, ScopeApprovals}, Status: store.PrincipalStatusActive,
	})
	token, err := verifier.Generate("p-1", time.Hour)
	require.NoError(t, err)

	ac, err := authn.Authenticate(context.Background(), Credentials{
		Token:  token,
		Role:   RoleOperator,
		Scopes: []string{ScopeApprovals, ScopeAdmin},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", ac.PrincipalID)
	assert.Equal(t, MethodJWT, ac.Method)
	assert.Equal(t, []string{ScopeApprovals}, ac.Scopes, "admin must be capped away")
	assert.Equal(t, []string{"p-1"}, lookup.touched)
}

func TestAuthenticate_JWTRoleComesFromPrincipal(t *testing.T) {
	authn, verifier, _ := newJWTAuthenticator(t, &store.Principal{
		ID: "node-1", Role: RoleNode, Status: store.PrincipalStatusActive,
	})
	token, err := verifier.Generate("node-1", time.Hour)
	require.NoError(t, err)

	ac, err := authn.Authenticate(context.Background(), Credentials{Token: token, Role: RoleOperator})
	require.NoError(t, err)
	assert.Equal(t, RoleNode, ac.Role)
}

func TestAuthenticate_JWTRevokedPrincipal(t *testing.T) {
	authn, verifier, _ := newJWTAuthenticator(t, &store.Principal{
		ID: "p-2", Role: RoleOperator, Status: store.PrincipalStatusRevoked,
	})
	token, err := verifier.Generate("p-2", time.Hour)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), Credentials{Token: token})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrPrincipalRevoked)
}

func TestAuthenticate_JWTUnknownPrincipal(t *testing.T) {
	authn, verifier, _ := newJWTAuthenticator(t)
	token, err := verifier.Generate("ghost", time.Hour)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), Credentials{Token: token})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_JWTExpired(t *testing.T) {
	authn, verifier, _ := newJWTAuthenticator(t, &store.Principal{
		ID: "p-3", Role: RoleOperator, Status: store.PrincipalStatusActive,
	})
	token, err := verifier.Generate("p-3", -time.Minute)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), Credentials{Token: token})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticate_JWTStoreError(t *testing.T) {
	authn, verifier, lookup := newJWTAuthenticator(t)
	lookup.err = errors.New("disk on fire")
	token, err := verifier.Generate("p-4", time.Hour)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), Credentials{Token: token})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	authn := NewAuthenticator(AuthenticatorConfig{PasswordHash: hash})
	_, err = authn.Authenticate(context.Background(), Credentials{Password: "correct horse"})
	assert.NoError(t, err)
}
