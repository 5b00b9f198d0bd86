// ABOUTME: Tests for event and method scope authorization
// ABOUTME: Covers unscoped events, role gating, admin override, and scope capping

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func operator(scopes ...string) *AuthContext {
	return &AuthContext{Role: RoleOperator, Scopes: scopes}
}

func TestIsAuthorizedForEvent_UnscopedEventsReachEveryone(t *testing.T) {
	for _, event := range []string{"tick", "presence", "health", "agent", "chat", "some.unknown.event"} {
		assert.True(t, IsAuthorizedForEvent(operator(), event), event)
		assert.True(t, IsAuthorizedForEvent(&AuthContext{Role: RoleNode}, event), event)
	}
}

func TestIsAuthorizedForEvent_ScopedEvents(t *testing.T) {
	tests := []struct {
		name   string
		client *AuthContext
		event  string
		want   bool
	}{
		{"approvals scope gets approval request", operator(ScopeApprovals), "exec.approval.requested", true},
		{"approvals scope gets approval resolved", operator(ScopeApprovals), "exec.approval.resolved", true},
		{"approvals scope denied pairing", operator(ScopeApprovals), "device.pair.requested", false},
		{"pairing scope gets device pairing", operator(ScopePairing), "device.pair.resolved", true},
		{"pairing scope gets node pairing", operator(ScopePairing), "node.pair.requested", true},
		{"pairing scope denied approvals", operator(ScopePairing), "exec.approval.requested", false},
		{"read scope denied approvals", operator(ScopeRead), "exec.approval.requested", false},
		{"no scopes denied", operator(), "node.pair.resolved", false},
		{"admin gets approvals", operator(ScopeAdmin), "exec.approval.requested", true},
		{"admin gets pairing", operator(ScopeAdmin), "node.pair.resolved", true},
		{"node never gets scoped even with scope", &AuthContext{Role: RoleNode, Scopes: []string{ScopeApprovals}}, "exec.approval.requested", false},
		{"node never gets scoped even with admin", &AuthContext{Role: RoleNode, Scopes: []string{ScopeAdmin}}, "device.pair.requested", false},
		{"nil context denied", nil, "exec.approval.requested", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthorizedForEvent(tt.client, tt.event))
		})
	}
}

func TestRequiredScopes(t *testing.T) {
	scopes, ok := RequiredScopes("device.pair.requested")
	assert.True(t, ok)
	assert.Equal(t, []string{ScopePairing}, scopes)

	_, ok = RequiredScopes("tick")
	assert.False(t, ok)
}

func TestIsAuthorizedForMethod(t *testing.T) {
	tests := []struct {
		name   string
		client *AuthContext
		method string
		want   bool
	}{
		{"health open to nodes", &AuthContext{Role: RoleNode}, "health", true},
		{"health denied without auth", nil, "health", false},
		{"status needs read", operator(ScopeRead), "status", true},
		{"write implies read", operator(ScopeWrite), "presence", true},
		{"read does not imply write", operator(ScopeRead), "agent.send", false},
		{"write allows send", operator(ScopeWrite), "agent.send", true},
		{"admin allows send", operator(ScopeAdmin), "agent.send", true},
		{"node cannot send", &AuthContext{Role: RoleNode, Scopes: []string{ScopeAdmin}}, "agent.send", false},
		{"approvals alone cannot read status", operator(ScopeApprovals), "status", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthorizedForMethod(tt.client, tt.method))
		})
	}
}

func TestCapScopes(t *testing.T) {
	granted := []string{ScopeRead, ScopeApprovals}

	assert.Equal(t, granted, CapScopes(nil, granted), "empty request takes full grant")
	assert.Equal(t, []string{ScopeRead}, CapScopes([]string{ScopeRead, ScopeAdmin}, granted))
	assert.Equal(t, []string{ScopeApprovals}, CapScopes([]string{ScopeApprovals, ScopeApprovals}, granted))
	assert.Empty(t, CapScopes([]string{ScopePairing}, granted))

	adminGrant := []string{ScopeAdmin}
	assert.Equal(t, []string{ScopePairing}, CapScopes([]string{ScopePairing}, adminGrant))
}

func TestAuthContext_IsAdmin(t *testing.T) {
	assert.True(t, operator(ScopeAdmin).IsAdmin())
	assert.False(t, operator(ScopeWrite).IsAdmin())
	assert.False(t, (&AuthContext{Role: RoleNode, Scopes: []string{ScopeAdmin}}).IsAdmin())

	var nilCtx *AuthContext
	assert.False(t, nilCtx.IsAdmin())
}
