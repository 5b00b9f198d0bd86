// ABOUTME: Static scope tables gating which clients may receive events or call methods
// ABOUTME: Approval and pairing events require operator scopes; operator.admin grants everything

package auth

import "slices"

// Connection roles.
const (
	RoleOperator = "operator"
	RoleNode     = "node"
)

// Operator scopes.
const (
	ScopeAdmin     = "operator.admin"
	ScopeRead      = "operator.read"
	ScopeWrite     = "operator.write"
	ScopeApprovals = "operator.approvals"
	ScopePairing   = "operator.pairing"
)

// eventScopeGuards maps scoped event names to the scopes that may receive
// them. Events not listed are delivered to every client.
var eventScopeGuards = map[string][]string{
	"exec.approval.requested": {ScopeApprovals},
	"exec.approval.resolved":  {ScopeApprovals},
	"device.pair.requested":   {ScopePairing},
	"device.pair.resolved":    {ScopePairing},
	"node.pair.requested":     {ScopePairing},
	"node.pair.resolved":      {ScopePairing},
}

// methodScopes maps request methods to the scope an operator needs to call
// them. Methods not listed are open to any authenticated client.
var methodScopes = map[string]string{
	"presence":   ScopeRead,
	"status":     ScopeRead,
	"agent.send": ScopeWrite,
}

// RequiredScopes returns the scopes guarding event, or false when the event
// is unscoped.
func RequiredScopes(event string) ([]string, bool) {
	scopes, ok := eventScopeGuards[event]
	return scopes, ok
}

// IsAuthorizedForEvent reports whether a client with the given auth context
// may receive event. Unscoped events go to everyone. Scoped events go only to
// operators holding operator.admin or one of the event's scopes.
func IsAuthorizedForEvent(a *AuthContext, event string) bool {
	required, scoped := eventScopeGuards[event]
	if !scoped {
		return true
	}
	if !a.IsOperator() {
		return false
	}
	if a.HasScope(ScopeAdmin) {
		return true
	}
	return slices.ContainsFunc(required, a.HasScope)
}

// IsAuthorizedForMethod reports whether a client may call method. Only
// operators may call scoped methods; operator.write implies operator.read.
func IsAuthorizedForMethod(a *AuthContext, method string) bool {
	scope, scoped := methodScopes[method]
	if !scoped {
		return a != nil
	}
	if !a.IsOperator() {
		return false
	}
	if a.HasScope(ScopeAdmin) || a.HasScope(scope) {
		return true
	}
	return scope == ScopeRead && a.HasScope(ScopeWrite)
}

// CapScopes limits the requested scopes to what was granted. An empty
// request takes the full grant. A grant containing operator.admin allows
// any request.
func CapScopes(requested, granted []string) []string {
	if len(requested) == 0 {
		return slices.Clone(granted)
	}
	if slices.Contains(granted, ScopeAdmin) {
		return slices.Clone(requested)
	}
	capped := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(granted, s) && !slices.Contains(capped, s) {
			capped = append(capped, s)
		}
	}
	return capped
}
