// ABOUTME: Session key resolution and agent-scoped key construction.
// ABOUTME: Explicit header, deterministic per-user key, or a fresh random key.

package routing

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultMainKey names an agent's primary session.
const DefaultMainKey = "main"

// BuildAgentSessionKey namespaces mainKey under agentID so that two agents
// never share a session for the same raw key.
func BuildAgentSessionKey(agentID, mainKey string) string {
	key := strings.TrimSpace(mainKey)
	if key == "" {
		key = DefaultMainKey
	}
	return "agent:" + NormalizeAgentID(agentID) + ":" + key
}

// ResolveSessionKey returns the session a request attaches to. An explicit
// X-Moltbot-Session-Key header is used verbatim. Otherwise a user yields the
// stable key "{prefix}-user:{user}" and anonymous requests get a fresh
// "{prefix}:{uuid}"; both are namespaced under agentID.
func ResolveSessionKey(r *http.Request, agentID, user, prefix string) string {
	if explicit := strings.TrimSpace(r.Header.Get(HeaderSessionKey)); explicit != "" {
		return explicit
	}

	var mainKey string
	if u := strings.TrimSpace(user); u != "" {
		mainKey = prefix + "-user:" + u
	} else {
		mainKey = prefix + ":" + uuid.NewString()
	}
	return BuildAgentSessionKey(agentID, mainKey)
}
