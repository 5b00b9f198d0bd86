// ABOUTME: Agent id resolution for inbound HTTP requests.
// ABOUTME: Header override, then model-name hint, then the default agent, all normalized to a slug.

package routing

import (
	"net/http"
	"regexp"
	"strings"
)

// DefaultAgentID is used when a request names no agent.
const DefaultAgentID = "main"

// Request headers consulted by the router.
const (
	HeaderAgentID      = "X-Moltbot-Agent-Id"
	HeaderAgentIDAlias = "X-Moltbot-Agent"
	HeaderSessionKey   = "X-Moltbot-Session-Key"
)

const maxAgentIDLen = 64

var (
	validAgentID   = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidIDChars = regexp.MustCompile(`[^a-z0-9_-]+`)

	// moltbot:<id>, moltbot/<id>, agent:<id>
	modelAgentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^moltbot[:/]([a-z0-9][a-z0-9_-]{0,63})$`),
		regexp.MustCompile(`(?i)^agent:([a-z0-9][a-z0-9_-]{0,63})$`),
	}
)

// NormalizeAgentID lowercases a valid id. Anything else is coerced into a
// slug by replacing runs of invalid characters with "-", trimming dashes,
// and truncating to 64 characters. Empty input, or input with nothing
// salvageable, yields DefaultAgentID.
func NormalizeAgentID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultAgentID
	}
	if validAgentID.MatchString(trimmed) {
		return strings.ToLower(trimmed)
	}

	slug := invalidIDChars.ReplaceAllString(strings.ToLower(trimmed), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxAgentIDLen {
		slug = slug[:maxAgentIDLen]
	}
	if slug == "" {
		return DefaultAgentID
	}
	return slug
}

// AgentIDFromModel extracts an agent id embedded in an OpenAI model name.
// It reports false when the model does not name an agent.
func AgentIDFromModel(model string) (string, bool) {
	raw := strings.TrimSpace(model)
	if raw == "" {
		return "", false
	}
	for _, re := range modelAgentPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return NormalizeAgentID(m[1]), true
		}
	}
	return "", false
}

// AgentIDFromHeaders returns the normalized agent id named by the request
// headers, preferring X-Moltbot-Agent-Id over its alias.
func AgentIDFromHeaders(h http.Header) (string, bool) {
	for _, name := range []string{HeaderAgentID, HeaderAgentIDAlias} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return NormalizeAgentID(v), true
		}
	}
	return "", false
}

// ResolveAgentID picks the agent for a request: explicit header first, then
// the model hint, then DefaultAgentID.
func ResolveAgentID(r *http.Request, model string) string {
	if id, ok := AgentIDFromHeaders(r.Header); ok {
		return id
	}
	if id, ok := AgentIDFromModel(model); ok {
		return id
	}
	return DefaultAgentID
}
