// ABOUTME: Tests for the operational HTTP endpoints
// ABOUTME: Liveness, readiness, admin client listing, and event publishing

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/store"
)

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// issuePrincipalToken stores a principal and returns a JWT for it.
func issuePrincipalToken(t *testing.T, gw *Gateway, scopes []string) string {
	t.Helper()
	p := &store.Principal{
		ID:          "principal-" + t.Name(),
		DisplayName: "test principal",
		Role:        auth.RoleOperator,
		Scopes:      scopes,
		Status:      store.PrincipalStatusActive,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, gw.store.CreatePrincipal(context.Background(), p))

	verifier, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	token, err := verifier.Generate(p.ID, time.Hour)
	require.NoError(t, err)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestReadyEndpoint(t *testing.T) {
	gw, srv := newTestGateway(t)
	c := dial(t, srv, nil)
	c.connectOK(adminParams("ops"))

	resp := doRequest(t, http.MethodGet, srv.URL+"/health/ready", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ready ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.True(t, ready.OK)
	assert.Equal(t, 1, ready.Clients)
	assert.Equal(t, gw.presence.Version(), ready.StateVersion.Presence)

	require.NoError(t, gw.Shutdown(context.Background()))
	resp = doRequest(t, http.MethodGet, srv.URL+"/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListClients(t *testing.T) {
	gw, srv := newTestGateway(t)
	c := dial(t, srv, nil)
	hello := c.connectOK(adminParams("dashboard"))

	t.Run("no token", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/clients", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/clients", "nope", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("non-admin principal", func(t *testing.T) {
		token := issuePrincipalToken(t, gw, []string{auth.ScopeRead})
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/clients", token, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/clients", testToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Clients []ClientResponse `json:"clients"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Clients, 1)
		assert.Equal(t, hello.Server.ConnID, body.Clients[0].ConnID)
		assert.Equal(t, "dashboard", body.Clients[0].Client.DisplayName)
		assert.Equal(t, auth.RoleOperator, body.Clients[0].Role)
	})
}

func TestPublishEvent(t *testing.T) {
	_, srv := newTestGateway(t)
	c := dial(t, srv, nil)
	c.connectOK(adminParams("ops"))

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/events", testToken, `{"event":"channel.message","payload":{"channel":"telegram","text":"hi"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted struct {
		Seq uint64 `json:"seq"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.Positive(t, accepted.Seq)

	f := c.nextNonPresence()
	assert.Equal(t, "channel.message", f.Event)
	assert.Equal(t, accepted.Seq, f.Seq)
	assert.JSONEq(t, `{"channel":"telegram","text":"hi"}`, string(f.Payload))

	for _, body := range []string{
		`{"event":"tick"}`,
		`{"event":"presence","payload":{}}`,
		`{"event":"  "}`,
		`not json`,
	} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/events", testToken, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}
