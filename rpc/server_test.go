package rpc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/config"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/llm"
	_ "github.com/chronoplan/chronoplan/llm/providers"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/rpc"
)

const testDevSecret = "dev-secret"

// wireResponse decodes a JSON-RPC reply with the result left raw.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agent.ID = "chronoplan-test"
	cfg.Server.DevSecret = testDevSecret

	// The interpreter endpoint is unreachable; the routes under test
	// never invoke it.
	registry := model.NewDefaultRegistry("test", &model.EndpointConfig{
		Provider: "openai",
		URL:      "http://127.0.0.1:1",
		Model:    "test-model",
	})
	dispatcher := agent.New(interpret.New(llm.NewClient(registry)))

	clock := func() time.Time {
		return time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	}
	srv := httptest.NewServer(rpc.NewServer(cfg, dispatcher, rpc.WithClock(clock)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func rpcCall(t *testing.T, srv *httptest.Server, secret, body string) (int, *wireResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/a2a/rpc", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-A2A-Dev-Secret", secret)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, &out
}

func TestRPC_Unauthorized(t *testing.T) {
	srv := newTestServer(t)

	status, out := rpcCall(t, srv, "", `{"jsonrpc":"2.0","id":1,"method":"tool.list"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32000, out.Error.Code)

	status, out = rpcCall(t, srv, "wrong", `{"jsonrpc":"2.0","id":1,"method":"tool.list"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32000, out.Error.Code)
}

func TestRPC_ParseError(t *testing.T) {
	srv := newTestServer(t)

	status, out := rpcCall(t, srv, testDevSecret, `{not json`)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32700, out.Error.Code)
}

func TestRPC_InvalidRequest(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret, `{"jsonrpc":"1.0","id":1,"method":"tool.list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32600, out.Error.Code)

	_, out = rpcCall(t, srv, testDevSecret, `{"jsonrpc":"2.0","id":2}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32600, out.Error.Code)
}

func TestRPC_MethodNotFound(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret, `{"jsonrpc":"2.0","id":1,"method":"tool.destroy"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32601, out.Error.Code)
	assert.Contains(t, out.Error.Message, "tool.destroy")
}

func TestRPC_AgentCard(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret, `{"jsonrpc":"2.0","id":1,"method":"agent.card"}`)
	require.Nil(t, out.Error)

	var card rpc.Card
	require.NoError(t, json.Unmarshal(out.Result, &card))
	assert.Equal(t, "chronoplan-test", card.ID)
	assert.Len(t, card.Capabilities, 4)
	require.Len(t, card.Auth, 1)
	assert.Equal(t, "shared_secret", card.Auth[0].Scheme)
	assert.Equal(t, "X-A2A-Dev-Secret", card.Auth[0].Header)
}

func TestRPC_Handshake(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret, `{"jsonrpc":"2.0","id":1,"method":"agent.handshake"}`)
	require.Nil(t, out.Error)

	var res struct {
		Agent      string `json:"agent"`
		ServerTime string `json:"server_time"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.Equal(t, "chronoplan-test", res.Agent)
	assert.Equal(t, "2026-03-11T10:00:00Z", res.ServerTime)
}

func TestRPC_ToolList(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret, `{"jsonrpc":"2.0","id":1,"method":"tool.list"}`)
	require.Nil(t, out.Error)

	var tools []agent.ToolInfo
	require.NoError(t, json.Unmarshal(out.Result, &tools))
	require.Len(t, tools, 4)
	assert.Equal(t, "manage_productivity", tools[0].Name)
}

func TestRPC_ExecuteInvalidParams(t *testing.T) {
	srv := newTestServer(t)

	// Missing tool name.
	_, out := rpcCall(t, srv, testDevSecret,
		`{"jsonrpc":"2.0","id":1,"method":"tool.execute","params":{}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32602, out.Error.Code)

	// Unknown tool name.
	_, out = rpcCall(t, srv, testDevSecret,
		`{"jsonrpc":"2.0","id":2,"method":"tool.execute","params":{
			"tool":"send_email","arguments":{"query":"hi"}}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32602, out.Error.Code)

	// Bad timezone in the user context.
	_, out = rpcCall(t, srv, testDevSecret,
		`{"jsonrpc":"2.0","id":3,"method":"tool.execute","params":{
			"tool":"manage_productivity","arguments":{"query":"hi"},
			"user_context":{"timezone":"Mars/Olympus"}}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32602, out.Error.Code)
}

func TestRPC_ExecuteNeedsSetup(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret,
		`{"jsonrpc":"2.0","id":1,"method":"tool.execute","params":{
			"tool":"manage_productivity",
			"arguments":{"query":"create a task to write the report"},
			"user_context":{"timezone":"UTC","current_date":"2026-03-11","current_time":"10:00:00"}}}`)
	require.Nil(t, out.Error)

	var res agent.Response
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.True(t, res.NeedsSetup)
	assert.Contains(t, res.Message, "RECLAIM_API_KEY")
}

func TestRPC_ApproveDeclined(t *testing.T) {
	srv := newTestServer(t)

	_, out := rpcCall(t, srv, testDevSecret,
		`{"jsonrpc":"2.0","id":1,"method":"tool.approve","params":{
			"tool":"manage_productivity",
			"action_data":{"id":"x","kind":"bulk_delete"},
			"approved":false,
			"user_context":{"timezone":"UTC"}}}`)
	require.Nil(t, out.Error)

	var res agent.Response
	require.NoError(t, json.Unmarshal(out.Result, &res))
	require.NotNil(t, res.Success)
	assert.True(t, *res.Success)
	assert.Equal(t, "cancelled", res.Action)
}

func TestDiscoveryDocuments(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/.well-known/a2a.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var card rpc.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "chronoplan-test", card.ID)

	resp2, err := http.Get(srv.URL + "/.well-known/a2a-credentials.json")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var manifest struct {
		Credentials []rpc.CredentialSpec `json:"credentials"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&manifest))
	require.Len(t, manifest.Credentials, 3)
	assert.Equal(t, "RECLAIM_API_KEY", manifest.Credentials[0].Key)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "chronoplan-test", body["agent"])
}

func TestLegacyNeedsSetup_HeaderNormalization(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp/needs-setup", nil)
	require.NoError(t, err)
	// Underscore and hyphen spellings both resolve to canonical keys.
	req.Header.Set("X-User-Credential-RECLAIM_API_KEY", "rk-1")
	req.Header.Set("x-user-credential-nylas-api-key", "ny-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		NeedsSetup bool     `json:"needs_setup"`
		Missing    []string `json:"missing"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.NeedsSetup)
	assert.Equal(t, []string{"NYLAS_GRANT_ID"}, body.Missing)
}

func TestLegacyTools(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/mcp/tools")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Tools []agent.ToolInfo `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Tools, 4)
}

func TestLegacyInvoke_NeedsSetup(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/mcp/tools/manage_productivity", "application/json",
		strings.NewReader(`{"query":"create a task","timezone":"UTC"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res agent.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.NeedsSetup)
}

func TestLegacyInvoke_UnknownTool(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/mcp/tools/send_email", "application/json",
		strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
