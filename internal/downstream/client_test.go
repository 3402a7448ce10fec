package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, handler func(method string, sessionID string) (status int, body string, contentType string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		status, body, contentType := handler(req.Method, r.Header.Get("Mcp-Session-Id"))
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Mcp-Session-Id", "downstream-session-1")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestInitializeReturnsSessionID(t *testing.T) {
	srv := fakeServer(t, func(method, sessionID string) (int, string, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}`, "application/json"
	})
	defer srv.Close()

	c := New("srv-1", "fake", srv.URL, "/mcp", nil, 5*time.Second, nil)
	sessionID, result, err := c.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "downstream-session-1", sessionID)
	assert.Equal(t, "fake", result.ServerInfo.Name)
}

func TestListToolsViaSSE(t *testing.T) {
	srv := fakeServer(t, func(method, sessionID string) (int, string, string) {
		assert.Equal(t, "downstream-session-1", sessionID)
		return http.StatusOK, "data: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{\"tools\":[{\"name\":\"lookup\",\"description\":\"d\"}]}}\n\n", "text/event-stream"
	})
	defer srv.Close()

	c := New("srv-1", "fake", srv.URL, "/mcp", nil, 5*time.Second, nil)
	result, err := c.ListTools(context.Background(), "downstream-session-1")
	require.NoError(t, err)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "lookup", result.Tools[0].Name)
}

func TestCallToolSessionExpired(t *testing.T) {
	srv := fakeServer(t, func(method, sessionID string) (int, string, string) {
		return http.StatusNotFound, "", ""
	})
	defer srv.Close()

	c := New("srv-1", "fake", srv.URL, "/mcp", nil, 5*time.Second, nil)
	_, err := c.CallTool(context.Background(), "stale-session", "lookup", nil)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestCallToolProtocolError(t *testing.T) {
	srv := fakeServer(t, func(method, sessionID string) (int, string, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":3,"error":{"code":-32602,"message":"bad args"}}`, "application/json"
	})
	defer srv.Close()

	c := New("srv-1", "fake", srv.URL, "/mcp", nil, 5*time.Second, nil)
	_, err := c.CallTool(context.Background(), "s1", "lookup", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad args")
}

func TestInitializeWithPlainStaticHeader(t *testing.T) {
	srv := fakeServer(t, func(method, sessionID string) (int, string, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}`, "application/json"
	})
	defer srv.Close()

	c := New("srv-1", "fake", srv.URL, "/mcp", map[string]string{"X-Plain": "value"}, 5*time.Second, nil)
	_, _, err := c.Initialize(context.Background())
	require.NoError(t, err)
}
