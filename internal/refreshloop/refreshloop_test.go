package refreshloop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcphub/mcp-hub/internal/catalog"
	"github.com/mcphub/mcp-hub/internal/downstream"
	"github.com/mcphub/mcp-hub/internal/registry"
	"github.com/mcphub/mcp-hub/internal/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeToolServer(t *testing.T, toolName string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Mcp-Session-Id", "sess-1")

		if req.Method == "initialize" {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"` + toolName + `"}]}}`))
	}))
}

func TestRefreshServerPopulatesCatalog(t *testing.T) {
	srv := fakeToolServer(t, "lookup")
	defer srv.Close()

	reg := registry.New()
	rec, err := reg.Register("weather", srv.URL, "/mcp", "", nil, nil)
	require.NoError(t, err)

	cat := catalog.New()
	sessions := sessionstore.NewMemory(nil)
	loop := New(reg, cat, sessions, func(r registry.Record) *downstream.Client {
		return downstream.New(r.ID, r.Name, r.BaseURL, r.MCPEndpoint, r.Headers, time.Second, nil)
	}, time.Hour, nil)

	loop.RefreshServer(context.Background(), rec)

	entries := cat.ListServer(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "lookup", entries[0].ToolName)

	stored, err := sessions.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored)
}

func TestRefreshServerReusesStoredSessionWithoutReinitializing(t *testing.T) {
	initCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		if req.Method == "initialize" {
			initCount++
			w.Header().Set("Mcp-Session-Id", "sess-1")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}`))
			return
		}
		assert.Equal(t, "sess-1", r.Header.Get("Mcp-Session-Id"))
		w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"lookup"}]}}`))
	}))
	defer srv.Close()

	reg := registry.New()
	rec, err := reg.Register("weather", srv.URL, "/mcp", "", nil, nil)
	require.NoError(t, err)

	cat := catalog.New()
	sessions := sessionstore.NewMemory(nil)
	loop := New(reg, cat, sessions, func(r registry.Record) *downstream.Client {
		return downstream.New(r.ID, r.Name, r.BaseURL, r.MCPEndpoint, r.Headers, time.Second, nil)
	}, time.Hour, nil)

	loop.RefreshServer(context.Background(), rec)
	loop.RefreshServer(context.Background(), rec)

	assert.Equal(t, 1, initCount)
}

func TestRefreshServerRetriesOnceOnSessionExpiry(t *testing.T) {
	listCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-1")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"fake","version":"1"}}}`))
		case "tools/list":
			listCalls++
			if listCalls == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"lookup"}]}}`))
		}
	}))
	defer srv.Close()

	reg := registry.New()
	rec, err := reg.Register("weather", srv.URL, "/mcp", "", nil, nil)
	require.NoError(t, err)

	cat := catalog.New()
	sessions := sessionstore.NewMemory(nil)
	require.NoError(t, sessions.Put(context.Background(), rec.ID, "stale-session"))

	loop := New(reg, cat, sessions, func(r registry.Record) *downstream.Client {
		return downstream.New(r.ID, r.Name, r.BaseURL, r.MCPEndpoint, r.Headers, time.Second, nil)
	}, time.Hour, nil)

	entries := loop.RefreshServer(context.Background(), rec)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, listCalls)
}

func TestRefreshServerDropsEntriesOnFailureButKeepsRecord(t *testing.T) {
	reg := registry.New()
	rec, err := reg.Register("weather", "http://127.0.0.1:1", "/mcp", "", nil, nil)
	require.NoError(t, err)

	cat := catalog.New()
	cat.ReplaceServerTools(rec.ID, rec.Name, []mcp.Tool{{Name: "lookup"}})
	require.Len(t, cat.ListServer(rec.ID), 1)

	sessions := sessionstore.NewMemory(nil)
	loop := New(reg, cat, sessions, func(r registry.Record) *downstream.Client {
		return downstream.New(r.ID, r.Name, r.BaseURL, r.MCPEndpoint, r.Headers, 100*time.Millisecond, nil)
	}, time.Hour, nil)

	loop.RefreshServer(context.Background(), rec)

	assert.Empty(t, cat.ListServer(rec.ID))

	_, err = reg.Get(rec.ID)
	require.NoError(t, err)
}
