// Package gateway is the hub's own MCP endpoint. For every request it
// resolves a single target server from a header, builds a fresh sub-handler
// exposing just that server's namespaced tools, and proxies tool
// invocations through to it, managing that server's downstream session
// transparently.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mcphub/mcp-hub/internal/catalog"
	"github.com/mcphub/mcp-hub/internal/downstream"
	"github.com/mcphub/mcp-hub/internal/registry"
	"github.com/mcphub/mcp-hub/internal/sessionstore"
)

// ServerIDHeader is the required header an upstream request uses to select
// which registered downstream server this exchange targets.
const ServerIDHeader = "X-Mcp-Server-Id"

// ClientFactory builds a downstream client for a registry record.
type ClientFactory func(rec registry.Record) *downstream.Client

// RefreshFunc refreshes one server's catalog entries in place and returns
// the resulting set. Satisfied by (*refreshloop.Loop).RefreshServer.
type RefreshFunc func(ctx context.Context, rec registry.Record) []catalog.Entry

// Gateway builds a fresh mcp-go sub-handler per request, scoped to the one
// server the request's header names, from the current catalog/registry
// state. Nothing about a request is retained in the Gateway beyond the
// duration of ServeHTTP; all cross-request state lives in the Registry,
// Catalog and Session Store it was built with.
type Gateway struct {
	registry      *registry.Registry
	catalog       *catalog.Catalog
	sessions      sessionstore.Store
	newClient     ClientFactory
	refreshServer RefreshFunc
	logger        *slog.Logger

	mu sync.Mutex // serializes catalog refresh + sub-handler construction for one request
}

// New returns a Gateway wired to the given state.
func New(reg *registry.Registry, cat *catalog.Catalog, sessions sessionstore.Store, newClient ClientFactory, refreshServer RefreshFunc, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:      reg,
		catalog:       cat,
		sessions:      sessions,
		newClient:     newClient,
		refreshServer: refreshServer,
		logger:        logger.With("component", "gateway"),
	}
}

// ServeHTTP resolves the target server from ServerIDHeader, builds a
// sub-handler scoped to that server's current tools, and delegates the
// request to it. Gateway-level failures (missing header, unknown server,
// an unexpected failure preparing the sub-handler) are returned as
// in-band JSON-RPC errors over HTTP 200, matching how a proxied tool
// call's own failures are reported.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serverID := r.Header.Get(ServerIDHeader)
	if serverID == "" {
		writeRPCError(w, newMissingHeaderError())
		return
	}

	rec, err := g.registry.Get(serverID)
	if err != nil {
		writeRPCError(w, newServerNotFoundError())
		return
	}

	handler, err := g.buildSubHandler(r.Context(), rec)
	if err != nil {
		writeRPCError(w, newPrepareFailedError(err))
		return
	}

	r.URL.Path = "/mcp"
	r.URL.RawPath = ""
	handler.ServeHTTP(w, r)
}

// buildSubHandler refreshes rec's catalog entries and builds a fresh
// mcp-go streamable-HTTP handler exposing exactly those entries, each as a
// proxy tool under its namespaced public name. Building is serialized
// under g.mu so two concurrent requests for the same (or different)
// servers never race on a torn catalog read.
func (g *Gateway) buildSubHandler(ctx context.Context, rec registry.Record) (handler http.Handler, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic building sub-handler for %q: %v", rec.Name, p)
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	entries := g.refreshServer(ctx, rec)
	handler = g.newSubHandler(rec, entries)

	return handler, nil
}

func (g *Gateway) newSubHandler(rec registry.Record, entries []catalog.Entry) http.Handler {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(_ context.Context, session server.ClientSession) {
		g.logger.Debug("hub session connected", "server", rec.Name, "hub_session_id", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		g.logger.Debug("hub session disconnected", "server", rec.Name, "hub_session_id", session.SessionID())
	})

	s := server.NewMCPServer(
		"hub-"+rec.Name,
		"0.1.0",
		server.WithHooks(hooks),
		server.WithToolCapabilities(true),
	)

	tools := make([]server.ServerTool, 0, len(entries))
	for _, entry := range entries {
		tools = append(tools, g.proxyTool(entry))
	}
	s.AddTools(tools...)

	return server.NewStreamableHTTPServer(s)
}

// proxyTool builds the mcp-go ServerTool that proxies one namespaced tool to
// its owning downstream server.
func (g *Gateway) proxyTool(entry catalog.Entry) server.ServerTool {
	sig := newToolSignature(entry)
	advertised := entry.Tool
	advertised.Name = sig.qualifiedName

	return server.ServerTool{
		Tool: advertised,
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			// The sub-handler this closure is registered on was built from a
			// catalog snapshot; a concurrent refresh or delete may have
			// already dropped this entry by the time the call lands.
			if _, err := g.catalog.Lookup(sig.qualifiedName); err != nil {
				return mcp.NewToolResultError(newToolNotFoundError(sig.qualifiedName).Error()), nil
			}

			bound, missing := sig.bind(req.GetArguments())
			if len(missing) > 0 {
				return mcp.NewToolResultError(newInvalidParamsError(missing).Error()), nil
			}

			result, err := g.callDownstream(ctx, sig, bound)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return result, nil
		},
	}
}

// callDownstream invokes a tool on the owning downstream server, initializing
// a session on first use and retrying exactly once if the downstream server
// reports the cached session as expired. The session is shared by every
// caller of this server, keyed purely by server id.
func (g *Gateway) callDownstream(ctx context.Context, sig toolSignature, args map[string]any) (*mcp.CallToolResult, error) {
	rec, err := g.registry.Get(sig.serverID)
	if err != nil {
		return nil, newServerNotFoundError()
	}
	client := g.newClient(rec)

	downstreamSessionID, err := g.ensureSession(ctx, client, sig.serverID)
	if err != nil {
		return nil, newInternalError(err)
	}

	result, err := client.CallTool(ctx, downstreamSessionID, sig.toolName, args)
	if errors.Is(err, downstream.ErrSessionExpired) {
		if err := g.sessions.DeleteServer(ctx, sig.serverID); err != nil {
			g.logger.Warn("failed evicting expired session", "server", sig.serverName, "error", err)
		}
		downstreamSessionID, err = g.ensureSession(ctx, client, sig.serverID)
		if err != nil {
			return nil, newInternalError(err)
		}
		result, err = client.CallTool(ctx, downstreamSessionID, sig.toolName, args)
	}

	var protoErr *downstream.ProtocolError
	var transErr *downstream.TransportError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &protoErr), errors.As(err, &transErr):
		return nil, err
	default:
		return nil, newInternalError(err)
	}
}

func (g *Gateway) ensureSession(ctx context.Context, client *downstream.Client, serverID string) (string, error) {
	if id, err := g.sessions.Get(ctx, serverID); err == nil {
		return id, nil
	}

	downstreamSessionID, _, err := client.Initialize(ctx)
	if err != nil {
		return "", fmt.Errorf("initializing downstream session: %w", err)
	}
	if err := g.sessions.Put(ctx, serverID, downstreamSessionID); err != nil {
		return "", fmt.Errorf("persisting downstream session: %w", err)
	}
	return downstreamSessionID, nil
}

// rpcErrorEnvelope is the JSON-RPC error shape written for gateway-level
// failures. The request id is always null here: these failures happen
// before (or instead of) dispatching into the sub-handler that would
// otherwise echo the caller's own id.
type rpcErrorEnvelope struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Error   rpcErrorBody `json:"error"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeRPCError writes a JSON-RPC error response at HTTP 200: protocol-level
// hub failures are always in-band so every MCP client parses them the same
// way it parses a downstream error.
func writeRPCError(w http.ResponseWriter, herr *HubError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpcErrorEnvelope{
		JSONRPC: "2.0",
		ID:      nil,
		Error:   rpcErrorBody{Code: herr.Code, Message: herr.Message},
	})
}
