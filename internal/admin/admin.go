// Package admin exposes the hub's own control surface: registering and
// removing downstream servers, and a read-only status view, as plain JSON
// over net/http.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcphub/mcp-hub/internal/catalog"
	"github.com/mcphub/mcp-hub/internal/registry"
	"github.com/mcphub/mcp-hub/internal/sessionstore"
)

// Handler serves the admin REST surface under a mux at "/admin/servers"
// and "/admin/servers/".
type Handler struct {
	registry *registry.Registry
	catalog  *catalog.Catalog
	sessions sessionstore.Store
	refresh  func(rec registry.Record)
	logger   *slog.Logger
}

// NewHandler returns an admin Handler. refresh is called (best-effort, in a
// goroutine) after every successful create so the catalog picks up the new
// server without waiting for the next scheduled tick. A successful delete
// does not call refresh; it removes the server's catalog entries and
// downstream session directly.
func NewHandler(reg *registry.Registry, cat *catalog.Catalog, sessions sessionstore.Store, refresh func(rec registry.Record), logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: reg, catalog: cat, sessions: sessions, refresh: refresh, logger: logger.With("component", "admin")}
}

type createServerRequest struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	MCPEndpoint string            `json:"mcp_endpoint"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type serverResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	MCPEndpoint string            `json:"mcp_endpoint"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func toResponse(rec registry.Record) serverResponse {
	return serverResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		URL:         rec.BaseURL,
		MCPEndpoint: rec.MCPEndpoint,
		Description: rec.Description,
		Tags:        rec.Tags,
		Headers:     rec.Headers,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

// ServeHTTP routes "/admin/servers" and "/admin/servers/{id}" and
// "/admin/servers/{id}/client-config".
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)

	path := strings.TrimPrefix(r.URL.Path, "/admin/servers")
	path = strings.Trim(path, "/")

	switch {
	case path == "" && r.Method == http.MethodPost:
		h.handleCreate(w, r)
	case path == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case strings.HasSuffix(path, "/client-config") && r.Method == http.MethodGet:
		id := strings.TrimSuffix(path, "/client-config")
		h.handleClientConfig(w, r, id)
	case path != "" && r.Method == http.MethodGet:
		h.handleGet(w, path)
	case path != "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, path)
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "unsupported method/path combination")
	}
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.registry.Register(req.Name, req.URL, req.MCPEndpoint, req.Description, req.Tags, req.Headers)
	if err != nil {
		if errors.Is(err, registry.ErrNameConflict) {
			h.sendError(w, http.StatusConflict, err.Error())
			return
		}
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.triggerRefresh(rec)
	h.sendJSON(w, http.StatusCreated, toResponse(rec))
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	records := h.registry.List()
	out := make([]serverResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	h.sendJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, id string) {
	rec, err := h.registry.Get(id)
	if err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.registry.Delete(id); err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	h.catalog.RemoveServer(id)
	if err := h.sessions.DeleteServer(r.Context(), id); err != nil {
		h.logger.Warn("failed evicting sessions for deleted server", "server_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// serverIDHeader mirrors gateway.ServerIDHeader; duplicated as a literal
// here rather than importing internal/gateway, so the admin REST binding
// stays decoupled from the MCP endpoint's own package.
const serverIDHeader = "x-mcp-server-id"

// mcpServerConfig is one entry of McpServersConfigResponse.
type mcpServerConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// clientConfigResponse is the shape a generic MCP client config file
// expects: a map of server name to connection details, here pointed at the
// hub's own `/mcp/` endpoint with the header that selects this server.
type clientConfigResponse struct {
	MCPServers map[string]mcpServerConfig `json:"mcpServers"`
}

// handleClientConfig builds the blob in terms of the hub's own externally
// reachable base URL, passed as ?base=; an empty base produces a
// hub-relative "/mcp/" suitable for a client already pointed at the hub.
func (h *Handler) handleClientConfig(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.registry.Get(id)
	if err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}

	base := strings.TrimSuffix(r.URL.Query().Get("base"), "/")

	h.sendJSON(w, http.StatusOK, clientConfigResponse{
		MCPServers: map[string]mcpServerConfig{
			rec.Name: {
				URL:     base + "/mcp/",
				Headers: map[string]string{serverIDHeader: rec.ID},
			},
		},
	})
}

func (h *Handler) triggerRefresh(rec registry.Record) {
	if h.refresh == nil {
		return
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				h.logger.Error("panic during admin-triggered refresh", "server", rec.Name, "panic", p)
			}
		}()
		h.refresh(rec)
	}()
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed encoding json response", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, map[string]string{"error": message})
}

// StatusHandler serves GET /status, a read-only snapshot of every
// registered server and the tool counts the catalog currently holds for it.
type StatusHandler struct {
	registry *registry.Registry
	catalog  *catalog.Catalog
	logger   *slog.Logger
}

// NewStatusHandler returns a StatusHandler.
func NewStatusHandler(reg *registry.Registry, cat *catalog.Catalog, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{registry: reg, catalog: cat, logger: logger.With("component", "status")}
}

type serverStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ToolCount int    `json:"toolCount"`
}

type statusResponse struct {
	Servers      []serverStatus `json:"servers"`
	TotalServers int            `json:"totalServers"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "method not allowed"})
		return
	}

	records := h.registry.List()
	servers := make([]serverStatus, 0, len(records))
	for _, rec := range records {
		servers = append(servers, serverStatus{
			ID:        rec.ID,
			Name:      rec.Name,
			ToolCount: len(h.catalog.ListServer(rec.ID)),
		})
	}

	resp := statusResponse{Servers: servers, TotalServers: len(servers), Timestamp: time.Now()}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed encoding status response", "error", err)
	}
}
