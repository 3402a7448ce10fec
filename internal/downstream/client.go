// Package downstream implements the hub's own MCP client: the piece that
// speaks streamable-HTTP JSON-RPC to a single downstream server, tracks the
// mcp-session-id handshake, and surfaces a small error taxonomy instead of
// raw transport failures. It deliberately does not delegate to a full MCP
// client SDK — session lifecycle and transport parsing are the behavior
// under test here, not an implementation detail to hide behind one.
package downstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Client talks to one downstream MCP server.
type Client struct {
	ServerID    string
	ServerName  string
	BaseURL     string
	MCPEndpoint string
	Headers     map[string]string

	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a Client for one downstream server. mcpEndpoint is appended
// verbatim to baseURL to form the server's MCP URL, e.g. "/mcp" or
// "/custom/path" — it is not assumed to be "/mcp".
func New(serverID, serverName, baseURL, mcpEndpoint string, headers map[string]string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ServerID:    serverID,
		ServerName:  serverName,
		BaseURL:     baseURL,
		MCPEndpoint: mcpEndpoint,
		Headers:     headers,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// jsonrpcRequest is the wire envelope this client sends. mcp-go's own
// request/response envelope types are tied tightly to its client/server
// transport internals, so the hand-rolled session and SSE handling below
// builds its own envelope and only reuses mcp-go's result vocabulary
// (mcp.InitializeResult, mcp.ListToolsResult, mcp.CallToolResult, ...) for
// decoding.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// Initialize performs the MCP initialize handshake and returns the
// negotiated session id (empty if the server chose not to use sessions).
func (c *Client) Initialize(ctx context.Context) (sessionID string, result *mcp.InitializeResult, err error) {
	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-hub",
				Version: "0.1.0",
			},
		},
	}

	resp, respHeaders, err := c.doRPC(ctx, req, "")
	if err != nil {
		return "", nil, err
	}

	var initResult mcp.InitializeResult
	if err := decodeResult(resp, &initResult); err != nil {
		return "", nil, &ProtocolError{ServerName: c.ServerName, Err: err}
	}

	return respHeaders.Get("Mcp-Session-Id"), &initResult, nil
}

// ListTools lists the tools a downstream server exposes, within an
// already-initialized session.
func (c *Client) ListTools(ctx context.Context, sessionID string) (*mcp.ListToolsResult, error) {
	req := jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"}

	resp, _, err := c.doRPC(ctx, req, sessionID)
	if err != nil {
		return nil, err
	}

	var out mcp.ListToolsResult
	if err := decodeResult(resp, &out); err != nil {
		return nil, &ProtocolError{ServerName: c.ServerName, Err: err}
	}
	return &out, nil
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallTool invokes one tool on the downstream server within an
// already-initialized session.
func (c *Client) CallTool(ctx context.Context, sessionID, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  callToolParams{Name: toolName, Arguments: arguments},
	}

	resp, _, err := c.doRPC(ctx, req, sessionID)
	if err != nil {
		return nil, err
	}

	var out mcp.CallToolResult
	if err := decodeResult(resp, &out); err != nil {
		return nil, &ProtocolError{ServerName: c.ServerName, Err: err}
	}
	return &out, nil
}

// doRPC sends one JSON-RPC request and decodes either a plain JSON response
// or a single-event text/event-stream response into a jsonrpcResponse.
func (c *Client) doRPC(ctx context.Context, req jsonrpcRequest, sessionID string) (json.RawMessage, http.Header, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, &ProtocolError{ServerName: c.ServerName, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + c.MCPEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ProtocolError{ServerName: c.ServerName, Err: fmt.Errorf("build request: %w", err)}
	}

	httpReq.Header = newHeaderBuilder().withIdentity(c.ServerID).withStatic(c.Headers).withSessionID(sessionID).build()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, &TransportError{ServerName: c.ServerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && sessionID != "" {
		return nil, nil, ErrSessionExpired
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, nil, &ProtocolError{
			ServerName: c.ServerName,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload)),
		}
	}

	env, err := readRPCResponse(resp)
	if err != nil {
		return nil, nil, &ProtocolError{ServerName: c.ServerName, Err: err}
	}

	if env.Error != nil {
		return nil, resp.Header, &ProtocolError{
			ServerName: c.ServerName,
			Err:        fmt.Errorf("downstream returned error %d: %s", env.Error.Code, env.Error.Message),
		}
	}

	return env.Result, resp.Header, nil
}

// readRPCResponse reads either a plain JSON body or a text/event-stream
// body (one or more "data: <json>" lines, the last of which carries the
// actual JSON-RPC response) and returns the parsed envelope.
func readRPCResponse(resp *http.Response) (jsonrpcResponse, error) {
	contentType := resp.Header.Get("Content-Type")

	if strings.Contains(contentType, "text/event-stream") {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var last string
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				last = strings.TrimSpace(data)
			}
		}
		if err := scanner.Err(); err != nil {
			return jsonrpcResponse{}, fmt.Errorf("reading event stream: %w", err)
		}
		if last == "" {
			return jsonrpcResponse{}, fmt.Errorf("event stream contained no data lines")
		}
		var env jsonrpcResponse
		if err := json.Unmarshal([]byte(last), &env); err != nil {
			return jsonrpcResponse{}, fmt.Errorf("decoding event stream payload: %w", err)
		}
		return env, nil
	}

	var env jsonrpcResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&env); err != nil {
		return jsonrpcResponse{}, fmt.Errorf("decoding json body: %w", err)
	}
	return env, nil
}

func decodeResult(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty result")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}
