package gateway

import "fmt"

// Error codes for the JSON-RPC errors the hub returns for its own failures,
// as opposed to errors relayed verbatim from a downstream server. The
// reserved range mirrors JSON-RPC's own (-32601, -32602, -32603); the rest
// are this hub's own block.
const (
	CodeToolNotFound   = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerNotFound = -32004
	CodePrepareFailed  = -32050
)

// HubError is a JSON-RPC error the hub raises itself, always returned over
// HTTP 200 per the JSON-RPC transport contract: upstream clients parse the
// JSON-RPC envelope, so protocol-level failures never become HTTP errors.
type HubError struct {
	Code    int
	Message string
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub error %d: %s", e.Code, e.Message)
}

func newMissingHeaderError() *HubError {
	return &HubError{Code: CodeInvalidParams, Message: "x-mcp-server-id required"}
}

func newServerNotFoundError() *HubError {
	return &HubError{Code: CodeServerNotFound, Message: "target server not found"}
}

func newPrepareFailedError(err error) *HubError {
	return &HubError{Code: CodePrepareFailed, Message: fmt.Sprintf("failed to prepare target server: %s", err)}
}

func newToolNotFoundError(name string) *HubError {
	return &HubError{Code: CodeToolNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
}

func newInvalidParamsError(missing []string) *HubError {
	return &HubError{Code: CodeInvalidParams, Message: fmt.Sprintf("missing required arguments: %v", missing)}
}

func newInternalError(err error) *HubError {
	return &HubError{Code: CodeInternalError, Message: err.Error()}
}
