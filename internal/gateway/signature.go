package gateway

import "github.com/mcphub/mcp-hub/internal/catalog"

// toolSignature is a data record describing one proxied tool's parameter
// list, built once per catalog.Entry when a sub-handler is constructed. The
// handler closure captures this record and validates/filters the incoming
// argument map against it at call time, rather than generating any code per
// tool.
type toolSignature struct {
	qualifiedName string
	serverID      string
	serverName    string
	toolName      string
	required      map[string]bool
	known         map[string]bool
}

func newToolSignature(e catalog.Entry) toolSignature {
	sig := toolSignature{
		qualifiedName: e.QualifiedName(),
		serverID:      e.ServerID,
		serverName:    e.ServerName,
		toolName:      e.ToolName,
		required:      make(map[string]bool),
		known:         make(map[string]bool),
	}
	for _, name := range e.Tool.InputSchema.Required {
		sig.required[name] = true
	}
	for name := range e.Tool.InputSchema.Properties {
		sig.known[name] = true
	}
	return sig
}

// bind filters args down to keys the downstream tool's schema declares and
// reports any declared-required key that is missing. When the schema
// declares properties, keys it does not declare are dropped rather than
// forwarded, so a caller cannot smuggle extra arguments past the schema the
// server advertised; when it declares none, every argument is forwarded
// unchanged.
func (s toolSignature) bind(args map[string]any) (bound map[string]any, missing []string) {
	bound = make(map[string]any, len(args))
	for k, v := range args {
		if len(s.known) == 0 || s.known[k] {
			bound[k] = v
		}
	}
	for name := range s.required {
		if _, ok := bound[name]; !ok {
			missing = append(missing, name)
		}
	}
	return bound, missing
}
