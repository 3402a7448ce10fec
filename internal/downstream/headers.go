package downstream

import (
	"fmt"
	"net/http"

	"github.com/mcphub/mcp-hub/pkg/credentials"
)

// headerBuilder assembles the outbound request headers for one downstream
// call: fixed identity headers, the registered server's static headers
// (resolving any "secret:<name>" values against mounted credentials), and
// finally the session id, in that order so later calls always win.
type headerBuilder struct {
	h http.Header
}

func newHeaderBuilder() *headerBuilder {
	return &headerBuilder{h: make(http.Header)}
}

func (b *headerBuilder) withIdentity(serverID string) *headerBuilder {
	b.h.Set("User-Agent", "mcp-hub")
	b.h.Set("X-Mcp-Hub-Server-Id", serverID)
	b.h.Set("Content-Type", "application/json")
	b.h.Set("Accept", "application/json, text/event-stream")
	return b
}

// withStatic copies each configured header onto the request, resolving
// values of the form "secret:<name>" against a mounted credential file.
func (b *headerBuilder) withStatic(headers map[string]string) *headerBuilder {
	for k, v := range headers {
		resolved, err := resolveHeaderValue(v)
		if err != nil {
			// A missing credential must not silently produce an empty
			// header; drop it and let the downstream call fail loudly
			// with an auth error instead of a confusing transport error.
			continue
		}
		b.h.Set(k, resolved)
	}
	return b
}

func (b *headerBuilder) withSessionID(sessionID string) *headerBuilder {
	if sessionID != "" {
		b.h.Set("Mcp-Session-Id", sessionID)
	}
	return b
}

func (b *headerBuilder) build() http.Header {
	return b.h
}

const secretPrefix = "secret:"

func resolveHeaderValue(v string) (string, error) {
	if len(v) <= len(secretPrefix) || v[:len(secretPrefix)] != secretPrefix {
		return v, nil
	}
	name := v[len(secretPrefix):]
	val, err := credentials.Get(name)
	if err != nil {
		return "", fmt.Errorf("resolving credential %q: %w", name, err)
	}
	return val, nil
}
