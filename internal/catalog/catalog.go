// Package catalog holds the namespaced view of every tool every registered
// downstream server currently exposes, refreshed independently per server.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Entry is one namespaced tool: the combination of a server and one of the
// tools that server reported at its last successful refresh.
type Entry struct {
	ServerID   string
	ServerName string
	ToolName   string // as reported by the downstream server, unprefixed
	Tool       mcp.Tool
}

// QualifiedName is the name this tool is exposed under on the hub's own
// gateway, "<server_name>.<tool_name>".
func (e Entry) QualifiedName() string {
	return e.ServerName + "." + e.ToolName
}

// Catalog is a concurrency-safe, per-server set of tool Entries.
type Catalog struct {
	mu       sync.RWMutex
	byServer map[string][]Entry // serverID -> entries
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{byServer: make(map[string][]Entry)}
}

// ReplaceServerTools atomically replaces every entry belonging to serverID.
// Call with a nil/empty slice to clear a server's entries (e.g. when a
// refresh fails, per the hub's drop-entries-keep-record policy, or when the
// server record itself is deleted).
func (c *Catalog) ReplaceServerTools(serverID, serverName string, tools []mcp.Tool) []Entry {
	// Last write wins on an intra-server duplicate name; downstream servers
	// are expected not to do this, but the hub must not crash or silently
	// keep a stale entry if one does.
	byName := make(map[string]mcp.Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, t := range tools {
		if _, exists := byName[t.Name]; !exists {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}

	entries := make([]Entry, 0, len(order))
	for _, name := range order {
		entries = append(entries, Entry{
			ServerID:   serverID,
			ServerName: serverName,
			ToolName:   name,
			Tool:       byName[name],
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byServer[serverID] = entries
	return entries
}

// RemoveServer deletes every entry for serverID.
func (c *Catalog) RemoveServer(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byServer, serverID)
}

// List returns every entry across every server, in lexicographic order of
// QualifiedName.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entry
	for _, entries := range c.byServer {
		out = append(out, entries...)
	}
	sortByQualifiedName(out)
	return out
}

// ListServer returns the entries for a single server, in lexicographic order
// of QualifiedName.
func (c *Catalog) ListServer(serverID string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.byServer[serverID]))
	copy(out, c.byServer[serverID])
	sortByQualifiedName(out)
	return out
}

func sortByQualifiedName(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QualifiedName() < entries[j].QualifiedName()
	})
}

// ErrNotFound is returned by Lookup when no entry matches a qualified name.
var ErrNotFound = fmt.Errorf("catalog: tool not found")

// Lookup resolves a qualified "<server_name>.<tool_name>" tool name to its
// Entry.
func (c *Catalog) Lookup(qualifiedName string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entries := range c.byServer {
		for _, e := range entries {
			if e.QualifiedName() == qualifiedName {
				return e, nil
			}
		}
	}
	return Entry{}, ErrNotFound
}
