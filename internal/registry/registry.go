// Package registry tracks the set of downstream MCP servers the hub knows
// about. It is the single source of truth for server records; nothing else
// in the hub keeps its own copy of this state.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNameConflict is returned when Register is called with a name already in use.
var ErrNameConflict = errors.New("server name already registered")

// ErrNotFound is returned when a lookup or delete targets an unknown record.
var ErrNotFound = errors.New("server record not found")

// Record describes a single downstream MCP server known to the hub.
type Record struct {
	ID          string
	Name        string
	BaseURL     string
	MCPEndpoint string
	Description string
	Tags        []string
	Headers     map[string]string
	Status      string
	CreatedAt   string
	UpdatedAt   string
}

func (r Record) clone() Record {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	r.Headers = headers

	tags := make([]string, len(r.Tags))
	copy(tags, r.Tags)
	r.Tags = tags

	return r
}

// utcNowISO returns the current UTC time as an RFC3339 (ISO-8601-with-offset)
// string; the offset is always written as "Z".
func utcNowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Registry is a concurrency-safe store of downstream server Records, keyed
// by both ID and Name.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Record
	byName map[string]string // name -> id
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[string]*Record),
		byName: make(map[string]string),
	}
}

// Register validates and adds a new server record, assigning it a fresh ID.
// It fails with ErrNameConflict if the name is already registered.
func (r *Registry) Register(name, baseURL, mcpEndpoint, description string, tags []string, headers map[string]string) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("registry: name must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return Record{}, fmt.Errorf("registry: invalid base url %q: %w", baseURL, err)
	}
	if mcpEndpoint == "" {
		return Record{}, fmt.Errorf("registry: mcp endpoint must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return Record{}, fmt.Errorf("registry: %q: %w", name, ErrNameConflict)
	}

	now := utcNowISO()
	rec := &Record{
		ID:          uuid.NewString(),
		Name:        name,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		MCPEndpoint: mcpEndpoint,
		Description: description,
		Tags:        append([]string{}, tags...),
		Headers:     make(map[string]string, len(headers)),
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for k, v := range headers {
		rec.Headers[k] = v
	}

	r.byID[rec.ID] = rec
	r.byName[name] = rec.ID

	return rec.clone(), nil
}

// Get returns the record for the given id.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("registry: id %q: %w", id, ErrNotFound)
	}
	return rec.clone(), nil
}

// GetByName returns the record for the given server name.
func (r *Registry) GetByName(name string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return Record{}, fmt.Errorf("registry: name %q: %w", name, ErrNotFound)
	}
	return r.byID[id].clone(), nil
}

// List returns a snapshot of every known record, ordered by name.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes the record with the given id. Callers that also need to
// tear down Catalog/SessionStore state for this id must do so themselves;
// Delete only removes the record itself (deletion cascades to dependent
// components are the caller's responsibility, per the hub's design).
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: id %q: %w", id, ErrNotFound)
	}
	delete(r.byID, id)
	delete(r.byName, rec.Name)
	return nil
}
