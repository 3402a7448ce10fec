// Package refreshloop periodically re-discovers each registered server's
// tools and writes the result into the catalog, independently per server so
// one unreachable server never blocks another's refresh.
package refreshloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcphub/mcp-hub/internal/catalog"
	"github.com/mcphub/mcp-hub/internal/downstream"
	"github.com/mcphub/mcp-hub/internal/registry"
	"github.com/mcphub/mcp-hub/internal/sessionstore"
)

// ClientFactory builds a downstream client for a registry record. Exists so
// tests can substitute a fake without standing up real HTTP servers for
// every record.
type ClientFactory func(rec registry.Record) *downstream.Client

// Loop owns the periodic per-server refresh.
type Loop struct {
	registry  *registry.Registry
	catalog   *catalog.Catalog
	sessions  sessionstore.Store
	newClient ClientFactory
	interval  time.Duration
	logger    *slog.Logger

	ticker   *time.Ticker
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// New returns a Loop that refreshes every registered server on interval.
func New(reg *registry.Registry, cat *catalog.Catalog, sessions sessionstore.Store, newClient ClientFactory, interval time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		registry:  reg,
		catalog:   cat,
		sessions:  sessions,
		newClient: newClient,
		interval:  interval,
		logger:    logger.With("component", "refresh-loop"),
		done:      make(chan struct{}),
	}
}

// Start runs RefreshAll once immediately, then on every tick, until the
// context is cancelled or Stop is called. It blocks, so callers run it in
// its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	defer l.wg.Done()

	l.ticker = time.NewTicker(l.interval)
	defer l.ticker.Stop()

	l.RefreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.ticker.C:
			l.RefreshAll(ctx)
		}
	}
}

// Stop ends the loop. Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// RefreshAll refreshes every currently registered server, concurrently, and
// waits for all of them to finish.
func (l *Loop) RefreshAll(ctx context.Context) {
	records := l.registry.List()

	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec registry.Record) {
			defer wg.Done()
			l.RefreshServer(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

// RefreshServer gets (or, on first use, negotiates and stores) the shared
// downstream session for rec, re-lists its tools, and replaces its catalog
// entries with the result. A downstream report that the cached session has
// expired is retried exactly once after re-initializing; any other failure
// drops the server's catalog entries (an empty tool set) but leaves its
// registry record untouched — a refresh failure never deletes a
// registration, it only hides the server's tools until the next successful
// refresh. Safe to call both from the periodic loop and, per server, from
// the gateway as it builds a sub-handler for an incoming request.
func (l *Loop) RefreshServer(ctx context.Context, rec registry.Record) []catalog.Entry {
	client := l.newClient(rec)

	sessionID, err := l.ensureSession(ctx, client, rec)
	if err != nil {
		l.logger.Warn("refresh: initialize failed, dropping tool entries", "server", rec.Name, "error", err)
		return l.catalog.ReplaceServerTools(rec.ID, rec.Name, nil)
	}

	tools, err := client.ListTools(ctx, sessionID)
	if errors.Is(err, downstream.ErrSessionExpired) {
		sessionID, err = l.reinitializeSession(ctx, client, rec)
		if err == nil {
			tools, err = client.ListTools(ctx, sessionID)
		}
	}
	if err != nil {
		l.logger.Warn("refresh: list tools failed, dropping tool entries", "server", rec.Name, "error", err)
		return l.catalog.ReplaceServerTools(rec.ID, rec.Name, nil)
	}

	if dup := firstDuplicateName(tools.Tools); dup != "" {
		l.logger.Warn("refresh: downstream reported duplicate tool name, last one wins", "server", rec.Name, "tool", dup)
	}

	entries := l.catalog.ReplaceServerTools(rec.ID, rec.Name, tools.Tools)
	l.logger.Debug("refresh: tools updated", "server", rec.Name, "tool_count", len(entries))
	return entries
}

// ensureSession returns the session id already stored for rec, or negotiates
// and stores a new one if none is cached yet.
func (l *Loop) ensureSession(ctx context.Context, client *downstream.Client, rec registry.Record) (string, error) {
	if id, err := l.sessions.Get(ctx, rec.ID); err == nil {
		return id, nil
	}
	return l.reinitializeSession(ctx, client, rec)
}

func (l *Loop) reinitializeSession(ctx context.Context, client *downstream.Client, rec registry.Record) (string, error) {
	sessionID, _, err := client.Initialize(ctx)
	if err != nil {
		return "", err
	}
	if err := l.sessions.Put(ctx, rec.ID, sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}

// firstDuplicateName returns the first tool name seen more than once in
// tools, or "" if all names are distinct.
func firstDuplicateName(tools []mcp.Tool) string {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name] {
			return t.Name
		}
		seen[t.Name] = true
	}
	return ""
}
