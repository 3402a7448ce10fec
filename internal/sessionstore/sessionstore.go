// Package sessionstore maps a registered server id to the downstream MCP
// session id the hub negotiated with that server, so a downstream session is
// shared by every hub caller of that server instead of being re-minted per
// caller.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no downstream session exists for a server id.
var ErrNotFound = errors.New("sessionstore: not found")

func redisKey(serverID string) string {
	return fmt.Sprintf("mcp-hub:session:%s", serverID)
}

// Store maps a server id to the downstream session id currently open for it.
type Store interface {
	// Get returns the downstream session id for serverID, or ErrNotFound.
	Get(ctx context.Context, serverID string) (string, error)
	// Put records the downstream session id for serverID.
	Put(ctx context.Context, serverID, downstreamSessionID string) error
	// DeleteByDownstreamID removes whichever entry currently holds
	// downstreamSessionID.
	DeleteByDownstreamID(ctx context.Context, downstreamSessionID string) error
	// DeleteServer removes the entry for serverID, used when a server
	// record is deleted from the registry and when the gateway evicts a
	// session the downstream server reported as expired.
	DeleteServer(ctx context.Context, serverID string) error
}

// memoryStore is the default backend: an in-process map guarded by a mutex,
// good enough for a single hub process and the only backend that needs no
// configuration.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]string // serverID -> downstream session id
	logger   *slog.Logger
}

// NewMemory returns a process-local Store.
func NewMemory(logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryStore{
		sessions: make(map[string]string),
		logger:   logger,
	}
}

func (m *memoryStore) Get(_ context.Context, serverID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[serverID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *memoryStore) Put(_ context.Context, serverID, downstreamSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[serverID] = downstreamSessionID
	return nil
}

func (m *memoryStore) DeleteByDownstreamID(_ context.Context, downstreamSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found string
	var ok bool
	for k, v := range m.sessions {
		if v == downstreamSessionID {
			found, ok = k, true
			break
		}
	}
	if !ok {
		m.logger.Debug("downstream session not present in store", "downstream_session_id", downstreamSessionID)
		return nil
	}
	delete(m.sessions, found)
	return nil
}

func (m *memoryStore) DeleteServer(_ context.Context, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, serverID)
	return nil
}

// redisStore persists downstream session ids in Redis, so sessions survive
// a hub restart when the hub is run with multiple replicas behind a shared
// cache.
type redisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis returns a Store backed by the given Redis connection string
// (e.g. "redis://localhost:6379/0").
func NewRedis(connString string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: parsing redis url: %w", err)
	}
	return &redisStore{client: redis.NewClient(opts), logger: logger}, nil
}

func (r *redisStore) Get(ctx context.Context, serverID string) (string, error) {
	val, err := r.client.Get(ctx, redisKey(serverID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sessionstore: redis get: %w", err)
	}
	return val, nil
}

func (r *redisStore) Put(ctx context.Context, serverID, downstreamSessionID string) error {
	if err := r.client.Set(ctx, redisKey(serverID), downstreamSessionID, 0).Err(); err != nil {
		return fmt.Errorf("sessionstore: redis set: %w", err)
	}
	return nil
}

func (r *redisStore) DeleteByDownstreamID(ctx context.Context, downstreamSessionID string) error {
	// Redis has no reverse index by value; scan is acceptable at hub scale
	// (hundreds of sessions, not millions).
	iter := r.client.Scan(ctx, 0, "mcp-hub:session:*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		val, err := r.client.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		if val == downstreamSessionID {
			if err := r.client.Del(ctx, k).Err(); err != nil {
				return fmt.Errorf("sessionstore: redis del: %w", err)
			}
			return nil
		}
	}
	return iter.Err()
}

func (r *redisStore) DeleteServer(ctx context.Context, serverID string) error {
	if err := r.client.Del(ctx, redisKey(serverID)).Err(); err != nil {
		return fmt.Errorf("sessionstore: redis del: %w", err)
	}
	return nil
}
