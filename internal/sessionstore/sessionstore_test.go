package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil)

	_, err := s.Get(ctx, "srv-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "srv-1", "downstream-1"))

	got, err := s.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "downstream-1", got)
}

func TestMemoryStoreDeleteByDownstreamID(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil)

	require.NoError(t, s.Put(ctx, "srv-1", "downstream-1"))

	require.NoError(t, s.DeleteByDownstreamID(ctx, "downstream-1"))

	_, err := s.Get(ctx, "srv-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteServer(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil)

	require.NoError(t, s.Put(ctx, "srv-1", "d1"))
	require.NoError(t, s.Put(ctx, "srv-2", "d3"))

	require.NoError(t, s.DeleteServer(ctx, "srv-1"))

	_, err := s.Get(ctx, "srv-1")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "srv-2")
	require.NoError(t, err)
	assert.Equal(t, "d3", got)
}
