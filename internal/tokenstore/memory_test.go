package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetRevoke(t *testing.T) {
	s := NewMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "tok1", 42))

	userID, ok, err := s.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)

	_, ok, err = s.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Revoke(ctx, "tok1"))
	_, ok, _ = s.Get(ctx, "tok1")
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	s := NewMemory(10 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "tok", 1))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRevokeAll(t *testing.T) {
	s := NewMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Set(ctx, "b", 2))
	require.NoError(t, s.RevokeAll(ctx))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	assert.False(t, ok)
}
