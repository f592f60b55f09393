package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), 0))

	value, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))

	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len(), "expired entry should be collected on access")
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), 0))
	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.Delete(ctx, "k1"))

	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "result:t1:faq:q1", []byte("a"), 0))
	require.NoError(t, store.Set(ctx, "result:t1:faq:q2", []byte("b"), 0))
	require.NoError(t, store.Set(ctx, "result:t1:catalog:q1", []byte("c"), 0))
	require.NoError(t, store.Set(ctx, "result:t2:faq:q1", []byte("d"), 0))

	require.NoError(t, store.DeletePrefix(ctx, "result:t1:faq:"))

	_, ok, _ := store.Get(ctx, "result:t1:faq:q1")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "result:t1:faq:q2")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "result:t1:catalog:q1")
	assert.True(t, ok)
	_, ok, _ = store.Get(ctx, "result:t2:faq:q1")
	assert.True(t, ok)
}

func TestMemoryStoreOverwriteResetsTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))
	now = now.Add(30 * time.Second)
	require.NoError(t, store.Set(ctx, "k1", []byte("v2"), time.Minute))
	now = now.Add(45 * time.Second)

	value, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), value)
}
