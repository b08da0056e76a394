package store

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock/depot/internal/compression"
)

func TestMemoryStoreCRUD(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Get(ctx, "objects/a")
	require.ErrorIs(t, err, ErrNotFound)

	has, err := s.Has(ctx, "objects/a")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.Put(ctx, "objects/a", []byte("value")))

	got, err := s.Get(ctx, "objects/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	has, err = s.Has(ctx, "objects/a")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete(ctx, "objects/a"))
	_, err = s.Get(ctx, "objects/a")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is tolerated.
	require.NoError(t, s.Delete(ctx, "objects/a"))
}

func TestStoreOverwrite(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v1")))
	require.NoError(t, s.Put(ctx, "k", []byte("v2")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStoreKeysByPrefix(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"objects/a", "objects/b", "meta/a", "refs/main"} {
		require.NoError(t, s.Put(ctx, k, []byte("x")))
	}

	keys, err := s.Keys(ctx, "objects/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"objects/a", "objects/b"}, keys)

	keys, err = s.Keys(ctx, "refs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/main"}, keys)

	// A prefix with no entries yet lists empty, not an error.
	keys, err = s.Keys(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStoreCompressionRoundTrip(t *testing.T) {
	comp, err := compression.New(2)
	require.NoError(t, err)
	defer comp.Close()

	// Cache disabled so every Get goes through decompression.
	s := NewFS(afero.NewMemMapFs(), 0, comp)
	ctx := context.Background()

	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = byte(i % 7) // compressible
	}
	small := []byte("tiny")

	require.NoError(t, s.Put(ctx, "objects/big", big))
	require.NoError(t, s.Put(ctx, "objects/small", small))

	got, err := s.Get(ctx, "objects/big")
	require.NoError(t, err)
	assert.Equal(t, big, got)

	got, err = s.Get(ctx, "objects/small")
	require.NoError(t, err)
	assert.Equal(t, small, got)

	// The stored bytes for the big value are actually smaller.
	fi, err := afero.ReadFile(s.fs, keyPath("objects/big"))
	require.NoError(t, err)
	assert.Less(t, len(fi), len(big))
}

func TestLRUCache(t *testing.T) {
	c := NewLRUCache(2)

	c.Add("a", []byte("1"))
	c.Add("b", []byte("2"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	// "b" is now the least recently used; adding "c" evicts it.
	c.Add("c", []byte("3"))
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))

	c.Remove("a")
	assert.False(t, c.Has("a"))

	c.Clear()
	assert.False(t, c.Has("c"))
}

func TestLRUCacheDisabled(t *testing.T) {
	c := NewLRUCache(0)
	c.Add("a", []byte("1"))
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, c.Has("a"))
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	c := NewLRUCache(2)
	c.Add("a", []byte("old"))
	c.Add("a", []byte("new"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}
