package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSaveAssignsVersions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	v0, err := store.Save(ctx, "app", "alice", "s1", "report.txt", []byte("draft"))
	require.NoError(t, err)
	assert.Equal(t, 0, v0)

	v1, err := store.Save(ctx, "app", "alice", "s1", "report.txt", []byte("final"))
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	versions, err := store.Versions(ctx, "app", "alice", "s1", "report.txt")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, versions)
}

func TestInMemoryStoreLoadSpecificAndLatest(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Save(ctx, "app", "alice", "s1", "report.txt", []byte("draft"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "app", "alice", "s1", "report.txt", []byte("final"))
	require.NoError(t, err)

	data, err := store.Load(ctx, "app", "alice", "s1", "report.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("draft"), data)

	latest, err := store.Load(ctx, "app", "alice", "s1", "report.txt", -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), latest)

	_, err = store.Load(ctx, "app", "alice", "s1", "report.txt", 5)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "app", "alice", "s1", "missing.txt", -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	original := []byte("abc")
	_, err := store.Save(ctx, "app", "alice", "s1", "f", original)
	require.NoError(t, err)
	original[0] = 'x'

	data, err := store.Load(ctx, "app", "alice", "s1", "f", -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	data[0] = 'y'
	again, err := store.Load(ctx, "app", "alice", "s1", "f", -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestInMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Save(ctx, "app", "alice", "s1", "a.txt", []byte("a"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "app", "alice", "s1", "b.txt", []byte("b"))
	require.NoError(t, err)

	names, err := store.List(ctx, "app", "alice", "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	require.NoError(t, store.Delete(ctx, "app", "alice", "s1", "a.txt"))
	assert.ErrorIs(t, store.Delete(ctx, "app", "alice", "s1", "a.txt"), ErrNotFound)

	names, err = store.List(ctx, "app", "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)
}

func TestInMemoryStoreSessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Save(ctx, "app", "alice", "s1", "f", []byte("one"))
	require.NoError(t, err)

	_, err = store.Load(ctx, "app", "alice", "s2", "f", -1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "app", "bob", "s1", "f", -1)
	assert.ErrorIs(t, err, ErrNotFound)
}
