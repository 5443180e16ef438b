package filerecord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	rec := Record{Path: "a.rb", ContentHash: "abc123", ModTime: 100, OccurrenceIDs: []string{"a.rb#1#0", "a.rb#1#1"}}
	require.NoError(t, s.Put(ctx, rec))

	got, ok, err := s.Get(ctx, "a.rb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestPutReplacesExistingRecord(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Record{Path: "a.rb", ContentHash: "v1", ModTime: 1}))
	require.NoError(t, s.Put(ctx, Record{Path: "a.rb", ContentHash: "v2", ModTime: 2}))

	got, ok, err := s.Get(ctx, "a.rb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", got.ContentHash)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := newMemStore(t)
	_, ok, err := s.Get(context.Background(), "nope.rb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record{Path: "a.rb", ContentHash: "v1", ModTime: 1}))
	require.NoError(t, s.Delete(ctx, "a.rb"))

	_, ok, err := s.Get(ctx, "a.rb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNeedsReindexDetectsHashChange(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record{Path: "a.rb", ContentHash: "v1", ModTime: 1}))

	needs, err := s.NeedsReindex(ctx, "a.rb", "v1")
	require.NoError(t, err)
	assert.False(t, needs)

	needs, err = s.NeedsReindex(ctx, "a.rb", "v2")
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestNeedsReindexTrueForUnknownFile(t *testing.T) {
	s := newMemStore(t)
	needs, err := s.NeedsReindex(context.Background(), "new.rb", "v1")
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestAllPathsListsEveryRecord(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record{Path: "a.rb", ContentHash: "v1", ModTime: 1}))
	require.NoError(t, s.Put(ctx, Record{Path: "b.rb", ContentHash: "v1", ModTime: 1}))

	paths, err := s.AllPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.rb", "b.rb"}, paths)
}
