package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndGet(t *testing.T) {
	store := newTestStore(t)

	p := Project{ID: "p1", Name: "haven", Path: "/src/haven", Tags: []string{"go", "tui"}}
	require.NoError(t, store.Upsert(p))

	got, err := store.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "haven", got.Name)
	assert.Equal(t, []string{"go", "tui"}, got.Tags)
	assert.False(t, got.CreatedAt.IsZero())

	// Update in place by id.
	p.Name = "haven2"
	require.NoError(t, store.Upsert(p))
	got, err = store.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "haven2", got.Name)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetByPath(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Project{ID: "p1", Name: "a", Path: "/src/a"}))

	got, err := store.GetByPath("/src/a")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	_, err = store.GetByPath("/src/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Project{ID: "p1", Name: "a", Path: "/src/a"}))
	require.NoError(t, store.AddOrUpdateWorktree(TrackedWorktree{
		ProjectID: "p1", Path: "/src/a/.worktrees/x", Branch: "x",
	}))

	require.NoError(t, store.Delete("p1"))
	_, err := store.Get("p1")
	assert.ErrorIs(t, err, ErrNotFound)

	worktrees, err := store.Worktrees("p1")
	require.NoError(t, err)
	assert.Empty(t, worktrees)

	assert.ErrorIs(t, store.Delete("p1"), ErrNotFound)
}

func TestSetTagsReplaces(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Project{ID: "p1", Name: "a", Path: "/src/a"}))

	require.NoError(t, store.SetTags("p1", []string{"one", "two"}))
	require.NoError(t, store.SetTags("p1", []string{"three", "", "  "}))

	got, err := store.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, got.Tags)
}

func TestAddOrUpdateWorktreeIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Project{ID: "p1", Name: "a", Path: "/src/a"}))

	wt := TrackedWorktree{ProjectID: "p1", Path: "/src/a/.worktrees/f", Branch: "feature/f"}
	require.NoError(t, store.AddOrUpdateWorktree(wt))
	require.NoError(t, store.AddOrUpdateWorktree(wt))

	worktrees, err := store.Worktrees("p1")
	require.NoError(t, err)
	require.Len(t, worktrees, 1, "same path must update, not insert")

	wt.Branch = "feature/g"
	require.NoError(t, store.AddOrUpdateWorktree(wt))
	worktrees, err = store.Worktrees("p1")
	require.NoError(t, err)
	require.Len(t, worktrees, 1)
	assert.Equal(t, "feature/g", worktrees[0].Branch)
}

func TestRemoveWorktree(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Project{ID: "p1", Name: "a", Path: "/src/a"}))
	require.NoError(t, store.AddOrUpdateWorktree(TrackedWorktree{
		ProjectID: "p1", Path: "/src/a/.worktrees/f", Branch: "f",
	}))

	require.NoError(t, store.RemoveWorktree("p1", "/src/a/.worktrees/f"))
	worktrees, err := store.Worktrees("p1")
	require.NoError(t, err)
	assert.Empty(t, worktrees)
}
