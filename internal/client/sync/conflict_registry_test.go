package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaoyun/cherrynote/internal/cache"
)

func newTestRegistry(t *testing.T) (*ConflictRegistry, *cache.Cache) {
	t.Helper()
	c := cache.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, c.Open())
	t.Cleanup(func() { c.Close() })
	return NewConflictRegistry(c), c
}

func storedConflict(path string) *FileConflict {
	return &FileConflict{
		FilePath:       path,
		LocalContent:   "local",
		RemoteContent:  "remote",
		LocalModified:  time.Now().Add(-time.Minute).UTC(),
		RemoteModified: time.Now().UTC(),
		DetectedAt:     time.Now().UTC(),
	}
}

func TestConflictRegistry_RoundTrip(t *testing.T) {
	registry, _ := newTestRegistry(t)

	require.NoError(t, registry.Store(storedConflict("notes/a.md")))

	conflict, err := registry.Get("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", conflict.FilePath)
	assert.Equal(t, "local", conflict.LocalContent)
	assert.Equal(t, "remote", conflict.RemoteContent)

	require.NoError(t, registry.Remove("notes/a.md"))
	_, err = registry.Get("notes/a.md")
	assert.ErrorIs(t, err, ErrNoConflict)
}

func TestConflictRegistry_UpsertsByPath(t *testing.T) {
	registry, _ := newTestRegistry(t)

	first := storedConflict("notes/a.md")
	require.NoError(t, registry.Store(first))

	second := storedConflict("notes/a.md")
	second.LocalContent = "newer local"
	require.NoError(t, registry.Store(second))

	conflicts, err := registry.ListAll()
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "newer local", conflicts[0].LocalContent)
}

func TestConflictRegistry_SimilarPathsStayDistinct(t *testing.T) {
	registry, _ := newTestRegistry(t)

	// "notes/a.md" and "notes_a.md" sanitize to the same key segment shape
	require.NoError(t, registry.Store(storedConflict("notes/a.md")))
	require.NoError(t, registry.Store(storedConflict("notes/b.md")))
	require.NoError(t, registry.Store(storedConflict("x y.md")))

	conflicts, err := registry.ListAll()
	require.NoError(t, err)
	assert.Len(t, conflicts, 3)

	conflict, err := registry.Get("x y.md")
	require.NoError(t, err)
	assert.Equal(t, "x y.md", conflict.FilePath)
}

func TestConflictRegistry_Clear(t *testing.T) {
	registry, c := newTestRegistry(t)

	require.NoError(t, registry.Store(storedConflict("a.md")))
	require.NoError(t, registry.Store(storedConflict("b.md")))
	// unrelated settings survive a clear
	require.NoError(t, c.SetSetting("last_sync_time", "2024-01-01T00:00:00Z"))

	require.NoError(t, registry.Clear())

	conflicts, err := registry.ListAll()
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = c.GetSetting("last_sync_time")
	assert.NoError(t, err)
}

func TestConflictRegistry_SkipsAndPrunesCorruptEntries(t *testing.T) {
	registry, c := newTestRegistry(t)

	require.NoError(t, registry.Store(storedConflict("good.md")))
	require.NoError(t, c.SetSetting("conflict_broken_md", "{not json"))

	conflicts, err := registry.ListAll()
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "good.md", conflicts[0].FilePath)

	pruned, err := registry.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	keys, err := c.GetSettingKeys("conflict_")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
