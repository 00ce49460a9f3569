package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_Defaults(t *testing.T) {
	il := NewIgnoreList(t.TempDir())

	assert.True(t, il.ShouldIgnore(".cherryignore"))
	assert.True(t, il.ShouldIgnore(".DS_Store"))
	assert.True(t, il.ShouldIgnore("notes/draft.tmp"))
	assert.True(t, il.ShouldIgnore("notes/.git"))
	// conflict copies never re-enter the sync loop
	assert.True(t, il.ShouldIgnore("notes/a.md_local"))
	assert.True(t, il.ShouldIgnore("notes/a.md_remote"))

	assert.False(t, il.ShouldIgnore("notes/a.md"))
	assert.False(t, il.ShouldIgnore("README.md"))
}

func TestIgnoreList_CustomRules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".cherryignore"), []byte("private/\n*.secret\n"), 0644))

	il := NewIgnoreList(dir)

	assert.True(t, il.ShouldIgnore("private/diary.md"))
	assert.True(t, il.ShouldIgnore("keys.secret"))
	assert.False(t, il.ShouldIgnore("public/a.md"))
}

func TestIgnoreList_MissingFileUsesDefaults(t *testing.T) {
	il := NewIgnoreList(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.True(t, il.ShouldIgnore("x.tmp"))
	assert.False(t, il.ShouldIgnore("x.md"))
}
