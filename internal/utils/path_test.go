package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	_, err := ResolvePath("")
	assert.Error(t, err)

	abs, err := ResolvePath("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expanded, err := ResolvePath("~/notes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "notes"), expanded)
}

func TestEnsureDirAndParent(t *testing.T) {
	tmp := t.TempDir()

	dir := filepath.Join(tmp, "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
	// idempotent
	assert.NoError(t, EnsureDir(dir))

	file := filepath.Join(tmp, "x", "y", "note.md")
	require.NoError(t, EnsureParent(file))
	assert.True(t, DirExists(filepath.Dir(file)))
	assert.False(t, FileExists(file))

	require.NoError(t, os.WriteFile(file, []byte("hi"), 0644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}
