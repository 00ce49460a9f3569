package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConflict() *FileConflict {
	return &FileConflict{
		FilePath:       "notes/a.md",
		LocalContent:   "local body",
		RemoteContent:  "remote body",
		LocalModified:  time.Now().Add(-time.Minute),
		RemoteModified: time.Now(),
		DetectedAt:     time.Now(),
	}
}

func TestResolutionWrites_KeepLocal(t *testing.T) {
	writes, err := ResolutionWrites(testConflict(), ResolutionKeepLocal)
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, WriteRemote, writes[0].Target)
	assert.Equal(t, "notes/a.md", writes[0].Path)
	assert.Equal(t, "local body", writes[0].Content)
}

func TestResolutionWrites_KeepRemote(t *testing.T) {
	writes, err := ResolutionWrites(testConflict(), ResolutionKeepRemote)
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, WriteCache, writes[0].Target)
	assert.Equal(t, "remote body", writes[0].Content)
}

func TestResolutionWrites_Merge(t *testing.T) {
	writes, err := ResolutionWrites(testConflict(), ResolutionMerge)
	require.NoError(t, err)
	require.Len(t, writes, 2)

	merged := "local body" + mergeSeparator + "remote body"
	targets := map[WriteTarget]bool{}
	for _, w := range writes {
		assert.Equal(t, "notes/a.md", w.Path)
		assert.Equal(t, merged, w.Content)
		targets[w.Target] = true
	}
	// same merged content lands on both sides
	assert.True(t, targets[WriteCache])
	assert.True(t, targets[WriteRemote])
}

func TestResolutionWrites_CreateBoth(t *testing.T) {
	writes, err := ResolutionWrites(testConflict(), ResolutionCreateBoth)
	require.NoError(t, err)
	require.Len(t, writes, 4)

	byPath := map[string][]ResolutionWrite{}
	for _, w := range writes {
		byPath[w.Path] = append(byPath[w.Path], w)
	}
	require.Len(t, byPath["notes/a.md_local"], 2)
	require.Len(t, byPath["notes/a.md_remote"], 2)
	for _, w := range byPath["notes/a.md_local"] {
		assert.Equal(t, "local body", w.Content)
	}
	for _, w := range byPath["notes/a.md_remote"] {
		assert.Equal(t, "remote body", w.Content)
	}
}

func TestResolutionWrites_SkipAndUnknown(t *testing.T) {
	writes, err := ResolutionWrites(testConflict(), ResolutionSkip)
	require.NoError(t, err)
	assert.Empty(t, writes)

	_, err = ResolutionWrites(testConflict(), ConflictResolution("bogus"))
	assert.Error(t, err)
}

func TestParseResolution(t *testing.T) {
	for _, valid := range []string{"keepLocal", "keepRemote", "merge", "createBoth", "skip"} {
		res, err := ParseResolution(valid)
		require.NoError(t, err)
		assert.Equal(t, ConflictResolution(valid), res)
	}

	_, err := ParseResolution("KeepLocal")
	assert.Error(t, err)
}
