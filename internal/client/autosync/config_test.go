package autosync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/sync"
)

func newTestSettings(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, c.Open())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SyncInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DebounceDelay = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	c := newTestSettings(t)

	cfg := DefaultConfig()
	cfg.SyncInterval = 90 * time.Second
	cfg.ExcludePatterns = []string{"**/*.tmp"}
	require.NoError(t, saveConfig(c, cfg))

	loaded := loadConfig(c)
	assert.Equal(t, 90*time.Second, loaded.SyncInterval)
	assert.Equal(t, []string{"**/*.tmp"}, loaded.ExcludePatterns)

	raw, err := c.GetSetting(sync.SettingAutoSyncInterval)
	require.NoError(t, err)
	assert.Equal(t, "90", raw)
}

func TestConfig_LoadFallsBackToDefaults(t *testing.T) {
	c := newTestSettings(t)

	// missing
	assert.Equal(t, DefaultConfig(), loadConfig(c))

	// corrupt
	require.NoError(t, c.SetSetting(sync.SettingAutoSyncConfig, "{broken"))
	assert.Equal(t, DefaultConfig(), loadConfig(c))

	// valid json but invalid values
	require.NoError(t, c.SetSetting(sync.SettingAutoSyncConfig, `{"sync_interval":-1}`))
	assert.Equal(t, DefaultConfig(), loadConfig(c))
}

func TestStats_Record(t *testing.T) {
	stats := &Stats{}

	stats.record(TriggerPeriodic, true, "")
	stats.record(TriggerFileChange, false, "boom")
	stats.record(TriggerAppStart, true, "")

	assert.Equal(t, int64(3), stats.TotalSyncs)
	assert.Equal(t, int64(2), stats.SuccessfulSyncs)
	assert.Equal(t, int64(1), stats.FailedSyncs)
	assert.Equal(t, int64(1), stats.PeriodicSyncs)
	assert.Equal(t, int64(1), stats.FileChangeSyncs)
	assert.Equal(t, int64(1), stats.AppStartSyncs)
	assert.False(t, stats.LastSyncTime.IsZero())
	assert.False(t, stats.LastSuccessTime.IsZero())
	// a later success clears the error
	assert.Empty(t, stats.LastError)
}

func TestStats_SaveLoadRoundTrip(t *testing.T) {
	c := newTestSettings(t)

	stats := &Stats{TotalSyncs: 5, SuccessfulSyncs: 4, FailedSyncs: 1, LastError: "offline"}
	saveStats(c, stats)

	loaded := loadStats(c)
	assert.Equal(t, int64(5), loaded.TotalSyncs)
	assert.Equal(t, int64(4), loaded.SuccessfulSyncs)
	assert.Equal(t, "offline", loaded.LastError)

	// corrupt stats reset rather than fail
	require.NoError(t, c.SetSetting(sync.SettingAutoSyncStats, "{bad"))
	assert.Equal(t, &Stats{}, loadStats(c))
}
