// Package autosync decides when the sync engine runs: a periodic timer,
// debounced file-change batching, and app-lifecycle hooks, all funneled
// through one re-entrancy-guarded sync entry.
package autosync

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/sync"
)

// Config controls the scheduler. It is persisted under auto_sync_config and
// survives restarts.
type Config struct {
	SyncInterval     time.Duration `json:"sync_interval"`
	DebounceDelay    time.Duration `json:"debounce_delay"`
	SyncOnFileChange bool          `json:"sync_on_file_change"`
	SyncOnAppStart   bool          `json:"sync_on_app_start"`
	SyncOnAppResume  bool          `json:"sync_on_app_resume"`
	MaxRetries       int           `json:"max_retries"`
	RetryDelay       time.Duration `json:"retry_delay"`
	ExcludePatterns  []string      `json:"exclude_patterns"`
}

func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceDelay:    2 * time.Second,
		SyncOnFileChange: true,
		SyncOnAppStart:   true,
		SyncOnAppResume:  true,
		MaxRetries:       3,
		RetryDelay:       30 * time.Second,
		ExcludePatterns:  nil,
	}
}

func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.DebounceDelay <= 0 {
		return errors.New("debounce delay must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	return nil
}

// loadConfig reads the persisted config, falling back to defaults when the
// stored value is missing or corrupt. Corrupt config is never fatal.
func loadConfig(c *cache.Cache) *Config {
	raw, err := c.GetSetting(sync.SettingAutoSyncConfig)
	if err != nil {
		return DefaultConfig()
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		slog.Warn("corrupt auto-sync config, using defaults", "error", err)
		return DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid auto-sync config, using defaults", "error", err)
		return DefaultConfig()
	}
	return &cfg
}

func saveConfig(c *cache.Cache, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal auto-sync config: %w", err)
	}
	if err := c.SetSetting(sync.SettingAutoSyncConfig, string(data)); err != nil {
		return err
	}
	// mirrored under its own stable key for settings UIs
	return c.SetSetting(sync.SettingAutoSyncInterval, strconv.Itoa(int(cfg.SyncInterval.Seconds())))
}
