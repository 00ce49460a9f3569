package sync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/shaoyun/cherrynote/internal/cache"
)

// ConflictRegistry is the durable conflict bookkeeping, stored under
// "conflict_<sanitized_path>" keys in the cache's settings store. At most one
// conflict exists per file path; Store upserts by path.
type ConflictRegistry struct {
	cache *cache.Cache
}

func NewConflictRegistry(c *cache.Cache) *ConflictRegistry {
	return &ConflictRegistry{cache: c}
}

func conflictKey(path string) string {
	return SettingConflictPrefix + sanitizeKeyPath(path)
}

func (r *ConflictRegistry) Store(conflict *FileConflict) error {
	data, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("marshal conflict %s: %w", conflict.FilePath, err)
	}
	return r.cache.SetSetting(conflictKey(conflict.FilePath), string(data))
}

func (r *ConflictRegistry) Get(path string) (*FileConflict, error) {
	raw, err := r.cache.GetSetting(conflictKey(path))
	if err != nil {
		if errors.Is(err, cache.ErrNoSetting) {
			return nil, ErrNoConflict
		}
		return nil, err
	}

	var conflict FileConflict
	if err := json.Unmarshal([]byte(raw), &conflict); err != nil {
		return nil, fmt.Errorf("decode conflict %s: %w", path, err)
	}
	return &conflict, nil
}

func (r *ConflictRegistry) Remove(path string) error {
	return r.cache.RemoveSetting(conflictKey(path))
}

// ListAll returns every stored conflict. Unparsable entries are skipped,
// not fatal.
func (r *ConflictRegistry) ListAll() ([]*FileConflict, error) {
	entries, err := r.cache.GetSettingsWithPrefix(SettingConflictPrefix)
	if err != nil {
		return nil, err
	}

	conflicts := make([]*FileConflict, 0, len(entries))
	for key, raw := range entries {
		var conflict FileConflict
		if err := json.Unmarshal([]byte(raw), &conflict); err != nil {
			slog.Warn("conflict registry skipping corrupt entry", "key", key, "error", err)
			continue
		}
		conflicts = append(conflicts, &conflict)
	}
	return conflicts, nil
}

// Clear removes every stored conflict.
func (r *ConflictRegistry) Clear() error {
	keys, err := r.cache.GetSettingKeys(SettingConflictPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.cache.RemoveSetting(key); err != nil {
			return err
		}
	}
	return nil
}

// Prune drops entries that no longer decode. Used by engine cleanup.
func (r *ConflictRegistry) Prune() (int, error) {
	entries, err := r.cache.GetSettingsWithPrefix(SettingConflictPrefix)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for key, raw := range entries {
		var conflict FileConflict
		if err := json.Unmarshal([]byte(raw), &conflict); err != nil {
			if err := r.cache.RemoveSetting(key); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
