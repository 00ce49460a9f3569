package autosync

import (
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/sync"
)

// Stats are running counters, persisted after every state change and on
// app-pause.
type Stats struct {
	TotalSyncs      int64     `json:"total_syncs"`
	SuccessfulSyncs int64     `json:"successful_syncs"`
	FailedSyncs     int64     `json:"failed_syncs"`
	PeriodicSyncs   int64     `json:"periodic_syncs"`
	FileChangeSyncs int64     `json:"file_change_syncs"`
	AppStartSyncs   int64     `json:"app_start_syncs"`
	LastSyncTime    time.Time `json:"last_sync_time"`
	LastSuccessTime time.Time `json:"last_success_time"`
	LastError       string    `json:"last_error,omitempty"`
}

func loadStats(c *cache.Cache) *Stats {
	raw, err := c.GetSetting(sync.SettingAutoSyncStats)
	if err != nil {
		return &Stats{}
	}

	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		slog.Warn("corrupt auto-sync stats, resetting", "error", err)
		return &Stats{}
	}
	return &stats
}

func saveStats(c *cache.Cache, stats *Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		slog.Error("failed to marshal auto-sync stats", "error", err)
		return
	}
	if err := c.SetSetting(sync.SettingAutoSyncStats, string(data)); err != nil {
		slog.Error("failed to persist auto-sync stats", "error", err)
	}
}

func (s *Stats) record(trigger Trigger, success bool, errStr string) {
	s.TotalSyncs++
	s.LastSyncTime = time.Now().UTC()
	if success {
		s.SuccessfulSyncs++
		s.LastSuccessTime = s.LastSyncTime
		s.LastError = ""
	} else {
		s.FailedSyncs++
		s.LastError = errStr
	}

	switch trigger {
	case TriggerPeriodic:
		s.PeriodicSyncs++
	case TriggerFileChange:
		s.FileChangeSyncs++
	case TriggerAppStart:
		s.AppStartSyncs++
	}
}
