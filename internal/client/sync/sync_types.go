package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// SyncStatus is pushed on the status stream.
type SyncStatus string

const (
	StatusIdle     SyncStatus = "idle"
	StatusSyncing  SyncStatus = "syncing"
	StatusSuccess  SyncStatus = "success"
	StatusError    SyncStatus = "error"
	StatusConflict SyncStatus = "conflict"
	StatusOffline  SyncStatus = "offline"
)

// Persisted settings keys. These are stable: other subsystems and older
// clients read them by name.
const (
	SettingLastSyncTime     = "last_sync_time"
	SettingSyncStatus       = "sync_status"
	SettingLastSyncError    = "last_sync_error"
	SettingConflictPrefix   = "conflict_"
	SettingAutoSyncConfig   = "auto_sync_config"
	SettingAutoSyncStats    = "auto_sync_stats"
	SettingAutoSyncEnabled  = "auto_sync_enabled"
	SettingAutoSyncInterval = "auto_sync_interval"
)

var (
	// ErrSyncPaused is returned by every sync entry point while paused.
	ErrSyncPaused = errors.New("sync is paused")
	// ErrSyncRunning is returned when a reconciliation pass is already in flight.
	ErrSyncRunning = errors.New("sync already running")
	// ErrNoConflict is returned when resolving a path with no stored conflict.
	ErrNoConflict = errors.New("no conflict stored for path")
)

// SyncResult is the ephemeral outcome of one sync operation.
type SyncResult struct {
	Success         bool
	SyncedFiles     mapset.Set[string]
	Conflicts       []*FileConflict
	UploadedCount   int
	DownloadedCount int
	DeletedCount    int
	Error           string
}

func NewSyncResult() *SyncResult {
	return &SyncResult{
		Success:     true,
		SyncedFiles: mapset.NewSet[string](),
	}
}

// Merge folds another result into this one: union of synced files,
// concatenation of conflicts, summed counters.
func (r *SyncResult) Merge(other *SyncResult) {
	if other == nil {
		return
	}
	r.Success = r.Success && other.Success
	r.SyncedFiles = r.SyncedFiles.Union(other.SyncedFiles)
	// at most one conflict per path: both passes may have seen the same file
	seen := make(map[string]bool, len(r.Conflicts))
	for _, c := range r.Conflicts {
		seen[c.FilePath] = true
	}
	for _, c := range other.Conflicts {
		if !seen[c.FilePath] {
			r.Conflicts = append(r.Conflicts, c)
		}
	}
	r.UploadedCount += other.UploadedCount
	r.DownloadedCount += other.DownloadedCount
	r.DeletedCount += other.DeletedCount
	if other.Error != "" {
		if r.Error != "" {
			r.Error = r.Error + "; " + other.Error
		} else {
			r.Error = other.Error
		}
	}
}

func (r *SyncResult) fail(err error) *SyncResult {
	r.Success = false
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// FileConflict records a file modified on both sides since the watermark.
// It is persisted until explicitly resolved or cleared.
type FileConflict struct {
	FilePath       string    `json:"file_path"`
	LocalModified  time.Time `json:"local_modified"`
	RemoteModified time.Time `json:"remote_modified"`
	LocalContent   string    `json:"local_content"`
	RemoteContent  string    `json:"remote_content"`
	LocalETag      string    `json:"local_etag,omitempty"`
	RemoteETag     string    `json:"remote_etag,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

// ConflictResolution selects how a stored conflict is applied.
type ConflictResolution string

const (
	ResolutionKeepLocal  ConflictResolution = "keepLocal"
	ResolutionKeepRemote ConflictResolution = "keepRemote"
	ResolutionMerge      ConflictResolution = "merge"
	ResolutionCreateBoth ConflictResolution = "createBoth"
	ResolutionSkip       ConflictResolution = "skip"
)

func ParseResolution(s string) (ConflictResolution, error) {
	switch ConflictResolution(s) {
	case ResolutionKeepLocal, ResolutionKeepRemote, ResolutionMerge, ResolutionCreateBoth, ResolutionSkip:
		return ConflictResolution(s), nil
	}
	return "", fmt.Errorf("unknown conflict resolution %q", s)
}

// SyncInfo is a snapshot view, recomputed on demand.
type SyncInfo struct {
	LastSyncTime      time.Time
	Status            SyncStatus
	PendingOperations int
	TotalFiles        int
	LastError         string
}

// sanitizeKeyPath flattens a file path into a settings key segment:
// "notes/a.md" becomes "notes_a_md".
func sanitizeKeyPath(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
