// Package sync reconciles the local note cache with the remote object store.
// It detects conflicting edits, records them durably, and reports progress on
// a broadcast status stream.
package sync

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/queue"
	"github.com/shaoyun/cherrynote/internal/stream"
)

// SyncEngine performs bidirectional reconciliation between the local cache
// and the remote store. At most one reconciliation pass runs at a time;
// concurrent attempts fail fast with ErrSyncRunning.
type SyncEngine struct {
	remote    blob.Store
	cache     *cache.Cache
	queue     *queue.SyncQueue
	conflicts *ConflictRegistry
	status    *stream.Stream[SyncStatus]

	mu      sync.Mutex
	paused  atomic.Bool
	online  atomic.Bool
	syncing atomic.Bool
}

func NewSyncEngine(remote blob.Store, c *cache.Cache, q *queue.SyncQueue) *SyncEngine {
	return &SyncEngine{
		remote:    remote,
		cache:     c,
		queue:     q,
		conflicts: NewConflictRegistry(c),
		status:    stream.New[SyncStatus](),
	}
}

// StatusStream returns the broadcast stream of SyncStatus transitions.
// Every operation emits StatusSyncing first, then exactly one terminal
// status: success, conflict, error or offline.
func (se *SyncEngine) StatusStream() *stream.Stream[SyncStatus] {
	return se.status
}

func (se *SyncEngine) Registry() *ConflictRegistry {
	return se.conflicts
}

// FullSync probes connectivity, then runs the upload pass and the download
// pass strictly in sequence and merges their results. It never returns an
// error for transfer failures; those come back failure-flagged on the
// result so autonomous triggers cannot crash.
func (se *SyncEngine) FullSync(ctx context.Context) (*SyncResult, error) {
	done, err := se.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if err := se.remote.Ping(ctx); err != nil {
		se.online.Store(false)
		slog.Warn("sync offline", "error", err)
		res := NewSyncResult().fail(fmt.Errorf("remote unreachable: %w", err))
		se.saveStatus(StatusOffline, res.Error)
		se.status.Publish(StatusOffline)
		return res, nil
	}
	se.online.Store(true)

	res := se.syncToRemote(ctx)
	res.Merge(se.syncFromRemote(ctx))
	se.retryPending(ctx, res)
	// a failed pass must not advance the watermark; changes older than the
	// failure would never be enumerated again
	if res.Success {
		se.setWatermark(time.Now())
	}

	slog.Info("full sync",
		"uploads", res.UploadedCount,
		"downloads", res.DownloadedCount,
		"deletes", res.DeletedCount,
		"conflicts", len(res.Conflicts),
		"success", res.Success,
	)
	return se.finish(res), nil
}

// SyncToRemote runs only the upload pass.
func (se *SyncEngine) SyncToRemote(ctx context.Context) (*SyncResult, error) {
	done, err := se.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	res := se.syncToRemote(ctx)
	if res.Success {
		se.setWatermark(time.Now())
	}
	return se.finish(res), nil
}

// SyncFromRemote runs only the download pass.
func (se *SyncEngine) SyncFromRemote(ctx context.Context) (*SyncResult, error) {
	done, err := se.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	res := se.syncFromRemote(ctx)
	if res.Success {
		se.setWatermark(time.Now())
	}
	return se.finish(res), nil
}

// SyncFile reconciles a single path by comparing both sides against the
// watermark: both newer means conflict, one newer resolves in that
// direction, neither is a no-op.
func (se *SyncEngine) SyncFile(ctx context.Context, path string) (*SyncResult, error) {
	done, err := se.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	res := NewSyncResult()
	se.syncFileLocked(ctx, path, res, false)
	return se.finish(res), nil
}

// SyncFiles reconciles a batch of paths in one pass. Used by the scheduler
// to flush a debounced set of file changes in a single round-trip. Per-file
// failures are skipped and deferred to the queue, not fatal.
func (se *SyncEngine) SyncFiles(ctx context.Context, paths []string) (*SyncResult, error) {
	done, err := se.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	res := NewSyncResult()
	for _, path := range paths {
		if ctx.Err() != nil {
			res.fail(ctx.Err())
			break
		}
		se.syncFileLocked(ctx, path, res, true)
	}
	return se.finish(res), nil
}

// CheckConnection probes the remote and records the outcome.
func (se *SyncEngine) CheckConnection(ctx context.Context) bool {
	err := se.remote.Ping(ctx)
	se.online.Store(err == nil)
	return err == nil
}

// PauseSync blocks new sync starts. It never aborts a pass already running.
func (se *SyncEngine) PauseSync() {
	se.paused.Store(true)
}

func (se *SyncEngine) ResumeSync() {
	se.paused.Store(false)
}

func (se *SyncEngine) IsPaused() bool  { return se.paused.Load() }
func (se *SyncEngine) IsOnline() bool  { return se.online.Load() }
func (se *SyncEngine) IsSyncing() bool { return se.syncing.Load() }

// GetSyncInfo recomputes the snapshot view from persisted state.
func (se *SyncEngine) GetSyncInfo() (*SyncInfo, error) {
	info := &SyncInfo{Status: StatusIdle}

	if raw, err := se.cache.GetSetting(SettingSyncStatus); err == nil {
		info.Status = SyncStatus(raw)
	}
	if raw, err := se.cache.GetSetting(SettingLastSyncError); err == nil {
		info.LastError = raw
	}
	if w, ok := se.Watermark(); ok {
		info.LastSyncTime = w
	}

	pending, err := se.queue.PendingCount()
	if err != nil {
		return nil, err
	}
	info.PendingOperations = pending

	total, err := se.cache.CountFiles()
	if err != nil {
		return nil, err
	}
	info.TotalFiles = total

	return info, nil
}

// Cleanup drops corrupt conflict entries, completed queue rows and reclaims
// cache space.
func (se *SyncEngine) Cleanup() error {
	pruned, err := se.conflicts.Prune()
	if err != nil {
		return fmt.Errorf("prune conflicts: %w", err)
	}
	if pruned > 0 {
		slog.Info("cleanup pruned conflicts", "count", pruned)
	}
	if err := se.queue.CleanupCompletedOperations(); err != nil {
		return err
	}
	return se.cache.Compact()
}

// ResetSync clears the queue and the watermark and disables auto-sync.
// Conflicts stay stored; they still need explicit resolution.
func (se *SyncEngine) ResetSync() error {
	if err := se.queue.ClearQueue(); err != nil {
		return err
	}
	for _, key := range []string{SettingLastSyncTime, SettingSyncStatus, SettingLastSyncError} {
		if err := se.cache.RemoveSetting(key); err != nil {
			return err
		}
	}
	return se.cache.SetSetting(SettingAutoSyncEnabled, "false")
}

// Dispose closes the status stream. The engine must not be used after.
func (se *SyncEngine) Dispose() {
	se.status.Close()
}

// Watermark returns the timestamp of the last successful sync. A missing
// watermark (first run) means everything counts as changed.
func (se *SyncEngine) Watermark() (time.Time, bool) {
	raw, err := se.cache.GetSetting(SettingLastSyncTime)
	if err != nil {
		return time.Time{}, false
	}
	w, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		slog.Warn("invalid watermark, treating as unset", "value", raw)
		return time.Time{}, false
	}
	return w, true
}

func (se *SyncEngine) setWatermark(t time.Time) {
	if err := se.cache.SetSetting(SettingLastSyncTime, t.UTC().Format(time.RFC3339Nano)); err != nil {
		slog.Error("failed to persist watermark", "error", err)
	}
}

// begin guards every sync entry point: paused throws, overlapping passes
// fail fast, and StatusSyncing is published before any work starts.
func (se *SyncEngine) begin() (func(), error) {
	if se.paused.Load() {
		return nil, ErrSyncPaused
	}
	if !se.mu.TryLock() {
		return nil, ErrSyncRunning
	}
	se.syncing.Store(true)
	se.status.Publish(StatusSyncing)
	return func() {
		se.syncing.Store(false)
		se.mu.Unlock()
	}, nil
}

// finish publishes the single terminal status for an operation and persists
// the outcome for the snapshot view.
func (se *SyncEngine) finish(res *SyncResult) *SyncResult {
	var status SyncStatus
	switch {
	case !res.Success:
		status = StatusError
	case len(res.Conflicts) > 0:
		status = StatusConflict
	default:
		status = StatusSuccess
	}
	se.saveStatus(status, res.Error)
	se.status.Publish(status)
	return res
}

func (se *SyncEngine) saveStatus(status SyncStatus, errStr string) {
	if err := se.cache.SetSetting(SettingSyncStatus, string(status)); err != nil {
		slog.Error("failed to persist sync status", "error", err)
	}
	if errStr == "" {
		_ = se.cache.RemoveSetting(SettingLastSyncError)
		return
	}
	if err := se.cache.SetSetting(SettingLastSyncError, errStr); err != nil {
		slog.Error("failed to persist sync error", "error", err)
	}
}

// contentETag matches the ETag S3 assigns to a non-multipart PUT, letting
// the engine recognize identical content without a download.
func contentETag(content string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}

func isMissing(err error) bool {
	return errors.Is(err, blob.ErrNotFound) || errors.Is(err, cache.ErrNotCached)
}
