package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/queue"
)

// syncToRemote uploads every locally changed file, detecting conflicts
// before each upload. Per-file failures are deferred to the queue and
// excluded from SyncedFiles, never fatal to the batch.
func (se *SyncEngine) syncToRemote(ctx context.Context) *SyncResult {
	res := NewSyncResult()

	changes, err := se.localChanges()
	if err != nil {
		return res.fail(fmt.Errorf("enumerate local changes: %w", err))
	}

	for _, file := range changes {
		if ctx.Err() != nil {
			return res.fail(ctx.Err())
		}

		content, err := se.cache.GetCachedFile(file.Path)
		if err != nil {
			slog.Warn("upload skip, cache read failed", "path", file.Path, "error", err)
			continue
		}

		conflict, inSync, err := se.detectUploadConflict(ctx, file.Path, content, file.CachedAt)
		if err != nil {
			slog.Warn("upload deferred, conflict check failed", "path", file.Path, "error", err)
			se.deferOp(queue.OpUpload, file.Path)
			continue
		}
		if inSync {
			continue
		}
		if conflict != nil {
			res.Conflicts = append(res.Conflicts, conflict)
			continue
		}

		if err := se.remote.UploadFile(ctx, file.Path, content); err != nil {
			slog.Warn("upload deferred", "path", file.Path, "error", err)
			se.deferOp(queue.OpUpload, file.Path)
			continue
		}
		res.UploadedCount++
		res.SyncedFiles.Add(file.Path)
		slog.Debug("uploaded", "path", file.Path, "size", humanize.Bytes(uint64(len(content))))
	}

	return res
}

// UploadFile transfers one cached file to the remote store.
func (se *SyncEngine) UploadFile(ctx context.Context, path string) error {
	if se.paused.Load() {
		return ErrSyncPaused
	}
	content, err := se.cache.GetCachedFile(path)
	if err != nil {
		return err
	}
	return se.remote.UploadFile(ctx, path, content)
}

// GetLocalChanges enumerates paths whose cache timestamp is after the
// watermark, or every cached path when no watermark exists yet.
func (se *SyncEngine) GetLocalChanges() ([]string, error) {
	changes, err := se.localChanges()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(changes))
	for _, file := range changes {
		paths = append(paths, file.Path)
	}
	return paths, nil
}

func (se *SyncEngine) localChanges() ([]*cache.CachedFile, error) {
	files, err := se.cache.ListFiles()
	if err != nil {
		return nil, err
	}

	w, hasW := se.Watermark()
	if !hasW {
		return files, nil
	}

	changed := make([]*cache.CachedFile, 0, len(files))
	for _, file := range files {
		if file.CachedAt.After(w) {
			changed = append(changed, file)
		}
	}
	return changed, nil
}

// deferOp records a failed transfer for retry on the next full sync.
func (se *SyncEngine) deferOp(opType queue.OpType, path string) {
	if _, err := se.queue.Enqueue(opType, path); err != nil {
		slog.Error("failed to enqueue deferred operation", "op", opType, "path", path, "error", err)
	}
}
