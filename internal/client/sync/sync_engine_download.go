package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/queue"
)

// syncFromRemote mirrors syncToRemote for the download direction. Paths with
// a stored conflict are left alone until the conflict is resolved.
func (se *SyncEngine) syncFromRemote(ctx context.Context) *SyncResult {
	res := NewSyncResult()

	objects, err := se.remoteChanges(ctx)
	if err != nil {
		return res.fail(fmt.Errorf("enumerate remote changes: %w", err))
	}

	w, hasW := se.Watermark()
	for _, obj := range objects {
		if ctx.Err() != nil {
			return res.fail(ctx.Err())
		}

		localTS, err := se.cache.GetCacheTimestamp(obj.Path)
		hasLocal := err == nil
		if err != nil && !errors.Is(err, cache.ErrNotCached) {
			slog.Warn("download skip, cache read failed", "path", obj.Path, "error", err)
			continue
		}

		if hasLocal {
			localContent, err := se.cache.GetCachedFile(obj.Path)
			if err != nil {
				slog.Warn("download skip, cache read failed", "path", obj.Path, "error", err)
				continue
			}
			if contentETag(localContent) == obj.ETag {
				// both sides already hold the same bytes
				continue
			}

			localNewer := !hasW || localTS.After(w)
			if localNewer {
				// modified on both sides since the watermark
				conflict, err := se.recordConflict(ctx, obj.Path, localContent, localTS, obj)
				if err != nil {
					slog.Warn("conflict record failed", "path", obj.Path, "error", err)
					continue
				}
				res.Conflicts = append(res.Conflicts, conflict)
				continue
			}
		}

		content, err := se.remote.DownloadFile(ctx, obj.Path)
		if err != nil {
			slog.Warn("download deferred", "path", obj.Path, "error", err)
			se.deferOp(queue.OpDownload, obj.Path)
			continue
		}
		if err := se.cache.CacheFileAt(obj.Path, content, obj.LastModified); err != nil {
			slog.Warn("download skip, cache write failed", "path", obj.Path, "error", err)
			continue
		}
		res.DownloadedCount++
		res.SyncedFiles.Add(obj.Path)
		slog.Debug("downloaded", "path", obj.Path, "size", humanize.Bytes(uint64(len(content))))
	}

	return res
}

// DownloadFile transfers one remote file into the cache, stamped with the
// remote modification time so it does not read as a local edit.
func (se *SyncEngine) DownloadFile(ctx context.Context, path string) error {
	if se.paused.Load() {
		return ErrSyncPaused
	}
	return se.downloadToCache(ctx, path)
}

// downloadToCache skips the paused check so a pass already in flight can
// replay queued downloads even if a pause arrived mid-sync.
func (se *SyncEngine) downloadToCache(ctx context.Context, path string) error {
	info, err := se.remote.Stat(ctx, path)
	if err != nil {
		return err
	}
	content, err := se.remote.DownloadFile(ctx, path)
	if err != nil {
		return err
	}
	return se.cache.CacheFileAt(path, content, info.LastModified)
}

// DeleteFile removes a file from the remote store and the local cache.
func (se *SyncEngine) DeleteFile(ctx context.Context, path string) error {
	if se.paused.Load() {
		return ErrSyncPaused
	}
	if err := se.remote.DeleteFile(ctx, path); err != nil {
		return err
	}
	return se.cache.RemoveCachedFile(path)
}

// GetRemoteChanges enumerates paths whose remote timestamp is after the
// watermark, or all remote paths when no watermark exists yet.
func (se *SyncEngine) GetRemoteChanges(ctx context.Context) ([]string, error) {
	objects, err := se.remoteChanges(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(objects))
	for _, obj := range objects {
		paths = append(paths, obj.Path)
	}
	return paths, nil
}

func (se *SyncEngine) remoteChanges(ctx context.Context) ([]*blob.ObjectInfo, error) {
	objects, err := se.remote.ListObjects(ctx, "")
	if err != nil {
		return nil, err
	}

	w, hasW := se.Watermark()
	if !hasW {
		return objects, nil
	}

	changed := make([]*blob.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.LastModified.After(w) {
			changed = append(changed, obj)
		}
	}
	return changed, nil
}

// retryPending replays the offline operation log at the tail of a full sync.
func (se *SyncEngine) retryPending(ctx context.Context, res *SyncResult) {
	ops, err := se.queue.GetPendingOperations()
	if err != nil {
		slog.Error("failed to read pending operations", "error", err)
		return
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			return
		}

		var opErr error
		switch op.Type {
		case queue.OpUpload:
			content, err := se.cache.GetCachedFile(op.Path)
			if isMissing(err) {
				// file vanished locally, nothing left to upload
				opErr = nil
				break
			}
			if err != nil {
				opErr = err
				break
			}
			if opErr = se.remote.UploadFile(ctx, op.Path, content); opErr == nil {
				res.UploadedCount++
				res.SyncedFiles.Add(op.Path)
			}

		case queue.OpDownload:
			opErr = se.downloadToCache(ctx, op.Path)
			if isMissing(opErr) {
				opErr = nil
				break
			}
			if opErr == nil {
				res.DownloadedCount++
				res.SyncedFiles.Add(op.Path)
			}

		case queue.OpDelete:
			if opErr = se.remote.DeleteFile(ctx, op.Path); opErr == nil {
				res.DeletedCount++
			}

		default:
			slog.Warn("unknown queued operation type", "op", op.Type, "path", op.Path)
			opErr = nil
		}

		if opErr != nil {
			slog.Warn("retry failed", "op", op.Type, "path", op.Path, "attempts", op.Attempts+1, "error", opErr)
			if err := se.queue.IncrementAttempts(op.ID); err != nil {
				slog.Error("failed to bump attempts", "id", op.ID, "error", err)
			}
			continue
		}
		if err := se.queue.MarkCompleted(op.ID); err != nil {
			slog.Error("failed to complete operation", "id", op.ID, "error", err)
		}
	}
}
