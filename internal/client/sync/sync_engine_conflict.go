package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/queue"
)

// detectUploadConflict runs before each upload. It reports inSync when both
// sides already hold identical bytes, and returns a recorded FileConflict
// when both sides changed after the watermark.
func (se *SyncEngine) detectUploadConflict(ctx context.Context, path, localContent string, localTS time.Time) (conflict *FileConflict, inSync bool, err error) {
	info, err := se.remote.Stat(ctx, path)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if info.ETag == contentETag(localContent) {
		return nil, true, nil
	}

	w, hasW := se.Watermark()
	remoteNewer := !hasW || info.LastModified.After(w)
	if !remoteNewer {
		// remote unchanged since last sync, safe to overwrite
		return nil, false, nil
	}

	fc, err := se.recordConflict(ctx, path, localContent, localTS, info)
	if err != nil {
		return nil, false, err
	}
	return fc, false, nil
}

// recordConflict downloads the remote body and upserts the conflict so it
// survives until explicitly resolved.
func (se *SyncEngine) recordConflict(ctx context.Context, path, localContent string, localTS time.Time, info *blob.ObjectInfo) (*FileConflict, error) {
	remoteContent, err := se.remote.DownloadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch remote body: %w", err)
	}

	fc := &FileConflict{
		FilePath:       path,
		LocalModified:  localTS,
		RemoteModified: info.LastModified,
		LocalContent:   localContent,
		RemoteContent:  remoteContent,
		LocalETag:      contentETag(localContent),
		RemoteETag:     info.ETag,
		DetectedAt:     time.Now().UTC(),
	}
	if err := se.conflicts.Store(fc); err != nil {
		return nil, err
	}
	slog.Warn("conflict detected", "path", path, "local", localTS, "remote", info.LastModified)
	return fc, nil
}

// HandleConflict applies a resolution and removes the stored conflict.
// Resolving a path with no stored conflict returns ErrNoConflict.
func (se *SyncEngine) HandleConflict(ctx context.Context, path string, resolution ConflictResolution) error {
	conflict, err := se.conflicts.Get(path)
	if err != nil {
		return err
	}

	writes, err := ResolutionWrites(conflict, resolution)
	if err != nil {
		return err
	}

	for _, write := range writes {
		switch write.Target {
		case WriteRemote:
			if err := se.remote.UploadFile(ctx, write.Path, write.Content); err != nil {
				return fmt.Errorf("apply resolution %s to %s: %w", resolution, write.Path, err)
			}
		case WriteCache:
			if err := se.cache.CacheFile(write.Path, write.Content); err != nil {
				return fmt.Errorf("apply resolution %s to %s: %w", resolution, write.Path, err)
			}
		}
	}

	slog.Info("conflict resolved", "path", path, "resolution", resolution)
	return se.conflicts.Remove(path)
}

func (se *SyncEngine) GetConflicts() ([]*FileConflict, error) {
	return se.conflicts.ListAll()
}

func (se *SyncEngine) ClearConflicts() error {
	return se.conflicts.Clear()
}

// syncFileLocked is the single-path reconciliation shared by SyncFile and
// SyncFiles. Callers hold the sync lock. In batch mode transfer failures
// are deferred to the queue instead of failing the result.
func (se *SyncEngine) syncFileLocked(ctx context.Context, path string, res *SyncResult, batch bool) {
	w, hasW := se.Watermark()

	localTS, err := se.cache.GetCacheTimestamp(path)
	hasLocal := err == nil

	info, err := se.remote.Stat(ctx, path)
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		se.fileFailed(path, fmt.Errorf("stat remote: %w", err), res, batch, "")
		return
	}
	hasRemote := err == nil

	// equal timestamps are "not newer": strictly after only
	localNewer := hasLocal && (!hasW || localTS.After(w))
	remoteNewer := hasRemote && (!hasW || info.LastModified.After(w))

	switch {
	case localNewer && remoteNewer:
		localContent, err := se.cache.GetCachedFile(path)
		if err != nil {
			se.fileFailed(path, err, res, batch, "")
			return
		}
		if contentETag(localContent) == info.ETag {
			return
		}
		conflict, err := se.recordConflict(ctx, path, localContent, localTS, info)
		if err != nil {
			se.fileFailed(path, err, res, batch, "")
			return
		}
		res.Conflicts = append(res.Conflicts, conflict)

	case localNewer:
		localContent, err := se.cache.GetCachedFile(path)
		if err != nil {
			se.fileFailed(path, err, res, batch, "")
			return
		}
		if err := se.remote.UploadFile(ctx, path, localContent); err != nil {
			se.fileFailed(path, err, res, batch, queue.OpUpload)
			return
		}
		res.UploadedCount++
		res.SyncedFiles.Add(path)

	case remoteNewer:
		content, err := se.remote.DownloadFile(ctx, path)
		if err != nil {
			se.fileFailed(path, err, res, batch, queue.OpDownload)
			return
		}
		if err := se.cache.CacheFileAt(path, content, info.LastModified); err != nil {
			se.fileFailed(path, err, res, batch, "")
			return
		}
		res.DownloadedCount++
		res.SyncedFiles.Add(path)

	default:
		// neither side newer than the watermark
	}
}

func (se *SyncEngine) fileFailed(path string, err error, res *SyncResult, batch bool, op queue.OpType) {
	if !batch {
		res.fail(fmt.Errorf("sync %s: %w", path, err))
		return
	}
	slog.Warn("batch sync skip", "path", path, "error", err)
	if op != "" {
		se.deferOp(op, path)
	}
}
