package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rjeczalik/notify"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/cache"
	"github.com/shaoyun/cherrynote/internal/client/autosync"
	"github.com/shaoyun/cherrynote/internal/client/config"
	"github.com/shaoyun/cherrynote/internal/client/sync"
	"github.com/shaoyun/cherrynote/internal/client/workspace"
	"github.com/shaoyun/cherrynote/internal/queue"
	"github.com/shaoyun/cherrynote/internal/utils"
)

// Client wires the note library on disk to the sync engine. The notes
// directory is the editing surface, the SQLite cache mirrors it, and the
// engine reconciles the cache with the remote bucket.
type Client struct {
	config    *config.Config
	ws        *workspace.Workspace
	cache     *cache.Cache
	queue     *queue.SyncQueue
	remote    blob.Store
	engine    *sync.SyncEngine
	scheduler *autosync.Scheduler
	watcher   *sync.FileWatcher
	ignore    *sync.IgnoreList
}

func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	remote, err := blob.NewS3StoreWithConfig(&cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote store: %w", err)
	}

	c := cache.New(ws.CachePath)
	q := queue.New(filepath.Join(ws.MetadataDir, "queue.db"))
	engine := sync.NewSyncEngine(remote, c, q)
	scheduler := autosync.NewScheduler(engine, c)
	ignore := sync.NewIgnoreList(ws.NotesDir)
	scheduler.SetIgnoreList(ignore)

	return &Client{
		config:    cfg,
		ws:        ws,
		cache:     c,
		queue:     q,
		remote:    remote,
		engine:    engine,
		scheduler: scheduler,
		watcher:   sync.NewFileWatcher(ws.NotesDir),
		ignore:    ignore,
	}, nil
}

func (c *Client) Engine() *sync.SyncEngine        { return c.engine }
func (c *Client) Scheduler() *autosync.Scheduler  { return c.scheduler }
func (c *Client) Workspace() *workspace.Workspace { return c.ws }
func (c *Client) Cache() *cache.Cache             { return c.cache }

// Open sets up the workspace and storage without starting any background
// work. One-shot commands use this.
func (c *Client) Open() error {
	if err := c.ws.Setup(); err != nil {
		return fmt.Errorf("failed to setup workspace: %w", err)
	}
	if err := c.cache.Open(); err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	if err := c.queue.Open(); err != nil {
		return fmt.Errorf("failed to open sync queue: %w", err)
	}
	return c.importNotes()
}

// Close releases storage and the workspace lock.
func (c *Client) Close() error {
	c.engine.Dispose()
	if err := c.queue.Close(); err != nil {
		slog.Error("failed to close sync queue", "error", err)
	}
	if err := c.cache.Close(); err != nil {
		slog.Error("failed to close cache", "error", err)
	}
	return c.ws.Unlock()
}

// Start runs the client until the context is cancelled: watcher, auto-sync
// scheduler, and an exporter that writes downloaded notes back to disk.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("cherrynote client start", "datadir", c.config.DataDir, "bucket", c.config.S3.Bucket)

	if err := c.Open(); err != nil {
		return err
	}

	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	go c.consumeWatcher(ctx)
	go c.consumeEvents(ctx)

	if c.config.AutoSync {
		if err := c.scheduler.Enable(ctx); err != nil {
			return fmt.Errorf("failed to enable auto-sync: %w", err)
		}
	}

	<-ctx.Done()
	slog.Info("received interrupt signal, stopping client")

	c.scheduler.Dispose()
	c.watcher.Stop()
	slog.Info("cherrynote client stop")
	return c.Close()
}

// RunOnce performs a single full sync and exports the results to disk.
// The client must already be open.
func (c *Client) RunOnce(ctx context.Context) (*sync.SyncResult, error) {
	res, err := c.engine.FullSync(ctx)
	if err != nil {
		return nil, err
	}
	c.exportNotes(res.SyncedFiles.ToSlice())
	return res, nil
}

// importNotes walks the notes directory and refreshes the cache mirror for
// files whose content changed while the client was not running.
func (c *Client) importNotes() error {
	if !utils.DirExists(c.ws.NotesDir) {
		return nil
	}
	return filepath.WalkDir(c.ws.NotesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := c.ws.NoteRelPath(path)
		if err != nil {
			return err
		}
		if c.ignore.ShouldIgnore(relPath) {
			return nil
		}
		return c.importNote(relPath, path)
	})
}

func (c *Client) importNote(relPath, absPath string) error {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}
	content := string(data)

	// skip unchanged files so their cache timestamps stay put
	cached, err := c.cache.GetCachedFile(relPath)
	if err == nil && cached == content {
		return nil
	}
	slog.Debug("import note", "path", relPath)
	return c.cache.CacheFile(relPath, content)
}

// exportNotes materializes cached content onto disk for the given paths.
func (c *Client) exportNotes(paths []string) {
	for _, relPath := range paths {
		content, err := c.cache.GetCachedFile(relPath)
		if err != nil {
			continue
		}
		absPath := c.ws.NoteAbsPath(relPath)
		if data, err := os.ReadFile(absPath); err == nil && string(data) == content {
			continue
		}
		if err := writeNote(absPath, content); err != nil {
			slog.Error("failed to export note", "path", relPath, "error", err)
		}
	}
}

// consumeWatcher bridges filesystem events into the cache mirror and the
// auto-sync scheduler.
func (c *Client) consumeWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.handleFsEvent(ev)
		}
	}
}

func (c *Client) handleFsEvent(ev notify.EventInfo) {
	relPath, err := c.ws.NoteRelPath(ev.Path())
	if err != nil || strings.HasPrefix(relPath, ".data/") {
		return
	}
	if c.ignore.ShouldIgnore(relPath) {
		return
	}

	switch ev.Event() {
	case notify.Remove, notify.Rename:
		if utils.FileExists(ev.Path()) {
			// rename target landed here, treat as a write
			break
		}
		if err := c.cache.RemoveCachedFile(relPath); err != nil {
			slog.Error("failed to evict note", "path", relPath, "error", err)
			return
		}
		if _, err := c.queue.Enqueue(queue.OpDelete, relPath); err != nil {
			slog.Error("failed to queue delete", "path", relPath, "error", err)
		}
		c.scheduler.OnFileDeleted(relPath)
		return
	}

	fi, err := os.Stat(ev.Path())
	if err != nil || fi.IsDir() {
		return
	}
	if err := c.importNote(relPath, ev.Path()); err != nil {
		slog.Error("failed to cache note", "path", relPath, "error", err)
		return
	}
	c.scheduler.OnFileModified(relPath)
}

// consumeEvents exports synced files to disk after every scheduler run.
func (c *Client) consumeEvents(ctx context.Context) {
	events := c.scheduler.EventStream().Subscribe()
	defer c.scheduler.EventStream().Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Result != nil {
				c.exportNotes(ev.Result.SyncedFiles.ToSlice())
			}
		}
	}
}

func writeNote(absPath, content string) error {
	if err := utils.EnsureParent(absPath); err != nil {
		return err
	}
	return os.WriteFile(absPath, []byte(content), 0644)
}
