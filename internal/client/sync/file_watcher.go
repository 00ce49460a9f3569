package sync

import (
	"context"
	"log/slog"

	"github.com/rjeczalik/notify"
)

const watchEventBufferSize = 64

// FileWatcher surfaces filesystem events for the notes directory. It does no
// debouncing itself; the scheduler owns the debounce window.
type FileWatcher struct {
	watchDir string
	events   chan notify.EventInfo
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir: watchDir,
		events:   make(chan notify.EventInfo, watchEventBufferSize),
	}
}

// Start begins recursive watching. Events stop when ctx is cancelled.
func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	recursivePath := fw.watchDir + "/..."
	if err := notify.Watch(recursivePath, fw.events, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		fw.Stop()
	}()

	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stop")
	notify.Stop(fw.events)
}

func (fw *FileWatcher) Events() <-chan notify.EventInfo {
	return fw.events
}
