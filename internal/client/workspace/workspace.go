package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/shaoyun/cherrynote/internal/utils"
)

const (
	notesDir    = "notes"
	logsDir     = "logs"
	metadataDir = ".data"
	cacheFile   = "cache.db"
	lockFile    = "cherrynote.lock"
	pathSep     = "/"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the on-disk layout of a note library. The notes directory
// mirrors the remote bucket; everything else lives under .data.
type Workspace struct {
	Root        string
	NotesDir    string
	MetadataDir string
	LogsDir     string
	CachePath   string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metadata := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:        root,
		NotesDir:    filepath.Join(root, notesDir),
		MetadataDir: metadata,
		LogsDir:     filepath.Join(root, logsDir),
		CachePath:   filepath.Join(metadata, cacheFile),
		flock:       flock.New(filepath.Join(metadata, lockFile)),
	}, nil
}

// Lock takes the workspace file lock so other cherrynote instances cannot
// open the same library.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates the directory layout.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	dirs := []string{w.NotesDir, w.MetadataDir, w.LogsDir}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// NoteAbsPath returns the absolute path of a note given its sync path.
func (w *Workspace) NoteAbsPath(relPath string) string {
	return filepath.Join(w.NotesDir, filepath.FromSlash(relPath))
}

// NoteRelPath returns the sync path of a note from its absolute path.
func (w *Workspace) NoteRelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.NotesDir, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}

// NormPath normalizes a path by cleaning it, replacing backslashes with
// slashes, and trimming leading slashes.
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}

// IsValidPath reports whether a sync path stays inside the notes directory.
func IsValidPath(path string) bool {
	if path == "" {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return !strings.HasPrefix(clean, pathSep)
}
