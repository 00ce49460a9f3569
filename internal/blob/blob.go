// Package blob abstracts the object store holding the canonical note tree.
// Notes are UTF-8 text only, so content crosses this boundary as strings.
package blob

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a remote object without its content.
type ObjectInfo struct {
	Path         string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Store is the transfer surface the sync engine talks to.
type Store interface {
	UploadFile(ctx context.Context, path, content string) error
	DownloadFile(ctx context.Context, path string) (string, error)
	DeleteFile(ctx context.Context, path string) error
	FileExists(ctx context.Context, path string) (bool, error)

	// ListFiles returns object paths under prefix.
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	// ListObjects is ListFiles plus per-object metadata.
	ListObjects(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	// Stat returns metadata for one object, ErrNotFound if absent.
	Stat(ctx context.Context, path string) (*ObjectInfo, error)

	// Ping is the lightweight connectivity probe.
	Ping(ctx context.Context) error
}
