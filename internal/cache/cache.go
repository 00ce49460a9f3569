// Package cache is the on-device mirror of the remote note tree. It keeps
// cached file content, per-file timestamps and a generic string key-value
// settings store, all in a single SQLite database.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shaoyun/cherrynote/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
    path      TEXT PRIMARY KEY,
    content   TEXT NOT NULL,
    cached_at TEXT NOT NULL -- RFC3339Nano
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_cached_at ON files(cached_at);
`

var (
	ErrNotCached  = errors.New("file not cached")
	ErrNoSetting  = errors.New("setting not found")
	ErrCacheOpen  = errors.New("cache already open")
	ErrCacheClose = errors.New("cache not open")
)

// CachedFile is the path + timestamp view used for change enumeration.
type CachedFile struct {
	Path     string
	CachedAt time.Time
}

type dbCachedFile struct {
	Path     string `db:"path"`
	Content  string `db:"content"`
	CachedAt string `db:"cached_at"`
}

type dbSetting struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Cache is the LocalCache implementation backed by SQLite.
type Cache struct {
	db     *sqlx.DB
	dbPath string
}

func New(dbPath string) *Cache {
	return &Cache{dbPath: dbPath}
}

func (c *Cache) Open() error {
	if c.db != nil {
		return ErrCacheOpen
	}

	conn, err := db.NewSqliteDb(db.WithPath(c.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open cache db: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("init cache schema: %w", err)
	}

	c.db = conn
	return nil
}

func (c *Cache) Close() error {
	if c.db == nil {
		return ErrCacheClose
	}
	if err := c.db.Close(); err != nil {
		return err
	}
	c.db = nil
	return nil
}

// CacheFile stores content with the current time as its cache timestamp.
func (c *Cache) CacheFile(path, content string) error {
	return c.CacheFileAt(path, content, time.Now())
}

// CacheFileAt stores content with an explicit timestamp. Downloads use this
// to record the remote modification time instead of the wall clock, so a
// freshly downloaded file does not look locally edited.
func (c *Cache) CacheFileAt(path, content string, at time.Time) error {
	row := dbCachedFile{
		Path:     path,
		Content:  content,
		CachedAt: at.UTC().Format(time.RFC3339Nano),
	}
	_, err := c.db.NamedExec(
		`INSERT OR REPLACE INTO files (path, content, cached_at) VALUES (:path, :content, :cached_at)`, row)
	if err != nil {
		return fmt.Errorf("cache file %s: %w", path, err)
	}
	return nil
}

func (c *Cache) GetCachedFile(path string) (string, error) {
	var content string
	err := c.db.Get(&content, `SELECT content FROM files WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotCached
		}
		return "", fmt.Errorf("get cached file %s: %w", path, err)
	}
	return content, nil
}

func (c *Cache) RemoveCachedFile(path string) error {
	_, err := c.db.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("remove cached file %s: %w", path, err)
	}
	return nil
}

func (c *Cache) IsCached(path string) (bool, error) {
	var n int
	if err := c.db.Get(&n, `SELECT COUNT(*) FROM files WHERE path = ?`, path); err != nil {
		return false, fmt.Errorf("check cached %s: %w", path, err)
	}
	return n > 0, nil
}

func (c *Cache) GetCacheTimestamp(path string) (time.Time, error) {
	var raw string
	err := c.db.Get(&raw, `SELECT cached_at FROM files WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotCached
		}
		return time.Time{}, fmt.Errorf("get cache timestamp %s: %w", path, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cache timestamp %s: %w", path, err)
	}
	return ts, nil
}

// ListFiles returns every cached path with its timestamp, ordered by path.
func (c *Cache) ListFiles() ([]*CachedFile, error) {
	var rows []dbCachedFile
	err := c.db.Select(&rows, `SELECT path, '' AS content, cached_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list cached files: %w", err)
	}

	files := make([]*CachedFile, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.CachedAt)
		if err != nil {
			// corrupt row, skip it rather than failing the listing
			slog.Warn("cache skipping corrupt timestamp", "path", row.Path, "value", row.CachedAt)
			continue
		}
		files = append(files, &CachedFile{Path: row.Path, CachedAt: ts})
	}
	return files, nil
}

func (c *Cache) CountFiles() (int, error) {
	var n int
	if err := c.db.Get(&n, `SELECT COUNT(*) FROM files`); err != nil {
		return 0, fmt.Errorf("count cached files: %w", err)
	}
	return n, nil
}

// SetSetting upserts a settings value. Last writer wins.
func (c *Cache) SetSetting(key, value string) error {
	_, err := c.db.NamedExec(
		`INSERT OR REPLACE INTO settings (key, value) VALUES (:key, :value)`,
		dbSetting{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (c *Cache) GetSetting(key string) (string, error) {
	var value string
	err := c.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoSetting
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (c *Cache) RemoveSetting(key string) error {
	_, err := c.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove setting %s: %w", key, err)
	}
	return nil
}

func (c *Cache) GetSettingKeys(prefix string) ([]string, error) {
	var keys []string
	// substr comparison instead of LIKE: keys contain underscores
	err := c.db.Select(&keys,
		`SELECT key FROM settings WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list setting keys %s: %w", prefix, err)
	}
	return keys, nil
}

func (c *Cache) GetSettingsWithPrefix(prefix string) (map[string]string, error) {
	var rows []dbSetting
	err := c.db.Select(&rows,
		`SELECT key, value FROM settings WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list settings %s: %w", prefix, err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

// Compact reclaims space after bulk deletes.
func (c *Cache) Compact() error {
	if _, err := c.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("compact cache: %w", err)
	}
	return nil
}
