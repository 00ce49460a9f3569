// Package queue is the offline operation log. Transfers that fail inside a
// sync batch are recorded here and retried on a later full sync.
package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shaoyun/cherrynote/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
    id         TEXT PRIMARY KEY,
    op_type    TEXT NOT NULL,
    path       TEXT NOT NULL,
    status     TEXT NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL -- RFC3339Nano
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status);
`

type OpType string

const (
	OpUpload   OpType = "upload"
	OpDownload OpType = "download"
	OpDelete   OpType = "delete"
)

type OpStatus string

const (
	StatusPending   OpStatus = "pending"
	StatusCompleted OpStatus = "completed"
)

var ErrQueueClosed = errors.New("sync queue not open")

// Operation is a single deferred sync action.
type Operation struct {
	ID        string    `db:"id"`
	Type      OpType    `db:"op_type"`
	Path      string    `db:"path"`
	Status    OpStatus  `db:"status"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"-"`
}

type dbOperation struct {
	ID        string `db:"id"`
	Type      string `db:"op_type"`
	Path      string `db:"path"`
	Status    string `db:"status"`
	Attempts  int    `db:"attempts"`
	CreatedAt string `db:"created_at"`
}

// SyncQueue is a durable FIFO of deferred operations backed by SQLite.
type SyncQueue struct {
	db     *sqlx.DB
	dbPath string
}

func New(dbPath string) *SyncQueue {
	return &SyncQueue{dbPath: dbPath}
}

func (q *SyncQueue) Open() error {
	conn, err := db.NewSqliteDb(db.WithPath(q.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open queue db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("init queue schema: %w", err)
	}
	q.db = conn
	return nil
}

func (q *SyncQueue) Close() error {
	if q.db == nil {
		return ErrQueueClosed
	}
	err := q.db.Close()
	q.db = nil
	return err
}

// Enqueue records a deferred operation. The same path may appear once per
// operation type; re-enqueueing replaces the earlier pending entry.
func (q *SyncQueue) Enqueue(opType OpType, path string) (*Operation, error) {
	op := dbOperation{
		ID:        uuid.NewString(),
		Type:      string(opType),
		Path:      path,
		Status:    string(StatusPending),
		Attempts:  0,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	tx, err := q.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", opType, path, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM sync_queue WHERE op_type = ? AND path = ? AND status = ?`,
		op.Type, op.Path, string(StatusPending)); err != nil {
		return nil, fmt.Errorf("enqueue dedupe %s %s: %w", opType, path, err)
	}
	if _, err := tx.NamedExec(
		`INSERT INTO sync_queue (id, op_type, path, status, attempts, created_at)
		 VALUES (:id, :op_type, :path, :status, :attempts, :created_at)`, op); err != nil {
		return nil, fmt.Errorf("enqueue insert %s %s: %w", opType, path, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("enqueue commit: %w", err)
	}

	return fromDbOperation(op), nil
}

// GetPendingOperations returns pending operations oldest-first.
func (q *SyncQueue) GetPendingOperations() ([]*Operation, error) {
	var rows []dbOperation
	err := q.db.Select(&rows,
		`SELECT id, op_type, path, status, attempts, created_at FROM sync_queue
		 WHERE status = ? ORDER BY created_at`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}

	ops := make([]*Operation, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, fromDbOperation(row))
	}
	return ops, nil
}

func (q *SyncQueue) PendingCount() (int, error) {
	var n int
	err := q.db.Get(&n, `SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(StatusPending))
	if err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return n, nil
}

// MarkCompleted flips an operation to completed. Completed rows are kept
// until CleanupCompletedOperations runs.
func (q *SyncQueue) MarkCompleted(id string) error {
	res, err := q.db.Exec(
		`UPDATE sync_queue SET status = ? WHERE id = ?`, string(StatusCompleted), id)
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q *SyncQueue) IncrementAttempts(id string) error {
	_, err := q.db.Exec(`UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment attempts %s: %w", id, err)
	}
	return nil
}

func (q *SyncQueue) CleanupCompletedOperations() error {
	_, err := q.db.Exec(`DELETE FROM sync_queue WHERE status = ?`, string(StatusCompleted))
	if err != nil {
		return fmt.Errorf("cleanup completed operations: %w", err)
	}
	return nil
}

func (q *SyncQueue) ClearQueue() error {
	_, err := q.db.Exec(`DELETE FROM sync_queue`)
	if err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func fromDbOperation(row dbOperation) *Operation {
	ts, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	return &Operation{
		ID:        row.ID,
		Type:      OpType(row.Type),
		Path:      row.Path,
		Status:    OpStatus(row.Status),
		Attempts:  row.Attempts,
		CreatedAt: ts,
	}
}
