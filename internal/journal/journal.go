// Package journal keeps a SQLite ledger of every OS resource a session
// acquires: backing files, loop devices, mapped devices, mountpoints, and
// tmpfs pools. If a process is killed while its devices are live, the
// resources leak by design; the journal is what makes that leak
// inspectable and reapable afterwards (`devfault cleanup`).
//
// The journal records history only. It never restores in-process state.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migration/*.sql
var migrationFiles embed.FS

// Resource kinds, in acquisition order. Cleanup releases them in reverse.
const (
	KindFile  = "file"
	KindLoop  = "loop"
	KindDM    = "dm"
	KindMount = "mount"
	KindTmpfs = "tmpfs"
)

// Resource is one journaled OS resource. Ref is a path for files, mounts
// and tmpfs pools, a device path for loop bindings, and a device-mapper
// name for mapped devices.
type Resource struct {
	ID        int64
	SessionID string
	Kind      string
	Ref       string
	CreatedAt time.Time
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if necessary) the journal database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema, err := migrationFiles.ReadFile("migration/001_initial.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := j.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordSession registers a new batch session.
func (j *Journal) RecordSession(ctx context.Context, sessionID string) error {
	query := `INSERT INTO sessions (id, started_at) VALUES (?, ?)`
	_, err := j.db.ExecContext(ctx, query, sessionID, time.Now().Unix())
	return err
}

// MarkSessionReleased records that a session's teardown completed.
func (j *Journal) MarkSessionReleased(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET released_at = ? WHERE id = ?`
	_, err := j.db.ExecContext(ctx, query, time.Now().Unix(), sessionID)
	return err
}

// RecordResource journals a freshly acquired resource.
func (j *Journal) RecordResource(ctx context.Context, sessionID, kind, ref string) error {
	query := `INSERT INTO resources (session_id, kind, ref, created_at) VALUES (?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query, sessionID, kind, ref, time.Now().Unix())
	return err
}

// MarkReleased records that a resource was torn down. The update is scoped
// to one session: loop device paths and mountpoints are recycled by the
// kernel, so the same ref can appear in an older leaked session that must
// stay visible to cleanup.
func (j *Journal) MarkReleased(ctx context.Context, sessionID, kind, ref string) error {
	query := `UPDATE resources SET released_at = ? WHERE session_id = ? AND kind = ? AND ref = ? AND released_at IS NULL`
	_, err := j.db.ExecContext(ctx, query, time.Now().Unix(), sessionID, kind, ref)
	return err
}

// ListLeaked returns every resource that was acquired but never marked
// released, oldest first.
func (j *Journal) ListLeaked(ctx context.Context) ([]*Resource, error) {
	query := `SELECT id, session_id, kind, ref, created_at FROM resources WHERE released_at IS NULL ORDER BY id ASC`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaked []*Resource
	for rows.Next() {
		var createdAt int64
		r := &Resource{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.Ref, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		leaked = append(leaked, r)
	}

	return leaked, rows.Err()
}
