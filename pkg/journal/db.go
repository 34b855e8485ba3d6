// Package journal keeps a sqlite record of viewer sessions and the builds
// done in them.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kraitsura/refnet/pkg/model"
)

// DB handles journal persistence
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the journal database at the given path
func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	jdb := &DB{db: db}
	if err := jdb.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return jdb, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS viewer_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL,
		root_id INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		builds INTEGER DEFAULT 0,
		max_visited INTEGER DEFAULT 0,
		total_failed INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_address ON viewer_sessions(address);

	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES viewer_sessions(id),
		root_id INTEGER NOT NULL,
		trigger TEXT NOT NULL,
		visited INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		truncated BOOLEAN NOT NULL,
		remote_calls INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_session ON builds(session_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// StartSession creates a new viewer session for the given focus user
func (d *DB) StartSession(root model.NodeID, address string) (*model.ViewerSession, error) {
	now := time.Now()
	key := uuid.NewString()
	result, err := d.db.Exec(`
		INSERT INTO viewer_sessions (key, address, root_id, started_at)
		VALUES (?, ?, ?, ?)
	`, key, address, int64(root), now)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &model.ViewerSession{
		ID:        id,
		Key:       key,
		Address:   address,
		RootID:    root,
		StartedAt: now,
	}, nil
}

// RecordBuild inserts b and folds it into its session's counters. The
// session row is updated in the same transaction.
func (d *DB) RecordBuild(b *model.BuildRecord) error {
	if !model.IsValidTrigger(b.Trigger) {
		return fmt.Errorf("record build: invalid trigger %q", b.Trigger)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO builds (session_id, root_id, trigger, visited, failed, depth, truncated, remote_calls, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.SessionID, int64(b.RootID), b.Trigger, b.Visited, b.Failed, b.Depth, b.Truncated, b.RemoteCalls, int64(b.Duration), b.CreatedAt)
	if err != nil {
		return err
	}

	res, err := tx.Exec(`
		UPDATE viewer_sessions
		SET builds = builds + 1, max_visited = MAX(max_visited, ?), total_failed = total_failed + ?
		WHERE id = ?
	`, b.Visited, b.Failed, b.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record build: session %d not found", b.SessionID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.ID = id
	return nil
}

// CompleteSession marks a session as complete
func (d *DB) CompleteSession(session *model.ViewerSession) error {
	now := time.Now()
	session.CompletedAt = &now
	_, err := d.db.Exec(`
		UPDATE viewer_sessions
		SET completed_at = ?
		WHERE id = ?
	`, now, session.ID)
	return err
}

// GetSession retrieves a session by ID
func (d *DB) GetSession(id int64) (*model.ViewerSession, error) {
	row := d.db.QueryRow(`
		SELECT id, key, address, root_id, started_at, completed_at, builds, max_visited, total_failed
		FROM viewer_sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// RecentSessions returns up to limit sessions, newest first
func (d *DB) RecentSessions(limit int) ([]model.ViewerSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT id, key, address, root_id, started_at, completed_at, builds, max_visited, total_failed
		FROM viewer_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ViewerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// BuildsForSession returns the builds of a session in the order they ran
func (d *DB) BuildsForSession(sessionID int64) ([]model.BuildRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, session_id, root_id, trigger, visited, failed, depth, truncated, remote_calls, duration_ns, created_at
		FROM builds
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []model.BuildRecord
	for rows.Next() {
		var b model.BuildRecord
		var root, duration int64
		if err := rows.Scan(&b.ID, &b.SessionID, &root, &b.Trigger, &b.Visited, &b.Failed, &b.Depth, &b.Truncated, &b.RemoteCalls, &duration, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.RootID = model.NodeID(root)
		b.Duration = time.Duration(duration)
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ViewerSession, error) {
	var s model.ViewerSession
	var root int64
	var completedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.Key, &s.Address, &root, &s.StartedAt, &completedAt, &s.Builds, &s.MaxVisited, &s.TotalFailed); err != nil {
		return nil, err
	}
	s.RootID = model.NodeID(root)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}
