package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/retry"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	retry retry.Policy
}

// Open creates or opens the history database at path. Use ":memory:" for an
// in-memory database.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, wrap(err, "create history directory").WithContext("path", path).Build()
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(err, "open history database").WithContext("path", path).Build()
	}
	// A second pooled connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, retry: retry.DefaultPolicy()}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(err, "initialize history schema").WithContext("path", path).Build()
	}
	return s, nil
}

func wrap(err error, msg string) *errors.ErrorBuilder {
	return errors.WrapError(err, errors.CategoryHistory, msg)
}

// isBusy reports whether err is SQLite lock contention from another process
// writing the same database.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return s.retry.Do(ctx, isBusy, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		ended INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		units INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		written INTEGER NOT NULL,
		unchanged INTEGER NOT NULL,
		placeholders INTEGER NOT NULL,
		issues INTEGER NOT NULL,
		manifest_hash TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	CREATE TABLE IF NOT EXISTS stage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		result TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stage_events_build ON stage_events(build_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordBuild implements Store.
func (s *SQLiteStore) RecordBuild(ctx context.Context, b Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.exec(ctx,
		`INSERT OR REPLACE INTO builds
		(id, started, ended, outcome, units, nodes, written, unchanged, placeholders, issues, manifest_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Start.UnixNano(), b.End.UnixNano(), b.Outcome, b.Units, b.Nodes,
		b.Written, b.Unchanged, b.Placeholders, b.Issues, b.ManifestHash,
	)
	if err != nil {
		return wrap(err, "insert build").WithContext("build_id", b.ID).Build()
	}
	return nil
}

// AppendEvent implements Store.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := s.exec(ctx,
		"INSERT INTO stage_events (build_id, stage, result, duration_ns, timestamp) VALUES (?, ?, ?, ?, ?)",
		e.BuildID, e.Stage, e.Result, int64(e.Duration), ts.UnixNano(),
	)
	if err != nil {
		return wrap(err, "insert stage event").WithContext("build_id", e.BuildID).Build()
	}
	return nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started, ended, outcome, units, nodes, written, unchanged, placeholders, issues, manifest_hash
		FROM builds ORDER BY started DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, wrap(err, "query builds").Build()
	}
	defer func() { _ = rows.Close() }()

	var out []Build
	for rows.Next() {
		var b Build
		var started, ended int64
		var hash sql.NullString
		if err := rows.Scan(&b.ID, &started, &ended, &b.Outcome, &b.Units, &b.Nodes,
			&b.Written, &b.Unchanged, &b.Placeholders, &b.Issues, &hash); err != nil {
			return nil, wrap(err, "scan build").Build()
		}
		b.Start = time.Unix(0, started)
		b.End = time.Unix(0, ended)
		b.ManifestHash = hash.String
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "iterate builds").Build()
	}
	return out, nil
}

// Events implements Store.
func (s *SQLiteStore) Events(ctx context.Context, buildID string) ([]StageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT build_id, stage, result, duration_ns, timestamp FROM stage_events WHERE build_id = ? ORDER BY id",
		buildID)
	if err != nil {
		return nil, wrap(err, "query stage events").WithContext("build_id", buildID).Build()
	}
	defer func() { _ = rows.Close() }()

	var out []StageEvent
	for rows.Next() {
		var e StageEvent
		var dur, ts int64
		if err := rows.Scan(&e.BuildID, &e.Stage, &e.Result, &dur, &ts); err != nil {
			return nil, wrap(err, "scan stage event").Build()
		}
		e.Duration = time.Duration(dur)
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "iterate stage events").Build()
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
