// Package sqlite provides a durable SessionStore backed by SQLite via the
// pure-Go modernc.org/sqlite driver. App, user and session scopes survive
// restarts; temp-scoped state is never written.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentkit/core"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS app_states (
  app_name TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (app_name, key)
);

CREATE TABLE IF NOT EXISTS user_states (
  app_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (app_name, user_id, key)
);

CREATE TABLE IF NOT EXISTS sessions (
  app_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  id TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (app_name, user_id, id)
);

CREATE TABLE IF NOT EXISTS session_states (
  app_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (app_name, user_id, session_id, key)
);

CREATE TABLE IF NOT EXISTS events (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL,
  app_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(app_name, user_id, session_id, seq);
`

// Open opens (creating if necessary) a SQLite database at path, applies the
// WAL pragmas and runs migrations.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema statements idempotently.
func Migrate(db *sql.DB) error {
	statements := strings.Split(schemaSQL, ";")
	for _, raw := range statements {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement=%q)", err, stmt)
		}
	}
	return nil
}

// Store implements core.SessionStore on a SQLite database. Every AppendEvent
// commit runs in one transaction, so a crash never leaves a session with an
// applied delta but no event (or vice versa).
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened database (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create allocates a new session row and routes initialState to the scope
// partitions in one transaction.
func (s *Store) Create(ctx context.Context, appName, userID, sessionID string, initialState map[string]any) (*core.Session, error) {
	if err := core.ValidateStateDelta(initialState); err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		appName, userID, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists > 0 {
		return nil, core.ErrSessionExists
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		appName, userID, sessionID, now, now); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	for k, v := range initialState {
		if err := applyScopedTx(ctx, tx, appName, userID, sessionID, k, v, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	return s.Get(ctx, appName, userID, sessionID)
}

// Get loads the merged session view or returns core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, appName, userID, sessionID string) (*core.Session, error) {
	var updatedAtStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		appName, userID, sessionID).Scan(&updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess := core.NewSession(appName, userID, sessionID)
	sess.LastUpdateTime, _ = time.Parse(time.RFC3339Nano, updatedAtStr)

	if err := s.loadStates(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// List returns the session ids existing for (appName, userID).
func (s *Store) List(ctx context.Context, appName, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE app_name = ? AND user_id = ? ORDER BY created_at`,
		appName, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a session, its events and its session-scoped state. App and
// user scoped state survive.
func (s *Store) Delete(ctx context.Context, appName, userID, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		appName, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrSessionNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_states WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		appName, userID, sessionID); err != nil {
		return fmt.Errorf("delete session states: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		appName, userID, sessionID); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}

	return tx.Commit()
}

// AppendEvent validates and commits an event atomically: state delta routed
// to scope partitions, event appended to the log, session timestamp bumped.
// Partial events are validated but never committed.
func (s *Store) AppendEvent(ctx context.Context, sess *core.Session, ev core.Event) (*core.Session, error) {
	if err := core.ValidateStateDelta(ev.Actions.StateDelta); err != nil {
		return nil, err
	}
	if ev.IsPartial() {
		return sess, nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		sess.AppName, sess.UserID, sess.ID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return nil, core.ErrSessionNotFound
	}

	for k, v := range ev.Actions.StateDelta {
		if err := applyScopedTx(ctx, tx, sess.AppName, sess.UserID, sess.ID, k, v, now); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, app_name, user_id, session_id, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, sess.AppName, sess.UserID, sess.ID, string(payload), now); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`,
		now, sess.AppName, sess.UserID, sess.ID); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	sess.ApplyCommittedDelta(ev.Actions.StateDelta)
	sess.AppendCommittedEvent(ev)

	return sess, nil
}

// applyScopedTx routes one already-validated key/value to its table within
// the transaction. Tombstones delete; temp keys are skipped.
func applyScopedTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID, key string, value any, now string) error {
	scope, rest, _ := core.SplitScopedKey(key)
	if scope == core.StateScopeTemp {
		return nil
	}

	if core.IsTombstone(value) {
		var err error
		switch scope {
		case core.StateScopeApp:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM app_states WHERE app_name = ? AND key = ?`, appName, rest)
		case core.StateScopeUser:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM user_states WHERE app_name = ? AND user_id = ? AND key = ?`, appName, userID, rest)
		case core.StateScopeSession:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM session_states WHERE app_name = ? AND user_id = ? AND session_id = ? AND key = ?`,
				appName, userID, sessionID, rest)
		}
		if err != nil {
			return fmt.Errorf("delete state %s: %w", key, err)
		}
		return nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}

	switch scope {
	case core.StateScopeApp:
		_, err = tx.ExecContext(ctx, `INSERT INTO app_states (app_name, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(app_name, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			appName, rest, string(encoded), now)
	case core.StateScopeUser:
		_, err = tx.ExecContext(ctx, `INSERT INTO user_states (app_name, user_id, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(app_name, user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			appName, userID, rest, string(encoded), now)
	case core.StateScopeSession:
		_, err = tx.ExecContext(ctx, `INSERT INTO session_states (app_name, user_id, session_id, key, value, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(app_name, user_id, session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			appName, userID, sessionID, rest, string(encoded), now)
	}
	if err != nil {
		return fmt.Errorf("upsert state %s: %w", key, err)
	}
	return nil
}

// loadStates fills the merged state view: app and user keys keep their
// prefix, session keys are bare.
func (s *Store) loadStates(ctx context.Context, sess *core.Session) error {
	load := func(query string, prefix string, args ...any) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("load states: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var key, encoded string
			if err := rows.Scan(&key, &encoded); err != nil {
				return fmt.Errorf("scan state: %w", err)
			}
			var value any
			if err := json.Unmarshal([]byte(encoded), &value); err != nil {
				return fmt.Errorf("decode state %s: %w", key, err)
			}
			sess.State[prefix+key] = value
		}
		return rows.Err()
	}

	if err := load(`SELECT key, value FROM app_states WHERE app_name = ?`,
		core.StatePrefixApp, sess.AppName); err != nil {
		return err
	}
	if err := load(`SELECT key, value FROM user_states WHERE app_name = ? AND user_id = ?`,
		core.StatePrefixUser, sess.AppName, sess.UserID); err != nil {
		return err
	}
	return load(`SELECT key, value FROM session_states WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		"", sess.AppName, sess.UserID, sess.ID)
}

// loadEvents restores the committed event log in commit order.
func (s *Store) loadEvents(ctx context.Context, sess *core.Session) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE app_name = ? AND user_id = ? AND session_id = ? ORDER BY seq`,
		sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}
	return rows.Err()
}
