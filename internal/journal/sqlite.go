package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the journal in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("empty sqlite journal path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if err := migrate(ctx, db, "sqlite3", "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO live_sessions (id, map_name, host, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID.String(), sess.MapName, sess.Host, sess.StartedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("starting session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE live_sessions SET ended_at = ? WHERE id = ?`, at.UnixMicro(), id.String())
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning journal tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO live_journal (session_id, kind, actor, text, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing journal insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Session.String(), string(e.Kind), e.Actor, e.Text, e.At.UnixMicro()); err != nil {
			return fmt.Errorf("appending %s entry: %w", e.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing journal tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context, session uuid.UUID) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, actor, text, at FROM live_journal WHERE session_id = ? ORDER BY id`, session.String())
	if err != nil {
		return nil, fmt.Errorf("querying journal of %s: %w", session, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Session: session}
		var kind string
		var at int64
		if err := rows.Scan(&kind, &e.Actor, &e.Text, &at); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.At = time.UnixMicro(at).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, map_name, host, started_at, ended_at FROM live_sessions
		 ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess    Session
			id      string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&id, &sess.MapName, &sess.Host, &started, &ended); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sess.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing session id %q: %w", id, err)
		}
		sess.StartedAt = time.UnixMicro(started).UTC()
		if ended.Valid {
			sess.EndedAt = time.UnixMicro(ended.Int64).UTC()
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}
