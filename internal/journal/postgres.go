package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps the journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// goose работает через *sql.DB поверх того же конфига пула
	sqlDB, err := sql.Open("pgx", stdlib.RegisterConnConfig(pool.Config().ConnConfig))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	if err := migrate(ctx, sqlDB, "postgres", "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying pgx pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) StartSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO live_sessions (id, map_name, host, started_at) VALUES ($1::uuid, $2, $3, $4)`,
		sess.ID.String(), sess.MapName, sess.Host, sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("starting session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) EndSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE live_sessions SET ended_at = $1 WHERE id = $2::uuid`, at, id.String())
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	return nil
}

// Append sends the entries as one batch inside a transaction.
func (s *PostgresStore) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning journal tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO live_journal (session_id, kind, actor, text, at) VALUES ($1::uuid, $2, $3, $4, $5)`,
			e.Session.String(), string(e.Kind), e.Actor, e.Text, e.At,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("appending journal entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing journal tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Entries(ctx context.Context, session uuid.UUID) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, actor, text, at FROM live_journal WHERE session_id = $1::uuid ORDER BY id`,
		session.String())
	if err != nil {
		return nil, fmt.Errorf("querying journal of %s: %w", session, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Session: session}
		var kind string
		if err := rows.Scan(&kind, &e.Actor, &e.Text, &e.At); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.At = e.At.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, map_name, host, started_at, ended_at FROM live_sessions
		 ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess  Session
			id    string
			ended *time.Time
		)
		if err := rows.Scan(&id, &sess.MapName, &sess.Host, &sess.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sess.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing session id %q: %w", id, err)
		}
		sess.StartedAt = sess.StartedAt.UTC()
		if ended != nil {
			sess.EndedAt = ended.UTC()
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}
