// Package journal persists what happens in a hosted live session: who joined
// and left, who was kicked, chat lines and log pane messages.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/livemap/internal/config"
)

// ErrDisabled is returned by Open when no journal driver is configured.
var ErrDisabled = errors.New("journal disabled")

// Kind classifies a journal entry.
type Kind string

const (
	KindJoin    Kind = "join"
	KindLeave   Kind = "leave"
	KindKick    Kind = "kick"
	KindChat    Kind = "chat"
	KindMessage Kind = "message"
)

// Session is one hosting run.
type Session struct {
	ID        uuid.UUID
	MapName   string
	Host      string
	StartedAt time.Time
	EndedAt   time.Time // zero while running
}

// NewSession creates a session record with a fresh id.
func NewSession(mapName, host string) Session {
	return Session{
		ID:        uuid.New(),
		MapName:   mapName,
		Host:      host,
		StartedAt: time.Now().UTC(),
	}
}

// Entry is one journal line.
type Entry struct {
	Session uuid.UUID
	Kind    Kind
	Actor   string
	Text    string
	At      time.Time
}

// Store persists sessions and their entries.
type Store interface {
	StartSession(ctx context.Context, s Session) error
	EndSession(ctx context.Context, id uuid.UUID, at time.Time) error
	// Append writes entries in order, atomically.
	Append(ctx context.Context, entries []Entry) error
	// Entries returns a session's entries in insertion order.
	Entries(ctx context.Context, session uuid.UUID) ([]Entry, error)
	// Sessions returns the most recent sessions first.
	Sessions(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// Open connects the store selected by cfg.Driver and applies migrations.
func Open(ctx context.Context, cfg config.Journal) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, ErrDisabled
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}
