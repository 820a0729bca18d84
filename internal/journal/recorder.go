package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/livemap/internal/live"
)

const (
	// DefaultRecorderBuffer is how many entries may wait for the writer.
	DefaultRecorderBuffer = 1024

	recorderBatchSize  = 64
	recorderFlushEvery = time.Second
	recorderStopWait   = 5 * time.Second
)

// Recorder is a live.LogTab that journals every entry and forwards it to
// another log pane. Entries are written by Run in batches; when the buffer
// is full new entries are dropped with a warning.
type Recorder struct {
	store   Store
	session Session
	next    live.LogTab

	ch        chan Entry
	peers     map[uint32]string
	closeOnce sync.Once
	now       func() time.Time
}

// NewRecorder creates a recorder for one session. next may be nil.
func NewRecorder(store Store, session Session, next live.LogTab, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &Recorder{
		store:   store,
		session: session,
		next:    next,
		ch:      make(chan Entry, buffer),
		peers:   make(map[uint32]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Session returns the recorded session.
func (r *Recorder) Session() Session { return r.session }

// Run registers the session and writes entries until ctx is cancelled.
// Pending entries are flushed and the session is closed before returning.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.store.StartSession(ctx, r.session); err != nil {
		return err
	}
	slog.Info("journal session started", "session", r.session.ID, "map", r.session.MapName)

	ticker := time.NewTicker(recorderFlushEvery)
	defer ticker.Stop()

	batch := make([]Entry, 0, recorderBatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Append(ctx, batch); err != nil {
			slog.Error("writing journal entries", "session", r.session.ID, "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= recorderBatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), recorderStopWait)
			defer cancel()
		drain:
			for {
				select {
				case e := <-r.ch:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			flush(stopCtx)
			if err := r.store.EndSession(stopCtx, r.session.ID, r.now()); err != nil {
				slog.Error("closing journal session", "session", r.session.ID, "error", err)
			}
			slog.Info("journal session closed", "session", r.session.ID)
			return nil
		}
	}
}

func (r *Recorder) record(kind Kind, actor, text string) {
	e := Entry{Session: r.session.ID, Kind: kind, Actor: actor, Text: text, At: r.now()}
	select {
	case r.ch <- e:
	default:
		slog.Warn("journal buffer full, dropping entry", "kind", kind, "actor", actor)
	}
}

// Message implements live.LogTab.
func (r *Recorder) Message(text string) {
	r.record(KindMessage, "", text)
	if r.next != nil {
		r.next.Message(text)
	}
}

// Chat implements live.LogTab.
func (r *Recorder) Chat(speaker, text string) {
	r.record(KindChat, speaker, text)
	if r.next != nil {
		r.next.Chat(speaker, text)
	}
}

// UpdateClientList implements live.LogTab. Joins and leaves are derived
// from the difference with the previous list.
func (r *Recorder) UpdateClientList(peers []live.PeerInfo) {
	current := make(map[uint32]string, len(peers))
	for _, p := range peers {
		current[p.ID] = p.Name
		if prev, ok := r.peers[p.ID]; !ok || prev != p.Name {
			r.record(KindJoin, p.Name, p.Remote)
		}
	}
	for id, name := range r.peers {
		if cur, ok := current[id]; !ok || cur != name {
			r.record(KindLeave, name, "")
		}
	}
	r.peers = current

	if r.next != nil {
		r.next.UpdateClientList(peers)
	}
}

// Kicked implements live.KickLogger.
func (r *Recorder) Kicked(name, reason string) {
	r.record(KindKick, name, reason)
	if kl, ok := r.next.(live.KickLogger); ok {
		kl.Kicked(name, reason)
	} else if r.next != nil {
		r.next.Message(name + " was kicked: " + reason)
	}
}

// Disconnect implements live.LogTab.
func (r *Recorder) Disconnect() {
	r.closeOnce.Do(func() {
		r.record(KindMessage, "", "session closed")
		if r.next != nil {
			r.next.Disconnect()
		}
	})
}
