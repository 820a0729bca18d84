// Package action implements the undo/redo engine: reversible changes grouped
// into actions and batches, a bounded history with a cursor, and the dirty
// lists that drive live broadcasts.
package action

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/udisondev/livemap/internal/config"
)

// Broadcaster receives the nodes touched by a networked commit or undo.
type Broadcaster interface {
	BroadcastNodes(dirty *DirtyList)
}

// Queue is the undo history of one document.
//
// Invariant: 0 <= current <= len(batches). Entries below current are applied,
// entries at or above it form the redo tail.
type Queue struct {
	doc         Document
	cfg         config.Undo
	broadcaster Broadcaster
	now         func() time.Time

	batches []*Batch
	current int
	memory  int
	changed bool
}

// NewQueue creates a local history.
func NewQueue(doc Document, cfg config.Undo) *Queue {
	return &Queue{
		doc: doc,
		cfg: cfg,
		now: time.Now,
	}
}

// NewNetworkedQueue creates a history whose commits and undos are handed
// to b. Selection batches are not broadcast.
func NewNetworkedQueue(doc Document, cfg config.Undo, b Broadcaster) *Queue {
	q := NewQueue(doc, cfg)
	q.broadcaster = b
	return q
}

// SetClock replaces the time source used for merge windows.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Networked reports whether the queue broadcasts its changes.
func (q *Queue) Networked() bool {
	return q.broadcaster != nil
}

// CreateAction returns an empty uncommitted action bound to the document.
func (q *Queue) CreateAction(kind Kind) *Action {
	return &Action{kind: kind, doc: q.doc}
}

// CreateBatch returns an empty batch.
func (q *Queue) CreateBatch(kind Kind) *Batch {
	return &Batch{kind: kind, queue: q, timestamp: q.now()}
}

// AddAction wraps a single action into a batch and records it.
func (q *Queue) AddAction(a *Action, stackingDelay time.Duration) {
	b := q.CreateBatch(a.kind)
	b.AddAndCommitAction(a)
	if b.Empty() {
		return
	}
	q.AddBatch(b, stackingDelay)
}

// AddBatch commits the batch and pushes it onto the history.
//
// Everything after the cursor is discarded first. When grouping is enabled
// and the previous entry has the same kind and was touched less than
// stackingDelay ago, the batch is merged into it. A zero delay never merges.
// Remote batches are applied but not recorded. Empty batches are dropped.
func (q *Queue) AddBatch(b *Batch, stackingDelay time.Duration) {
	if b.Empty() {
		return
	}

	b.Commit()

	if !b.kind.IsSelection() {
		q.changed = true
	}

	if b.kind == KindRemote {
		b.actions = nil
		return
	}

	q.truncate()

	now := q.now()
	if last := q.last(); last != nil && q.canMerge(last, b, now, stackingDelay) {
		q.memory -= last.MemSize()
		last.Merge(b)
		last.timestamp = now
		q.memory += last.MemSize()
	} else {
		b.timestamp = now
		q.batches = append(q.batches, b)
		q.memory += b.MemSize()
		q.current++
	}

	q.enforceLimits()
}

func (q *Queue) canMerge(last, b *Batch, now time.Time, delay time.Duration) bool {
	return q.cfg.GroupActions &&
		delay > 0 &&
		last.kind == b.kind &&
		now.Sub(last.timestamp) < delay
}

func (q *Queue) truncate() {
	for len(q.batches) > q.current {
		n := len(q.batches) - 1
		q.memory -= q.batches[n].MemSize()
		q.batches[n].release()
		q.batches[n] = nil
		q.batches = q.batches[:n]
	}
}

// enforceLimits drops the oldest entries while the history is over its
// entry or memory cap. The newest entry is always kept.
func (q *Queue) enforceLimits() {
	limit := q.cfg.MemoryLimit()
	for len(q.batches) > 1 {
		overSize := q.cfg.Size > 0 && len(q.batches) > q.cfg.Size
		overMemory := limit > 0 && q.memory > limit
		if !overSize && !overMemory {
			return
		}
		oldest := q.batches[0]
		q.memory -= oldest.MemSize()
		oldest.release()
		q.batches[0] = nil
		q.batches = q.batches[1:]
		q.current--
		if overMemory {
			slog.Debug("undo history over memory limit",
				"memory", humanize.IBytes(uint64(max(q.memory, 0))),
				"limit", humanize.IBytes(uint64(limit)))
		}
	}
}

func (q *Queue) last() *Batch {
	if len(q.batches) == 0 {
		return nil
	}
	return q.batches[len(q.batches)-1]
}

// Undo reverts the entry before the cursor. Returns false at the start of history.
func (q *Queue) Undo() bool {
	if q.current <= 0 {
		return false
	}
	q.current--
	q.batches[q.current].Undo()
	q.changed = true
	return true
}

// Redo reapplies the entry at the cursor. Returns false at the end of history.
func (q *Queue) Redo() bool {
	if q.current >= len(q.batches) {
		return false
	}
	q.batches[q.current].Redo()
	q.current++
	q.changed = true
	return true
}

// CanUndo reports whether Undo would do something.
func (q *Queue) CanUndo() bool { return q.current > 0 }

// CanRedo reports whether Redo would do something.
func (q *Queue) CanRedo() bool { return q.current < len(q.batches) }

// Clear drops the whole history. The document keeps its current state.
func (q *Queue) Clear() {
	for _, b := range q.batches {
		b.release()
	}
	q.batches = nil
	q.current = 0
	q.memory = 0
}

// Size returns the number of history entries.
func (q *Queue) Size() int { return len(q.batches) }

// Current returns the cursor position.
func (q *Queue) Current() int { return q.current }

// Batch returns history entry i for display, or nil when out of range.
func (q *Queue) Batch(i int) *Batch {
	if i < 0 || i >= len(q.batches) {
		return nil
	}
	return q.batches[i]
}

// MemSize returns the estimated memory held by the history.
func (q *Queue) MemSize() int { return q.memory }

// HasChanges reports whether a non-selection batch was applied since the
// last ResetChanges.
func (q *Queue) HasChanges() bool { return q.changed }

// ResetChanges clears the changed flag, typically after a save.
func (q *Queue) ResetChanges() { q.changed = false }

func (q *Queue) broadcast(dirty *DirtyList) {
	if q.broadcaster == nil || dirty == nil || dirty.Empty() {
		return
	}
	q.broadcaster.BroadcastNodes(dirty)
}
