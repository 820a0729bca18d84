package action

import "time"

// Batch groups actions into one undo step.
type Batch struct {
	kind      Kind
	timestamp time.Time
	actions   []*Action
	queue     *Queue

	memsize int
}

// Kind returns the batch kind.
func (b *Batch) Kind() Kind { return b.kind }

// Label returns the history label.
func (b *Batch) Label() string { return b.kind.String() }

// Timestamp returns when the batch was last committed or merged into.
func (b *Batch) Timestamp() time.Time { return b.timestamp }

// ResetTimer restarts the merge window from now.
func (b *Batch) ResetTimer() {
	b.timestamp = b.queue.now()
}

// Size returns the number of actions.
func (b *Batch) Size() int { return len(b.actions) }

// Empty reports whether the batch holds no actions.
func (b *Batch) Empty() bool { return len(b.actions) == 0 }

// Actions returns the grouped actions.
func (b *Batch) Actions() []*Action { return b.actions }

// AddAction appends an action to be committed with the batch.
// Empty actions are dropped.
func (b *Batch) AddAction(a *Action) {
	if a.Empty() {
		return
	}
	b.actions = append(b.actions, a)
	b.memsize = 0
}

// AddAndCommitAction appends and immediately commits an action.
// On a networked queue the resulting changes are broadcast right away,
// before the batch reaches the history.
func (b *Batch) AddAndCommitAction(a *Action) {
	if a.Empty() {
		return
	}
	dirty := b.dirtyList()
	if dirty != nil {
		dirty.Owner = a.owner
	}
	a.Commit(dirty)
	b.actions = append(b.actions, a)
	b.memsize = 0
	b.timestamp = b.queue.now()
	b.queue.broadcast(dirty)
}

// Commit applies every action that is not applied yet.
func (b *Batch) Commit() {
	dirty := b.dirtyList()
	for _, a := range b.actions {
		if a.committed {
			continue
		}
		a.Commit(dirty)
		if dirty != nil && a.owner != 0 {
			dirty.Owner = a.owner
		}
	}
	b.queue.broadcast(dirty)
}

// Undo reverts the actions, last first.
func (b *Batch) Undo() {
	dirty := b.dirtyList()
	for i := len(b.actions) - 1; i >= 0; i-- {
		b.actions[i].Undo(dirty)
	}
	b.queue.broadcast(dirty)
}

// Redo is Commit.
func (b *Batch) Redo() {
	b.Commit()
}

// Merge moves other's actions into b. other is left empty.
func (b *Batch) Merge(other *Batch) {
	b.actions = append(b.actions, other.actions...)
	other.actions = nil
	b.memsize = 0
}

// MemSize estimates memory held by the batch. The value is cached
// until the batch changes.
func (b *Batch) MemSize() int {
	if b.memsize == 0 {
		n := 64
		for _, a := range b.actions {
			n += a.MemSize()
		}
		b.memsize = n
	}
	return b.memsize
}

func (b *Batch) release() {
	for _, a := range b.actions {
		a.Release()
	}
	b.actions = nil
}

func (b *Batch) dirtyList() *DirtyList {
	if b.queue.broadcaster == nil || b.kind.IsSelection() {
		return nil
	}
	return NewDirtyList()
}
