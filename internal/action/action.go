package action

// Action is an ordered list of changes applied as one unit.
type Action struct {
	kind    Kind
	owner   uint32
	doc     Document
	changes []*Change

	committed bool
	memsize   int
}

// Kind returns the kind the action was created with.
func (a *Action) Kind() Kind { return a.kind }

// Owner returns the id of the peer that authored the action, 0 for the host.
func (a *Action) Owner() uint32 { return a.owner }

// SetOwner sets the authoring peer id.
func (a *Action) SetOwner(owner uint32) { a.owner = owner }

// AddChange appends a change. No validation is done.
func (a *Action) AddChange(c *Change) {
	a.changes = append(a.changes, c)
	a.memsize = 0
}

// Size returns the number of changes.
func (a *Action) Size() int { return len(a.changes) }

// Empty reports whether the action has no changes.
func (a *Action) Empty() bool { return len(a.changes) == 0 }

// Committed reports whether the changes are currently applied.
func (a *Action) Committed() bool { return a.committed }

// Changes returns the change list.
func (a *Action) Changes() []*Change { return a.changes }

// Commit applies the changes in order. dirty may be nil.
func (a *Action) Commit(dirty *DirtyList) {
	for _, c := range a.changes {
		a.applyChange(c, dirty)
	}
	a.committed = true
}

// Undo applies the changes in reverse order, restoring what Commit replaced.
// Undoing an action that is not committed is a programming error.
func (a *Action) Undo(dirty *DirtyList) {
	if !a.committed {
		panic("action: undo of an uncommitted action")
	}
	for i := len(a.changes) - 1; i >= 0; i-- {
		a.applyChange(a.changes[i], dirty)
	}
	a.committed = false
}

// Redo is Commit.
func (a *Action) Redo(dirty *DirtyList) {
	a.Commit(dirty)
}

func (a *Action) applyChange(c *Change, dirty *DirtyList) {
	pos, touched := c.apply(a.doc)
	if !touched || dirty == nil {
		return
	}
	dirty.AddPosition(int(pos.X), int(pos.Y), int(pos.Z))
	if a.kind != KindRemote {
		dirty.AddChange(pos)
	}
}

// MemSize estimates memory held by the action's payloads.
func (a *Action) MemSize() int {
	if a.memsize == 0 {
		n := 64
		for _, c := range a.changes {
			n += c.memSize()
		}
		a.memsize = n
	}
	return a.memsize
}

// Release drops every payload.
func (a *Action) Release() {
	for _, c := range a.changes {
		c.Release()
	}
	a.changes = nil
}
