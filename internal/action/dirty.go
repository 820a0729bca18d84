package action

import (
	"slices"

	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/world"
)

// DirtyEntry is one touched node with the floors that changed in it.
type DirtyEntry struct {
	Pos    uint32 // packed node id with the underground bit clear
	Floors uint32
}

// NodeCoords unpacks the node coordinates.
func (e DirtyEntry) NodeCoords() (ndx, ndy int) {
	ndx, ndy, _ = world.DecodeNodeID(e.Pos)
	return ndx, ndy
}

// DirtyList collects the nodes touched by a commit or undo,
// plus the id of the peer that authored the edit (0 for the host).
// Each node appears once; floor bits accumulate.
type DirtyList struct {
	Owner uint32

	nodes   map[uint32]uint32
	changes []model.Position
}

// NewDirtyList creates an empty list owned by the host.
func NewDirtyList() *DirtyList {
	return &DirtyList{nodes: make(map[uint32]uint32)}
}

// AddPosition marks floor z of the node containing (x, y).
func (d *DirtyList) AddPosition(x, y, z int) {
	key := world.EncodeNodeID(x>>2, y>>2, false)
	d.nodes[key] |= 1 << z
}

// AddChange records a changed tile position for upload to the host.
func (d *DirtyList) AddChange(pos model.Position) {
	d.changes = append(d.changes, pos)
}

// Entries returns the touched nodes ordered by packed id.
func (d *DirtyList) Entries() []DirtyEntry {
	out := make([]DirtyEntry, 0, len(d.nodes))
	for pos, floors := range d.nodes {
		out = append(out, DirtyEntry{Pos: pos, Floors: floors})
	}
	slices.SortFunc(out, func(a, b DirtyEntry) int {
		switch {
		case a.Pos < b.Pos:
			return -1
		case a.Pos > b.Pos:
			return 1
		}
		return 0
	})
	return out
}

// Changes returns the changed tile positions in commit order.
func (d *DirtyList) Changes() []model.Position {
	return d.changes
}

// Len returns the number of touched nodes.
func (d *DirtyList) Len() int {
	return len(d.nodes)
}

// Empty reports whether nothing was recorded.
func (d *DirtyList) Empty() bool {
	return len(d.nodes) == 0 && len(d.changes) == 0
}
