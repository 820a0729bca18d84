package action

import (
	"github.com/udisondev/livemap/internal/model"
)

// ChangeType tells which payload a Change carries.
type ChangeType uint8

const (
	ChangeNone ChangeType = iota
	ChangeTile
	ChangeHouseExit
	ChangeWaypoint
)

func (t ChangeType) String() string {
	switch t {
	case ChangeNone:
		return "NONE"
	case ChangeTile:
		return "TILE"
	case ChangeHouseExit:
		return "HOUSE_EXIT"
	case ChangeWaypoint:
		return "WAYPOINT"
	default:
		return "UNKNOWN"
	}
}

// Document is the map surface changes are applied to.
// Every method swaps: the argument goes into the document and the
// previous value comes back.
type Document interface {
	SwapTile(t *model.Tile) *model.Tile
	SwapHouseExit(houseID uint32, exit model.Position, has bool) (model.Position, bool)
	SwapWaypoint(name string, pos model.Position, has bool) (model.Position, bool)
	Accepts(pos model.Position) bool
}

// Change owns one payload that is swapped with the document on every apply.
// Before commit it holds the new value; after commit it holds the value it
// replaced. A released change holds nothing and applies as a no-op.
type Change struct {
	typ  ChangeType
	tile *model.Tile

	houseID uint32
	name    string
	pos     model.Position
	has     bool
}

// NewTileChange takes ownership of t. The tile must not be referenced elsewhere.
func NewTileChange(t *model.Tile) *Change {
	return &Change{typ: ChangeTile, tile: t}
}

// NewHouseExitChange moves a house exit to exit.
func NewHouseExitChange(houseID uint32, exit model.Position) *Change {
	return &Change{typ: ChangeHouseExit, houseID: houseID, pos: exit, has: true}
}

// NewHouseExitClear removes the exit of a house.
func NewHouseExitClear(houseID uint32) *Change {
	return &Change{typ: ChangeHouseExit, houseID: houseID}
}

// NewWaypointChange places a waypoint at pos, or removes it when has is false.
func NewWaypointChange(name string, pos model.Position, has bool) *Change {
	return &Change{typ: ChangeWaypoint, name: name, pos: pos, has: has}
}

// Type returns the payload kind.
func (c *Change) Type() ChangeType {
	return c.typ
}

// Tile returns the tile payload currently owned by the change.
// The returned tile must not be modified.
func (c *Change) Tile() *model.Tile {
	return c.tile
}

// Released reports whether the payload was dropped.
func (c *Change) Released() bool {
	return c.typ == ChangeNone
}

// Release drops the payload. Calling it twice is a no-op.
func (c *Change) Release() {
	c.typ = ChangeNone
	c.tile = nil
	c.name = ""
}

// apply swaps the payload with the document and reports the touched tile position.
func (c *Change) apply(doc Document) (model.Position, bool) {
	switch c.typ {
	case ChangeTile:
		pos := c.tile.Pos
		if !doc.Accepts(pos) {
			c.Release()
			return pos, false
		}
		old := doc.SwapTile(c.tile)
		if old == nil {
			old = model.NewTile(pos)
		}
		c.tile = old
		return pos, true
	case ChangeHouseExit:
		c.pos, c.has = doc.SwapHouseExit(c.houseID, c.pos, c.has)
	case ChangeWaypoint:
		c.pos, c.has = doc.SwapWaypoint(c.name, c.pos, c.has)
	}
	return model.Position{}, false
}

func (c *Change) memSize() int {
	switch c.typ {
	case ChangeTile:
		return 32 + c.tile.MemSize()
	case ChangeWaypoint:
		return 48 + len(c.name)
	default:
		return 32
	}
}
