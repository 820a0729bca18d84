package brush

import (
	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/model"
)

// Waypoint moves a named waypoint. The tile itself is not touched.
type Waypoint struct {
	name string
}

// NewWaypoint creates a brush for the named waypoint.
func NewWaypoint(name string) *Waypoint {
	return &Waypoint{name: name}
}

func (w *Waypoint) Kind() Kind   { return KindWaypoint }
func (w *Waypoint) Name() string { return w.name }

func (w *Waypoint) Draw(ctx *Context, t *model.Tile) error {
	if w.name == "" {
		return ErrCannotDraw
	}
	ctx.AddChange(action.NewWaypointChange(w.name, t.Pos, true))
	return nil
}

// Undraw removes the waypoint when it sits on t.
func (w *Waypoint) Undraw(ctx *Context, t *model.Tile) error {
	wp := ctx.Doc().Waypoint(w.name)
	if wp == nil || wp.Pos != t.Pos {
		return nil
	}
	ctx.AddChange(action.NewWaypointChange(w.name, t.Pos, false))
	return nil
}

// HouseExit moves the exit of a house.
// The exit must be on walkable ground outside any house.
type HouseExit struct {
	houseID uint32
}

// NewHouseExit creates an exit brush for a house.
func NewHouseExit(houseID uint32) *HouseExit {
	return &HouseExit{houseID: houseID}
}

func (h *HouseExit) Kind() Kind   { return KindHouseExit }
func (h *HouseExit) Name() string { return "House Exit Brush" }

func (h *HouseExit) Draw(ctx *Context, t *model.Tile) error {
	if ctx.Doc().House(h.houseID) == nil {
		return ErrCannotDraw
	}
	if t.Ground == nil || t.IsHouseTile() {
		return ErrCannotDraw
	}
	ctx.AddChange(action.NewHouseExitChange(h.houseID, t.Pos))
	return nil
}

// Undraw clears the exit when it is on t.
func (h *HouseExit) Undraw(ctx *Context, t *model.Tile) error {
	house := ctx.Doc().House(h.houseID)
	if house == nil || !house.HasExit || house.Exit != t.Pos {
		return nil
	}
	ctx.AddChange(action.NewHouseExitClear(h.houseID))
	return nil
}
