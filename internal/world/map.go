// Package world holds the editable map document: the spatial index of tiles,
// per-node visibility used by live sessions, and the house, town, waypoint
// and spawn registries.
package world

import (
	"fmt"
	"slices"
	"strings"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
)

// Map is a single open map document.
// It is not safe for concurrent use: all access happens on the document goroutine.
type Map struct {
	name        string
	description string
	width       int
	height      int
	version     uint32

	root      branch
	tileCount int

	houses     map[uint32]*model.House
	houseTiles map[uint32]int
	towns      map[uint32]*model.Town
	waypoints  map[string]*model.Waypoint
	spawns     map[model.Position]struct{}

	// gated maps only accept tile changes inside nodes the host has sent.
	gated bool
}

// New creates an empty map.
func New(name string, width, height int) *Map {
	return &Map{
		name:       name,
		width:      width,
		height:     height,
		houses:     make(map[uint32]*model.House),
		houseTiles: make(map[uint32]int),
		towns:      make(map[uint32]*model.Town),
		waypoints:  make(map[string]*model.Waypoint),
		spawns:     make(map[model.Position]struct{}),
	}
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// SetName renames the map.
func (m *Map) SetName(name string) { m.name = name }

// Description returns the free-form map description.
func (m *Map) Description() string { return m.description }

// SetDescription sets the map description.
func (m *Map) SetDescription(desc string) { m.description = desc }

// Width returns the map width in tiles.
func (m *Map) Width() int { return m.width }

// Height returns the map height in tiles.
func (m *Map) Height() int { return m.height }

// SetSize changes the map bounds. Tiles outside the new bounds are kept.
func (m *Map) SetSize(width, height int) error {
	if width <= 0 || width > constants.MapMaxWidth || height <= 0 || height > constants.MapMaxHeight {
		return fmt.Errorf("map size %dx%d out of range", width, height)
	}
	m.width, m.height = width, height
	return nil
}

// ClientVersion returns the item client version the map targets.
func (m *Map) ClientVersion() uint32 { return m.version }

// SetClientVersion sets the item client version.
func (m *Map) SetClientVersion(v uint32) { m.version = v }

// TileCount returns the number of non-nil tiles in the map.
func (m *Map) TileCount() int { return m.tileCount }

// InBounds reports whether a tile coordinate lies inside the map.
func (m *Map) InBounds(pos model.Position) bool {
	return int(pos.X) < m.width && int(pos.Y) < m.height && pos.IsValid()
}

// SetGated switches the visibility gate used by live clients.
func (m *Map) SetGated(gated bool) { m.gated = gated }

// Accepts reports whether a tile change at pos may be applied.
// Ungated maps accept everything; gated maps only accept positions
// whose node half was received from the host.
func (m *Map) Accepts(pos model.Position) bool {
	if !m.gated {
		return true
	}
	leaf := m.Leaf(int(pos.X), int(pos.Y))
	return leaf != nil && leaf.IsVisible(pos.Underground())
}

// Tile returns the tile at pos, or nil.
func (m *Map) Tile(pos model.Position) *model.Tile {
	if !pos.IsValid() {
		return nil
	}
	leaf := m.root.leaf(int(pos.X), int(pos.Y))
	if leaf == nil {
		return nil
	}
	return leaf.Tile(int(pos.X), int(pos.Y), int(pos.Z))
}

// CreateTile returns the tile at pos, allocating an empty one when missing.
func (m *Map) CreateTile(pos model.Position) *model.Tile {
	if t := m.Tile(pos); t != nil {
		return t
	}
	t := model.NewTile(pos)
	m.SwapTile(t)
	return t
}

// SetTile replaces the tile at t.Pos and drops the previous one.
func (m *Map) SetTile(t *model.Tile) {
	m.SwapTile(t)
}

// SwapTile stores t at t.Pos and returns the tile it replaced (possibly nil).
// House membership and the spawn registry follow the swap.
func (m *Map) SwapTile(t *model.Tile) *model.Tile {
	leaf, _ := m.root.createLeaf(int(t.Pos.X), int(t.Pos.Y))
	old := leaf.swap(t)
	if old == nil {
		m.tileCount++
	}
	m.unindex(old)
	m.index(t)
	return old
}

// RemoveTile clears pos and returns the removed tile.
func (m *Map) RemoveTile(pos model.Position) *model.Tile {
	leaf := m.root.leaf(int(pos.X), int(pos.Y))
	if leaf == nil {
		return nil
	}
	old := leaf.remove(pos)
	if old != nil {
		m.tileCount--
		m.unindex(old)
	}
	return old
}

func (m *Map) index(t *model.Tile) {
	if t == nil {
		return
	}
	if t.HouseID != 0 {
		m.houseTiles[t.HouseID]++
	}
	if t.Spawn != nil {
		m.spawns[t.Pos] = struct{}{}
	}
}

func (m *Map) unindex(t *model.Tile) {
	if t == nil {
		return
	}
	if t.HouseID != 0 {
		if m.houseTiles[t.HouseID]--; m.houseTiles[t.HouseID] <= 0 {
			delete(m.houseTiles, t.HouseID)
		}
	}
	if t.Spawn != nil {
		delete(m.spawns, t.Pos)
	}
}

// Leaf returns the leaf covering tile (x, y), or nil if it was never created.
func (m *Map) Leaf(x, y int) *Leaf {
	return m.root.leaf(x, y)
}

// CreateLeaf returns the leaf covering tile (x, y), allocating it.
func (m *Map) CreateLeaf(x, y int) *Leaf {
	l, _ := m.root.createLeaf(x, y)
	return l
}

// NodeLeaf returns the leaf for node coordinates.
func (m *Map) NodeLeaf(ndx, ndy int) *Leaf {
	return m.root.leaf(ndx<<constants.LeafShift, ndy<<constants.LeafShift)
}

// Leaves visits every allocated leaf until fn returns false.
func (m *Map) Leaves(fn func(*Leaf) bool) {
	m.root.walk(fn)
}

// Tiles visits every tile in leaf order until fn returns false.
func (m *Map) Tiles(fn func(*model.Tile) bool) {
	m.root.walk(func(l *Leaf) bool {
		for _, f := range l.floors {
			if f == nil {
				continue
			}
			for _, t := range f.tiles {
				if t != nil && !fn(t) {
					return false
				}
			}
		}
		return true
	})
}

// ClearVisible forgets everything the client has been sent.
func (m *Map) ClearVisible(client uint32) {
	m.root.walk(func(l *Leaf) bool {
		l.ClearClient(client)
		return true
	})
}

// Houses returns the registered houses ordered by id.
func (m *Map) Houses() []*model.House {
	out := make([]*model.House, 0, len(m.houses))
	for _, h := range m.houses {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b *model.House) int { return int(a.ID) - int(b.ID) })
	return out
}

// House returns a house by id.
func (m *Map) House(id uint32) *model.House {
	return m.houses[id]
}

// AddHouse registers or replaces a house.
func (m *Map) AddHouse(h *model.House) {
	m.houses[h.ID] = h
}

// RemoveHouse unregisters a house. Tiles keep their house id.
func (m *Map) RemoveHouse(id uint32) bool {
	if _, ok := m.houses[id]; !ok {
		return false
	}
	delete(m.houses, id)
	return true
}

// HouseTileCount returns how many tiles reference the house.
func (m *Map) HouseTileCount(id uint32) int {
	return m.houseTiles[id]
}

// SwapHouseExit sets the exit of a house and returns the previous one.
// has=false removes the exit. Unknown houses are left untouched.
func (m *Map) SwapHouseExit(id uint32, exit model.Position, has bool) (model.Position, bool) {
	h := m.houses[id]
	if h == nil {
		return exit, has
	}
	prev, prevHas := h.Exit, h.HasExit
	h.Exit, h.HasExit = exit, has
	return prev, prevHas
}

// Towns returns the registered towns ordered by id.
func (m *Map) Towns() []*model.Town {
	out := make([]*model.Town, 0, len(m.towns))
	for _, t := range m.towns {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *model.Town) int { return int(a.ID) - int(b.ID) })
	return out
}

// AddTown registers or replaces a town.
func (m *Map) AddTown(t *model.Town) {
	m.towns[t.ID] = t
}

// Waypoint returns a waypoint by case-insensitive name.
func (m *Map) Waypoint(name string) *model.Waypoint {
	return m.waypoints[strings.ToLower(name)]
}

// Waypoints returns all waypoints ordered by name.
func (m *Map) Waypoints() []*model.Waypoint {
	out := make([]*model.Waypoint, 0, len(m.waypoints))
	for _, wp := range m.waypoints {
		out = append(out, wp)
	}
	slices.SortFunc(out, func(a, b *model.Waypoint) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// SwapWaypoint places the named waypoint at pos (or removes it when has is false)
// and returns where it was before.
func (m *Map) SwapWaypoint(name string, pos model.Position, has bool) (model.Position, bool) {
	key := strings.ToLower(name)
	prev, existed := m.waypoints[key]
	var prevPos model.Position
	if existed {
		prevPos = prev.Pos
	}
	if has {
		m.waypoints[key] = &model.Waypoint{Name: name, Pos: pos}
	} else {
		delete(m.waypoints, key)
	}
	return prevPos, existed
}

// Spawns returns the positions of all spawn centers.
func (m *Map) Spawns() []model.Position {
	out := make([]model.Position, 0, len(m.spawns))
	for p := range m.spawns {
		out = append(out, p)
	}
	slices.SortFunc(out, comparePositions)
	return out
}

func comparePositions(a, b model.Position) int {
	if a.Z != b.Z {
		return int(a.Z) - int(b.Z)
	}
	if a.X != b.X {
		return int(a.X) - int(b.X)
	}
	return int(a.Y) - int(b.Y)
}
