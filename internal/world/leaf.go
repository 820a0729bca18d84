package world

import (
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
)

// Floor holds the 4x4 tiles of one leaf on one z level.
// Tiles are indexed by x*4+y, the same order as the wire tile mask.
type Floor struct {
	tiles [constants.TilesPerFloor]*model.Tile
}

// Tile returns the tile at local index i (x*4+y), or nil.
func (f *Floor) Tile(i int) *model.Tile {
	return f.tiles[i]
}

// TileMask returns one bit per non-empty tile.
func (f *Floor) TileMask() uint16 {
	var mask uint16
	for i, t := range f.tiles {
		if t.Size() > 0 {
			mask |= 1 << i
		}
	}
	return mask
}

// TileIndex returns the in-floor index of a tile coordinate.
func TileIndex(x, y int) int {
	return (x&(constants.LeafSize-1))*constants.LeafSize + y&(constants.LeafSize-1)
}

// Leaf is the smallest spatial node: 4x4 tiles on each of 16 floors.
//
// Visibility is kept two ways. On the host, peerVisible holds one bit per
// client id for surface floors (low 16 bits) and for underground floors
// (high 16 bits). On a client, visible/requested track what the host has
// already sent or what was asked for.
type Leaf struct {
	ndx, ndy int
	floors   [constants.MapLayers]*Floor

	peerVisible uint32
	visible     [2]bool
	requested   [2]bool
}

func newLeaf(ndx, ndy int) *Leaf {
	return &Leaf{ndx: ndx, ndy: ndy}
}

// NodeX returns the node x coordinate (tile x / 4).
func (l *Leaf) NodeX() int { return l.ndx }

// NodeY returns the node y coordinate (tile y / 4).
func (l *Leaf) NodeY() int { return l.ndy }

// ID returns the packed node id for one half of the leaf.
func (l *Leaf) ID(underground bool) uint32 {
	return EncodeNodeID(l.ndx, l.ndy, underground)
}

// Floor returns floor z, or nil if nothing was ever placed there.
func (l *Leaf) Floor(z int) *Floor {
	return l.floors[z]
}

// CreateFloor returns floor z, allocating it when missing.
func (l *Leaf) CreateFloor(z int) *Floor {
	if l.floors[z] == nil {
		l.floors[z] = &Floor{}
	}
	return l.floors[z]
}

// FloorMask returns one bit per allocated floor.
func (l *Leaf) FloorMask() uint16 {
	var mask uint16
	for z, f := range l.floors {
		if f != nil {
			mask |= 1 << z
		}
	}
	return mask
}

// Tile returns the tile at absolute coordinates inside this leaf.
func (l *Leaf) Tile(x, y, z int) *model.Tile {
	f := l.floors[z]
	if f == nil {
		return nil
	}
	return f.tiles[TileIndex(x, y)]
}

// swap stores t at its position and returns the previous occupant.
func (l *Leaf) swap(t *model.Tile) *model.Tile {
	f := l.CreateFloor(int(t.Pos.Z))
	i := TileIndex(int(t.Pos.X), int(t.Pos.Y))
	old := f.tiles[i]
	f.tiles[i] = t
	return old
}

func (l *Leaf) remove(pos model.Position) *model.Tile {
	f := l.floors[pos.Z]
	if f == nil {
		return nil
	}
	i := TileIndex(int(pos.X), int(pos.Y))
	old := f.tiles[i]
	f.tiles[i] = nil
	return old
}

// IsVisibleTo reports whether the half was already sent to the client.
func (l *Leaf) IsVisibleTo(client uint32, underground bool) bool {
	return l.peerVisible&peerBit(client, underground) != 0
}

// SetVisibleTo records that the half was sent to the client.
func (l *Leaf) SetVisibleTo(client uint32, underground, value bool) {
	if value {
		l.peerVisible |= peerBit(client, underground)
	} else {
		l.peerVisible &^= peerBit(client, underground)
	}
}

// ClearClient drops both visibility bits of a client.
func (l *Leaf) ClearClient(client uint32) {
	l.peerVisible &^= peerBit(client, false) | peerBit(client, true)
}

// IsVisible reports whether the host already sent this half to us.
func (l *Leaf) IsVisible(underground bool) bool {
	return l.visible[half(underground)]
}

// SetVisible marks the half as received.
func (l *Leaf) SetVisible(underground, value bool) {
	l.visible[half(underground)] = value
}

// IsRequested reports whether a request for this half is in flight.
func (l *Leaf) IsRequested(underground bool) bool {
	return l.requested[half(underground)]
}

// SetRequested marks a request for the half as in flight.
func (l *Leaf) SetRequested(underground, value bool) {
	l.requested[half(underground)] = value
}

func peerBit(client uint32, underground bool) uint32 {
	bit := uint32(1) << (client & (constants.MaxLiveClients - 1))
	if underground {
		bit <<= 16
	}
	return bit
}

func half(underground bool) int {
	if underground {
		return 1
	}
	return 0
}
