package otbm

import (
	"fmt"
	"time"

	"github.com/udisondev/livemap/internal/model"
)

// Node types.
const (
	NodeRoot      = 0
	NodeMapData   = 2
	NodeTileArea  = 4
	NodeTile      = 5
	NodeItem      = 6
	NodeTowns     = 12
	NodeTown      = 13
	NodeHouseTile = 14
	NodeWaypoints = 15
	NodeWaypoint  = 16

	// NodeHouses carries the house registry inside MAP_DATA.
	NodeHouses = 0x40
	NodeHouse  = 0x41
)

// Attributes.
const (
	AttrDescription = 1
	AttrTileFlags   = 3
	AttrActionID    = 4
	AttrUniqueID    = 5
	AttrText        = 6
	AttrDesc        = 7
	AttrTeleDest    = 8
	AttrItem        = 9
	AttrDepotID     = 10
	AttrHouseDoorID = 14
	AttrCount       = 15
	AttrCharges     = 22

	// Tile extensions for content that classic map files keep in side files.
	AttrCreature   = 0x40
	AttrSpawn      = 0x41
	AttrGroundNode = 0x42 // the first item child is the ground
)

// TileCoords selects how a tile node encodes its position.
type TileCoords int

const (
	// CoordsNone omits the position; the reader supplies it (NODE floors).
	CoordsNone TileCoords = iota
	// CoordsAbsolute writes u16 x, u16 y, u8 z (CHANGE_LIST).
	CoordsAbsolute
	// CoordsAreaOffset writes u8 dx, u8 dy relative to the TILE_AREA (map files).
	CoordsAreaOffset
)

// WriteTile encodes t as a TILE or HOUSETILE node.
func WriteTile(w *Writer, t *model.Tile, coords TileCoords) error {
	if t.IsHouseTile() {
		w.StartNode(NodeHouseTile)
	} else {
		w.StartNode(NodeTile)
	}

	switch coords {
	case CoordsAbsolute:
		w.WritePosition(t.Pos)
	case CoordsAreaOffset:
		w.WriteU8(uint8(t.Pos.X & 0xFF))
		w.WriteU8(uint8(t.Pos.Y & 0xFF))
	}

	if t.IsHouseTile() {
		w.WriteU32(t.HouseID)
	}

	if t.Flags != 0 {
		w.WriteU8(AttrTileFlags)
		w.WriteU32(uint32(t.Flags))
	}

	if t.Creature != nil {
		w.WriteU8(AttrCreature)
		if err := w.WriteString(t.Creature.Name); err != nil {
			return fmt.Errorf("creature name at %s: %w", t.Pos, err)
		}
		w.WriteU32(uint32(t.Creature.SpawnTime / time.Second))
		w.WriteU8(uint8(t.Creature.Direction))
		w.WriteU8(boolByte(t.Creature.NPC))
	}

	if t.Spawn != nil {
		w.WriteU8(AttrSpawn)
		w.WriteU32(uint32(t.Spawn.Size))
	}

	groundNode := t.Ground != nil && t.Ground.IsComplex()
	if t.Ground != nil && !groundNode {
		w.WriteU8(AttrItem)
		w.WriteU16(t.Ground.ID)
	}
	if groundNode {
		w.WriteU8(AttrGroundNode)
		if err := WriteItem(w, t.Ground); err != nil {
			return fmt.Errorf("ground at %s: %w", t.Pos, err)
		}
	}

	for _, it := range t.Items {
		if err := WriteItem(w, it); err != nil {
			return fmt.Errorf("item %d at %s: %w", it.ID, t.Pos, err)
		}
	}

	w.EndNode()
	return nil
}

// WriteItem encodes an item node with its attributes.
func WriteItem(w *Writer, it *model.Item) error {
	w.StartNode(NodeItem)
	w.WriteU16(it.ID)
	if it.Count != 0 {
		w.WriteU8(AttrCount)
		w.WriteU8(it.Count)
	}
	if it.ActionID != 0 {
		w.WriteU8(AttrActionID)
		w.WriteU16(it.ActionID)
	}
	if it.UniqueID != 0 {
		w.WriteU8(AttrUniqueID)
		w.WriteU16(it.UniqueID)
	}
	if it.Text != "" {
		w.WriteU8(AttrText)
		if err := w.WriteString(it.Text); err != nil {
			return err
		}
	}
	if it.Description != "" {
		w.WriteU8(AttrDesc)
		if err := w.WriteString(it.Description); err != nil {
			return err
		}
	}
	if it.Teleport != nil {
		w.WriteU8(AttrTeleDest)
		w.WritePosition(*it.Teleport)
	}
	if it.DepotID != 0 {
		w.WriteU8(AttrDepotID)
		w.WriteU16(it.DepotID)
	}
	if it.DoorID != 0 {
		w.WriteU8(AttrHouseDoorID)
		w.WriteU8(it.DoorID)
	}
	if it.Charges != 0 {
		w.WriteU8(AttrCharges)
		w.WriteU16(it.Charges)
	}
	w.EndNode()
	return nil
}

// ReadTile decodes a TILE or HOUSETILE node.
//
// coords tells how the position is stored; for CoordsNone pos is used as is,
// for CoordsAreaOffset pos is the area base.
func ReadTile(n *Node, coords TileCoords, pos model.Position) (*model.Tile, error) {
	if n.Type != NodeTile && n.Type != NodeHouseTile {
		return nil, fmt.Errorf("node type %d is not a tile: %w", n.Type, ErrMalformedNode)
	}
	r := n.Reader()

	switch coords {
	case CoordsAbsolute:
		p, err := r.ReadPosition()
		if err != nil {
			return nil, fmt.Errorf("tile position: %w", err)
		}
		pos = p
	case CoordsAreaOffset:
		dx, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("tile x offset: %w", err)
		}
		dy, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("tile y offset: %w", err)
		}
		pos.X += uint16(dx)
		pos.Y += uint16(dy)
	}

	t := model.NewTile(pos)
	if n.Type == NodeHouseTile {
		id, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("house tile %s without house id: %w", pos, err)
		}
		t.HouseID = id
	}

	groundNode := false
	for r.Remaining() > 0 {
		attr, _ := r.ReadU8()
		switch attr {
		case AttrTileFlags:
			flags, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("tile flags at %s: %w", pos, err)
			}
			t.Flags = model.MapFlags(flags)
		case AttrItem:
			id, err := r.ReadU16()
			if err != nil {
				return nil, fmt.Errorf("ground at %s: %w", pos, err)
			}
			t.Ground = model.NewItem(id)
		case AttrGroundNode:
			groundNode = true
		case AttrCreature:
			c, err := readCreature(r)
			if err != nil {
				return nil, fmt.Errorf("creature at %s: %w", pos, err)
			}
			t.Creature = c
		case AttrSpawn:
			size, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("spawn at %s: %w", pos, err)
			}
			t.Spawn = &model.Spawn{Size: int(size)}
		default:
			return nil, fmt.Errorf("unknown tile attribute %d at %s: %w", attr, pos, ErrMalformedNode)
		}
	}

	for i, child := range n.Children {
		if child.Type != NodeItem {
			return nil, fmt.Errorf("tile %s child type %d: %w", pos, child.Type, ErrMalformedNode)
		}
		it, err := ReadItem(child)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", pos, err)
		}
		if i == 0 && groundNode {
			t.Ground = it
			continue
		}
		t.AddItem(it)
	}
	return t, nil
}

// ReadItem decodes an item node.
func ReadItem(n *Node) (*model.Item, error) {
	r := n.Reader()
	id, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("item id: %w", err)
	}
	it := model.NewItem(id)

	for r.Remaining() > 0 {
		attr, _ := r.ReadU8()
		var err error
		switch attr {
		case AttrCount:
			it.Count, err = r.ReadU8()
		case AttrActionID:
			it.ActionID, err = r.ReadU16()
		case AttrUniqueID:
			it.UniqueID, err = r.ReadU16()
		case AttrText:
			it.Text, err = r.ReadString()
		case AttrDesc:
			it.Description, err = r.ReadString()
		case AttrTeleDest:
			var dest model.Position
			dest, err = r.ReadPosition()
			it.Teleport = &dest
		case AttrDepotID:
			it.DepotID, err = r.ReadU16()
		case AttrHouseDoorID:
			it.DoorID, err = r.ReadU8()
		case AttrCharges:
			it.Charges, err = r.ReadU16()
		default:
			return nil, fmt.Errorf("item %d: unknown attribute %d: %w", id, attr, ErrMalformedNode)
		}
		if err != nil {
			return nil, fmt.Errorf("item %d attribute %d: %w", id, attr, err)
		}
	}
	return it, nil
}

func readCreature(r *PropReader) (*model.Creature, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	secs, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	dir, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	npc, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	return &model.Creature{
		Name:      name,
		SpawnTime: time.Duration(secs) * time.Second,
		Direction: model.Direction(dir),
		NPC:       npc != 0,
	}, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
