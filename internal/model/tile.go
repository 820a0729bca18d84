package model

// MapFlags are persisted tile zone flags.
type MapFlags uint32

const (
	FlagProtectionZone MapFlags = 0x0001
	FlagNoPVP          MapFlags = 0x0004
	FlagNoLogout       MapFlags = 0x0008
	FlagPVPZone        MapFlags = 0x0010
	FlagRefresh        MapFlags = 0x0020
)

// Tile is the content of one Position.
// A tile is owned by exactly one holder: the map or a pending change.
type Tile struct {
	Pos      Position
	Ground   *Item
	Items    []*Item
	Creature *Creature
	Spawn    *Spawn
	HouseID  uint32
	Flags    MapFlags
}

// NewTile creates an empty tile at pos.
func NewTile(pos Position) *Tile {
	return &Tile{Pos: pos}
}

// Size counts the things on the tile. An empty tile has size 0
// and is not sent over the network.
func (t *Tile) Size() int {
	if t == nil {
		return 0
	}
	n := len(t.Items)
	if t.Ground != nil {
		n++
	}
	if t.Creature != nil {
		n++
	}
	if t.Spawn != nil {
		n++
	}
	return n
}

// Empty reports whether Size is zero.
func (t *Tile) Empty() bool {
	return t.Size() == 0
}

// IsHouseTile reports whether the tile belongs to a house.
func (t *Tile) IsHouseTile() bool {
	return t != nil && t.HouseID != 0
}

// AddItem places an item on top of the stack.
func (t *Tile) AddItem(it *Item) {
	t.Items = append(t.Items, it)
}

// RemoveItems drops every stacked item matching pred and returns how many were removed.
func (t *Tile) RemoveItems(pred func(*Item) bool) int {
	kept := t.Items[:0]
	removed := 0
	for _, it := range t.Items {
		if pred(it) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	clear(t.Items[len(kept):])
	t.Items = kept
	return removed
}

// Clone returns a deep copy at the same position.
func (t *Tile) Clone() *Tile {
	if t == nil {
		return nil
	}
	c := &Tile{
		Pos:      t.Pos,
		Ground:   t.Ground.Clone(),
		Creature: t.Creature.Clone(),
		Spawn:    t.Spawn.Clone(),
		HouseID:  t.HouseID,
		Flags:    t.Flags,
	}
	if len(t.Items) > 0 {
		c.Items = make([]*Item, len(t.Items))
		for i, it := range t.Items {
			c.Items[i] = it.Clone()
		}
	}
	return c
}

// Equal compares tile contents, ignoring identity.
func (t *Tile) Equal(o *Tile) bool {
	if t == nil || o == nil {
		return t.Empty() && o.Empty() && t.houseID() == o.houseID() && t.flags() == o.flags()
	}
	if t.Pos != o.Pos || t.HouseID != o.HouseID || t.Flags != o.Flags {
		return false
	}
	if !t.Ground.Equal(o.Ground) || len(t.Items) != len(o.Items) {
		return false
	}
	for i := range t.Items {
		if !t.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	if (t.Creature == nil) != (o.Creature == nil) || (t.Spawn == nil) != (o.Spawn == nil) {
		return false
	}
	if t.Creature != nil && *t.Creature != *o.Creature {
		return false
	}
	if t.Spawn != nil && *t.Spawn != *o.Spawn {
		return false
	}
	return true
}

// MemSize estimates heap usage, used for history limits.
func (t *Tile) MemSize() int {
	if t == nil {
		return 0
	}
	n := 96
	if t.Ground != nil {
		n += t.Ground.memSize()
	}
	for _, it := range t.Items {
		n += 8 + it.memSize()
	}
	if t.Creature != nil {
		n += 48 + len(t.Creature.Name)
	}
	if t.Spawn != nil {
		n += 8
	}
	return n
}

func (t *Tile) houseID() uint32 {
	if t == nil {
		return 0
	}
	return t.HouseID
}

func (t *Tile) flags() MapFlags {
	if t == nil {
		return 0
	}
	return t.Flags
}
