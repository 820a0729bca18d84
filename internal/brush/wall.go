package brush

import (
	"github.com/udisondev/livemap/internal/model"
)

// Alignment is the shape a wall item takes on its tile.
type Alignment uint8

const (
	AlignPole Alignment = iota
	AlignHorizontal
	AlignVertical
	AlignCorner
	alignmentCount
)

func (a Alignment) String() string {
	switch a {
	case AlignPole:
		return "pole"
	case AlignHorizontal:
		return "horizontal"
	case AlignVertical:
		return "vertical"
	case AlignCorner:
		return "corner"
	default:
		return "unknown"
	}
}

// WallItems lists the item of a wall per alignment.
type WallItems struct {
	Pole       uint16 `yaml:"pole"`
	Horizontal uint16 `yaml:"horizontal"`
	Vertical   uint16 `yaml:"vertical"`
	Corner     uint16 `yaml:"corner"`
}

func (w WallItems) byAlignment() [alignmentCount]uint16 {
	return [alignmentCount]uint16{w.Pole, w.Horizontal, w.Vertical, w.Corner}
}

// Wall places wall items, picking the alignment from neighbouring walls
// of the same brush.
type Wall struct {
	name  string
	items [alignmentCount]uint16
	ids   itemSet
}

// NewWall creates a wall brush. A missing alignment falls back to the pole.
func NewWall(name string, items WallItems) *Wall {
	w := &Wall{name: name, items: items.byAlignment()}
	for a := range alignmentCount {
		if w.items[a] == 0 {
			w.items[a] = w.items[AlignPole]
		}
	}
	w.ids = newItemSet(w.items[:]...)
	return w
}

func (w *Wall) Kind() Kind   { return KindWall }
func (w *Wall) Name() string { return w.name }

// Alignment returns the alignment of a wall item of this brush.
func (w *Wall) Alignment(id uint16) (Alignment, bool) {
	for a, wid := range w.items {
		if wid == id && id != 0 {
			return Alignment(a), true
		}
	}
	return 0, false
}

func (w *Wall) Draw(ctx *Context, t *model.Tile) error {
	if w.items[AlignPole] == 0 {
		return ErrCannotDraw
	}
	t.RemoveItems(w.ids.matches)
	t.AddItem(model.NewItem(w.items[w.align(ctx, t.Pos)]))
	return nil
}

func (w *Wall) Undraw(_ *Context, t *model.Tile) error {
	t.RemoveItems(w.ids.matches)
	return nil
}

// Realign re-picks the alignment of this brush's wall piece on t.
func (w *Wall) Realign(ctx *Context, t *model.Tile) bool {
	for i, it := range t.Items {
		if _, ok := w.Alignment(it.ID); !ok {
			continue
		}
		id := w.items[w.align(ctx, t.Pos)]
		if id == it.ID {
			return false
		}
		c := it.Clone()
		c.ID = id
		t.Items[i] = c
		return true
	}
	return false
}

// align looks at the four neighbours: walls on the west or east make the
// piece horizontal, north or south vertical, both a corner.
func (w *Wall) align(ctx *Context, pos model.Position) Alignment {
	at := func(dx, dy int) bool {
		x, y := int(pos.X)+dx, int(pos.Y)+dy
		if x < 0 || y < 0 {
			return false
		}
		return w.on(ctx.Tile(model.Pos(x, y, int(pos.Z))))
	}
	horizontal := at(-1, 0) || at(1, 0)
	vertical := at(0, -1) || at(0, 1)
	switch {
	case horizontal && vertical:
		return AlignCorner
	case horizontal:
		return AlignHorizontal
	case vertical:
		return AlignVertical
	default:
		return AlignPole
	}
}

// on reports whether t carries a wall of this brush.
func (w *Wall) on(t *model.Tile) bool {
	if t == nil {
		return false
	}
	for _, it := range t.Items {
		if w.ids.has(it.ID) {
			return true
		}
	}
	return false
}

// DoorItems is the closed and open item of one door alignment.
type DoorItems struct {
	Closed uint16 `yaml:"closed"`
	Open   uint16 `yaml:"open"`
}

// Door replaces a wall piece of its wall brush with the matching door.
// Only horizontal and vertical walls take doors.
type Door struct {
	name       string
	wall       *Wall
	horizontal DoorItems
	vertical   DoorItems
	open       bool
}

// NewDoor creates a door brush for wall. open selects the state of newly
// placed doors.
func NewDoor(name string, wall *Wall, horizontal, vertical DoorItems, open bool) *Door {
	return &Door{name: name, wall: wall, horizontal: horizontal, vertical: vertical, open: open}
}

func (d *Door) Kind() Kind   { return KindDoor }
func (d *Door) Name() string { return d.name }

func (d *Door) items(a Alignment) (DoorItems, bool) {
	switch a {
	case AlignHorizontal:
		return d.horizontal, d.horizontal.Closed != 0
	case AlignVertical:
		return d.vertical, d.vertical.Closed != 0
	default:
		return DoorItems{}, false
	}
}

// find locates a door of this brush on t.
func (d *Door) find(t *model.Tile) (idx int, a Alignment, open, ok bool) {
	for i, it := range t.Items {
		for _, a := range []Alignment{AlignHorizontal, AlignVertical} {
			di, has := d.items(a)
			if !has {
				continue
			}
			switch it.ID {
			case di.Closed:
				return i, a, false, true
			case di.Open:
				return i, a, true, true
			}
		}
	}
	return 0, 0, false, false
}

// Draw turns the first wall piece on t into a door. An existing door keeps
// its open state.
func (d *Door) Draw(_ *Context, t *model.Tile) error {
	if i, a, open, ok := d.find(t); ok {
		di, _ := d.items(a)
		t.Items[i] = d.doorItem(t.Items[i], di, open)
		return nil
	}
	for i, it := range t.Items {
		a, ok := d.wall.Alignment(it.ID)
		if !ok {
			continue
		}
		di, ok := d.items(a)
		if !ok {
			continue
		}
		t.Items[i] = d.doorItem(it, di, d.open)
		return nil
	}
	return ErrCannotDraw
}

// Undraw turns a door of this brush back into its wall piece.
func (d *Door) Undraw(_ *Context, t *model.Tile) error {
	i, a, _, ok := d.find(t)
	if !ok {
		return nil
	}
	t.Items[i] = model.NewItem(d.wall.items[a])
	return nil
}

// Toggle switches a door on t between open and closed.
// Reports false when t has no door of this brush.
func (d *Door) Toggle(t *model.Tile) bool {
	i, a, open, ok := d.find(t)
	if !ok {
		return false
	}
	di, _ := d.items(a)
	if di.Open == 0 {
		return false
	}
	t.Items[i] = d.doorItem(t.Items[i], di, !open)
	return true
}

// doorItem copies attributes of the replaced item onto the door item.
func (d *Door) doorItem(prev *model.Item, di DoorItems, open bool) *model.Item {
	it := prev.Clone()
	it.ID = di.Closed
	if open && di.Open != 0 {
		it.ID = di.Open
	}
	return it
}
