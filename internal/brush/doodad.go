package brush

import (
	"github.com/udisondev/livemap/internal/model"
)

// Doodad stacks a fixed composition of items on a tile.
type Doodad struct {
	name      string
	items     []uint16
	ids       itemSet
	onNothing bool
}

// NewDoodad creates a doodad brush. Unless onNothing is set the target
// tile needs a ground.
func NewDoodad(name string, items []uint16, onNothing bool) *Doodad {
	return &Doodad{name: name, items: items, ids: newItemSet(items...), onNothing: onNothing}
}

func (d *Doodad) Kind() Kind   { return KindDoodad }
func (d *Doodad) Name() string { return d.name }

// Draw replaces any previous composition of this brush on t.
func (d *Doodad) Draw(_ *Context, t *model.Tile) error {
	if len(d.items) == 0 || (t.Ground == nil && !d.onNothing) {
		return ErrCannotDraw
	}
	t.RemoveItems(d.ids.matches)
	for _, id := range d.items {
		t.AddItem(model.NewItem(id))
	}
	return nil
}

func (d *Doodad) Undraw(_ *Context, t *model.Tile) error {
	t.RemoveItems(d.ids.matches)
	return nil
}
