package brush

import (
	"github.com/udisondev/livemap/internal/model"
)

// ItemChance is one weighted item of a ground brush.
type ItemChance struct {
	ID     uint16 `yaml:"id"`
	Chance int    `yaml:"chance"`
}

// Ground places one of its weighted ground items.
type Ground struct {
	name  string
	items []ItemChance
	total int
	ids   itemSet
}

// NewGround creates a ground brush. Items with a non-positive chance count as 1.
func NewGround(name string, items []ItemChance) *Ground {
	g := &Ground{name: name, ids: make(itemSet)}
	for _, it := range items {
		if it.ID == 0 {
			continue
		}
		it.Chance = max(1, it.Chance)
		g.total += it.Chance
		g.items = append(g.items, it)
		g.ids[it.ID] = struct{}{}
	}
	return g
}

func (g *Ground) Kind() Kind   { return KindGround }
func (g *Ground) Name() string { return g.name }

// Owns reports whether id is one of the brush's ground items.
func (g *Ground) Owns(id uint16) bool { return g.ids.has(id) }

func (g *Ground) Draw(ctx *Context, t *model.Tile) error {
	if len(g.items) == 0 {
		return ErrCannotDraw
	}
	t.Ground = model.NewItem(g.pick(ctx))
	return nil
}

// Undraw removes the ground only if this brush placed it.
func (g *Ground) Undraw(_ *Context, t *model.Tile) error {
	if g.ids.matches(t.Ground) {
		t.Ground = nil
	}
	return nil
}

func (g *Ground) pick(ctx *Context) uint16 {
	if len(g.items) == 1 {
		return g.items[0].ID
	}
	roll := ctx.intn(g.total)
	for _, it := range g.items {
		if roll < it.Chance {
			return it.ID
		}
		roll -= it.Chance
	}
	return g.items[0].ID
}
