package brush

import (
	"time"

	"github.com/udisondev/livemap/internal/model"
)

// Creature places a monster or npc.
//
// Placement needs a ground and a spawn covering the position; with
// autoSpawn a missing spawn is created on the tile itself. Monsters are
// never placed in protection zones.
type Creature struct {
	name      string
	spawnTime time.Duration
	direction model.Direction
	npc       bool
	autoSpawn bool
}

// NewCreature creates a creature brush.
func NewCreature(name string, spawnTime time.Duration, npc, autoSpawn bool) *Creature {
	return &Creature{
		name:      name,
		spawnTime: spawnTime,
		direction: model.South,
		npc:       npc,
		autoSpawn: autoSpawn,
	}
}

func (c *Creature) Kind() Kind   { return KindCreature }
func (c *Creature) Name() string { return c.name }

func (c *Creature) Draw(ctx *Context, t *model.Tile) error {
	if t.Ground == nil {
		return ErrCannotDraw
	}
	if t.Flags&model.FlagProtectionZone != 0 && !c.npc {
		return ErrCannotDraw
	}
	if t.Spawn == nil && !covered(ctx, t.Pos) {
		if !c.autoSpawn {
			return ErrCannotDraw
		}
		t.Spawn = &model.Spawn{Size: 1}
	}
	t.Creature = &model.Creature{
		Name:      c.name,
		SpawnTime: c.spawnTime,
		Direction: c.direction,
		NPC:       c.npc,
	}
	return nil
}

// Undraw removes any creature, like the editor's creature eraser.
func (c *Creature) Undraw(_ *Context, t *model.Tile) error {
	t.Creature = nil
	return nil
}

// covered reports whether some spawn area on the same floor reaches pos.
func covered(ctx *Context, pos model.Position) bool {
	for _, sp := range ctx.Doc().Spawns() {
		if sp.Z != pos.Z {
			continue
		}
		t := ctx.Tile(sp)
		if t == nil || t.Spawn == nil {
			continue
		}
		dx := abs(int(sp.X) - int(pos.X))
		dy := abs(int(sp.Y) - int(pos.Y))
		if max(dx, dy) <= t.Spawn.Size {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Spawn marks a tile as a spawn center.
type Spawn struct {
	radius int
}

// NewSpawn creates a spawn brush; the radius is at least 1.
func NewSpawn(radius int) *Spawn {
	return &Spawn{radius: max(1, radius)}
}

func (s *Spawn) Kind() Kind   { return KindSpawn }
func (s *Spawn) Name() string { return "Spawn Brush" }

// Draw refuses tiles that already hold a spawn.
func (s *Spawn) Draw(_ *Context, t *model.Tile) error {
	if t.Spawn != nil {
		return ErrCannotDraw
	}
	t.Spawn = &model.Spawn{Size: s.radius}
	return nil
}

func (s *Spawn) Undraw(_ *Context, t *model.Tile) error {
	t.Spawn = nil
	return nil
}
