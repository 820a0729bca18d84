// Package brush holds the drawing tools of the editor.
//
// Every brush implements one contract: Draw and Undraw mutate a private copy
// of the target tile, and may queue extra document changes (waypoints, house
// exits) on the Context. A brush that cannot be applied at a position
// returns ErrCannotDraw and the tile is left alone.
package brush

import (
	"errors"
	"math/rand/v2"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/model"
)

// ErrCannotDraw is returned when a brush does not apply to a tile.
var ErrCannotDraw = errors.New("brush cannot be drawn here")

// Kind identifies a brush variant.
type Kind uint8

const (
	KindGround Kind = iota
	KindWall
	KindDoodad
	KindCreature
	KindSpawn
	KindWaypoint
	KindHouseExit
	KindDoor
)

func (k Kind) String() string {
	switch k {
	case KindGround:
		return "ground"
	case KindWall:
		return "wall"
	case KindDoodad:
		return "doodad"
	case KindCreature:
		return "creature"
	case KindSpawn:
		return "spawn"
	case KindWaypoint:
		return "waypoint"
	case KindHouseExit:
		return "house exit"
	case KindDoor:
		return "door"
	default:
		return "unknown"
	}
}

// Brush is a drawing tool.
type Brush interface {
	Kind() Kind
	Name() string
	// Draw applies the brush to t, a copy owned by the caller.
	Draw(ctx *Context, t *model.Tile) error
	// Undraw removes what the brush would have placed on t.
	Undraw(ctx *Context, t *model.Tile) error
}

// Aligner is implemented by brushes whose pieces depend on their
// neighbours. Realign fixes the piece on t and reports whether it changed.
type Aligner interface {
	Realign(ctx *Context, t *model.Tile) bool
}

// Lookup is the read side of the document a brush consults.
type Lookup interface {
	Tile(pos model.Position) *model.Tile
	House(id uint32) *model.House
	Waypoint(name string) *model.Waypoint
	Spawns() []model.Position
}

// Context carries one stroke: the document, tiles already drawn in this
// stroke and changes queued by marker brushes.
type Context struct {
	doc     Lookup
	rnd     *rand.Rand
	staged  map[model.Position]*model.Tile
	changes []*action.Change
}

// NewContext starts a stroke over doc. A nil rnd uses a random seed.
func NewContext(doc Lookup, rnd *rand.Rand) *Context {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Context{
		doc:    doc,
		rnd:    rnd,
		staged: make(map[model.Position]*model.Tile),
	}
}

// Doc returns the document lookup.
func (c *Context) Doc() Lookup { return c.doc }

// Tile returns the tile at pos as this stroke sees it: a tile drawn earlier
// in the stroke wins over the document.
func (c *Context) Tile(pos model.Position) *model.Tile {
	if t, ok := c.staged[pos]; ok {
		return t
	}
	return c.doc.Tile(pos)
}

// Stage records t as the stroke's current version of its position.
func (c *Context) Stage(t *model.Tile) {
	c.staged[t.Pos] = t
}

// AddChange queues a non-tile change.
func (c *Context) AddChange(ch *action.Change) {
	c.changes = append(c.changes, ch)
}

// TakeChanges returns and clears the queued changes.
func (c *Context) TakeChanges() []*action.Change {
	out := c.changes
	c.changes = nil
	return out
}

func (c *Context) intn(n int) int {
	return c.rnd.IntN(n)
}

// itemSet is a small set of item ids.
type itemSet map[uint16]struct{}

func newItemSet(ids ...uint16) itemSet {
	s := make(itemSet, len(ids))
	for _, id := range ids {
		if id != 0 {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s itemSet) has(id uint16) bool {
	_, ok := s[id]
	return ok
}

func (s itemSet) matches(it *model.Item) bool {
	return it != nil && s.has(it.ID)
}
