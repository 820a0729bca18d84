// Package editor holds the editing session: the document, its history and
// the tools that turn user input into undoable actions.
//
// A Session is not safe for concurrent use. In a live session every call
// must run on the document dispatcher.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/world"
)

// ErrNothingChanged is returned by single-target operations that left the
// map as it was.
var ErrNothingChanged = errors.New("nothing changed")

// Operator runs a long job and reports its progress to whoever watches it.
// *live.Server implements it by broadcasting operation packets.
type Operator interface {
	RunOperation(name string, fn func(progress func(percent int)) error) error
}

// LocalOperator runs jobs in place and logs them.
type LocalOperator struct{}

// RunOperation implements Operator.
func (LocalOperator) RunOperation(name string, fn func(progress func(int)) error) error {
	slog.Info("operation started", "name", name)
	if err := fn(func(int) {}); err != nil {
		return fmt.Errorf("operation %s: %w", name, err)
	}
	slog.Info("operation finished", "name", name)
	return nil
}

// Session binds one map to its history, palette and progress reporter.
type Session struct {
	doc     *world.Map
	queue   *action.Queue
	undo    config.Undo
	ops     Operator
	palette *brush.Palette
	rnd     *rand.Rand
}

// NewSession creates a session. A nil ops runs jobs locally; a nil palette
// uses brush.DefaultPalette.
func NewSession(doc *world.Map, queue *action.Queue, undo config.Undo, ops Operator, palette *brush.Palette) *Session {
	if ops == nil {
		ops = LocalOperator{}
	}
	if palette == nil {
		palette = brush.DefaultPalette()
	}
	return &Session{
		doc:     doc,
		queue:   queue,
		undo:    undo,
		ops:     ops,
		palette: palette,
	}
}

// SetRand fixes the random source used by weighted brushes.
func (s *Session) SetRand(r *rand.Rand) { s.rnd = r }

// Map returns the edited document.
func (s *Session) Map() *world.Map { return s.doc }

// Queue returns the session history.
func (s *Session) Queue() *action.Queue { return s.queue }

// Palette returns the available brushes.
func (s *Session) Palette() *brush.Palette { return s.palette }

// Brush looks a brush up by name.
func (s *Session) Brush(name string) (brush.Brush, error) {
	b, ok := s.palette.Brush(name)
	if !ok {
		return nil, fmt.Errorf("unknown brush %q", name)
	}
	return b, nil
}

// Undo reverts the last history entry.
func (s *Session) Undo() bool { return s.queue.Undo() }

// Redo reapplies the next history entry.
func (s *Session) Redo() bool { return s.queue.Redo() }

// Draw applies b to every position and records one Draw action.
// Positions the brush cannot be drawn on are skipped.
// Returns the number of changes recorded.
func (s *Session) Draw(b brush.Brush, positions []model.Position) (int, error) {
	return s.stroke(action.KindDraw, b, positions, b.Draw)
}

// Erase removes what b places from every position.
func (s *Session) Erase(b brush.Brush, positions []model.Position) (int, error) {
	return s.stroke(action.KindErase, b, positions, b.Undraw)
}

func (s *Session) stroke(kind action.Kind, b brush.Brush, positions []model.Position, apply func(*brush.Context, *model.Tile) error) (int, error) {
	ctx := brush.NewContext(s.doc, s.rnd)
	touched := make(map[model.Position]*model.Tile, len(positions))
	order := make([]model.Position, 0, len(positions))

	for _, pos := range positions {
		if !s.doc.InBounds(pos) || !s.doc.Accepts(pos) {
			continue
		}
		work, ok := touched[pos]
		if !ok {
			work = s.doc.Tile(pos).Clone()
			if work == nil {
				work = model.NewTile(pos)
			}
		}

		err := apply(ctx, work)
		if errors.Is(err, brush.ErrCannotDraw) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%s brush %q at %s: %w", b.Kind(), b.Name(), pos, err)
		}
		if !ok {
			touched[pos] = work
			order = append(order, pos)
		}
		ctx.Stage(work)
	}

	if al, ok := b.(brush.Aligner); ok {
		order = s.realign(ctx, al, touched, order)
	}

	a := s.queue.CreateAction(kind)
	for _, pos := range order {
		t := touched[pos]
		if t.Equal(s.doc.Tile(pos)) {
			continue
		}
		a.AddChange(action.NewTileChange(t))
	}
	for _, c := range ctx.TakeChanges() {
		a.AddChange(c)
	}

	n := a.Size()
	s.queue.AddAction(a, s.undo.StackingDelay)
	return n, nil
}

// realign fixes neighbour-dependent pieces on the stroke and around it.
// Tiles changed outside the stroke join it.
func (s *Session) realign(ctx *brush.Context, al brush.Aligner, touched map[model.Position]*model.Tile, order []model.Position) []model.Position {
	candidates := make([]model.Position, 0, len(order)*5)
	seen := make(map[model.Position]struct{}, len(order)*5)
	add := func(x, y int, z uint8) {
		if x < 0 || y < 0 {
			return
		}
		pos := model.Position{X: uint16(x), Y: uint16(y), Z: z}
		if _, dup := seen[pos]; dup || !s.doc.InBounds(pos) || !s.doc.Accepts(pos) {
			return
		}
		seen[pos] = struct{}{}
		candidates = append(candidates, pos)
	}
	for _, pos := range order {
		x, y := int(pos.X), int(pos.Y)
		add(x, y, pos.Z)
		add(x-1, y, pos.Z)
		add(x+1, y, pos.Z)
		add(x, y-1, pos.Z)
		add(x, y+1, pos.Z)
	}

	for _, pos := range candidates {
		work, ok := touched[pos]
		if !ok {
			work = s.doc.Tile(pos).Clone()
			if work == nil {
				continue
			}
		}
		if al.Realign(ctx, work) && !ok {
			touched[pos] = work
			order = append(order, pos)
		}
		ctx.Stage(work)
	}
	return order
}

// Clear deletes every tile at positions.
func (s *Session) Clear(positions []model.Position) int {
	a := s.queue.CreateAction(action.KindDeleteTiles)
	seen := make(map[model.Position]struct{}, len(positions))
	for _, pos := range positions {
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		if t := s.doc.Tile(pos); t.Empty() || !s.doc.Accepts(pos) {
			continue
		}
		a.AddChange(action.NewTileChange(model.NewTile(pos)))
	}
	n := a.Size()
	s.queue.AddAction(a, 0)
	return n
}

// SetZone sets or clears a zone flag on every existing tile at positions.
func (s *Session) SetZone(positions []model.Position, flag model.MapFlags, on bool) int {
	a := s.queue.CreateAction(action.KindChangeProperties)
	for _, pos := range positions {
		t := s.doc.Tile(pos)
		if t == nil || t.Ground == nil || !s.doc.Accepts(pos) {
			continue
		}
		if (t.Flags&flag != 0) == on {
			continue
		}
		c := t.Clone()
		if on {
			c.Flags |= flag
		} else {
			c.Flags &^= flag
		}
		a.AddChange(action.NewTileChange(c))
	}
	n := a.Size()
	s.queue.AddAction(a, 0)
	return n
}
