package editor

import (
	"fmt"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/model"
)

// replaceProgressStep is how many tiles are scanned between progress reports.
const replaceProgressStep = 1024

// ReplaceItems swaps every item with id from, ground included, for to.
// The whole map is scanned as one reported operation and recorded as one
// Replace action. Returns the number of tiles changed.
func (s *Session) ReplaceItems(from, to uint16) (int, error) {
	if from == 0 || to == 0 || from == to {
		return 0, fmt.Errorf("replace %d with %d: %w", from, to, ErrNothingChanged)
	}

	name := fmt.Sprintf("Replacing item %d with %d", from, to)
	var changed int
	err := s.ops.RunOperation(name, func(progress func(int)) error {
		total := max(1, s.doc.TileCount())
		a := s.queue.CreateAction(action.KindReplaceItems)

		scanned := 0
		s.doc.Tiles(func(t *model.Tile) bool {
			scanned++
			if scanned%replaceProgressStep == 0 {
				progress(scanned * 100 / total)
			}
			if c, ok := replaced(t, from, to); ok {
				a.AddChange(action.NewTileChange(c))
			}
			return true
		})

		changed = a.Size()
		s.queue.AddAction(a, 0)
		return nil
	})
	return changed, err
}

// replaced returns a copy of t with from swapped for to, if t holds from.
func replaced(t *model.Tile, from, to uint16) (*model.Tile, bool) {
	hit := t.Ground != nil && t.Ground.ID == from
	for _, it := range t.Items {
		if it.ID == from {
			hit = true
			break
		}
	}
	if !hit {
		return nil, false
	}

	c := t.Clone()
	if c.Ground != nil && c.Ground.ID == from {
		c.Ground.ID = to
	}
	for _, it := range c.Items {
		if it.ID == from {
			it.ID = to
		}
	}
	return c, true
}

// SetHouseExit moves the exit of a house to pos.
func (s *Session) SetHouseExit(houseID uint32, pos model.Position) error {
	n, err := s.Draw(brush.NewHouseExit(houseID), []model.Position{pos})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("house %d exit at %s: %w", houseID, pos, brush.ErrCannotDraw)
	}
	return nil
}

// PlaceWaypoint moves or creates a named waypoint.
func (s *Session) PlaceWaypoint(name string, pos model.Position) error {
	n, err := s.Draw(brush.NewWaypoint(name), []model.Position{pos})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("waypoint %q at %s: %w", name, pos, brush.ErrCannotDraw)
	}
	return nil
}

// RemoveWaypoint deletes a waypoint. Reports false when it does not exist.
func (s *Session) RemoveWaypoint(name string) bool {
	wp := s.doc.Waypoint(name)
	if wp == nil {
		return false
	}
	a := s.queue.CreateAction(action.KindErase)
	a.AddChange(action.NewWaypointChange(wp.Name, wp.Pos, false))
	s.queue.AddAction(a, 0)
	return true
}

// SwitchDoor opens or closes the door at pos using the palette's door brushes.
func (s *Session) SwitchDoor(pos model.Position) error {
	t := s.doc.Tile(pos)
	if t == nil || !s.doc.Accepts(pos) {
		return fmt.Errorf("switch door at %s: %w", pos, ErrNothingChanged)
	}
	c := t.Clone()
	for _, d := range s.palette.Doors() {
		if d.Toggle(c) {
			a := s.queue.CreateAction(action.KindSwitchDoor)
			a.AddChange(action.NewTileChange(c))
			s.queue.AddAction(a, 0)
			return nil
		}
	}
	return fmt.Errorf("switch door at %s: %w", pos, ErrNothingChanged)
}
