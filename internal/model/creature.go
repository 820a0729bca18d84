package model

import "time"

// Direction of a placed creature.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "NORTH"
	case East:
		return "EAST"
	case South:
		return "SOUTH"
	case West:
		return "WEST"
	default:
		return "UNKNOWN"
	}
}

// Creature is a monster or npc placed on a tile.
type Creature struct {
	Name      string
	SpawnTime time.Duration
	Direction Direction
	NPC       bool
}

// Clone returns a copy.
func (c *Creature) Clone() *Creature {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Spawn marks a tile as the center of a spawn area with the given radius.
type Spawn struct {
	Size int
}

// Clone returns a copy.
func (s *Spawn) Clone() *Spawn {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
