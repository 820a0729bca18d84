package model

import (
	"fmt"

	"github.com/udisondev/livemap/internal/constants"
)

// Position is a tile coordinate. Z is the floor index, 0 is the highest floor.
type Position struct {
	X uint16
	Y uint16
	Z uint8
}

// Pos builds a Position from plain ints.
func Pos(x, y, z int) Position {
	return Position{X: uint16(x), Y: uint16(y), Z: uint8(z)}
}

// IsValid reports whether z is a real floor.
func (p Position) IsValid() bool {
	return p.Z <= constants.MapMaxLayer
}

// Underground reports whether the floor lies below the ground layer.
func (p Position) Underground() bool {
	return p.Z > constants.GroundLayer
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}
