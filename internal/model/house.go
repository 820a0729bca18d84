package model

// House is a registered house. Tiles reference it by ID.
type House struct {
	ID     uint32
	Name   string
	TownID uint32
	Rent   uint32
	Exit   Position
	// HasExit is false until an exit has been placed.
	HasExit bool
}

// Clone returns a copy.
func (h *House) Clone() *House {
	if h == nil {
		return nil
	}
	cp := *h
	return &cp
}

// Waypoint is a named map position.
type Waypoint struct {
	Name string
	Pos  Position
}

// Town is a named town with a temple position.
type Town struct {
	ID     uint32
	Name   string
	Temple Position
}
