package action

// Kind identifies what produced a batch. Consecutive batches of the same
// kind may be merged into one history entry.
type Kind int

const (
	KindMove Kind = iota
	KindRemote
	KindSelect
	KindUnselect
	KindDeleteTiles
	KindCutTiles
	KindPasteTiles
	KindRandomize
	KindBorderize
	KindDraw
	KindErase
	KindSwitchDoor
	KindRotateItem
	KindReplaceItems
	KindChangeProperties
)

// String returns the history label of the kind.
func (k Kind) String() string {
	switch k {
	case KindMove:
		return "Move"
	case KindRemote:
		return "Remote"
	case KindSelect:
		return "Select"
	case KindUnselect:
		return "Unselect"
	case KindDeleteTiles:
		return "Delete"
	case KindCutTiles:
		return "Cut"
	case KindPasteTiles:
		return "Paste"
	case KindRandomize:
		return "Randomize"
	case KindBorderize:
		return "Borderize"
	case KindDraw:
		return "Draw"
	case KindErase:
		return "Erase"
	case KindSwitchDoor:
		return "Switch Door"
	case KindRotateItem:
		return "Rotate Item"
	case KindReplaceItems:
		return "Replace"
	case KindChangeProperties:
		return "Properties"
	default:
		return "Unknown"
	}
}

// IsSelection reports whether the kind only touches selection state.
// Selection batches are never broadcast and do not mark the map as changed.
func (k Kind) IsSelection() bool {
	return k == KindSelect || k == KindUnselect
}
