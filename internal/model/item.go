package model

// Item is a single map item. Attributes that are zero are absent.
type Item struct {
	ID          uint16
	Count       uint8 // subtype: stack count or fluid type
	ActionID    uint16
	UniqueID    uint16
	Text        string
	Description string
	DepotID     uint16
	DoorID      uint8
	Charges     uint16
	Teleport    *Position
}

// NewItem creates an item without attributes.
func NewItem(id uint16) *Item {
	return &Item{ID: id}
}

// IsComplex reports whether the item carries any attribute besides its id.
// Simple ground items are written in compact form.
func (it *Item) IsComplex() bool {
	return it.Count != 0 ||
		it.ActionID != 0 ||
		it.UniqueID != 0 ||
		it.Text != "" ||
		it.Description != "" ||
		it.DepotID != 0 ||
		it.DoorID != 0 ||
		it.Charges != 0 ||
		it.Teleport != nil
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.Teleport != nil {
		dest := *it.Teleport
		c.Teleport = &dest
	}
	return &c
}

// Equal compares ids and all attributes.
func (it *Item) Equal(o *Item) bool {
	if it == nil || o == nil {
		return it == o
	}
	if (it.Teleport == nil) != (o.Teleport == nil) {
		return false
	}
	if it.Teleport != nil && *it.Teleport != *o.Teleport {
		return false
	}
	return it.ID == o.ID &&
		it.Count == o.Count &&
		it.ActionID == o.ActionID &&
		it.UniqueID == o.UniqueID &&
		it.Text == o.Text &&
		it.Description == o.Description &&
		it.DepotID == o.DepotID &&
		it.DoorID == o.DoorID &&
		it.Charges == o.Charges
}

func (it *Item) memSize() int {
	return 48 + len(it.Text) + len(it.Description)
}
