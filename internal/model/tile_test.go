package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTile_Size(t *testing.T) {
	tests := []struct {
		name string
		tile *Tile
		want int
	}{
		{name: "nil tile", tile: nil, want: 0},
		{name: "empty", tile: NewTile(Pos(1, 1, 7)), want: 0},
		{name: "house only", tile: &Tile{HouseID: 3}, want: 0},
		{name: "ground", tile: &Tile{Ground: NewItem(100)}, want: 1},
		{
			name: "everything",
			tile: &Tile{
				Ground:   NewItem(100),
				Items:    []*Item{NewItem(1), NewItem(2)},
				Creature: &Creature{Name: "rat"},
				Spawn:    &Spawn{Size: 3},
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tile.Size())
			assert.Equal(t, tt.want == 0, tt.tile.Empty())
		})
	}
}

func TestTile_CloneIsDeep(t *testing.T) {
	dest := Pos(10, 10, 7)
	orig := &Tile{
		Pos:     Pos(1, 2, 7),
		Ground:  &Item{ID: 100, ActionID: 5},
		Items:   []*Item{{ID: 200, Teleport: &dest}},
		HouseID: 9,
		Flags:   FlagProtectionZone,
	}

	c := orig.Clone()
	require.True(t, orig.Equal(c))
	assert.NotSame(t, orig, c)
	assert.NotSame(t, orig.Ground, c.Ground)
	assert.NotSame(t, orig.Items[0].Teleport, c.Items[0].Teleport)

	c.Items[0].Teleport.X = 11
	assert.False(t, orig.Equal(c))
	assert.Equal(t, uint16(10), orig.Items[0].Teleport.X)
}

func TestTile_Equal(t *testing.T) {
	base := func() *Tile {
		return &Tile{Pos: Pos(5, 5, 7), Ground: NewItem(4526), Items: []*Item{NewItem(1987)}}
	}

	tests := []struct {
		name   string
		modify func(*Tile)
		want   bool
	}{
		{name: "identical", modify: func(*Tile) {}, want: true},
		{name: "different ground", modify: func(t *Tile) { t.Ground.ID = 1 }, want: false},
		{name: "extra item", modify: func(t *Tile) { t.AddItem(NewItem(2)) }, want: false},
		{name: "item attribute", modify: func(t *Tile) { t.Items[0].Text = "hi" }, want: false},
		{name: "flags", modify: func(t *Tile) { t.Flags = FlagNoLogout }, want: false},
		{name: "creature", modify: func(t *Tile) { t.Creature = &Creature{Name: "rat"} }, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base()
			tt.modify(other)
			assert.Equal(t, tt.want, base().Equal(other))
		})
	}
}

func TestTile_EqualNil(t *testing.T) {
	var nilTile *Tile
	assert.True(t, nilTile.Equal(NewTile(Pos(0, 0, 0))))
	assert.False(t, nilTile.Equal(&Tile{Ground: NewItem(1)}))
}

func TestTile_RemoveItems(t *testing.T) {
	tile := &Tile{Items: []*Item{NewItem(1), NewItem(2), NewItem(1), NewItem(3)}}

	n := tile.RemoveItems(func(it *Item) bool { return it.ID == 1 })

	assert.Equal(t, 2, n)
	require.Len(t, tile.Items, 2)
	assert.Equal(t, uint16(2), tile.Items[0].ID)
	assert.Equal(t, uint16(3), tile.Items[1].ID)
}

func TestItem_IsComplex(t *testing.T) {
	assert.False(t, NewItem(100).IsComplex())
	assert.True(t, (&Item{ID: 100, Count: 3}).IsComplex())
	assert.True(t, (&Item{ID: 100, Teleport: &Position{}}).IsComplex())
}

func TestPosition_Underground(t *testing.T) {
	assert.False(t, Pos(0, 0, 0).Underground())
	assert.False(t, Pos(0, 0, 7).Underground())
	assert.True(t, Pos(0, 0, 8).Underground())
	assert.True(t, Pos(0, 0, 15).IsValid())
	assert.False(t, Pos(0, 0, 16).IsValid())
}
