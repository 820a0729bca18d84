package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/livemap/internal/model"
)

func TestMap_SwapTile(t *testing.T) {
	m := New("test", 256, 256)
	pos := model.Pos(10, 20, 7)

	first := &model.Tile{Pos: pos, Ground: model.NewItem(100)}
	old := m.SwapTile(first)
	assert.Nil(t, old)
	assert.Same(t, first, m.Tile(pos))
	assert.Equal(t, 1, m.TileCount())

	second := &model.Tile{Pos: pos, Ground: model.NewItem(101)}
	old = m.SwapTile(second)
	assert.Same(t, first, old)
	assert.Same(t, second, m.Tile(pos))
	assert.Equal(t, 1, m.TileCount())

	removed := m.RemoveTile(pos)
	assert.Same(t, second, removed)
	assert.Nil(t, m.Tile(pos))
	assert.Equal(t, 0, m.TileCount())
}

func TestMap_LeafLookup(t *testing.T) {
	m := New("test", 70000, 70000)

	tests := []struct {
		name string
		x, y int
	}{
		{name: "origin", x: 0, y: 0},
		{name: "inside first leaf", x: 3, y: 2},
		{name: "far corner", x: 65535, y: 65535},
		{name: "mid", x: 16384, y: 4097},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, m.Leaf(tt.x, tt.y))
			leaf := m.CreateLeaf(tt.x, tt.y)
			require.NotNil(t, leaf)
			assert.Same(t, leaf, m.Leaf(tt.x, tt.y))
			assert.Same(t, leaf, m.NodeLeaf(tt.x>>2, tt.y>>2))
			assert.Equal(t, tt.x>>2, leaf.NodeX())
			assert.Equal(t, tt.y>>2, leaf.NodeY())
		})
	}

	// all 16 tiles of a leaf share it
	leaf := m.CreateLeaf(100, 100)
	for x := 100; x < 104; x++ {
		for y := 100; y < 104; y++ {
			assert.Same(t, leaf, m.Leaf(x, y))
		}
	}
	assert.NotSame(t, leaf, m.Leaf(104, 100))
}

func TestMap_FloorMasks(t *testing.T) {
	m := New("test", 64, 64)
	m.SetTile(&model.Tile{Pos: model.Pos(1, 2, 7), Ground: model.NewItem(1)})
	m.SetTile(&model.Tile{Pos: model.Pos(1, 3, 7)})
	m.SetTile(&model.Tile{Pos: model.Pos(0, 0, 9), Ground: model.NewItem(1)})

	leaf := m.Leaf(0, 0)
	require.NotNil(t, leaf)
	assert.Equal(t, uint16(1<<7|1<<9), leaf.FloorMask())
	assert.Equal(t, uint16(1<<TileIndex(1, 2)), leaf.Floor(7).TileMask(), "empty tiles are not in the mask")
}

func TestLeaf_PeerVisibility(t *testing.T) {
	m := New("test", 64, 64)
	leaf := m.CreateLeaf(0, 0)

	leaf.SetVisibleTo(3, false, true)
	leaf.SetVisibleTo(5, true, true)

	assert.True(t, leaf.IsVisibleTo(3, false))
	assert.False(t, leaf.IsVisibleTo(3, true))
	assert.True(t, leaf.IsVisibleTo(5, true))
	assert.False(t, leaf.IsVisibleTo(5, false))

	m.ClearVisible(3)
	assert.False(t, leaf.IsVisibleTo(3, false))
	assert.True(t, leaf.IsVisibleTo(5, true))
}

func TestLeaf_LocalFlags(t *testing.T) {
	leaf := New("test", 64, 64).CreateLeaf(8, 8)

	leaf.SetRequested(true, true)
	assert.True(t, leaf.IsRequested(true))
	assert.False(t, leaf.IsRequested(false))

	leaf.SetVisible(false, true)
	assert.True(t, leaf.IsVisible(false))
	assert.False(t, leaf.IsVisible(true))
}

func TestMap_Accepts(t *testing.T) {
	m := New("test", 64, 64)
	pos := model.Pos(5, 5, 7)
	assert.True(t, m.Accepts(pos))

	m.SetGated(true)
	assert.False(t, m.Accepts(pos))

	m.CreateLeaf(5, 5).SetVisible(false, true)
	assert.True(t, m.Accepts(pos))
	assert.False(t, m.Accepts(model.Pos(5, 5, 8)))
}

func TestMap_HouseAndSpawnBookkeeping(t *testing.T) {
	m := New("test", 64, 64)
	m.AddHouse(&model.House{ID: 7, Name: "Villa"})
	pos := model.Pos(3, 3, 7)

	m.SwapTile(&model.Tile{Pos: pos, HouseID: 7, Spawn: &model.Spawn{Size: 2}})
	assert.Equal(t, 1, m.HouseTileCount(7))
	assert.Equal(t, []model.Position{pos}, m.Spawns())

	old := m.SwapTile(&model.Tile{Pos: pos})
	require.NotNil(t, old)
	assert.Equal(t, 0, m.HouseTileCount(7))
	assert.Empty(t, m.Spawns())
}

func TestMap_SwapHouseExit(t *testing.T) {
	m := New("test", 64, 64)
	m.AddHouse(&model.House{ID: 1})

	prev, had := m.SwapHouseExit(1, model.Pos(4, 4, 7), true)
	assert.False(t, had)
	assert.Equal(t, model.Position{}, prev)

	prev, had = m.SwapHouseExit(1, prev, had)
	assert.True(t, had)
	assert.Equal(t, model.Pos(4, 4, 7), prev)
	assert.False(t, m.House(1).HasExit)
}

func TestMap_SwapWaypoint(t *testing.T) {
	m := New("test", 64, 64)

	_, existed := m.SwapWaypoint("Temple", model.Pos(1, 1, 7), true)
	assert.False(t, existed)
	require.NotNil(t, m.Waypoint("temple"))

	prev, existed := m.SwapWaypoint("Temple", model.Pos(2, 2, 7), true)
	assert.True(t, existed)
	assert.Equal(t, model.Pos(1, 1, 7), prev)

	_, existed = m.SwapWaypoint("Temple", model.Position{}, false)
	assert.True(t, existed)
	assert.Nil(t, m.Waypoint("Temple"))
}

func TestMap_SetSize(t *testing.T) {
	m := New("test", 64, 64)
	require.NoError(t, m.SetSize(1024, 2048))
	assert.Equal(t, 1024, m.Width())
	assert.Error(t, m.SetSize(0, 10))
	assert.Error(t, m.SetSize(70000, 10))
}
