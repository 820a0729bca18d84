package testutil

import (
	"testing"
	"time"

	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/world"
)

// FixtureClientVersion is the client version of fixture maps.
const FixtureClientVersion = 1098

// NewMap создаёт карту TestMapSize x TestMapSize: земля (id 100) на первых
// 8x8 тайлах уровня 7, стопка предметов на (2,3,7), дом на (4,4,7),
// спавн с существом на (6,6,7) и подземный тайл на (1,1,8).
func NewMap(t testing.TB) *world.Map {
	t.Helper()

	m := world.New(constants.TestMapName, constants.TestMapSize, constants.TestMapSize)
	m.SetClientVersion(FixtureClientVersion)

	for x := range 8 {
		for y := range 8 {
			m.SetTile(&model.Tile{Pos: model.Pos(x, y, constants.GroundLayer), Ground: model.NewItem(100)})
		}
	}

	stack := m.Tile(model.Pos(2, 3, constants.GroundLayer))
	stack.AddItem(model.NewItem(1987))
	stack.AddItem(&model.Item{ID: 2148, Count: 50})
	stack.AddItem(&model.Item{ID: 1448, Text: "Welcome", ActionID: 1000})

	m.AddHouse(&model.House{ID: 1, Name: "Fixture House", TownID: 1})
	m.SetTile(&model.Tile{
		Pos:     model.Pos(4, 4, constants.GroundLayer),
		Ground:  model.NewItem(100),
		HouseID: 1,
		Flags:   model.FlagProtectionZone,
	})

	m.SetTile(&model.Tile{
		Pos:      model.Pos(6, 6, constants.GroundLayer),
		Ground:   model.NewItem(100),
		Spawn:    &model.Spawn{Size: 2},
		Creature: &model.Creature{Name: "Rat", SpawnTime: time.Minute, Direction: model.South},
	})

	m.SetTile(&model.Tile{Pos: model.Pos(1, 1, 8), Ground: model.NewItem(351)})
	return m
}

// ServerConfig returns a host config suitable for loopback tests.
func ServerConfig() config.LiveServer {
	cfg := config.DefaultLiveServer()
	cfg.BindAddress = "127.0.0.1"
	cfg.Password = constants.TestPassword
	cfg.ClientVersion = FixtureClientVersion
	cfg.CursorRate = 0
	cfg.ReadTimeout = 10 * time.Second
	return cfg
}

// ClientConfig returns a client config for joining a fixture host at addr.
func ClientConfig(t testing.TB, addr string) config.LiveClient {
	t.Helper()

	host, port := SplitHostPort(t, addr)
	cfg := config.DefaultLiveClient()
	cfg.Host = host
	cfg.Port = port
	cfg.Name = "tester"
	cfg.Password = constants.TestPassword
	cfg.ClientVersion = FixtureClientVersion
	cfg.DialTimeout = 2 * time.Second
	return cfg
}
