package integration

import (
	"slices"
	"time"

	"github.com/udisondev/livemap/internal/brush"
	"github.com/udisondev/livemap/internal/editor"
	"github.com/udisondev/livemap/internal/journal"
	"github.com/udisondev/livemap/internal/live"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/testutil"
)

func (s *LiveSuite) TestEditorsConverge() {
	t := s.T()
	h := startHost(t, s.store)
	alice := joinHost(t, h, "alice", false)
	bob := joinHost(t, h, "bob", true)

	alice.edit(t, func(es *editor.Session) {
		dirt, err := es.Brush("dirt")
		s.Require().NoError(err)
		n, err := es.Draw(dirt, []model.Position{model.Pos(1, 1, 7), model.Pos(2, 1, 7)})
		s.Require().NoError(err)
		s.Equal(2, n)
	})
	h.waitTile(t, model.Pos(2, 1, 7), groundIs(103))
	bob.waitTile(t, model.Pos(1, 1, 7), groundIs(103))

	bob.edit(t, func(es *editor.Session) {
		wall, err := es.Brush("stone wall")
		s.Require().NoError(err)
		_, err = es.Draw(wall, []model.Position{model.Pos(3, 5, 7), model.Pos(4, 5, 7), model.Pos(5, 5, 7)})
		s.Require().NoError(err)
	})
	horizontal := func(tile *model.Tile) bool {
		return tile != nil && len(tile.Items) == 1 && tile.Items[0].ID == 1049
	}
	alice.waitTile(t, model.Pos(4, 5, 7), horizontal)
	h.waitTile(t, model.Pos(3, 5, 7), horizontal)

	alice.edit(t, func(es *editor.Session) { s.True(es.Undo()) })
	h.waitTile(t, model.Pos(1, 1, 7), groundIs(100))
	bob.waitTile(t, model.Pos(2, 1, 7), groundIs(100))

	// история хоста не содержит чужих правок
	h.do(t, func() { s.Zero(h.srv.Queue().Size()) })
}

func (s *LiveSuite) TestHostToolsReachPeers() {
	t := s.T()
	h := startHost(t, s.store)
	alice := joinHost(t, h, "alice", false)

	var replaced int
	h.do(t, func() {
		n, err := h.session.ReplaceItems(100, 4526)
		s.Require().NoError(err)
		replaced = n
	})
	s.GreaterOrEqual(replaced, 64)
	alice.waitTile(t, model.Pos(7, 7, 7), groundIs(4526))

	testutil.WaitFor(t, func() bool {
		return slices.Contains(alice.ui.Statuses(), "Server Operation Finished.")
	}, 5*time.Second)

	h.do(t, func() {
		s.Require().NoError(h.session.PlaceWaypoint("Temple", model.Pos(3, 3, 7)))
		s.Require().NoError(h.session.SetHouseExit(1, model.Pos(5, 4, 7)))
	})
	alice.do(t, func() {
		// waypoints are not part of the live protocol
		s.Nil(alice.c.Map().Waypoint("temple"))
	})

	h.do(t, func() {
		for h.session.Undo() {
		}
		s.Nil(h.srv.Map().Waypoint("temple"))
	})
	alice.waitTile(t, model.Pos(7, 7, 7), groundIs(100))
}

func (s *LiveSuite) TestSessionIsJournaled() {
	t := s.T()
	h := startHost(t, s.store)
	alice := joinHost(t, h, "alice", false)

	alice.do(t, func() { s.Require().NoError(alice.c.SendChat("hello")) })

	cfg := testutil.ClientConfig(t, h.addr)
	cfg.Name = "mallory"
	cfg.Password = "wrong"
	mallory, err := live.NewClient(cfg, startDispatcher(t), nil, nil)
	s.Require().NoError(err)
	s.Require().NoError(mallory.Connect(testutil.ContextWithTimeout(t, 5*time.Second)))
	s.ErrorIs(mallory.Run(testutil.ContextWithTimeout(t, 5*time.Second)), live.ErrKicked)

	alice.c.Close()

	type row struct {
		Kind  journal.Kind
		Actor string
		Text  string
	}
	want := []row{
		{journal.KindJoin, "alice", ""},
		{journal.KindChat, "alice", "hello"},
		{journal.KindKick, "", "Wrong password."},
		{journal.KindLeave, "alice", ""},
	}
	var got []row
	testutil.WaitFor(t, func() bool {
		entries, err := s.store.Entries(s.ctx, h.recorder.Session().ID)
		s.Require().NoError(err)
		got = got[:0]
		for _, e := range entries {
			r := row{Kind: e.Kind, Actor: e.Actor, Text: e.Text}
			switch e.Kind {
			case journal.KindMessage:
				continue
			case journal.KindJoin:
				r.Text = "" // peer address
			case journal.KindKick:
				r.Actor = "" // peer address, the nickname is unknown before login
			}
			got = append(got, r)
		}
		return len(got) == len(want)
	}, 5*time.Second)
	// chat and kick arrive on different connections
	s.ElementsMatch(want, got)

	sessions, err := s.store.Sessions(s.ctx, 100)
	s.Require().NoError(err)
	s.True(slices.ContainsFunc(sessions, func(js journal.Session) bool {
		return js.ID == h.recorder.Session().ID && js.MapName == h.srv.Map().Name()
	}))
}

func (s *LiveSuite) TestCustomPaletteOnPeer() {
	t := s.T()
	h := startHost(t, s.store)
	alice := joinHost(t, h, "alice", false)

	palette := brush.NewPalette()
	palette.Add(brush.NewGround("lava", []brush.ItemChance{{ID: 598, Chance: 1}}))

	alice.edit(t, func(es *editor.Session) {
		custom := editor.NewSession(es.Map(), es.Queue(), testutil.ClientConfig(t, h.addr).Undo, nil, palette)
		lava, err := custom.Brush("LAVA")
		s.Require().NoError(err)
		_, err = custom.Draw(lava, []model.Position{model.Pos(6, 2, 7)})
		s.Require().NoError(err)

		// тайл за пределами зеркала не рисуется
		n, err := custom.Draw(lava, []model.Position{model.Pos(40, 40, 7)})
		s.Require().NoError(err)
		s.Zero(n)
	})
	h.waitTile(t, model.Pos(6, 2, 7), groundIs(598))
}
