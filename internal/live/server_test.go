package live

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/otbm"
	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/testutil"
	"github.com/udisondev/livemap/internal/world"
)

// recordingTab collects log pane entries.
type recordingTab struct {
	mu       sync.Mutex
	messages []string
	chats    []protocol.Talk
	lists    [][]PeerInfo
	closed   bool
}

func (r *recordingTab) Message(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recordingTab) Chat(speaker, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, protocol.Talk{Speaker: speaker, Message: text})
}

func (r *recordingTab) UpdateClientList(peers []PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, peers)
}

func (r *recordingTab) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingTab) Chats() []protocol.Talk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Talk(nil), r.chats...)
}

type testHost struct {
	srv  *Server
	d    *Dispatcher
	addr string
	tab  *recordingTab
}

func startServer(t *testing.T, mutate func(*config.LiveServer)) *testHost {
	t.Helper()

	cfg := testutil.ServerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d := startDispatcher(t)
	tab := &recordingTab{}
	srv, err := NewServer(cfg, testutil.NewMap(t), d, tab)
	require.NoError(t, err)

	ln, addr := testutil.ListenTCP(t)
	ctx, cancel := testutil.ContextWithCancel(t)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testHost{srv: srv, d: d, addr: addr, tab: tab}
}

// do runs fn on the host dispatcher.
func (h *testHost) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.d.Do(testutil.ContextWithTimeout(t, 2*time.Second), fn))
}

func validHello() protocol.Hello {
	return protocol.Hello{
		EditorVersion: constants.EditorVersionID,
		NetVersion:    constants.LiveNetVersion,
		ClientVersion: testutil.FixtureClientVersion,
		Name:          "tester",
		Password:      constants.TestPassword,
	}
}

func sendHello(t *testing.T, conn net.Conn, hello protocol.Hello) {
	t.Helper()
	m := protocol.NewMessage()
	hello.Write(m)
	testutil.WriteMessage(t, conn, m)
}

func sendRecord(t *testing.T, conn net.Conn, write func(m *protocol.Message)) {
	t.Helper()
	m := protocol.NewMessage()
	write(m)
	testutil.WriteMessage(t, conn, m)
}

// join performs the full handshake as name and returns the connection.
func (h *testHost) join(t *testing.T, name string) net.Conn {
	t.Helper()

	conn := testutil.DialTCP(t, h.addr)
	hello := validHello()
	hello.Name = name
	sendHello(t, conn, hello)
	testutil.ExpectMessage(t, conn, protocol.AcceptedClient)

	sendRecord(t, conn, protocol.WriteReady)
	r := testutil.ExpectMessage(t, conn, protocol.HelloFromServer)
	sh, err := protocol.ParseServerHello(r)
	require.NoError(t, err)
	require.Equal(t, constants.TestMapName, sh.MapName)
	return conn
}

// requestNode asks for one node half and returns the NODE reply applied to
// a fresh map.
func requestNode(t *testing.T, conn net.Conn, ndx, ndy int, underground bool) *world.Map {
	t.Helper()
	sendRecord(t, conn, func(m *protocol.Message) {
		protocol.WriteRequestNodes(m, []uint32{world.EncodeNodeID(ndx, ndy, underground)})
	})
	return expectNode(t, conn)
}

func expectNode(t *testing.T, conn net.Conn) *world.Map {
	t.Helper()
	r := testutil.ExpectMessage(t, conn, protocol.Node)
	return applyNode(t, r)
}

func applyNode(t *testing.T, r *protocol.Reader) *world.Map {
	t.Helper()

	n, err := readNode(r)
	require.NoError(t, err)

	mirror := world.New("mirror", constants.TestMapSize, constants.TestMapSize)
	q := action.NewQueue(mirror, config.DefaultUndo())
	ndx, ndy, _ := world.DecodeNodeID(n.id)
	a := q.CreateAction(action.KindRemote)
	for _, f := range n.floors {
		nodeChanges(a, ndx, ndy, f)
	}
	q.AddAction(a, 0)
	return mirror
}

func expectTalk(t *testing.T, conn net.Conn) protocol.Talk {
	t.Helper()
	r := testutil.ExpectMessage(t, conn, protocol.ServerTalk)
	talk, err := protocol.ParseTalk(r)
	require.NoError(t, err)
	return talk
}

func changeList(t *testing.T, tiles ...*model.Tile) func(m *protocol.Message) {
	t.Helper()
	data, err := otbm.EncodeTiles(otbm.NewWriter(256), tiles, otbm.CoordsAbsolute)
	require.NoError(t, err)
	return func(m *protocol.Message) {
		m.WriteType(protocol.ChangeList)
		require.NoError(t, m.WriteBytes(data))
	}
}

func TestServer_Handshake(t *testing.T) {
	h := startServer(t, nil)
	conn := h.join(t, "alice")
	_ = conn

	var clients []PeerInfo
	h.do(t, func() { clients = h.srv.Clients() })
	require.Len(t, clients, 1)
	assert.Equal(t, uint32(1), clients[0].ID)
	assert.Equal(t, "alice", clients[0].Name)
}

func TestServer_HelloRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*protocol.Hello)
		reason string
	}{
		{"wrong editor version", func(h *protocol.Hello) { h.EditorVersion++ }, kickWrongEditorVersion},
		{"wrong protocol version", func(h *protocol.Hello) { h.NetVersion = 4 }, kickWrongProtocolVersion},
		{"wrong password", func(h *protocol.Hello) { h.Password = "nope" }, kickWrongPassword},
	}

	h := startServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutil.DialTCP(t, h.addr)
			hello := validHello()
			tt.mutate(&hello)
			sendHello(t, conn, hello)

			r := testutil.ExpectMessage(t, conn, protocol.Kick)
			reason, err := r.ReadString()
			require.NoError(t, err)
			assert.Equal(t, tt.reason, reason)
			testutil.ExpectClosed(t, conn)
		})
	}

	var clients []PeerInfo
	h.do(t, func() { clients = h.srv.Clients() })
	assert.Empty(t, clients)
}

func TestServer_OpenSessionAcceptsAnyPassword(t *testing.T) {
	h := startServer(t, func(c *config.LiveServer) { c.Password = "" })

	conn := testutil.DialTCP(t, h.addr)
	hello := validHello()
	hello.Password = "whatever"
	sendHello(t, conn, hello)
	testutil.ExpectMessage(t, conn, protocol.AcceptedClient)
}

func TestServer_ClientVersionMismatch(t *testing.T) {
	h := startServer(t, nil)
	conn := testutil.DialTCP(t, h.addr)

	hello := validHello()
	hello.ClientVersion = 760
	sendHello(t, conn, hello)

	r := testutil.ExpectMessage(t, conn, protocol.ChangeClientVersion)
	v, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(testutil.FixtureClientVersion), v)

	sendRecord(t, conn, protocol.WriteReady)
	testutil.ExpectMessage(t, conn, protocol.HelloFromServer)
}

func TestServer_EditorPacketBeforeReadyCloses(t *testing.T) {
	tests := []struct {
		name  string
		hello bool
	}{
		{"before hello", false},
		{"after hello", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startServer(t, nil)
			conn := testutil.DialTCP(t, h.addr)
			if tt.hello {
				sendHello(t, conn, validHello())
				testutil.ExpectMessage(t, conn, protocol.AcceptedClient)
			}

			sendRecord(t, conn, func(m *protocol.Message) {
				protocol.WriteRequestNodes(m, []uint32{world.EncodeNodeID(10, 10, false)})
			})
			testutil.ExpectClosed(t, conn)

			var leaf *world.Leaf
			h.do(t, func() { leaf = h.srv.Map().Leaf(40, 40) })
			assert.Nil(t, leaf, "rejected request must not touch the map")
		})
	}
}

func TestServer_Full(t *testing.T) {
	h := startServer(t, func(c *config.LiveServer) { c.MaxPeers = 1 })
	h.join(t, "first")

	conn := testutil.DialTCP(t, h.addr)
	sendHello(t, conn, validHello())
	testutil.ExpectMessage(t, conn, protocol.AcceptedClient)
	sendRecord(t, conn, protocol.WriteReady)

	r := testutil.ExpectMessage(t, conn, protocol.Kick)
	reason, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, kickServerFull, reason)
	testutil.ExpectClosed(t, conn)
}

func TestServer_RequestNodeReproducesTiles(t *testing.T) {
	h := startServer(t, nil)
	conn := h.join(t, "alice")

	mirror := requestNode(t, conn, 0, 0, false)

	h.do(t, func() {
		for x := range 4 {
			for y := range 4 {
				pos := model.Pos(x, y, constants.GroundLayer)
				assert.True(t, h.srv.Map().Tile(pos).Equal(mirror.Tile(pos)), "tile %s", pos)
			}
		}
		leaf := h.srv.Map().NodeLeaf(0, 0)
		assert.True(t, leaf.IsVisibleTo(1, false))
		assert.False(t, leaf.IsVisibleTo(1, true))
	})
	assert.Nil(t, mirror.Tile(model.Pos(1, 1, 8)))

	mirror = requestNode(t, conn, 0, 0, true)
	assert.NotNil(t, mirror.Tile(model.Pos(1, 1, 8)))
}

func TestServer_EchoSuppression(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")
	bob := h.join(t, "bob")
	requestNode(t, alice, 0, 0, false)
	requestNode(t, bob, 0, 0, false)

	pos := model.Pos(1, 1, constants.GroundLayer)
	sendRecord(t, alice, changeList(t, &model.Tile{Pos: pos, Ground: model.NewItem(555)}))

	// bob получает узел с правкой alice
	mirror := expectNode(t, bob)
	require.NotNil(t, mirror.Tile(pos))
	assert.Equal(t, uint16(555), mirror.Tile(pos).Ground.ID)

	h.do(t, func() {
		assert.Equal(t, uint16(555), h.srv.Map().Tile(pos).Ground.ID)
		assert.Zero(t, h.srv.Queue().Size(), "remote edits are not recorded in the host history")
		h.srv.BroadcastChat("host", "marker")
	})

	// alice не получает эхо, следующее сообщение это чат
	assert.Equal(t, "marker", expectTalk(t, alice).Message)
	assert.Equal(t, "marker", expectTalk(t, bob).Message)
}

func TestServer_HostEditsReachOnlyViewers(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")
	requestNode(t, alice, 0, 0, false)

	seen := model.Pos(2, 2, constants.GroundLayer)
	unseen := model.Pos(40, 40, constants.GroundLayer)
	h.do(t, func() {
		q := h.srv.Queue()
		a := q.CreateAction(action.KindDraw)
		a.AddChange(action.NewTileChange(&model.Tile{Pos: unseen, Ground: model.NewItem(7)}))
		q.AddAction(a, 0)

		a = q.CreateAction(action.KindDraw)
		a.AddChange(action.NewTileChange(&model.Tile{Pos: seen, Ground: model.NewItem(8)}))
		q.AddAction(a, 0)
	})

	mirror := expectNode(t, alice)
	assert.Equal(t, uint16(8), mirror.Tile(seen).Ground.ID)

	h.do(t, func() { require.True(t, h.srv.Queue().Undo()) })
	mirror = expectNode(t, alice)
	assert.Equal(t, uint16(100), mirror.Tile(seen).Ground.ID, "undo is broadcast too")
}

func TestServer_CursorRelay(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")
	bob := h.join(t, "bob")

	color := protocol.Color{R: 1, G: 2, B: 3, A: 4}
	sendRecord(t, alice, func(m *protocol.Message) {
		protocol.Cursor{ID: 99, Color: color, Pos: model.Pos(5, 6, 7)}.WriteClient(m)
	})

	r := testutil.ExpectMessage(t, bob, protocol.CursorUpdate)
	c, err := protocol.ParseCursor(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), c.ID, "id is the sender's client id")
	assert.Equal(t, color, c.Color)
	assert.Equal(t, model.Pos(5, 6, 7), c.Pos)

	h.do(t, func() {
		cursors := h.srv.Cursors()
		require.Len(t, cursors, 1)
		assert.Equal(t, uint32(1), cursors[0].ID)
		h.srv.UpdateCursor(model.Pos(1, 1, 7), protocol.Color{A: 255})
	})

	r = testutil.ExpectMessage(t, alice, protocol.CursorUpdate)
	c, err = protocol.ParseCursor(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(constants.HostClientID), c.ID)
}

func TestServer_ChatBatchedRecords(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")

	sendRecord(t, alice, func(m *protocol.Message) {
		protocol.WriteClientTalk(m, "first")
		protocol.WriteClientTalk(m, "second")
	})

	assert.Equal(t, protocol.Talk{Speaker: "alice", Message: "first"}, expectTalk(t, alice))
	assert.Equal(t, protocol.Talk{Speaker: "alice", Message: "second"}, expectTalk(t, alice))
	testutil.WaitFor(t, func() bool { return len(h.tab.Chats()) == 2 }, time.Second)
}

func TestServer_HousePackets(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")

	sendRecord(t, alice, func(m *protocol.Message) {
		protocol.HouseInfo{ID: 9, Name: "Lakeside", TownID: 2, Exit: model.Pos(10, 10, 7)}.Write(m, protocol.AddHouse)
		protocol.HouseInfo{ID: 1, Name: "Renamed", TownID: 1}.Write(m, protocol.EditHouse)
		protocol.WriteClientTalk(m, "sync")
	})
	expectTalk(t, alice)

	h.do(t, func() {
		house := h.srv.Map().House(9)
		require.NotNil(t, house)
		assert.Equal(t, "Lakeside", house.Name)
		assert.True(t, house.HasExit)
		assert.Equal(t, "Renamed", h.srv.Map().House(1).Name)
	})

	sendRecord(t, alice, func(m *protocol.Message) {
		protocol.WriteRemoveHouse(m, 9)
		protocol.WriteClientTalk(m, "sync")
	})
	expectTalk(t, alice)
	h.do(t, func() { assert.Nil(t, h.srv.Map().House(9)) })
}

func TestServer_UnknownEditorPacketCloses(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")

	sendRecord(t, alice, func(m *protocol.Message) { m.WriteType(protocol.Kick) })
	testutil.ExpectClosed(t, alice)
}

func TestServer_DisconnectFreesIDAndVisibility(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")
	requestNode(t, alice, 0, 0, false)
	require.NoError(t, alice.Close())

	testutil.WaitFor(t, func() bool {
		var n int
		h.do(t, func() { n = len(h.srv.Clients()) })
		return n == 0
	}, 2*time.Second)

	h.do(t, func() {
		assert.False(t, h.srv.Map().NodeLeaf(0, 0).IsVisibleTo(1, false))
	})

	h.join(t, "bob")
	h.do(t, func() {
		clients := h.srv.Clients()
		require.Len(t, clients, 1)
		assert.Equal(t, uint32(1), clients[0].ID, "freed id is reused")
	})
}

func TestServer_RunOperation(t *testing.T) {
	h := startServer(t, nil)
	alice := h.join(t, "alice")

	h.do(t, func() {
		err := h.srv.RunOperation("Replacing items", func(progress func(int)) error {
			progress(10)
			return nil
		})
		require.NoError(t, err)
	})

	r := testutil.ExpectMessage(t, alice, protocol.StartOperation)
	name, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Replacing items", name)

	// 10% отброшено троттлингом, 100% отправляется всегда
	r = testutil.ExpectMessage(t, alice, protocol.UpdateOperation)
	pct, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), pct)
}

// fillFloors covers every tile of floors with ground.
func fillFloors(t *testing.T, h *testHost, floors ...int) {
	t.Helper()
	h.do(t, func() {
		for _, z := range floors {
			for x := range constants.TestMapSize {
				for y := range constants.TestMapSize {
					id := uint16(4526 + (x+y)%3)
					h.srv.Map().SetTile(&model.Tile{Pos: model.Pos(x, y, z), Ground: model.NewItem(id)})
				}
			}
		}
	})
}

// allNodeIDs lists every node half of the fixture map.
func allNodeIDs(underground bool) []uint32 {
	side := constants.TestMapSize / constants.LeafSize
	ids := make([]uint32, 0, side*side*2)
	for ndx := range side {
		for ndy := range side {
			ids = append(ids, world.EncodeNodeID(ndx, ndy, false))
			if underground {
				ids = append(ids, world.EncodeNodeID(ndx, ndy, true))
			}
		}
	}
	return ids
}

// collectNodes reads messages until want NODE records arrived and applies
// them to a fresh mirror. It also returns how many messages carried them.
func collectNodes(t *testing.T, conn net.Conn, want int) (*world.Map, int) {
	t.Helper()

	mirror := world.New("mirror", constants.TestMapSize, constants.TestMapSize)
	q := action.NewQueue(mirror, config.DefaultUndo())
	got, messages := 0, 0
	for got < want {
		r := testutil.ReadMessage(t, conn)
		messages++
		for r.Remaining() > 0 {
			testutil.ExpectRecord(t, r, protocol.Node)
			n, err := readNode(r)
			require.NoError(t, err)
			ndx, ndy, _ := world.DecodeNodeID(n.id)
			a := q.CreateAction(action.KindRemote)
			for _, f := range n.floors {
				nodeChanges(a, ndx, ndy, f)
			}
			q.AddAction(a, 0)
			got++
		}
	}
	require.Equal(t, want, got)
	return mirror, messages
}

func TestServer_RequestFullViewport(t *testing.T) {
	h := startServer(t, func(c *config.LiveServer) { c.SendQueueSize = 2 })
	fillFloors(t, h, constants.GroundLayer, constants.GroundLayer+1)
	conn := h.join(t, "alice")

	ids := allNodeIDs(true)
	require.Len(t, ids, 512)
	sendRecord(t, conn, func(m *protocol.Message) { protocol.WriteRequestNodes(m, ids) })

	mirror, messages := collectNodes(t, conn, len(ids))
	assert.Less(t, messages, len(ids), "node records share messages")

	side := constants.TestMapSize / constants.LeafSize
	h.do(t, func() {
		doc := h.srv.Map()
		for _, z := range []int{constants.GroundLayer, constants.GroundLayer + 1} {
			for x := range constants.TestMapSize {
				for y := range constants.TestMapSize {
					pos := model.Pos(x, y, z)
					require.True(t, doc.Tile(pos).Equal(mirror.Tile(pos)), "tile %s", pos)
				}
			}
		}
		assert.True(t, doc.NodeLeaf(side-1, side-1).IsVisibleTo(1, true))
		assert.True(t, doc.NodeLeaf(side-1, side-1).IsVisibleTo(1, false))
		assert.Len(t, h.srv.Clients(), 1)
		h.srv.BroadcastChat("host", "still here")
	})
	assert.Equal(t, "still here", expectTalk(t, conn).Message)
}

func TestServer_BulkBroadcastKeepsPeer(t *testing.T) {
	h := startServer(t, func(c *config.LiveServer) { c.SendQueueSize = 2 })
	fillFloors(t, h, constants.GroundLayer)
	conn := h.join(t, "alice")

	ids := allNodeIDs(false)
	sendRecord(t, conn, func(m *protocol.Message) { protocol.WriteRequestNodes(m, ids) })
	collectNodes(t, conn, len(ids))

	h.do(t, func() {
		q := h.srv.Queue()
		a := q.CreateAction(action.KindDraw)
		for x := range constants.TestMapSize {
			for y := range constants.TestMapSize {
				a.AddChange(action.NewTileChange(&model.Tile{
					Pos:    model.Pos(x, y, constants.GroundLayer),
					Ground: model.NewItem(598),
				}))
			}
		}
		q.AddAction(a, 0)
	})

	mirror, messages := collectNodes(t, conn, len(ids))
	assert.Less(t, messages, len(ids))
	for x := range constants.TestMapSize {
		for y := range constants.TestMapSize {
			tile := mirror.Tile(model.Pos(x, y, constants.GroundLayer))
			require.NotNil(t, tile)
			require.Equal(t, uint16(598), tile.Ground.ID)
		}
	}

	h.do(t, func() {
		assert.Len(t, h.srv.Clients(), 1)
		h.srv.BroadcastChat("host", "done")
	})
	assert.Equal(t, "done", expectTalk(t, conn).Message)
}

func TestReadDeadline(t *testing.T) {
	assert.True(t, readDeadline(0).IsZero())
	assert.True(t, readDeadline(-time.Second).IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Minute), readDeadline(time.Minute), time.Second)
}

func TestServer_IdlePeer(t *testing.T) {
	t.Run("no read timeout keeps a silent peer", func(t *testing.T) {
		h := startServer(t, func(c *config.LiveServer) { c.ReadTimeout = 0 })
		conn := h.join(t, "watcher")

		time.Sleep(300 * time.Millisecond)
		h.do(t, func() {
			assert.Len(t, h.srv.Clients(), 1)
			h.srv.BroadcastChat("host", "ping")
		})
		assert.Equal(t, "ping", expectTalk(t, conn).Message)
	})

	t.Run("read timeout drops a silent peer", func(t *testing.T) {
		h := startServer(t, func(c *config.LiveServer) { c.ReadTimeout = 200 * time.Millisecond })
		conn := h.join(t, "watcher")

		testutil.ExpectClosed(t, conn)
		testutil.WaitFor(t, func() bool {
			var n int
			h.do(t, func() { n = len(h.srv.Clients()) })
			return n == 0
		}, 2*time.Second)
	})
}

func TestServer_PasswordVerdictComesFromConnection(t *testing.T) {
	h := startServer(t, nil)
	hello := validHello()
	m := protocol.NewMessage()
	hello.Write(m)

	p := newPeer(nil, 0)
	p.setState(PeerAwaitingHello)
	assert.False(t, h.srv.passwordAccepted(p, hello.Password), "a hello without a verdict is refused")

	h.srv.precheckHello(p, m.Body())
	require.NotNil(t, p.hello)
	assert.True(t, h.srv.passwordAccepted(p, hello.Password))
	assert.Nil(t, p.hello, "a verdict is used once")

	h.srv.precheckHello(p, m.Body())
	assert.False(t, h.srv.passwordAccepted(p, "other"), "the verdict belongs to the checked password")

	p.setState(PeerConnected)
	h.srv.precheckHello(p, m.Body())
	assert.Nil(t, p.hello, "connected peers are not checked again")
}
