package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/otbm"
	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/world"
)

// ClientState is the state of a client session.
type ClientState int32

const (
	ClientResolving      ClientState = iota // looking up the host
	ClientConnecting                        // dialing resolved endpoints
	ClientConnected                         // connected, hello not sent yet
	ClientAwaitingAccept                    // hello sent, waiting for the map
	ClientReady                             // map received, editing
	ClientClosed                            // session ended
)

func (s ClientState) String() string {
	switch s {
	case ClientResolving:
		return "RESOLVING"
	case ClientConnecting:
		return "CONNECTING"
	case ClientConnected:
		return "CONNECTED"
	case ClientAwaitingAccept:
		return "AWAITING_ACCEPT"
	case ClientReady:
		return "READY"
	case ClientClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// maxChangeChunk is the largest CHANGE_LIST tile stream (u16 string length).
const maxChangeChunk = 0xFFFF

// Client joins a live session and mirrors the host's map.
//
// The map and its queue exist once HELLO_FROM_SERVER arrives. They, and every
// method documented as dispatcher-only, belong to the dispatcher goroutine.
type Client struct {
	cfg        config.LiveClient
	dispatcher *Dispatcher
	notifier   Notifier
	log        LogTab
	pool       *BytePool

	state atomic.Int32
	link  *link

	doc       *world.Map
	queue     *action.Queue
	cursors   map[uint32]protocol.Cursor
	pending   []uint32
	writer    *otbm.Writer
	operation string
}

// NewClient creates a client session. Nil notifier and log are replaced with
// no-op and slog implementations.
func NewClient(cfg config.LiveClient, d *Dispatcher, notifier Notifier, log LogTab) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid live client config: %w", err)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = NewSlogTab(nil)
	}
	c := &Client{
		cfg:        cfg,
		dispatcher: d,
		notifier:   notifier,
		log:        log,
		pool:       NewBytePool(constants.DefaultMessageCapacity),
		cursors:    make(map[uint32]protocol.Cursor),
		writer:     otbm.NewWriter(constants.DefaultMessageCapacity),
	}
	c.state.Store(int32(ClientResolving))
	return c, nil
}

// State returns the session state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(s ClientState) {
	c.state.Store(int32(s))
}

// Map returns the mirrored map, nil before the host's hello. Dispatcher-only.
func (c *Client) Map() *world.Map { return c.doc }

// Queue returns the networked history of the mirrored map. Dispatcher-only.
func (c *Client) Queue() *action.Queue { return c.queue }

// Connect dials the host and sends the hello.
// Resolved endpoints are tried in order until one accepts.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(ClientClosed)
		return err
	}

	c.link = newLink(conn, c.pool, c.cfg.SendQueueSize, c.cfg.WriteTimeout)
	go c.link.writePump()
	c.setState(ClientConnected)
	slog.Info("connected to live server", "remote", c.link.remote)

	m := protocol.GetMessage()
	defer m.Put()
	protocol.Hello{
		EditorVersion: constants.EditorVersionID,
		NetVersion:    constants.LiveNetVersion,
		ClientVersion: c.cfg.ClientVersion,
		Name:          c.cfg.Name,
		Password:      c.cfg.Password,
	}.Write(m)
	if err := c.link.Send(m); err != nil {
		c.Close()
		return fmt.Errorf("sending hello: %w", err)
	}
	c.setState(ClientAwaitingAccept)
	return nil
}

func (c *Client) dial(ctx context.Context) (frameConn, error) {
	timeout := c.cfg.DialTimeout
	if timeout <= 0 {
		timeout = constants.DefaultDialTimeout
	}

	if c.cfg.WebSocketURL != "" {
		c.setState(ClientConnecting)
		return dialWebSocket(ctx, c.cfg.WebSocketURL, timeout, constants.MaxMessageSize)
	}

	c.setState(ClientResolving)
	addrs, err := net.DefaultResolver.LookupHost(ctx, c.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", c.cfg.Host, err)
	}

	c.setState(ClientConnecting)
	dialer := net.Dialer{Timeout: timeout}
	port := strconv.Itoa(c.cfg.Port)
	var errs []error
	for _, a := range addrs {
		addr := net.JoinHostPort(a, port)
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			slog.Warn("connect failed, trying next endpoint", "address", addr, "error", err)
			errs = append(errs, err)
			continue
		}
		return newStreamConn(conn, constants.MaxMessageSize), nil
	}
	return nil, fmt.Errorf("connecting to %s: %w", c.cfg.Host, errors.Join(errs...))
}

// Run reads from the host until the connection ends or ctx is cancelled.
// Records are handled on the dispatcher. The notifier's Closed is called on exit.
func (c *Client) Run(ctx context.Context) error {
	if c.link == nil {
		return fmt.Errorf("run before connect: %w", ErrClosed)
	}
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()
	defer c.finish()

	var buf []byte
	for {
		body, err := c.link.conn.ReadFrame(buf)
		if err != nil {
			if ctx.Err() != nil || isClosed(err) || c.link.Closing() {
				slog.Info("disconnected from live server", "remote", c.link.remote)
				return nil
			}
			return fmt.Errorf("reading from host: %w", err)
		}
		buf = body[:0]

		var perr error
		if err := c.dispatcher.Do(ctx, func() { perr = c.receive(body) }); err != nil {
			return nil
		}
		if perr != nil {
			c.Close()
			if errors.Is(perr, ErrKicked) {
				return perr
			}
			return fmt.Errorf("handling host message: %w", perr)
		}
	}
}

func (c *Client) finish() {
	c.Close()
	c.setState(ClientClosed)
	_ = c.dispatcher.Post(context.Background(), func() {
		c.log.Disconnect()
		c.notifier.Closed()
	})
}

// Close ends the session.
func (c *Client) Close() {
	if c.link != nil {
		c.link.Close()
	}
}

func (c *Client) receive(body []byte) error {
	r := protocol.NewReader(body)
	for r.Remaining() > 0 {
		typ, err := r.ReadType()
		if err != nil {
			return err
		}
		if err := c.parse(typ, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) parse(typ protocol.PacketType, r *protocol.Reader) error {
	switch typ {
	case protocol.HelloFromServer:
		return c.handleHello(r)
	case protocol.Kick:
		return c.handleKick(r)
	case protocol.AcceptedClient:
		return c.sendReady()
	case protocol.ChangeClientVersion:
		return c.handleChangeVersion(r)
	case protocol.ServerTalk, protocol.ChatMessage:
		return c.handleTalk(r)
	case protocol.Node:
		return c.handleNode(r)
	case protocol.CursorUpdate:
		return c.handleCursor(r)
	case protocol.StartOperation:
		return c.handleStartOperation(r)
	case protocol.UpdateOperation:
		return c.handleUpdateOperation(r)
	default:
		slog.Warn("unknown packet from host", "type", typ)
		return fmt.Errorf("host packet %s: %w", typ, ErrProtocolViolation)
	}
}

func (c *Client) handleHello(r *protocol.Reader) error {
	hello, err := protocol.ParseServerHello(r)
	if err != nil {
		return fmt.Errorf("parsing server hello: %w: %w", ErrProtocolViolation, err)
	}

	c.doc = world.New("Live Map - "+hello.MapName, int(hello.Width), int(hello.Height))
	c.doc.SetGated(true)
	c.doc.SetClientVersion(c.cfg.ClientVersion)
	c.queue = action.NewNetworkedQueue(c.doc, c.cfg.Undo, c)
	c.setState(ClientReady)

	c.log.Message(fmt.Sprintf("Connected to %s.", hello.MapName))
	c.notifier.MapReady(c.doc)
	return nil
}

func (c *Client) handleKick(r *protocol.Reader) error {
	reason, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("parsing kick: %w: %w", ErrProtocolViolation, err)
	}
	c.log.Message(fmt.Sprintf("Disconnected: %s", reason))
	c.notifier.Alert("Disconnected", reason)
	return fmt.Errorf("%s: %w", reason, ErrKicked)
}

func (c *Client) handleChangeVersion(r *protocol.Reader) error {
	version, err := r.ReadU32()
	if err != nil {
		return fmt.Errorf("parsing client version: %w: %w", ErrProtocolViolation, err)
	}
	if err := c.notifier.SwitchVersion(version); err != nil {
		return fmt.Errorf("switching to client version %d: %w", version, err)
	}
	c.cfg.ClientVersion = version
	return c.sendReady()
}

func (c *Client) sendReady() error {
	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteReady(m)
	return c.link.Send(m)
}

func (c *Client) handleTalk(r *protocol.Reader) error {
	talk, err := protocol.ParseTalk(r)
	if err != nil {
		return fmt.Errorf("parsing talk: %w: %w", ErrProtocolViolation, err)
	}
	c.log.Chat(talk.Speaker, talk.Message)
	return nil
}

// handleNode mirrors one node half. A node that was never requested is
// skipped; the record is still consumed.
func (c *Client) handleNode(r *protocol.Reader) error {
	n, err := readNode(r)
	if err != nil {
		return fmt.Errorf("parsing node: %w: %w", ErrProtocolViolation, err)
	}
	if c.doc == nil {
		return fmt.Errorf("node before server hello: %w", ErrProtocolViolation)
	}

	ndx, ndy, underground := world.DecodeNodeID(n.id)
	leaf := c.doc.NodeLeaf(ndx, ndy)
	if leaf == nil {
		slog.Warn("received node that was never requested", "ndx", ndx, "ndy", ndy)
		return nil
	}
	leaf.SetRequested(underground, false)
	leaf.SetVisible(underground, true)

	a := c.queue.CreateAction(action.KindRemote)
	for _, f := range n.floors {
		nodeChanges(a, ndx, ndy, f)
	}
	c.queue.AddAction(a, 0)
	c.notifier.Refresh()
	return nil
}

func (c *Client) handleCursor(r *protocol.Reader) error {
	cur, err := protocol.ParseCursor(r)
	if err != nil {
		return fmt.Errorf("parsing cursor: %w: %w", ErrProtocolViolation, err)
	}
	c.cursors[cur.ID] = cur
	c.notifier.Refresh()
	return nil
}

func (c *Client) handleStartOperation(r *protocol.Reader) error {
	name, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("parsing operation: %w: %w", ErrProtocolViolation, err)
	}
	c.operation = name
	c.notifier.SetStatus(fmt.Sprintf("Server Operation in Progress: %s... (0%%)", name))
	return nil
}

func (c *Client) handleUpdateOperation(r *protocol.Reader) error {
	percent, err := r.ReadU32()
	if err != nil {
		return fmt.Errorf("parsing operation progress: %w: %w", ErrProtocolViolation, err)
	}
	if percent >= 100 {
		c.notifier.SetStatus("Server Operation Finished.")
		return nil
	}
	c.notifier.SetStatus(fmt.Sprintf("Server Operation in Progress: %s... (%d%%)", c.operation, percent))
	return nil
}

// QueryNode queues a request for one node half unless it was already
// received or requested. Dispatcher-only.
func (c *Client) QueryNode(ndx, ndy int, underground bool) {
	leaf := c.doc.CreateLeaf(ndx*constants.LeafSize, ndy*constants.LeafSize)
	if leaf.IsVisible(underground) || leaf.IsRequested(underground) {
		return
	}
	leaf.SetRequested(underground, true)
	c.pending = append(c.pending, world.EncodeNodeID(ndx, ndy, underground))
}

// FlushNodeRequests sends queued node requests as one REQUEST_NODES.
// Dispatcher-only.
func (c *Client) FlushNodeRequests() error {
	if len(c.pending) == 0 {
		return nil
	}
	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteRequestNodes(m, c.pending)
	c.pending = c.pending[:0]
	return c.link.Send(m)
}

// RequestViewport requests every node covering the tile rectangle on floor z.
// Dispatcher-only.
func (c *Client) RequestViewport(x1, y1, x2, y2, z int) error {
	if c.doc == nil {
		return fmt.Errorf("viewport before server hello: %w", ErrClosed)
	}
	x1, x2 = max(0, min(x1, x2)), min(max(x1, x2), c.doc.Width()-1)
	y1, y2 = max(0, min(y1, y2)), min(max(y1, y2), c.doc.Height()-1)
	underground := z > constants.GroundLayer

	for ndy := y1 >> constants.LeafShift; ndy <= y2>>constants.LeafShift; ndy++ {
		for ndx := x1 >> constants.LeafShift; ndx <= x2>>constants.LeafShift; ndx++ {
			c.QueryNode(ndx, ndy, underground)
		}
	}
	return c.FlushNodeRequests()
}

// BroadcastNodes uploads the tiles changed by a local commit or undo.
// Remote actions carry no changes, so mirrored nodes are never echoed back.
// Implements action.Broadcaster.
func (c *Client) BroadcastNodes(dirty *action.DirtyList) {
	if err := c.SendChanges(dirty); err != nil {
		slog.Warn("sending changes", "error", err)
	}
}

// SendChanges writes the current tiles at the dirty list's changed positions
// as CHANGE_LIST records. Dispatcher-only.
func (c *Client) SendChanges(dirty *action.DirtyList) error {
	positions := dirty.Changes()
	if len(positions) == 0 {
		return nil
	}

	seen := make(map[model.Position]struct{}, len(positions))
	tiles := make([]*model.Tile, 0, len(positions))
	for _, pos := range positions {
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		t := c.doc.Tile(pos)
		if t == nil {
			t = model.NewTile(pos)
		}
		tiles = append(tiles, t)
	}

	m := protocol.GetMessage()
	defer m.Put()
	chunk := len(tiles)
	for start := 0; start < len(tiles); {
		end := min(start+chunk, len(tiles))
		data, err := otbm.EncodeTiles(c.writer, tiles[start:end], otbm.CoordsAbsolute)
		if err != nil {
			return fmt.Errorf("encoding changes: %w", err)
		}
		if len(data) > maxChangeChunk && end-start > 1 {
			chunk = max(1, (end-start)/2)
			continue
		}
		m.WriteType(protocol.ChangeList)
		if err := m.WriteBytes(data); err != nil {
			return fmt.Errorf("tile at %s: %w", tiles[start].Pos, err)
		}
		start = end
	}
	return c.link.Send(m)
}

// SendChat sends a chat line to the host.
func (c *Client) SendChat(text string) error {
	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteClientTalk(m, text)
	return c.link.Send(m)
}

// UpdateCursor sends the local cursor position with the configured color.
func (c *Client) UpdateCursor(pos model.Position) error {
	col := c.cfg.CursorColor
	m := protocol.GetMessage()
	defer m.Put()
	protocol.Cursor{
		Color: protocol.Color{R: col.R, G: col.G, B: col.B, A: col.A},
		Pos:   pos,
	}.WriteClient(m)
	return c.link.Send(m)
}

// SendHouse uploads a new or edited house.
func (c *Client) SendHouse(h *model.House, add bool) error {
	typ := protocol.EditHouse
	if add {
		typ = protocol.AddHouse
	}
	m := protocol.GetMessage()
	defer m.Put()
	protocol.HouseInfo{ID: h.ID, Name: h.Name, TownID: h.TownID, Exit: h.Exit}.Write(m, typ)
	return c.link.Send(m)
}

// SendRemoveHouse asks the host to delete a house.
func (c *Client) SendRemoveHouse(id uint32) error {
	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteRemoveHouse(m, id)
	return c.link.Send(m)
}

// Cursors returns the known remote cursors ordered by id. Dispatcher-only.
func (c *Client) Cursors() []protocol.Cursor {
	out := make([]protocol.Cursor, 0, len(c.cursors))
	for _, cur := range c.cursors {
		out = append(out, cur)
	}
	slices.SortFunc(out, func(a, b protocol.Cursor) int { return int(a.ID) - int(b.ID) })
	return out
}
