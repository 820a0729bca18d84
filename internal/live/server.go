// Package live implements the collaborative editing transport: a host Server
// that owns the document and serves it to remote editors, the Client that
// mirrors it, and the Dispatcher that keeps every document mutation on a
// single goroutine.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/config"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/otbm"
	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/world"
)

// Server hosts a live session for one map.
//
// All fields below mu are owned by the dispatcher goroutine.
type Server struct {
	cfg          config.LiveServer
	doc          *world.Map
	queue        *action.Queue
	dispatcher   *Dispatcher
	log          LogTab
	pool         *BytePool
	upgrader     websocket.Upgrader
	passwordHash []byte
	version      uint32

	mu       sync.Mutex
	listener net.Listener

	peers   map[*Peer]struct{}
	clients map[uint32]*Peer
	idMask  uint32
	cursors map[uint32]protocol.Cursor
	writer  *otbm.Writer

	operation       string
	operationPct    int
	operationUpdate time.Time
}

// NewServer creates a host for doc. Document access goes through d, which the
// caller runs. A nil log writes to slog.
func NewServer(cfg config.LiveServer, doc *world.Map, d *Dispatcher, log LogTab) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid live server config: %w", err)
	}
	if log == nil {
		log = NewSlogTab(nil)
	}

	s := &Server{
		cfg:        cfg,
		doc:        doc,
		dispatcher: d,
		log:        log,
		pool:       NewBytePool(constants.DefaultMessageCapacity),
		upgrader:   newUpgrader(),
		version:    doc.ClientVersion(),
		peers:      make(map[*Peer]struct{}),
		clients:    make(map[uint32]*Peer),
		idMask:     1 << constants.HostClientID,
		cursors:    make(map[uint32]protocol.Cursor),
		writer:     otbm.NewWriter(constants.DefaultMessageCapacity),
	}
	if cfg.ClientVersion != 0 {
		s.version = cfg.ClientVersion
	}
	s.queue = action.NewNetworkedQueue(doc, cfg.Undo, s)

	switch {
	case cfg.PasswordHash != "":
		s.passwordHash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing session password: %w", err)
		}
		s.passwordHash = hash
	}

	return s, nil
}

// Map returns the hosted document.
func (s *Server) Map() *world.Map { return s.doc }

// Queue returns the host's networked action history.
func (s *Server) Queue() *action.Queue { return s.queue }

// Dispatcher returns the document dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Addr returns the address the server is listening on.
// Returns nil if the server hasn't started yet.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener. Connected peers are closed when the context
// passed to Serve is cancelled.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port, plus the websocket endpoint when
// enabled, and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.BindAddress, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(gctx, ln) })
	if s.cfg.WebSocket.Enabled {
		g.Go(func() error { return s.ServeWebSocket(gctx) })
	}
	return g.Wait()
}

// Serve accepts connections from ln until ctx is cancelled, then waits for
// every connection handler to return.
// Used for testing with custom listeners.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	slog.Info("live server started", "address", ln.Addr(), "map", s.doc.Name())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("failed to accept new connection", "error", err)
			continue
		}

		// Enable TCP keepalive (detect dead connections)
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				slog.Warn("set keepalive failed", "error", err)
			}
			if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
				slog.Warn("set keepalive period failed", "error", err)
			}
		}

		wg.Go(func() {
			s.handleConnection(ctx, newStreamConn(conn, s.cfg.MaxMessageSize))
		})
	}
}

// WebSocketHandler serves websocket upgrades as live peers. Connections are
// closed when ctx is cancelled.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.handleConnection(ctx, newWSConn(conn, s.cfg.MaxMessageSize))
	})
}

// ServeWebSocket listens on cfg.WebSocket.Address until ctx is cancelled.
func (s *Server) ServeWebSocket(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.WebSocket.Path, s.WebSocketHandler(ctx))

	srv := &http.Server{
		Addr:              s.cfg.WebSocket.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	slog.Info("live websocket endpoint started", "address", srv.Addr, "path", s.cfg.WebSocket.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket on %s: %w", srv.Addr, err)
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn frameConn) {
	peer := newPeer(newLink(conn, s.pool, s.cfg.SendQueueSize, s.cfg.WriteTimeout), s.cfg.CursorRate)
	go peer.writePump()

	stop := context.AfterFunc(ctx, peer.Close)
	defer stop()
	defer s.disconnect(peer)

	slog.Info("new live connection", "remote", peer.remote)

	if err := s.dispatcher.Do(ctx, func() {
		s.peers[peer] = struct{}{}
		peer.setState(PeerAwaitingHello)
	}); err != nil {
		return
	}

	var buf []byte
	for {
		if err := conn.SetReadDeadline(readDeadline(s.cfg.ReadTimeout)); err != nil {
			slog.Warn("setting read deadline", "remote", peer.remote, "error", err)
			return
		}
		body, err := conn.ReadFrame(buf)
		if err != nil {
			if isClosed(err) || peer.Closing() {
				slog.Info("peer disconnected", "remote", peer.remote, "nick", peer.nick)
			} else {
				slog.Warn("reading from peer", "remote", peer.remote, "error", err)
			}
			return
		}
		buf = body[:0]
		s.precheckHello(peer, body)

		var perr error
		if err := s.dispatcher.Do(ctx, func() { perr = s.receive(peer, body) }); err != nil {
			return
		}
		if perr != nil {
			if errors.Is(perr, ErrKicked) {
				slog.Info("peer kicked", "remote", peer.remote, "error", perr)
			} else {
				slog.Warn("closing peer", "remote", peer.remote, "error", perr)
			}
			return
		}
	}
}

// readDeadline returns the deadline for the next read from a peer.
// A non-positive timeout yields the zero time, which means no deadline.
func readDeadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// disconnect releases the peer's id and visibility and closes it.
func (s *Server) disconnect(p *Peer) {
	if p.Closing() {
		p.Flush(p.writeTimeout)
	}
	p.Close()

	_ = s.dispatcher.Do(context.Background(), func() {
		delete(s.peers, p)
		if p.id != constants.HostClientID && s.clients[p.id] == p {
			delete(s.clients, p.id)
			delete(s.cursors, p.id)
			s.idMask &^= 1 << p.id
			s.doc.ClearVisible(p.id)
			s.log.Message(fmt.Sprintf("%s disconnected.", p.nick))
			s.updateClientList()
		}
		p.setState(PeerDisconnected)
	})
}

// receive parses every record of one message. Records are dispatched by the
// peer's state; a non-nil error closes the connection.
func (s *Server) receive(p *Peer, body []byte) error {
	r := protocol.NewReader(body)
	for r.Remaining() > 0 {
		typ, err := r.ReadType()
		if err != nil {
			return err
		}
		switch p.State() {
		case PeerAwaitingHello, PeerAwaitingReady:
			err = s.parseLogin(p, typ, r)
		case PeerConnected:
			err = s.parseEditor(p, typ, r)
		default:
			err = ErrClosed
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clients returns the connected editors ordered by id.
// Must be called on the dispatcher goroutine.
func (s *Server) Clients() []PeerInfo {
	out := make([]PeerInfo, 0, len(s.clients))
	for _, p := range s.clients {
		out = append(out, p.Info())
	}
	slices.SortFunc(out, func(a, b PeerInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

func (s *Server) updateClientList() {
	s.log.UpdateClientList(s.Clients())
}

// allocateID takes the lowest free client id.
func (s *Server) allocateID() (uint32, bool) {
	limit := uint32(constants.MaxLiveClients - 1)
	if s.cfg.MaxPeers > 0 && uint32(s.cfg.MaxPeers) < limit {
		limit = uint32(s.cfg.MaxPeers)
	}
	for id := uint32(1); id <= limit; id++ {
		if s.idMask&(1<<id) == 0 {
			s.idMask |= 1 << id
			return id, true
		}
	}
	return 0, false
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
