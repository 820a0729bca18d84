package live

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/udisondev/livemap/internal/protocol"
)

// PeerState is the server-side state of one connection.
type PeerState int32

const (
	PeerConnecting    PeerState = iota // accepted, not yet registered
	PeerAwaitingHello                  // waiting for HELLO_FROM_CLIENT
	PeerAwaitingReady                  // hello accepted, waiting for READY_CLIENT
	PeerConnected                      // editing, has a client id
	PeerDisconnected                   // connection closed
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "CONNECTING"
	case PeerAwaitingHello:
		return "AWAITING_HELLO"
	case PeerAwaitingReady:
		return "AWAITING_READY"
	case PeerConnected:
		return "CONNECTED"
	case PeerDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Peer is a remote editor connected to the Server.
type Peer struct {
	*link

	// state использует atomic.Int32 для lock-free reads вне dispatcher
	state atomic.Int32

	// Поля ниже меняются только на горутине dispatcher
	id            uint32
	nick          string
	clientVersion uint32
	color         protocol.Color
	cursor        *rate.Limiter

	// hello пишется горутиной соединения до Do и читается внутри него
	hello *helloCheck
}

func newPeer(l *link, cursorRate time.Duration) *Peer {
	limit := rate.Inf
	if cursorRate > 0 {
		limit = rate.Every(cursorRate)
	}
	p := &Peer{
		link:   l,
		cursor: rate.NewLimiter(limit, 1),
	}
	p.state.Store(int32(PeerConnecting))
	return p
}

// State returns the connection state.
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

func (p *Peer) setState(s PeerState) {
	p.state.Store(int32(s))
}

// ID returns the client id, 0 until the peer is connected.
func (p *Peer) ID() uint32 { return p.id }

// Nick returns the name sent in the hello.
func (p *Peer) Nick() string { return p.nick }

// Color returns the last cursor color the peer used.
func (p *Peer) Color() protocol.Color { return p.color }

// Info returns the client list entry.
func (p *Peer) Info() PeerInfo {
	return PeerInfo{ID: p.id, Name: p.nick, Remote: p.remote, Color: p.color}
}
