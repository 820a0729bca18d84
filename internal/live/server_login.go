package live

import (
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/protocol"
)

// Kick reasons.
const (
	kickWrongEditorVersion   = "Wrong editor version."
	kickWrongProtocolVersion = "Wrong protocol version."
	kickWrongPassword        = "Wrong password."
	kickServerFull           = "Server is full."
)

// parseLogin handles records from a peer that has not finished the handshake.
func (s *Server) parseLogin(p *Peer, typ protocol.PacketType, r *protocol.Reader) error {
	switch {
	case typ == protocol.HelloFromClient && p.State() == PeerAwaitingHello:
		return s.handleHello(p, r)
	case typ == protocol.ReadyClient && p.State() == PeerAwaitingReady:
		return s.handleReady(p)
	default:
		slog.Warn("invalid login packet", "remote", p.remote, "type", typ, "state", p.State())
		return fmt.Errorf("login packet %s in state %s: %w", typ, p.State(), ErrProtocolViolation)
	}
}

func (s *Server) handleHello(p *Peer, r *protocol.Reader) error {
	hello, err := protocol.ParseHello(r)
	if err != nil {
		return fmt.Errorf("parsing hello: %w: %w", ErrProtocolViolation, err)
	}

	if hello.EditorVersion != constants.EditorVersionID {
		return s.kick(p, kickWrongEditorVersion)
	}
	if hello.NetVersion != constants.LiveNetVersion {
		return s.kick(p, kickWrongProtocolVersion)
	}
	if !s.passwordAccepted(p, hello.Password) {
		return s.kick(p, kickWrongPassword)
	}

	p.nick = hello.Name
	p.clientVersion = hello.ClientVersion
	s.log.Message(fmt.Sprintf("%s (%s) connected.", p.nick, p.remote))

	m := protocol.GetMessage()
	defer m.Put()
	if hello.ClientVersion != s.version {
		protocol.WriteChangeClientVersion(m, s.version)
	} else {
		protocol.WriteAccepted(m)
	}
	p.setState(PeerAwaitingReady)
	return p.Send(m)
}

func (s *Server) handleReady(p *Peer) error {
	id, ok := s.allocateID()
	if !ok {
		return s.kick(p, kickServerFull)
	}

	p.id = id
	p.setState(PeerConnected)
	s.clients[id] = p
	s.updateClientList()
	slog.Info("peer joined", "id", id, "nick", p.nick, "remote", p.remote)

	m := protocol.GetMessage()
	defer m.Put()
	protocol.ServerHello{
		MapName: s.doc.Name(),
		Width:   uint16(s.doc.Width()),
		Height:  uint16(s.doc.Height()),
	}.Write(m)
	return p.Send(m)
}

// helloCheck is the password verdict for a HELLO, computed on the
// connection goroutine so bcrypt never runs on the dispatcher.
type helloCheck struct {
	password string
	ok       bool
}

// precheckHello verifies the password of a message whose first record is
// HELLO_FROM_CLIENT from a peer awaiting hello. Other messages are ignored.
func (s *Server) precheckHello(p *Peer, body []byte) {
	if len(s.passwordHash) == 0 || p.State() != PeerAwaitingHello {
		return
	}
	r := protocol.NewReader(body)
	if typ, err := r.ReadType(); err != nil || typ != protocol.HelloFromClient {
		return
	}
	hello, err := protocol.ParseHello(r)
	if err != nil {
		return
	}
	p.hello = &helloCheck{password: hello.Password, ok: s.checkPassword(hello.Password)}
}

// passwordAccepted consumes the verdict left by precheckHello. A hello that
// was not prechecked is refused.
func (s *Server) passwordAccepted(p *Peer, password string) bool {
	if len(s.passwordHash) == 0 {
		return true
	}
	c := p.hello
	p.hello = nil
	return c != nil && c.ok && c.password == password
}

// checkPassword compares against the bcrypt hash. No hash means an open session.
func (s *Server) checkPassword(password string) bool {
	if len(s.passwordHash) == 0 {
		return true
	}
	return bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
}

// kick sends KICK and closes the peer once it is written.
func (s *Server) kick(p *Peer, reason string) error {
	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteKick(m, reason)
	p.SendAndClose(m)

	name := p.nick
	if name == "" {
		name = p.remote
	}
	if kl, ok := s.log.(KickLogger); ok {
		kl.Kicked(name, reason)
	} else {
		s.log.Message(fmt.Sprintf("%s was kicked: %s", name, reason))
	}
	return fmt.Errorf("%s: %w", reason, ErrKicked)
}
