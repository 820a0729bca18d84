package live

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/livemap/internal/action"
	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
	"github.com/udisondev/livemap/internal/otbm"
	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/world"
)

// parseEditor handles records from a connected peer.
func (s *Server) parseEditor(p *Peer, typ protocol.PacketType, r *protocol.Reader) error {
	switch typ {
	case protocol.RequestNodes:
		return s.handleRequestNodes(p, r)
	case protocol.ChangeList:
		return s.handleChangeList(p, r)
	case protocol.AddHouse, protocol.EditHouse:
		return s.handleHouse(p, typ, r)
	case protocol.RemoveHouse:
		return s.handleRemoveHouse(p, r)
	case protocol.ClientTalk:
		return s.handleTalk(p, r)
	case protocol.ClientUpdateCursor:
		return s.handleCursor(p, r)
	default:
		slog.Warn("invalid editor packet", "remote", p.remote, "id", p.id, "type", typ)
		return fmt.Errorf("editor packet %s: %w", typ, ErrProtocolViolation)
	}
}

func (s *Server) handleRequestNodes(p *Peer, r *protocol.Reader) error {
	ids, err := protocol.ParseRequestNodes(r, constants.MaxNodesPerRequest)
	if err != nil {
		return fmt.Errorf("parsing node request: %w: %w", ErrProtocolViolation, err)
	}

	batch := s.newNodeBatch(p)
	defer batch.release()
	for _, id := range ids {
		ndx, ndy, underground := world.DecodeNodeID(id)
		x, y := ndx*constants.LeafSize, ndy*constants.LeafSize
		if x >= s.doc.Width() || y >= s.doc.Height() {
			slog.Warn("node request outside the map", "id", p.id, "ndx", ndx, "ndy", ndy)
			continue
		}
		if err := batch.add(s.doc.CreateLeaf(x, y), world.FloorMask(underground)); err != nil {
			return err
		}
	}
	return batch.flush()
}

// nodeBatch packs the NODE records bound for one peer into messages of
// about NodeBatchSize bytes, so a whole viewport costs a few queue slots.
type nodeBatch struct {
	w *otbm.Writer
	p *Peer
	m *protocol.Message
}

func (s *Server) newNodeBatch(p *Peer) *nodeBatch {
	return &nodeBatch{w: s.writer, p: p, m: protocol.GetMessage()}
}

// add appends the floors of leaf in floorMask and marks that half as seen
// by the peer, so later edits there are pushed to it. A node that fails to
// encode is skipped; only send errors are returned.
func (b *nodeBatch) add(leaf *world.Leaf, floorMask uint16) error {
	mark := b.m.Len()
	if err := writeNode(b.m, b.w, leaf, floorMask); err != nil {
		b.m.Truncate(mark)
		slog.Warn("skipping node", "id", b.p.id, "error", err)
		return nil
	}
	leaf.SetVisibleTo(b.p.id, floorMask&constants.UndergroundFloorMask != 0, true)
	if b.m.Len() >= constants.NodeBatchSize {
		return b.flush()
	}
	return nil
}

// flush sends the pending records, if any.
func (b *nodeBatch) flush() error {
	if b.m.Empty() {
		return nil
	}
	err := b.p.Send(b.m)
	b.m.Reset()
	return err
}

func (b *nodeBatch) release() {
	b.m.Put()
}

// handleChangeList applies tiles uploaded by a peer as a remote action.
// Tiles that fail to decode are skipped.
func (s *Server) handleChangeList(p *Peer, r *protocol.Reader) error {
	data, err := r.ReadBytes()
	if err != nil {
		return fmt.Errorf("parsing change list: %w: %w", ErrProtocolViolation, err)
	}

	nodes, err := otbm.DecodeTileNodes(data)
	if err != nil {
		slog.Warn("dropping undecodable change list", "id", p.id, "error", err)
		return nil
	}

	a := s.queue.CreateAction(action.KindRemote)
	a.SetOwner(p.id)
	for _, n := range nodes {
		t, err := otbm.ReadTile(n, otbm.CoordsAbsolute, model.Position{})
		if err != nil {
			slog.Warn("skipping undecodable tile", "id", p.id, "error", err)
			continue
		}
		if !s.doc.InBounds(t.Pos) {
			slog.Warn("skipping tile outside the map", "id", p.id, "pos", t.Pos)
			continue
		}
		a.AddChange(action.NewTileChange(t))
	}
	s.queue.AddAction(a, 0)
	return nil
}

func (s *Server) handleHouse(p *Peer, typ protocol.PacketType, r *protocol.Reader) error {
	info, err := protocol.ParseHouseInfo(r)
	if err != nil {
		return fmt.Errorf("parsing %s: %w: %w", typ, ErrProtocolViolation, err)
	}

	h := s.doc.House(info.ID)
	switch {
	case h == nil && typ == protocol.EditHouse:
		slog.Warn("edit of unknown house", "id", p.id, "house", info.ID)
		return nil
	case h == nil:
		h = &model.House{ID: info.ID}
	default:
		h = h.Clone()
	}
	h.Name = info.Name
	h.TownID = info.TownID
	h.Exit = info.Exit
	h.HasExit = info.Exit != (model.Position{})
	s.doc.AddHouse(h)

	slog.Info("house updated by peer", "id", p.id, "house", h.ID, "name", h.Name)
	return nil
}

func (s *Server) handleRemoveHouse(p *Peer, r *protocol.Reader) error {
	id, err := r.ReadU32()
	if err != nil {
		return fmt.Errorf("parsing remove house: %w: %w", ErrProtocolViolation, err)
	}
	if !s.doc.RemoveHouse(id) {
		slog.Warn("removal of unknown house", "id", p.id, "house", id)
	}
	return nil
}

func (s *Server) handleTalk(p *Peer, r *protocol.Reader) error {
	text, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("parsing talk: %w: %w", ErrProtocolViolation, err)
	}
	s.BroadcastChat(p.nick, text)
	return nil
}

// handleCursor stores the peer's cursor and relays it to everyone else.
// Updates beyond the per-peer rate are stored but not relayed.
func (s *Server) handleCursor(p *Peer, r *protocol.Reader) error {
	c, err := protocol.ParseCursor(r)
	if err != nil {
		return fmt.Errorf("parsing cursor: %w: %w", ErrProtocolViolation, err)
	}
	c.ID = p.id
	p.color = c.Color
	s.cursors[p.id] = c

	if p.cursor.Allow() {
		s.broadcastCursor(c, p.id)
	}
	return nil
}

// BroadcastNodes pushes dirty nodes to every connected peer except the
// edit's owner. Each peer only gets the floor halves it has seen, packed
// into as few messages as the batch size allows.
// Implements action.Broadcaster.
func (s *Server) BroadcastNodes(dirty *action.DirtyList) {
	if len(s.clients) == 0 {
		return
	}
	entries := dirty.Entries()

	for id, p := range s.clients {
		if dirty.Owner != constants.HostClientID && id == dirty.Owner {
			continue
		}
		if err := s.broadcastNodesTo(p, entries); err != nil {
			slog.Warn("broadcasting nodes", "id", id, "error", err)
		}
	}
}

func (s *Server) broadcastNodesTo(p *Peer, entries []action.DirtyEntry) error {
	batch := s.newNodeBatch(p)
	defer batch.release()

	for _, e := range entries {
		ndx, ndy := e.NodeCoords()
		leaf := s.doc.NodeLeaf(ndx, ndy)
		if leaf == nil {
			continue
		}
		floors := uint16(e.Floors)
		if under := floors & constants.UndergroundFloorMask; under != 0 && leaf.IsVisibleTo(p.id, true) {
			if err := batch.add(leaf, under); err != nil {
				return err
			}
		}
		if surface := floors & constants.SurfaceFloorMask; surface != 0 && leaf.IsVisibleTo(p.id, false) {
			if err := batch.add(leaf, surface); err != nil {
				return err
			}
		}
	}
	return batch.flush()
}

// BroadcastChat sends a chat line to every connected peer and the log pane.
func (s *Server) BroadcastChat(speaker, text string) {
	m := protocol.GetMessage()
	defer m.Put()
	protocol.Talk{Speaker: speaker, Message: text}.Write(m)
	s.broadcast(m, constants.HostClientID, false)
	s.log.Chat(speaker, text)
}

// UpdateCursor moves the host's own cursor.
func (s *Server) UpdateCursor(pos model.Position, color protocol.Color) {
	c := protocol.Cursor{ID: constants.HostClientID, Color: color, Pos: pos}
	s.cursors[c.ID] = c
	s.broadcastCursor(c, constants.HostClientID)
}

// Cursors returns the last known cursor of the host and every peer.
func (s *Server) Cursors() []protocol.Cursor {
	out := make([]protocol.Cursor, 0, len(s.cursors))
	for id := range uint32(constants.MaxLiveClients) {
		if c, ok := s.cursors[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) broadcastCursor(c protocol.Cursor, origin uint32) {
	m := protocol.GetMessage()
	defer m.Put()
	c.Write(m)
	s.broadcast(m, origin, true)
}

// broadcast sends m to every connected peer, optionally skipping origin.
func (s *Server) broadcast(m *protocol.Message, origin uint32, skipOrigin bool) {
	for id, p := range s.clients {
		if skipOrigin && id == origin {
			continue
		}
		if err := p.Send(m); err != nil {
			slog.Debug("broadcast send failed", "id", id, "error", err)
		}
	}
}

// StartOperation announces a long-running host job.
func (s *Server) StartOperation(name string) {
	s.operation = name
	s.operationPct = 0
	s.operationUpdate = time.Now()

	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteStartOperation(m, name)
	s.broadcast(m, constants.HostClientID, false)
	s.log.Message(fmt.Sprintf("Operation started: %s", name))
}

// UpdateOperation reports progress of the current job. Updates are throttled;
// 100 is always sent.
func (s *Server) UpdateOperation(percent int) {
	percent = max(0, min(percent, 100))
	if percent == s.operationPct {
		return
	}
	now := time.Now()
	if percent < 100 && now.Sub(s.operationUpdate) < constants.OperationUpdateInterval {
		return
	}
	s.operationPct = percent
	s.operationUpdate = now

	m := protocol.GetMessage()
	defer m.Put()
	protocol.WriteUpdateOperation(m, uint32(percent))
	s.broadcast(m, constants.HostClientID, false)
}

// RunOperation wraps fn with START_OPERATION and UPDATE_OPERATION packets.
// fn reports progress in percent.
func (s *Server) RunOperation(name string, fn func(progress func(percent int)) error) error {
	s.StartOperation(name)
	err := fn(s.UpdateOperation)
	s.UpdateOperation(100)
	if err != nil {
		s.log.Message(fmt.Sprintf("Operation failed: %s: %v", name, err))
		return fmt.Errorf("operation %s: %w", name, err)
	}
	s.log.Message(fmt.Sprintf("Operation finished: %s", name))
	return nil
}
