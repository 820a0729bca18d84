// Package protocol defines the live editing wire format: length-prefixed
// messages made of {u8 type, payload} records, the typed primitives used in
// payloads and the packet layouts exchanged by host and clients.
package protocol

import (
	"fmt"

	"github.com/udisondev/livemap/internal/model"
)

// PacketType is the record type byte.
type PacketType uint8

// Client to host.
const (
	HelloFromClient    PacketType = 0x10
	ReadyClient        PacketType = 0x11
	RequestNodes       PacketType = 0x20
	ChangeList         PacketType = 0x21
	AddHouse           PacketType = 0x23
	EditHouse          PacketType = 0x24
	RemoveHouse        PacketType = 0x25
	ClientTalk         PacketType = 0x30
	ClientUpdateCursor PacketType = 0x31
)

// Host to client.
const (
	HelloFromServer     PacketType = 0x80
	Kick                PacketType = 0x81
	AcceptedClient      PacketType = 0x82
	ChangeClientVersion PacketType = 0x83
	ServerTalk          PacketType = 0x84
	Node                PacketType = 0x90
	CursorUpdate        PacketType = 0x91
	StartOperation      PacketType = 0x92
	UpdateOperation     PacketType = 0x93
	ChatMessage         PacketType = 0x94
)

func (t PacketType) String() string {
	switch t {
	case HelloFromClient:
		return "HELLO_FROM_CLIENT"
	case ReadyClient:
		return "READY_CLIENT"
	case RequestNodes:
		return "REQUEST_NODES"
	case ChangeList:
		return "CHANGE_LIST"
	case AddHouse:
		return "ADD_HOUSE"
	case EditHouse:
		return "EDIT_HOUSE"
	case RemoveHouse:
		return "REMOVE_HOUSE"
	case ClientTalk:
		return "CLIENT_TALK"
	case ClientUpdateCursor:
		return "CLIENT_UPDATE_CURSOR"
	case HelloFromServer:
		return "HELLO_FROM_SERVER"
	case Kick:
		return "KICK"
	case AcceptedClient:
		return "ACCEPTED_CLIENT"
	case ChangeClientVersion:
		return "CHANGE_CLIENT_VERSION"
	case ServerTalk:
		return "SERVER_TALK"
	case Node:
		return "NODE"
	case CursorUpdate:
		return "CURSOR_UPDATE"
	case StartOperation:
		return "START_OPERATION"
	case UpdateOperation:
		return "UPDATE_OPERATION"
	case ChatMessage:
		return "CHAT_MESSAGE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// Hello is HELLO_FROM_CLIENT.
type Hello struct {
	EditorVersion uint32
	NetVersion    uint32
	ClientVersion uint32
	Name          string
	Password      string
}

// Write appends the record.
func (p Hello) Write(m *Message) {
	m.WriteType(HelloFromClient)
	m.WriteU32(p.EditorVersion)
	m.WriteU32(p.NetVersion)
	m.WriteU32(p.ClientVersion)
	m.WriteString(p.Name)
	m.WriteString(p.Password)
}

// ParseHello reads a HELLO_FROM_CLIENT payload.
func ParseHello(r *Reader) (Hello, error) {
	var p Hello
	var err error
	if p.EditorVersion, err = r.ReadU32(); err != nil {
		return p, fmt.Errorf("editor version: %w", err)
	}
	if p.NetVersion, err = r.ReadU32(); err != nil {
		return p, fmt.Errorf("net version: %w", err)
	}
	if p.ClientVersion, err = r.ReadU32(); err != nil {
		return p, fmt.Errorf("client version: %w", err)
	}
	if p.Name, err = r.ReadString(); err != nil {
		return p, fmt.Errorf("name: %w", err)
	}
	if p.Password, err = r.ReadString(); err != nil {
		return p, fmt.Errorf("password: %w", err)
	}
	return p, nil
}

// ServerHello is HELLO_FROM_SERVER.
type ServerHello struct {
	MapName string
	Width   uint16
	Height  uint16
}

// Write appends the record.
func (p ServerHello) Write(m *Message) {
	m.WriteType(HelloFromServer)
	m.WriteString(p.MapName)
	m.WriteU16(p.Width)
	m.WriteU16(p.Height)
}

// ParseServerHello reads a HELLO_FROM_SERVER payload.
func ParseServerHello(r *Reader) (ServerHello, error) {
	var p ServerHello
	var err error
	if p.MapName, err = r.ReadString(); err != nil {
		return p, fmt.Errorf("map name: %w", err)
	}
	if p.Width, err = r.ReadU16(); err != nil {
		return p, fmt.Errorf("width: %w", err)
	}
	if p.Height, err = r.ReadU16(); err != nil {
		return p, fmt.Errorf("height: %w", err)
	}
	return p, nil
}

// WriteKick appends a KICK record.
func WriteKick(m *Message, reason string) {
	m.WriteType(Kick)
	m.WriteString(reason)
}

// WriteAccepted appends an ACCEPTED_CLIENT record.
func WriteAccepted(m *Message) {
	m.WriteType(AcceptedClient)
}

// WriteReady appends a READY_CLIENT record.
func WriteReady(m *Message) {
	m.WriteType(ReadyClient)
}

// WriteChangeClientVersion appends a CHANGE_CLIENT_VERSION record.
func WriteChangeClientVersion(m *Message, version uint32) {
	m.WriteType(ChangeClientVersion)
	m.WriteU32(version)
}

// WriteRequestNodes appends a REQUEST_NODES record.
func WriteRequestNodes(m *Message, ids []uint32) {
	m.WriteType(RequestNodes)
	m.WriteU32(uint32(len(ids)))
	for _, id := range ids {
		m.WriteU32(id)
	}
}

// ParseRequestNodes reads a REQUEST_NODES payload. limit caps the count.
func ParseRequestNodes(r *Reader, limit int) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("node count: %w", err)
	}
	if int64(n) > int64(limit) || int(n)*4 > r.Remaining() {
		return nil, fmt.Errorf("node count %d: %w", n, ErrShortRead)
	}
	ids := make([]uint32, n)
	for i := range ids {
		if ids[i], err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return ids, nil
}

// Talk is SERVER_TALK and CHAT_MESSAGE: a speaker and a line.
type Talk struct {
	Speaker string
	Message string
}

// Write appends a SERVER_TALK record.
func (p Talk) Write(m *Message) {
	m.WriteType(ServerTalk)
	m.WriteString(p.Speaker)
	m.WriteString(p.Message)
}

// ParseTalk reads a SERVER_TALK payload.
func ParseTalk(r *Reader) (Talk, error) {
	var p Talk
	var err error
	if p.Speaker, err = r.ReadString(); err != nil {
		return p, fmt.Errorf("speaker: %w", err)
	}
	if p.Message, err = r.ReadString(); err != nil {
		return p, fmt.Errorf("message: %w", err)
	}
	return p, nil
}

// WriteClientTalk appends a CLIENT_TALK record.
func WriteClientTalk(m *Message, text string) {
	m.WriteType(ClientTalk)
	m.WriteString(text)
}

// Color is a cursor color.
type Color struct {
	R, G, B, A uint8
}

// Cursor is a remote editor's cursor.
type Cursor struct {
	ID    uint32
	Color Color
	Pos   model.Position
}

// writePayload writes id, rgba and position.
func (c Cursor) writePayload(m *Message) {
	m.WriteU32(c.ID)
	m.WriteU8(c.Color.R)
	m.WriteU8(c.Color.G)
	m.WriteU8(c.Color.B)
	m.WriteU8(c.Color.A)
	m.WritePosition(c.Pos)
}

// Write appends a CURSOR_UPDATE record (host to clients).
func (c Cursor) Write(m *Message) {
	m.WriteType(CursorUpdate)
	c.writePayload(m)
}

// WriteClient appends a CLIENT_UPDATE_CURSOR record (client to host).
func (c Cursor) WriteClient(m *Message) {
	m.WriteType(ClientUpdateCursor)
	c.writePayload(m)
}

// ParseCursor reads a cursor payload.
func ParseCursor(r *Reader) (Cursor, error) {
	var c Cursor
	var err error
	if c.ID, err = r.ReadU32(); err != nil {
		return c, fmt.Errorf("cursor id: %w", err)
	}
	for _, dst := range []*uint8{&c.Color.R, &c.Color.G, &c.Color.B, &c.Color.A} {
		if *dst, err = r.ReadU8(); err != nil {
			return c, fmt.Errorf("cursor color: %w", err)
		}
	}
	if c.Pos, err = r.ReadPosition(); err != nil {
		return c, fmt.Errorf("cursor position: %w", err)
	}
	return c, nil
}

// WriteStartOperation appends a START_OPERATION record.
func WriteStartOperation(m *Message, name string) {
	m.WriteType(StartOperation)
	m.WriteString(name)
}

// WriteUpdateOperation appends an UPDATE_OPERATION record.
func WriteUpdateOperation(m *Message, percent uint32) {
	m.WriteType(UpdateOperation)
	m.WriteU32(percent)
}

// HouseInfo is the ADD_HOUSE / EDIT_HOUSE payload.
type HouseInfo struct {
	ID     uint32
	Name   string
	TownID uint32
	Exit   model.Position
}

// Write appends the record with the given type (ADD_HOUSE or EDIT_HOUSE).
func (h HouseInfo) Write(m *Message, t PacketType) {
	m.WriteType(t)
	m.WriteU32(h.ID)
	m.WriteString(h.Name)
	m.WriteU32(h.TownID)
	m.WritePosition(h.Exit)
}

// ParseHouseInfo reads an ADD_HOUSE / EDIT_HOUSE payload.
func ParseHouseInfo(r *Reader) (HouseInfo, error) {
	var h HouseInfo
	var err error
	if h.ID, err = r.ReadU32(); err != nil {
		return h, fmt.Errorf("house id: %w", err)
	}
	if h.Name, err = r.ReadString(); err != nil {
		return h, fmt.Errorf("house name: %w", err)
	}
	if h.TownID, err = r.ReadU32(); err != nil {
		return h, fmt.Errorf("house town: %w", err)
	}
	if h.Exit, err = r.ReadPosition(); err != nil {
		return h, fmt.Errorf("house exit: %w", err)
	}
	return h, nil
}

// WriteRemoveHouse appends a REMOVE_HOUSE record.
func WriteRemoveHouse(m *Message, id uint32) {
	m.WriteType(RemoveHouse)
	m.WriteU32(id)
}
