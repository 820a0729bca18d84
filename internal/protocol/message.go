package protocol

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/model"
)

// Message is an outgoing NetworkMessage: a 4-byte length header followed by
// one or more {type, payload} records. Uses Little-Endian byte order.
type Message struct {
	buf []byte
}

// messagePool reduces allocations for short-lived broadcast messages.
var messagePool = sync.Pool{
	New: func() any {
		return &Message{buf: make([]byte, constants.MessageHeaderSize, constants.DefaultMessageCapacity)}
	},
}

// GetMessage returns an empty Message from the pool.
func GetMessage() *Message {
	m := messagePool.Get().(*Message)
	m.Reset()
	return m
}

// Put returns the Message to the pool.
// IMPORTANT: Do not use the Message or slices from Bytes after calling Put.
func (m *Message) Put() {
	messagePool.Put(m)
}

// NewMessage creates an empty message.
func NewMessage() *Message {
	return &Message{buf: make([]byte, constants.MessageHeaderSize, constants.DefaultMessageCapacity)}
}

// Reset drops the body, keeping the header slot.
func (m *Message) Reset() {
	m.buf = m.buf[:constants.MessageHeaderSize]
}

// Len returns the body length (excluding the header).
func (m *Message) Len() int {
	return len(m.buf) - constants.MessageHeaderSize
}

// Truncate cuts the body back to n bytes, dropping records written after
// Len returned n.
func (m *Message) Truncate(n int) {
	if n >= 0 && n < m.Len() {
		m.buf = m.buf[:constants.MessageHeaderSize+n]
	}
}

// Empty reports whether no record was written.
func (m *Message) Empty() bool {
	return m.Len() == 0
}

// WriteType starts a new record.
func (m *Message) WriteType(t PacketType) {
	m.buf = append(m.buf, byte(t))
}

// WriteU8 writes a byte.
func (m *Message) WriteU8(v uint8) {
	m.buf = append(m.buf, v)
}

// WriteU16 writes a uint16 (2 bytes, LE).
func (m *Message) WriteU16(v uint16) {
	m.buf = binary.LittleEndian.AppendUint16(m.buf, v)
}

// WriteU32 writes a uint32 (4 bytes, LE).
func (m *Message) WriteU32(v uint32) {
	m.buf = binary.LittleEndian.AppendUint32(m.buf, v)
}

// WriteString writes a u16 length followed by the raw bytes, not null-terminated.
// Strings longer than 65535 bytes are cut at the last rune boundary that fits.
func (m *Message) WriteString(s string) {
	if len(s) > MaxStringLength {
		s = truncateString(s, MaxStringLength)
	}
	m.WriteU16(uint16(len(s)))
	m.buf = append(m.buf, s...)
}

// WriteBytes writes raw bytes as a string: u16 length followed by data.
func (m *Message) WriteBytes(p []byte) error {
	if len(p) > MaxStringLength {
		return fmt.Errorf("payload of %d bytes exceeds string limit", len(p))
	}
	m.WriteU16(uint16(len(p)))
	m.buf = append(m.buf, p...)
	return nil
}

// MaxStringLength is the longest string a u16 length prefix can carry.
const MaxStringLength = 0xFFFF

// truncateString cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncateString(s string, limit int) string {
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	slog.Warn("truncating string", "length", len(s), "kept", n)
	return s[:n]
}

// WritePosition writes u16 x, u16 y, u8 z.
func (m *Message) WritePosition(p model.Position) {
	m.WriteU16(p.X)
	m.WriteU16(p.Y)
	m.WriteU8(p.Z)
}

// Frame fills the length header and returns the full wire bytes.
// The slice aliases the message buffer.
func (m *Message) Frame() []byte {
	binary.LittleEndian.PutUint32(m.buf[:constants.MessageHeaderSize], uint32(m.Len()))
	return m.buf
}

// Body returns the records without the header.
func (m *Message) Body() []byte {
	return m.buf[constants.MessageHeaderSize:]
}
