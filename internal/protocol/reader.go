package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/udisondev/livemap/internal/model"
)

// ErrShortRead is returned when a record is shorter than its layout requires.
var ErrShortRead = errors.New("short read")

// Reader reads records from a received message body.
// Uses Little-Endian byte order for all multi-byte values.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader over a message body (without the length header).
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the read cursor.
func (r *Reader) Position() int {
	return r.pos
}

// ReadType reads the type byte of the next record.
func (r *Reader) ReadType() (PacketType, error) {
	b, err := r.ReadU8()
	return PacketType(b), err
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("ReadU8: %w (pos=%d, len=%d)", ErrShortRead, r.pos, len(r.data))
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a uint16 (2 bytes, LE).
func (r *Reader) ReadU16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadU16: %w (pos=%d, len=%d)", ErrShortRead, r.pos, len(r.data))
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU32 reads a uint32 (4 bytes, LE).
func (r *Reader) ReadU32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("ReadU32: %w (pos=%d, len=%d)", ErrShortRead, r.pos, len(r.data))
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBytes reads a u16 length-prefixed byte string.
// The returned slice aliases the message buffer.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("ReadBytes: %w (need=%d, pos=%d, len=%d)", ErrShortRead, n, r.pos, len(r.data))
	}
	v := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

// ReadString reads a u16 length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPosition reads u16 x, u16 y, u8 z.
func (r *Reader) ReadPosition() (model.Position, error) {
	x, err := r.ReadU16()
	if err != nil {
		return model.Position{}, err
	}
	y, err := r.ReadU16()
	if err != nil {
		return model.Position{}, err
	}
	z, err := r.ReadU8()
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{X: x, Y: y, Z: z}, nil
}
