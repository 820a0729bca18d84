// Package otbm implements the binary node tree used by map files and by the
// live protocol to carry tiles. A node is
//
//	NODE_START type props... children... NODE_END
//
// where any prop byte equal to NODE_START, NODE_END or ESCAPE is prefixed with ESCAPE.
package otbm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/udisondev/livemap/internal/model"
)

// Node framing bytes.
const (
	NodeStart = 0xFE
	NodeEnd   = 0xFF
	Escape    = 0xFD
)

// ErrMalformedNode is returned for truncated or unbalanced node data.
var ErrMalformedNode = errors.New("malformed node")

// Writer builds a node stream. Multi-byte values are little-endian.
type Writer struct {
	buf   bytes.Buffer
	depth int
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	w := &Writer{}
	w.buf.Grow(capacity)
	return w
}

// Reset empties the writer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
	w.depth = 0
}

// StartNode opens a child node of the given type.
func (w *Writer) StartNode(typ byte) {
	w.buf.WriteByte(NodeStart)
	w.buf.WriteByte(typ)
	w.depth++
}

// EndNode closes the innermost open node.
// Live payloads close one more node than they open: the implicit root.
func (w *Writer) EndNode() {
	w.buf.WriteByte(NodeEnd)
	w.depth--
}

// Depth returns the number of open nodes.
func (w *Writer) Depth() int { return w.depth }

// WriteU8 writes an escaped byte.
func (w *Writer) WriteU8(v uint8) {
	if v == NodeStart || v == NodeEnd || v == Escape {
		w.buf.WriteByte(Escape)
	}
	w.buf.WriteByte(v)
}

// WriteU16 writes an escaped uint16.
func (w *Writer) WriteU16(v uint16) {
	w.WriteU8(byte(v))
	w.WriteU8(byte(v >> 8))
}

// WriteU32 writes an escaped uint32.
func (w *Writer) WriteU32(v uint32) {
	w.WriteU8(byte(v))
	w.WriteU8(byte(v >> 8))
	w.WriteU8(byte(v >> 16))
	w.WriteU8(byte(v >> 24))
}

// WriteRaw writes escaped bytes.
func (w *Writer) WriteRaw(p []byte) {
	for _, b := range p {
		w.WriteU8(b)
	}
}

// WriteString writes a u16 length followed by the raw bytes.
func (w *Writer) WriteString(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string of %d bytes too long", len(s))
	}
	w.WriteU16(uint16(len(s)))
	w.WriteRaw([]byte(s))
	return nil
}

// WritePosition writes u16 x, u16 y, u8 z.
func (w *Writer) WritePosition(p model.Position) {
	w.WriteU16(p.X)
	w.WriteU16(p.Y)
	w.WriteU8(p.Z)
}

// Bytes returns the encoded stream. The slice is valid until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Node is a parsed node with unescaped props.
type Node struct {
	Type     byte
	Props    []byte
	Children []*Node
}

// Reader returns a reader over the node props.
func (n *Node) Reader() *PropReader {
	return &PropReader{data: n.Props}
}

// Parse reads one complete node starting at data[0] (which must be NodeStart).
// It returns the node and the number of bytes consumed.
func Parse(data []byte) (*Node, int, error) {
	if len(data) < 2 || data[0] != NodeStart {
		return nil, 0, fmt.Errorf("expected node start: %w", ErrMalformedNode)
	}
	n := &Node{Type: data[1]}
	off, err := parseBody(n, data, 2)
	if err != nil {
		return nil, 0, err
	}
	return n, off, nil
}

// ParseChildren reads a stream of sibling nodes terminated by the NodeEnd of an
// implicit parent, the layout used by live tile payloads.
func ParseChildren(data []byte) ([]*Node, error) {
	root := &Node{}
	off, err := parseBody(root, data, 0)
	if err != nil {
		return nil, err
	}
	if len(root.Props) != 0 {
		return nil, fmt.Errorf("unexpected data before first node: %w", ErrMalformedNode)
	}
	if off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(data)-off, ErrMalformedNode)
	}
	return root.Children, nil
}

// parseBody fills n from data[off:] up to and including its NodeEnd.
func parseBody(n *Node, data []byte, off int) (int, error) {
	var props []byte
	for off < len(data) {
		b := data[off]
		switch b {
		case Escape:
			if off+1 >= len(data) {
				return 0, fmt.Errorf("dangling escape: %w", ErrMalformedNode)
			}
			props = append(props, data[off+1])
			off += 2
		case NodeStart:
			child, used, err := Parse(data[off:])
			if err != nil {
				return 0, err
			}
			n.Children = append(n.Children, child)
			off += used
		case NodeEnd:
			n.Props = props
			return off + 1, nil
		default:
			if len(n.Children) > 0 {
				return 0, fmt.Errorf("prop data after child node: %w", ErrMalformedNode)
			}
			props = append(props, b)
			off++
		}
	}
	return 0, fmt.Errorf("missing node end: %w", ErrMalformedNode)
}

// PropReader reads unescaped little-endian props.
type PropReader struct {
	data []byte
	pos  int
}

// Remaining returns the number of unread bytes.
func (r *PropReader) Remaining() int {
	return len(r.data) - r.pos
}

// ReadU8 reads one byte.
func (r *PropReader) ReadU8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("ReadU8: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), ErrMalformedNode)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a uint16.
func (r *PropReader) ReadU16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadU16: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), ErrMalformedNode)
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU32 reads a uint32.
func (r *PropReader) ReadU32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("ReadU32: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), ErrMalformedNode)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadString reads a u16 length-prefixed string.
func (r *PropReader) ReadString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", fmt.Errorf("ReadString: need %d bytes (pos=%d, len=%d): %w", n, r.pos, len(r.data), ErrMalformedNode)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadPosition reads u16 x, u16 y, u8 z.
func (r *PropReader) ReadPosition() (model.Position, error) {
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
