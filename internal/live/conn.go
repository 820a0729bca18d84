package live

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/protocol"
)

// frameConn carries whole messages, each a 4-byte length header followed by
// records. Reads and writes may run concurrently; only one reader and one
// writer are allowed at a time.
type frameConn interface {
	// ReadFrame returns the body of the next message. buf is reused when
	// large enough; the result may alias it.
	ReadFrame(buf []byte) ([]byte, error)
	// WriteFrames writes complete frames in order.
	WriteFrames(frames [][]byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// streamConn frames messages over a byte stream (TCP).
type streamConn struct {
	conn    net.Conn
	maxSize int
	scratch net.Buffers
}

func newStreamConn(conn net.Conn, maxSize int) *streamConn {
	return &streamConn{
		conn:    conn,
		maxSize: maxSize,
		scratch: make(net.Buffers, 0, 64),
	}
}

func (c *streamConn) ReadFrame(buf []byte) ([]byte, error) {
	return protocol.ReadMessage(c.conn, buf, c.maxSize)
}

func (c *streamConn) WriteFrames(frames [][]byte) error {
	if len(frames) == 1 {
		// Single frame: direct write (hot path)
		_, err := c.conn.Write(frames[0])
		return err
	}
	// Multiple frames go through net.Buffers (writev). WriteTo consumes its receiver.
	bufs := append(c.scratch[:0], frames...)
	c.scratch = bufs[:0]
	_, err := bufs.WriteTo(c.conn)
	return err
}

func (c *streamConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *streamConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *streamConn) Close() error                       { return c.conn.Close() }

// wsConn carries one frame per binary websocket message.
type wsConn struct {
	conn    *websocket.Conn
	maxSize int
}

func newWSConn(conn *websocket.Conn, maxSize int) *wsConn {
	if maxSize > 0 {
		conn.SetReadLimit(int64(maxSize + constants.MessageHeaderSize))
	}
	return &wsConn{conn: conn, maxSize: maxSize}
}

func (c *wsConn) ReadFrame([]byte) ([]byte, error) {
	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, fmt.Errorf("websocket message type %d: %w", typ, ErrProtocolViolation)
	}
	return protocol.SplitFrame(data, c.maxSize)
}

func (c *wsConn) WriteFrames(frames [][]byte) error {
	for _, f := range frames {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// newUpgrader returns the upgrader used for websocket peers.
func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// dialWebSocket connects to a host's websocket endpoint.
func dialWebSocket(ctx context.Context, url string, timeout time.Duration, maxSize int) (*wsConn, error) {
	d := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := d.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return newWSConn(conn, maxSize), nil
}
