package live

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/protocol"
)

// link is one end of a live connection: a frame transport plus a dedicated
// writer goroutine fed through a bounded queue.
//
// A nil frame in sendCh asks the writer to close the connection once
// everything queued before it has been written.
type link struct {
	conn   frameConn
	remote string

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{} // closed when writePump returns

	pool         *BytePool
	writeTimeout time.Duration
}

func newLink(conn frameConn, pool *BytePool, queueSize int, writeTimeout time.Duration) *link {
	if queueSize <= 0 {
		queueSize = constants.DefaultSendQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultWriteTimeout
	}
	return &link{
		conn:         conn,
		remote:       conn.RemoteAddr(),
		sendCh:       make(chan []byte, queueSize),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
		pool:         pool,
		writeTimeout: writeTimeout,
	}
}

// Remote returns the remote address.
func (l *link) Remote() string {
	return l.remote
}

// writePump is the only writer of conn.
// Queued frames are drained and written as one batch.
func (l *link) writePump() {
	batch := make([][]byte, 0, 64)

	defer close(l.done)
	defer func() {
		// Drain remaining frames and return them to the pool
		for {
			select {
			case f := <-l.sendCh:
				l.pool.Put(f)
			default:
				return
			}
		}
	}()

	for {
		var first []byte
		select {
		case first = <-l.sendCh:
		case <-l.closeCh:
			return
		}

		batch = append(batch[:0], first)
		for queued := len(l.sendCh); queued > 0 && batch[len(batch)-1] != nil; queued-- {
			batch = append(batch, <-l.sendCh)
		}

		closing := batch[len(batch)-1] == nil
		if closing {
			batch = batch[:len(batch)-1]
		}

		if len(batch) > 0 {
			err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
			if err == nil {
				err = l.conn.WriteFrames(batch)
			}
			// ALWAYS return buffers to pool (even on error)
			for _, f := range batch {
				l.pool.Put(f)
			}
			if err != nil {
				slog.Warn("write failed", "remote", l.remote, "frames", len(batch), "error", err)
				_ = l.conn.Close()
				return
			}
		}

		if closing {
			_ = l.conn.Close()
			return
		}
	}
}

// enqueue hands a pooled frame to the writer without blocking.
// A full queue means the remote is too slow: the link is closed.
func (l *link) enqueue(frame []byte) error {
	if l.closing.Load() {
		l.pool.Put(frame)
		return ErrClosed
	}
	select {
	case <-l.closeCh:
		l.pool.Put(frame)
		return ErrClosed
	default:
	}

	select {
	case l.sendCh <- frame:
		return nil
	default:
		l.pool.Put(frame)
		slog.Warn("send queue full, disconnecting slow connection", "remote", l.remote)
		l.Close()
		return ErrQueueFull
	}
}

// Send queues a copy of m's frame. m may be reused right away.
func (l *link) Send(m *protocol.Message) error {
	if m.Empty() {
		return nil
	}
	if err := l.enqueue(l.pool.Clone(m.Frame())); err != nil {
		return fmt.Errorf("sending to %s: %w", l.remote, err)
	}
	return nil
}

// SendAndClose queues m and then closes the connection once it is written.
// Later sends fail with ErrClosed.
func (l *link) SendAndClose(m *protocol.Message) {
	_ = l.Send(m)
	if l.closing.Swap(true) {
		return
	}
	select {
	case l.sendCh <- nil:
	default:
		l.Close()
	}
}

// Closing reports whether SendAndClose was called.
func (l *link) Closing() bool {
	return l.closing.Load()
}

// Flush waits until the writer has stopped or timeout elapses.
func (l *link) Flush(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
	case <-timer.C:
	}
}

// Close stops the writer and closes the connection. Safe to call multiple times.
func (l *link) Close() {
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		close(l.closeCh)
		_ = l.conn.Close()
	})
}
