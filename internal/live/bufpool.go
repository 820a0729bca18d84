package live

import "sync"

// BytePool is a pool of reusable frame buffers.
// Frames are copied out of pooled messages into pool buffers before they are
// queued, and returned by the write pump once written.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a buffer pool with the specified default capacity for new slices.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a slice of length size, preferably from the pool.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		p.pool.Put(b)
		return make([]byte, size)
	}
	return b[:size]
}

// Clone copies frame into a pooled buffer.
func (p *BytePool) Clone(frame []byte) []byte {
	b := p.Get(len(frame))
	copy(b, frame)
	return b
}

// Put returns the slice to the pool for reuse.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.pool.Put(b[:0])
}
