package pool

import (
	"sync"
)

// BufferPool hands out byte slices of one fixed size, sized to the part size
// of a transfer, so concurrent part reads do not allocate a new slice each.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of size-byte buffers.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the length of the buffers in the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a buffer of n bytes, n <= Size(). Buffers for larger n are
// allocated and never pooled.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get(n int) []byte {
	if n > bp.size {
		return make([]byte, n)
	}
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:n]
}

// Put returns a buffer to the pool. The buffer must not be used afterwards.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}
