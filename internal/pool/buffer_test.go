package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_Get(t *testing.T) {
	bp := NewBufferPool(1024)
	assert.Equal(t, 1024, bp.Size())

	buf := bp.Get(100)
	require.Len(t, buf, 100)
	assert.Equal(t, 1024, cap(buf))
	bp.Put(buf)

	full := bp.Get(1024)
	assert.Len(t, full, 1024)
	bp.Put(full)
}

func TestBufferPool_Oversized(t *testing.T) {
	bp := NewBufferPool(16)

	buf := bp.Get(32)
	assert.Len(t, buf, 32)
	assert.Equal(t, 32, cap(buf))

	// oversized buffers are dropped, not pooled
	bp.Put(buf)
	assert.Equal(t, 16, cap(bp.Get(1)))
}

func TestBufferPool_Concurrent(t *testing.T) {
	bp := NewBufferPool(64)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := bp.Get(64)
			for j := range buf {
				buf[j] = byte(i)
			}
			bp.Put(buf)
		}(i)
	}
	wg.Wait()
}
