package ratelimit

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int64
		rate     int64
		wantErr  bool
	}{
		{name: "valid", capacity: 1024, rate: 512},
		{name: "zero capacity", capacity: 0, rate: 512, wantErr: true},
		{name: "negative rate", capacity: 1024, rate: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.capacity, tt.rate)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(tt.capacity), l.Burst())
		})
	}
}

func TestLimiter_NilIsUnlimited(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Acquire(context.Background(), 1<<30))
	assert.Equal(t, 0, l.Burst())
}

func TestLimiter_AcquireLargerThanBurst(t *testing.T) {
	// 1000 tokens of burst, 10000 tokens/s: the first 1000 are free, the
	// next 1500 take about 150ms.
	l, err := New(1000, 10000)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), 2500))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestLimiter_AcquireHonoursCancellation(t *testing.T) {
	l, err := New(10, 1)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err = l.Acquire(ctx, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	l, err := New(100, 100000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background(), 250))
		}()
	}
	wg.Wait()
}

func TestReader(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 4096)

	var reads int
	var rewinds int
	r := NewReader(context.Background(), bytes.NewReader(data), nil, Hooks{
		OnRead:   func(n int) { reads += n },
		OnRewind: func() { rewinds++ },
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, len(data), reads)

	pos, err := r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, 1, rewinds)

	_, err = r.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, 1, rewinds)
}

func TestReader_NotSeekable(t *testing.T) {
	r := NewReader(context.Background(), io.LimitReader(bytes.NewReader(nil), 0), nil, Hooks{})
	_, err := r.Seek(0, io.SeekStart)
	assert.Error(t, err)
}

func TestReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(ctx, bytes.NewReader([]byte("data")), nil, Hooks{})
	_, err := r.Read(make([]byte, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriter_Throttles(t *testing.T) {
	l, err := New(512, 5120)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(context.Background(), &buf, l)

	start := time.Now()
	n, err := w.Write(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	// 512 bytes over burst at 5120 B/s is roughly 100ms
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1024, buf.Len())
}
