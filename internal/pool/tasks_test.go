package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
)

func tenParts(t *testing.T) []planner.Part {
	t.Helper()
	parts, err := planner.Plan(10*1024*1024, 1024*1024)
	require.NoError(t, err)
	return parts
}

func TestNew_DefaultConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, New(0).Concurrency())
	assert.Equal(t, 4, New(4).Concurrency())
}

func TestPool_RunAllSucceed(t *testing.T) {
	p := New(3)
	parts := tenParts(t)

	var recorded []int32
	results, err := p.Run(context.Background(), parts,
		func(ctx context.Context, part planner.Part) (string, error) {
			return fmt.Sprintf("etag-%d", part.Number), nil
		},
		func(r Result) error {
			recorded = append(recorded, r.Part.Number)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Len(t, recorded, 10)
	for _, r := range results {
		assert.Equal(t, fmt.Sprintf("etag-%d", r.Part.Number), r.RemoteTag)
	}
}

func TestPool_BoundsInFlight(t *testing.T) {
	p := New(3)

	var current, maxSeen atomic.Int32
	_, err := p.Run(context.Background(), tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			n := current.Add(1)
			defer current.Add(-1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return "etag", nil
		}, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, maxSeen.Load(), int32(3))
	assert.LessOrEqual(t, p.Peak(), 3)
	assert.GreaterOrEqual(t, p.Peak(), 1)
}

func TestPool_DispatchesInAscendingOrder(t *testing.T) {
	p := New(1)

	var order []int32
	_, err := p.Run(context.Background(), tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			order = append(order, part.Number)
			return "etag", nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, order)
}

func TestPool_FailureStopsDispatchButLetsInFlightFinish(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")

	var started sync.Map
	release := make(chan struct{})

	results, err := p.Run(context.Background(), tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			started.Store(part.Number, true)
			switch part.Number {
			case 1:
				<-release
				return "etag-1", nil
			case 2:
				defer close(release)
				return "", boom
			}
			time.Sleep(50 * time.Millisecond)
			return "etag", nil
		}, nil)

	require.ErrorIs(t, err, boom)

	// part 1 was in flight when part 2 failed and still completed
	var sawPart1 bool
	for _, r := range results {
		if r.Part.Number == 1 {
			sawPart1 = true
			assert.NoError(t, r.Err)
		}
	}
	assert.True(t, sawPart1)

	count := 0
	started.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Less(t, count, 10)
}

func TestPool_OnResultErrorIsFatal(t *testing.T) {
	p := New(1)
	writeErr := errors.New("disk full")

	results, err := p.Run(context.Background(), tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			return "etag", nil
		},
		func(r Result) error {
			if r.Part.Number == 3 {
				return writeErr
			}
			return nil
		},
	)
	require.ErrorIs(t, err, writeErr)
	assert.Less(t, len(results), 10)
}

func TestPool_CancelInterruptsInFlight(t *testing.T) {
	p := New(3)
	ctx, cancel := context.WithCancel(context.Background())

	var succeeded atomic.Int32
	results, err := p.Run(ctx, tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			if part.Number <= 4 {
				if succeeded.Add(1) == 4 {
					cancel()
				}
				return "etag", nil
			}
			<-ctx.Done()
			return "", ctx.Err()
		}, nil)

	require.ErrorIs(t, err, context.Canceled)
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	assert.GreaterOrEqual(t, ok, 4)
	assert.Less(t, ok, 10)
}

func TestPool_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results, err := New(2).Run(ctx, tenParts(t),
		func(ctx context.Context, part planner.Part) (string, error) {
			calls.Add(1)
			return "etag", nil
		}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, calls.Load())
}

func TestPool_NoParts(t *testing.T) {
	results, err := New(2).Run(context.Background(), nil, nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}
