package ratelimit

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
)

// Limiter is a token bucket measured in bytes.
// A nil *Limiter never throttles.
type Limiter struct {
	bucket *rate.Limiter
	burst  int
}

// New creates a Limiter holding up to capacity bytes of burst and refilling
// at bytesPerSecond.
func New(capacity, bytesPerSecond int64) (*Limiter, error) {
	if capacity <= 0 || bytesPerSecond <= 0 {
		return nil, errors.NewError("newRateLimiter", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("capacity %d and rate %d must be positive", capacity, bytesPerSecond))
	}
	burst := capacity
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
		burst:  int(burst),
	}, nil
}

// Acquire blocks until n tokens have been consumed or ctx is done.
// Requests larger than the bucket capacity are served in capacity-sized slices.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	for n > 0 {
		chunk := min(n, l.burst)
		if err := l.bucket.WaitN(ctx, chunk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("rate limiter: %w", err)
		}
		n -= chunk
	}
	return nil
}

// Burst returns the bucket capacity in bytes.
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.burst
}
