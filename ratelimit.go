package s3transfer

import (
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/ratelimit"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// NewRateLimiter creates a token bucket of capacity bytes that refills at
// bytesPerSecond. Share one limiter between transfers to bound their
// aggregate throughput.
//
//nolint:ireturn // callers only need the Acquire contract
func NewRateLimiter(capacity, bytesPerSecond int64) (s3types.RateLimiter, error) {
	limiter, err := ratelimit.New(capacity, bytesPerSecond)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}
