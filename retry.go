package s3transfer

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 20 * time.Second
)

// Retryer implements aws.Retryer with exponential backoff and jitter.
//
// Every remote call of a transfer goes through it, so a part that fails
// transiently is retried here and reaches the engine as a single outcome.
// Errors that make resuming pointless, such as a changed source or a vanished
// multipart upload, are never retried.
//
// Thread Safety: all fields are set at creation time and never modified.
type Retryer struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryer creates a Retryer that makes at most maxRetries retries after the
// initial attempt.
func NewRetryer(maxRetries int) *Retryer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retryer{
		maxAttempts: maxRetries + 1,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
}

var _ aws.Retryer = (*Retryer)(nil)

// MaxAttempts returns the maximum number of attempts, including the first.
func (r *Retryer) MaxAttempts() int {
	return r.maxAttempts
}

// RetryDelay returns baseDelay * 2^(attempt-1) with ±25% jitter, capped at maxDelay.
func (r *Retryer) RetryDelay(attempt int, _ error) (time.Duration, error) {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseDelay

	jitterRange := int64(float64(delay) * 0.25)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange) //nolint:gosec // jitter only
	}

	if delay > r.maxDelay || delay < 0 {
		delay = r.maxDelay
	}
	return delay, nil
}

// IsErrorRetryable reports whether err is transient.
func (r *Retryer) IsErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown",
			"Throttling",
			"ThrottlingException",
			"ThrottledException",
			"RequestThrottled",
			"RequestThrottledException",
			"TooManyRequestsException",
			"RequestLimitExceeded",
			"RequestTimeout",
			"RequestTimeTooSkewed",
			"InternalError",
			"ServiceUnavailable":
			return true
		case "PreconditionFailed",
			"NoSuchUpload",
			"NoSuchKey",
			"NoSuchBucket",
			"NotFound",
			"AccessDenied",
			"InvalidAccessKeyId",
			"SignatureDoesNotMatch",
			"InvalidPart",
			"InvalidPartOrder",
			"EntityTooSmall",
			"InvalidRange":
			return false
		}
	}

	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	if stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

// GetRetryToken always grants a retry.
func (r *Retryer) GetRetryToken(context.Context, error) (func(error) error, error) {
	return func(error) error { return nil }, nil
}

// GetInitialToken returns a no-op release function.
func (r *Retryer) GetInitialToken() func(error) error {
	return func(error) error { return nil }
}
