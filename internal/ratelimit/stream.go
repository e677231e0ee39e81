package ratelimit

import (
	"context"
	"errors"
	"io"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Hooks observe the bytes moving through a Reader. They measure only; the
// Reader is the single point where throttling happens.
type Hooks struct {
	// OnRead is called with the size of every successful read
	OnRead func(n int)

	// OnRewind is called when the stream is seeked back to its start
	OnRewind func()
}

// Reader throttles an io.Reader through a shared limiter.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter s3types.RateLimiter
	hooks   Hooks
}

// NewReader wraps r. A nil limiter disables throttling.
func NewReader(ctx context.Context, r io.Reader, limiter s3types.RateLimiter, hooks Hooks) *Reader {
	return &Reader{ctx: ctx, r: r, limiter: limiter, hooks: hooks}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if r.limiter != nil {
			if lerr := r.limiter.Acquire(r.ctx, n); lerr != nil {
				return n, lerr
			}
		}
		if r.hooks.OnRead != nil {
			r.hooks.OnRead(n)
		}
	}
	return n, err
}

// Seek implements io.Seeker when the wrapped reader supports it, so the
// transport can rewind a request body before retrying it.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := r.r.(io.Seeker)
	if !ok {
		return 0, errors.New("ratelimit: underlying reader is not seekable")
	}
	pos, err := seeker.Seek(offset, whence)
	if err == nil && pos == 0 && r.hooks.OnRewind != nil {
		r.hooks.OnRewind()
	}
	return pos, err
}

// Writer throttles an io.Writer through a shared limiter.
type Writer struct {
	ctx     context.Context
	w       io.Writer
	limiter s3types.RateLimiter
}

// NewWriter wraps w. A nil limiter disables throttling.
func NewWriter(ctx context.Context, w io.Writer, limiter s3types.RateLimiter) *Writer {
	return &Writer{ctx: ctx, w: w, limiter: limiter}
}

// Write implements io.Writer. Tokens are taken before the bytes are written.
func (w *Writer) Write(p []byte) (int, error) {
	if w.limiter != nil {
		if err := w.limiter.Acquire(w.ctx, len(p)); err != nil {
			return 0, err
		}
	}
	return w.w.Write(p)
}
