package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
)

// DefaultConcurrency is used when a non-positive concurrency is given.
const DefaultConcurrency = 1

// PartFunc performs the remote operation for one part and returns its remote tag.
type PartFunc func(ctx context.Context, part planner.Part) (string, error)

// Result is the outcome of one part.
type Result struct {
	Part      planner.Part
	RemoteTag string
	Err       error
}

// Pool executes part operations with at most Concurrency of them in flight.
type Pool struct {
	concurrency int

	inFlight atomic.Int32
	peak     atomic.Int32
}

// New creates a Pool.
func New(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pool{concurrency: concurrency}
}

// Concurrency returns the in-flight limit.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Peak returns the highest number of parts that were in flight at once.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Run dispatches parts in order and waits for every dispatched part to finish.
//
// onResult is called from the calling goroutine, one result at a time, for
// every successful part; an error from it counts as a part failure. The first
// failure stops dispatching new parts while parts already in flight run to
// their own end. Cancelling ctx stops dispatch and interrupts in-flight parts.
//
// Run returns every result it collected. The error is ctx's error when ctx
// ended before all parts succeeded, otherwise the first failure, otherwise nil.
func (p *Pool) Run(
	ctx context.Context,
	parts []planner.Part,
	fn PartFunc,
	onResult func(Result) error,
) ([]Result, error) {
	if len(parts) == 0 {
		return nil, ctx.Err()
	}

	var stopOnce sync.Once
	stop := make(chan struct{})
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	sem := make(chan struct{}, p.concurrency)
	results := make(chan Result, p.concurrency)

	var wg sync.WaitGroup
	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()

		for _, part := range parts {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case sem <- struct{}{}:
			}

			// Both cases may have been ready at once.
			if ctx.Err() != nil || stopped(stop) {
				<-sem
				return
			}

			wg.Add(1)
			go func(part planner.Part) {
				defer wg.Done()

				p.enter()
				tag, err := fn(ctx, part)
				p.leave()
				<-sem

				results <- Result{Part: part, RemoteTag: tag, Err: err}
			}(part)
		}
	}()

	collected := make([]Result, 0, len(parts))
	succeeded := 0
	var firstErr error

	for r := range results {
		if r.Err == nil && onResult != nil {
			r.Err = onResult(r)
		}
		collected = append(collected, r)

		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			halt()
			continue
		}
		succeeded++
	}

	if err := ctx.Err(); err != nil && succeeded < len(parts) {
		return collected, err
	}
	return collected, firstErr
}

func (p *Pool) enter() {
	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (p *Pool) leave() {
	p.inFlight.Add(-1)
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
