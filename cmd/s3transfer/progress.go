package main

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// progressReporter renders transfer progress as a terminal progress bar.
// The bar is created on the first notification because the object size is
// only known once the transfer has started.
type progressReporter struct {
	mu          sync.Mutex
	description string
	out         io.Writer
	bar         *progressbar.ProgressBar
	total       int64
}

func newProgressReporter(description string, quiet bool) *progressReporter {
	out := io.Writer(os.Stderr)
	if quiet {
		out = io.Discard
	}
	return &progressReporter{description: description, out: out}
}

func (p *progressReporter) ensureBar(total int64) {
	if p.bar != nil {
		return
	}
	p.total = total
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// OnEvent implements s3types.Listener.
func (p *progressReporter) OnEvent(ev s3types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureBar(ev.TotalBytes)
	switch ev.Type {
	case s3types.EventPartSucceeded:
		_ = p.bar.Set64(ev.ConsumedBytes)
	case s3types.EventCompleted:
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.out, "\n")
	case s3types.EventFailed, s3types.EventCancelled:
		_, _ = io.WriteString(p.out, "\n")
	}
}

// OnProgress implements s3types.ProgressListener.
func (p *progressReporter) OnProgress(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	_ = p.bar.Set64(int64(percent * float64(p.total)))
}

// OnDataTransfer implements s3types.DataTransferListener.
func (p *progressReporter) OnDataTransfer(status s3types.DataTransferStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureBar(status.TotalBytes)
	switch status.Type {
	case s3types.DataTransferRW:
		// ConsumedBytes restarts when the body is re-sent
		_ = p.bar.Set64(status.ConsumedBytes)
	case s3types.DataTransferSucceed:
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.out, "\n")
	case s3types.DataTransferFailed:
		_, _ = io.WriteString(p.out, "\n")
	}
}
