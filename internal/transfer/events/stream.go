package events

import (
	"log/slog"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// StreamConfig describes the single-shot request a Stream reports on.
type StreamConfig struct {
	Bucket       string
	Key          string
	TotalBytes   int64
	DataTransfer s3types.DataTransferListener
	Progress     s3types.ProgressListener
	Logger       *slog.Logger
}

// Stream reports byte-level status of one request body.
//
// Unlike Emitter, consumed bytes restart at zero when the body is rewound,
// so progress of a single-shot request may move backwards across retries.
// Progress reaches 1 only through Succeed.
type Stream struct {
	cfg StreamConfig

	mu       sync.Mutex
	consumed int64
	finished bool
}

// NewStream creates a Stream. Nil listeners are allowed.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Stream{cfg: cfg}
}

// Started reports that the request is about to be sent.
func (s *Stream) Started() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusLocked(s3types.DataTransferStarted, 0)
	s.progressLocked(0)
}

// Read reports n bytes taken from the body.
func (s *Stream) Read(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.consumed += int64(n)
	s.statusLocked(s3types.DataTransferRW, int64(n))
	if s.cfg.TotalBytes > 0 {
		if p := float64(s.consumed) / float64(s.cfg.TotalBytes); p < 1 {
			s.progressLocked(p)
		}
	}
}

// Rewind resets the consumed bytes after the body was seeked to its start.
func (s *Stream) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.consumed = 0
}

// Succeed reports that the request completed.
func (s *Stream) Succeed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.consumed = s.cfg.TotalBytes
	s.statusLocked(s3types.DataTransferSucceed, 0)
	s.progressLocked(1)
}

// Failed reports that the request ended with an error.
func (s *Stream) Failed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.statusLocked(s3types.DataTransferFailed, 0)
}

func (s *Stream) statusLocked(t s3types.DataTransferType, once int64) {
	if s.cfg.DataTransfer == nil {
		return
	}
	status := s3types.DataTransferStatus{
		Type:          t,
		RWOnceBytes:   once,
		ConsumedBytes: s.consumed,
		TotalBytes:    s.cfg.TotalBytes,
	}
	s.isolate("dataTransfer", func() { s.cfg.DataTransfer.OnDataTransfer(status) })
}

func (s *Stream) progressLocked(p float64) {
	if s.cfg.Progress == nil {
		return
	}
	s.isolate("progress", func() { s.cfg.Progress.OnProgress(p) })
}

func (s *Stream) isolate(callback string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Warn("transfer listener panicked",
				"callback", callback, "bucket", s.cfg.Bucket, "key", s.cfg.Key, "panic", r)
		}
	}()
	fn()
}
