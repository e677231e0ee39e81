package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Phase is a stage of a transfer that is reported to listeners.
type Phase string

const (
	PhaseInitiated    Phase = "initiated"
	PhaseTransferring Phase = "transferring"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// Config describes the transfer an Emitter reports on.
type Config struct {
	Kind     s3types.TransferKind
	Bucket   string
	Key      string
	Listener s3types.Listener
	Progress s3types.ProgressListener
	Logger   *slog.Logger
}

// Emitter delivers events and progress for one transfer.
type Emitter struct {
	cfg Config
	now func() time.Time

	mu             sync.Mutex
	transferID     string
	checkpointFile string
	consumed       int64
	total          int64
	lastProgress   float64
	finished       bool
}

// New creates an Emitter. Nil listeners are allowed.
func New(cfg Config) *Emitter {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{cfg: cfg, now: time.Now, lastProgress: -1}
}

// SetTransfer records the identifiers attached to every later event.
func (e *Emitter) SetTransfer(transferID, checkpointFile string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transferID = transferID
	e.checkpointFile = checkpointFile
}

// Begin sets the byte baseline, the bytes already done by earlier attempts,
// and reports it as the first progress value.
func (e *Emitter) Begin(consumed, total int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumed = consumed
	e.total = total
	e.progressLocked(e.fraction())
}

// Consumed returns the bytes recorded so far.
func (e *Emitter) Consumed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumed
}

// OnPartSucceeded reports a part that has been durably recorded.
func (e *Emitter) OnPartSucceeded(partNumber int32, size int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.consumed += size

	ev := e.eventLocked(s3types.EventPartSucceeded)
	ev.PartNumber = partNumber
	ev.PartSize = size
	e.emitLocked(ev)

	// 1 is reserved for the completed phase
	if p := e.fraction(); p < 1 {
		e.progressLocked(p)
	}
}

// OnPhase reports a phase change. err is attached to failed and cancelled.
func (e *Emitter) OnPhase(phase Phase, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}

	switch phase {
	case PhaseInitiated:
		e.emitLocked(e.eventLocked(s3types.EventInitiated))
	case PhaseTransferring:
		e.cfg.Logger.Debug("transfer scheduling parts",
			"kind", e.cfg.Kind, "bucket", e.cfg.Bucket, "key", e.cfg.Key,
			"transfer_id", e.transferID, "consumed_bytes", e.consumed)
	case PhaseCompleted:
		e.finished = true
		e.consumed = e.total
		e.emitLocked(e.eventLocked(s3types.EventCompleted))
		e.progressLocked(1)
	case PhaseFailed:
		e.finished = true
		ev := e.eventLocked(s3types.EventFailed)
		ev.Err = err
		e.emitLocked(ev)
	case PhaseCancelled:
		e.finished = true
		ev := e.eventLocked(s3types.EventCancelled)
		ev.Err = err
		e.emitLocked(ev)
	}
}

func (e *Emitter) fraction() float64 {
	if e.total <= 0 {
		return 0
	}
	return float64(e.consumed) / float64(e.total)
}

func (e *Emitter) eventLocked(t s3types.EventType) s3types.Event {
	return s3types.Event{
		Type:           t,
		Kind:           e.cfg.Kind,
		Timestamp:      e.now(),
		Bucket:         e.cfg.Bucket,
		Key:            e.cfg.Key,
		TransferID:     e.transferID,
		CheckpointFile: e.checkpointFile,
		ConsumedBytes:  e.consumed,
		TotalBytes:     e.total,
	}
}

func (e *Emitter) emitLocked(ev s3types.Event) {
	if e.cfg.Listener == nil {
		return
	}
	e.isolate("event", func() { e.cfg.Listener.OnEvent(ev) })
}

// progressLocked emits p if it moves progress forward.
func (e *Emitter) progressLocked(p float64) {
	if p <= e.lastProgress {
		return
	}
	e.lastProgress = p
	if e.cfg.Progress == nil {
		return
	}
	e.isolate("progress", func() { e.cfg.Progress.OnProgress(p) })
}

func (e *Emitter) isolate(callback string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Warn("transfer listener panicked",
				"callback", callback, "bucket", e.cfg.Bucket, "key", e.cfg.Key, "panic", r)
		}
	}()
	fn()
}
