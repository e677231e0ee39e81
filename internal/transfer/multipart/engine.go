package multipart

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/checkpoint"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/events"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

const (
	// cleanupTimeout bounds abort calls made after the transfer context ended
	cleanupTimeout = 30 * time.Second

	// minBufferClass is the smallest pooled part buffer
	minBufferClass = 64 * 1024
)

// CompletedPart is a part that is ready to be finalized.
type CompletedPart struct {
	Number    int32
	RemoteTag string
}

// Completion is what a successful finalization returns.
type Completion struct {
	ETag      string
	Location  string
	VersionID string
}

// PartOperations are the remote calls of one transfer kind.
type PartOperations interface {
	// Initiate starts a fresh transfer and returns its remote id.
	Initiate(ctx context.Context) (string, error)

	// Resume prepares to continue the transfer recorded under transferID.
	// An error makes the engine start a fresh transfer instead.
	Resume(ctx context.Context, transferID string) error

	// Part transfers one part and returns its remote tag.
	Part(ctx context.Context, transferID string, part planner.Part) (string, error)

	// Complete finalizes a transfer whose parts have all succeeded.
	Complete(ctx context.Context, transferID string, parts []CompletedPart) (*Completion, error)

	// CompleteEmpty produces a zero-byte object without a multipart transfer.
	CompleteEmpty(ctx context.Context) (*Completion, error)

	// Abort discards the remote state of transferID.
	Abort(ctx context.Context, transferID string) error
}

// Session is the in-memory state of one transfer.
type Session struct {
	Kind s3types.TransferKind

	// Bucket and Key are the remote object: the destination for uploads and
	// copies, the source for downloads
	Bucket string
	Key    string

	// SourceBucket and SourceKey are set for copies
	SourceBucket string
	SourceKey    string

	// FilePath is the local source of an upload or target of a download
	FilePath string

	ObjectSize int64

	// PartSize is the requested part size; zero lets the engine choose
	PartSize int64
	TaskNum  int

	// Checkpoint is a file or directory; empty disables checkpointing
	Checkpoint   string
	StrictResume bool

	// SourceLastModified and SourceETag pin the source a checkpoint belongs to
	SourceLastModified *time.Time
	SourceETag         string

	Listener s3types.Listener
	Progress s3types.ProgressListener
}

func (s *Session) match() checkpoint.Match {
	return checkpoint.Match{
		Kind:               s.Kind,
		Bucket:             s.Bucket,
		Key:                s.Key,
		SourceBucket:       s.SourceBucket,
		SourceKey:          s.SourceKey,
		FilePath:           s.FilePath,
		ObjectSize:         s.ObjectSize,
		PartSize:           s.PartSize,
		SourceLastModified: s.SourceLastModified,
		SourceETag:         s.SourceETag,
	}
}

func (s *Session) identity(partSize int64) checkpoint.Identity {
	return checkpoint.Identity{
		Kind:         s.Kind,
		Bucket:       s.Bucket,
		Key:          s.Key,
		SourceBucket: s.SourceBucket,
		SourceKey:    s.SourceKey,
		ObjectSize:   s.ObjectSize,
		PartSize:     partSize,
	}
}

// Engine runs transfers against one S3 API and one local filesystem.
type Engine struct {
	api    s3api.S3API
	fs     billy.Filesystem
	store  *checkpoint.Store
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[int64]*pool.BufferPool
}

// NewEngine creates an Engine. Checkpoints and local files live on fs.
func NewEngine(api s3api.S3API, fs billy.Filesystem, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		api:     api,
		fs:      fs,
		store:   checkpoint.NewStore(fs, logger),
		logger:  logger,
		buffers: make(map[int64]*pool.BufferPool),
	}
}

// partBuffers returns the shared pool whose buffers fit a part of size bytes.
// Sizes are rounded up to a power of two so the number of pools stays small.
func (e *Engine) partBuffers(size int64) *pool.BufferPool {
	class := int64(minBufferClass)
	for class < size {
		class <<= 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	bp, ok := e.buffers[class]
	if !ok {
		bp = pool.NewBufferPool(int(class))
		e.buffers[class] = bp
	}
	return bp
}

// checkOptions validates the tuning and attribute options of a transfer.
func checkOptions(opts *s3types.TransferOptionConfig) error {
	if err := validation.PartSize(opts.PartSize); err != nil {
		return err
	}
	if err := validation.TaskNum(opts.TaskNum); err != nil {
		return err
	}
	if err := validation.Metadata(opts.Metadata); err != nil {
		return err
	}
	return validation.ContentType(opts.ContentType)
}

// invalid reports a transfer rejected before any remote call.
func invalid(kind s3types.TransferKind, bucket, key string, err error) error {
	return &errors.TransferError{Op: string(kind), Bucket: bucket, Key: key, Err: err}
}

func (s *Session) applyOptions(opts *s3types.TransferOptionConfig) {
	s.PartSize = opts.PartSize
	s.TaskNum = opts.TaskNum
	s.Checkpoint = opts.Checkpoint
	s.StrictResume = opts.StrictResume
	s.Listener = opts.Listener
	s.Progress = opts.ProgressListener
}

// run is the state of one Run call.
type run struct {
	s       *Session
	ops     PartOperations
	emitter *events.Emitter
	started time.Time

	partSize   int64
	plan       []planner.Part
	transferID string
	cpPath     string
	rec        *checkpoint.Record
	resumed    int
	completed  map[int32]string
}

// Run drives s to completion with ops.
func (e *Engine) Run(ctx context.Context, s *Session, ops PartOperations) (*s3types.TransferResult, error) {
	r := &run{
		s:   s,
		ops: ops,
		emitter: events.New(events.Config{
			Kind:     s.Kind,
			Bucket:   s.Bucket,
			Key:      s.Key,
			Listener: s.Listener,
			Progress: s.Progress,
			Logger:   e.logger,
		}),
		started:   time.Now(),
		completed: make(map[int32]string),
	}

	// Init
	r.partSize = planner.ChoosePartSize(s.ObjectSize, s.PartSize)
	plan, err := planner.Plan(s.ObjectSize, r.partSize)
	if err != nil {
		return nil, r.terminal(err)
	}
	r.plan = plan

	if s.ObjectSize == 0 {
		return e.runEmpty(ctx, r)
	}

	// ResumeCheck
	if err := e.resumeCheck(ctx, r); err != nil {
		return nil, err
	}

	// Scheduling
	remaining := planner.Remaining(r.plan, r.completed)
	r.emitter.OnPhase(events.PhaseTransferring, nil)
	e.logger.InfoContext(ctx, "transfer scheduling parts",
		"kind", s.Kind, "bucket", s.Bucket, "key", s.Key, "transfer_id", r.transferID,
		"parts_total", len(r.plan), "parts_remaining", len(remaining), "part_size", r.partSize)

	tasks := pool.New(s.TaskNum)
	_, err = tasks.Run(ctx, remaining,
		func(ctx context.Context, part planner.Part) (string, error) {
			return ops.Part(ctx, r.transferID, part)
		},
		func(res pool.Result) error {
			return e.partSucceeded(ctx, r, res)
		},
	)
	e.logger.DebugContext(ctx, "parts scheduled",
		"transfer_id", r.transferID, "parts_completed", len(r.completed), "peak_in_flight", tasks.Peak())
	if err != nil {
		return nil, e.fail(ctx, r, err)
	}

	// Finalizing
	return e.finalize(ctx, r)
}

// resumeCheck reuses a matching checkpoint or starts a fresh transfer.
func (e *Engine) resumeCheck(ctx context.Context, r *run) error {
	s := r.s
	r.cpPath = checkpoint.ResolvePath(e.fs, s.Checkpoint, s.identity(r.partSize))

	if r.cpPath != "" {
		rec, reason := e.store.Load(r.cpPath, s.match())
		var stale *checkpoint.StaleError
		switch {
		case rec != nil:
			if err := r.ops.Resume(ctx, rec.TransferID); err != nil {
				e.logger.DebugContext(ctx, "checkpoint not resumable, starting fresh",
					"path", r.cpPath, "transfer_id", rec.TransferID, "error", err)
				break
			}
			if err := r.adopt(rec); err != nil {
				return r.terminal(err)
			}
		case s.StrictResume && stderrors.Is(reason, checkpoint.ErrPartSizeMismatch):
			return r.terminal(errors.NewObjectError("resumeCheck", s.Bucket, s.Key,
				fmt.Errorf("%w: %w", errors.ErrInvalidConfiguration, reason)))
		case stderrors.As(reason, &stale):
			e.abortStale(ctx, stale)
		}
	}

	if r.rec == nil {
		id, err := r.ops.Initiate(ctx)
		if err != nil {
			return e.fail(ctx, r, err)
		}
		r.transferID = id

		if r.cpPath != "" {
			rec, err := e.store.Create(r.cpPath, checkpoint.Record{
				Kind:               s.Kind,
				TransferID:         id,
				Bucket:             s.Bucket,
				Key:                s.Key,
				SourceBucket:       s.SourceBucket,
				SourceKey:          s.SourceKey,
				FilePath:           s.FilePath,
				ObjectSize:         s.ObjectSize,
				PartSize:           r.partSize,
				SourceLastModified: s.SourceLastModified,
				SourceETag:         s.SourceETag,
			})
			if err != nil {
				// nothing durable records the id, so the remote side goes too
				r.cpPath = ""
				return e.fail(ctx, r, err)
			}
			r.rec = rec
		}
	}

	r.emitter.SetTransfer(r.transferID, r.cpPath)
	r.emitter.Begin(r.consumed(), s.ObjectSize)
	r.emitter.OnPhase(events.PhaseInitiated, nil)

	e.logger.InfoContext(ctx, "transfer initiated",
		"kind", s.Kind, "bucket", s.Bucket, "key", s.Key, "transfer_id", r.transferID,
		"checkpoint", r.cpPath, "parts_resumed", r.resumed)
	return nil
}

// adopt takes over the state recorded in rec.
func (r *run) adopt(rec *checkpoint.Record) error {
	if rec.PartSize != r.partSize {
		plan, err := planner.Plan(r.s.ObjectSize, rec.PartSize)
		if err != nil {
			return err
		}
		r.partSize = rec.PartSize
		r.plan = plan
	}
	r.rec = rec
	r.transferID = rec.TransferID
	for n, p := range rec.Succeeded() {
		r.completed[n] = p.RemoteTag
	}
	r.resumed = len(r.completed)
	return nil
}

func (r *run) consumed() int64 {
	var total int64
	for _, p := range r.plan {
		if _, ok := r.completed[p.Number]; ok {
			total += p.Size
		}
	}
	return total
}

// partSucceeded persists a part before reporting it.
func (e *Engine) partSucceeded(ctx context.Context, r *run, res pool.Result) error {
	if r.rec != nil {
		if err := e.store.RecordPartSucceeded(r.rec, res.Part.Number, res.Part.Size, res.RemoteTag); err != nil {
			return err
		}
	}
	r.completed[res.Part.Number] = res.RemoteTag
	r.emitter.OnPartSucceeded(res.Part.Number, res.Part.Size)

	e.logger.DebugContext(ctx, "part succeeded",
		"bucket", r.s.Bucket, "key", r.s.Key, "transfer_id", r.transferID,
		"part_number", res.Part.Number, "size", res.Part.Size)
	return nil
}

func (e *Engine) finalize(ctx context.Context, r *run) (*s3types.TransferResult, error) {
	parts := make([]CompletedPart, 0, len(r.plan))
	for _, p := range r.plan {
		tag, ok := r.completed[p.Number]
		if !ok {
			return nil, e.fail(ctx, r, fmt.Errorf("%w: part %d has not succeeded", errors.ErrIncompleteTransfer, p.Number))
		}
		parts = append(parts, CompletedPart{Number: p.Number, RemoteTag: tag})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	done, err := r.ops.Complete(ctx, r.transferID, parts)
	if err != nil {
		return nil, e.fail(ctx, r, err)
	}

	if r.rec != nil {
		if err := e.store.Finalize(r.rec); err != nil {
			e.logger.WarnContext(ctx, "failed to remove checkpoint", "path", r.cpPath, "error", err)
		}
	}
	r.emitter.OnPhase(events.PhaseCompleted, nil)

	result := r.result(done)
	e.logger.InfoContext(ctx, "transfer completed",
		"kind", r.s.Kind, "bucket", r.s.Bucket, "key", r.s.Key, "transfer_id", r.transferID,
		"size", result.Size, "parts", result.PartsTotal, "duration", result.Duration)
	return result, nil
}

// runEmpty handles zero-byte objects, which have no parts to schedule.
func (e *Engine) runEmpty(ctx context.Context, r *run) (*s3types.TransferResult, error) {
	r.emitter.Begin(0, 0)

	done, err := r.ops.CompleteEmpty(ctx)
	if err != nil {
		classified := errors.Classify(err)
		if ctx.Err() != nil {
			if !errors.IsCancelled(classified) {
				classified = fmt.Errorf("%w: %w", errors.ErrCancelled, classified)
			}
			r.emitter.OnPhase(events.PhaseCancelled, classified)
		} else {
			r.emitter.OnPhase(events.PhaseFailed, classified)
		}
		return nil, r.terminal(classified)
	}

	r.emitter.OnPhase(events.PhaseCompleted, nil)
	return r.result(done), nil
}

// fail settles the transfer into a safe state after err and reports it.
// Either the checkpoint survives and still points at live remote state, or the
// remote state is aborted and the checkpoint is gone.
func (e *Engine) fail(ctx context.Context, r *run, err error) error {
	classified := errors.Classify(err)
	cancelled := ctx.Err() != nil || errors.IsCancelled(classified)
	if cancelled && !errors.IsCancelled(classified) {
		classified = fmt.Errorf("%w: %w", errors.ErrCancelled, classified)
	}

	switch {
	case cancelled && r.rec != nil:
		// resumable; leave everything in place
	case errors.IsFatalRemote(classified) || r.rec == nil:
		if e.abort(ctx, r) && r.rec != nil {
			if derr := e.store.Discard(r.cpPath); derr != nil {
				e.logger.WarnContext(ctx, "failed to discard checkpoint", "path", r.cpPath, "error", derr)
			} else {
				r.rec = nil
			}
		}
	}

	if cancelled {
		r.emitter.OnPhase(events.PhaseCancelled, classified)
		e.logger.InfoContext(ctx, "transfer cancelled",
			"kind", r.s.Kind, "bucket", r.s.Bucket, "key", r.s.Key, "transfer_id", r.transferID,
			"parts_completed", len(r.completed))
	} else {
		r.emitter.OnPhase(events.PhaseFailed, classified)
		e.logger.WarnContext(ctx, "transfer failed",
			"kind", r.s.Kind, "bucket", r.s.Bucket, "key", r.s.Key, "transfer_id", r.transferID,
			"parts_completed", len(r.completed), "error", classified)
	}
	return r.terminal(classified)
}

// abort discards the remote state and reports whether it is gone.
func (e *Engine) abort(ctx context.Context, r *run) bool {
	if r.transferID == "" && r.s.Kind != s3types.KindDownload {
		return true
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := r.ops.Abort(cctx, r.transferID)
	if err == nil || stderrors.Is(errors.Classify(err), errors.ErrUploadNotFound) {
		return true
	}
	e.logger.WarnContext(ctx, "failed to abort transfer",
		"bucket", r.s.Bucket, "key", r.s.Key, "transfer_id", r.transferID, "error", err)
	return false
}

// abortStale releases the multipart upload of a checkpoint that is about to be
// replaced. Failures are logged; the new transfer goes ahead regardless.
func (e *Engine) abortStale(ctx context.Context, stale *checkpoint.StaleError) {
	if stale.Kind == s3types.KindDownload || stale.TransferID == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	t := &multipartTarget{api: e.api, bucket: stale.Bucket, key: stale.Key}
	err := t.abort(cctx, stale.TransferID)
	if err != nil && !stderrors.Is(errors.Classify(err), errors.ErrUploadNotFound) {
		e.logger.WarnContext(ctx, "failed to abort stale transfer",
			"bucket", stale.Bucket, "key", stale.Key, "transfer_id", stale.TransferID, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "aborted stale transfer",
		"bucket", stale.Bucket, "key", stale.Key, "transfer_id", stale.TransferID)
}

func (r *run) terminal(err error) error {
	te := &errors.TransferError{
		Op:             string(r.s.Kind),
		Bucket:         r.s.Bucket,
		Key:            r.s.Key,
		TransferID:     r.transferID,
		PartsCompleted: len(r.completed),
		Err:            err,
	}
	if r.rec != nil {
		te.CheckpointFile = r.cpPath
	}
	return te
}

func (r *run) result(done *Completion) *s3types.TransferResult {
	res := &s3types.TransferResult{
		Kind:         r.s.Kind,
		Bucket:       r.s.Bucket,
		Key:          r.s.Key,
		TransferID:   r.transferID,
		Size:         r.s.ObjectSize,
		PartsTotal:   len(r.plan),
		PartsResumed: r.resumed,
		Duration:     time.Since(r.started),
	}
	if done != nil {
		res.ETag = done.ETag
		res.Location = done.Location
		res.VersionID = done.VersionID
	}
	return res
}
