package multipart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/ratelimit"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// TempSuffix is appended to a download target while parts are written.
const TempSuffix = ".s3transfer.tmp"

// Download transfers bucket/key into the local file at filePath.
func (e *Engine) Download(
	ctx context.Context,
	bucket, key, filePath string,
	opts *s3types.TransferOptionConfig,
) (*s3types.TransferResult, error) {
	if opts == nil {
		opts = &s3types.TransferOptionConfig{}
	}
	if err := validation.Object(bucket, key); err != nil {
		return nil, invalid(s3types.KindDownload, bucket, key, err)
	}
	if err := validation.LocalPath(filePath); err != nil {
		return nil, invalid(s3types.KindDownload, bucket, key, err)
	}
	if err := checkOptions(opts); err != nil {
		return nil, invalid(s3types.KindDownload, bucket, key, err)
	}

	src, err := probe(ctx, e.api, bucket, key, opts.SSE)
	if err != nil {
		return nil, invalid(s3types.KindDownload, bucket, key, err)
	}

	s := &Session{
		Kind:       s3types.KindDownload,
		Bucket:     bucket,
		Key:        key,
		FilePath:   filePath,
		ObjectSize: src.Size,
		SourceETag: src.ETag,
	}
	s.applyOptions(opts)

	ops := &downloadOps{
		engine:  e,
		bucket:  bucket,
		key:     key,
		etag:    src.ETag,
		sse:     opts.SSE,
		path:    filePath,
		tmpPath: filePath + TempSuffix,
		size:    src.Size,
		limiter: opts.RateLimiter,
	}
	defer ops.release()

	return e.Run(ctx, s, ops)
}

// downloadOps fetches parts with ranged GetObject calls and writes them at
// their offsets into one temporary file.
type downloadOps struct {
	engine  *Engine
	bucket  string
	key     string
	etag    string
	sse     *s3types.SSEConfig
	path    string
	tmpPath string
	size    int64
	limiter s3types.RateLimiter

	mu   sync.Mutex
	file billy.File
}

// Initiate creates the temporary file at its final size. Downloads
// have no remote transfer id.
func (d *downloadOps) Initiate(context.Context) (string, error) {
	fs := d.engine.fs
	if err := fs.MkdirAll(filepath.Dir(d.tmpPath), 0o755); err != nil {
		return "", errors.NewError("createTempFile", err)
	}
	f, err := fs.OpenFile(d.tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return "", errors.NewError("createTempFile", err)
	}
	if err := f.Truncate(d.size); err != nil {
		_ = f.Close()
		return "", errors.NewError("createTempFile", err)
	}

	d.mu.Lock()
	d.file = f
	d.mu.Unlock()
	return "", nil
}

// Resume reopens the temporary file left by an earlier attempt.
func (d *downloadOps) Resume(context.Context, string) error {
	fs := d.engine.fs
	info, err := fs.Stat(d.tmpPath)
	if err != nil {
		return err
	}
	if info.Size() != d.size {
		return fmt.Errorf("temp file %s has %d bytes, want %d", d.tmpPath, info.Size(), d.size)
	}
	f, err := fs.OpenFile(d.tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.file = f
	d.mu.Unlock()
	return nil
}

func (d *downloadOps) Part(ctx context.Context, _ string, part planner.Part) (string, error) {
	algorithm, customerKey, customerMD5 := customerKey(d.sse)
	output, err := d.engine.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket:               aws.String(d.bucket),
		Key:                  aws.String(d.key),
		Range:                aws.String(part.Range()),
		IfMatch:              ifMatch(d.etag),
		SSECustomerAlgorithm: algorithm,
		SSECustomerKey:       customerKey,
		SSECustomerKeyMD5:    customerMD5,
	})
	if err != nil {
		return "", errors.NewObjectError("getObject", d.bucket, d.key,
			fmt.Errorf("part %d: %w", part.Number, err))
	}
	defer output.Body.Close()

	buffers := d.engine.partBuffers(part.Size)
	pooled := buffers.Get(int(part.Size))
	defer buffers.Put(pooled)

	buf := bytes.NewBuffer(pooled[:0])
	if _, err := io.CopyN(ratelimit.NewWriter(ctx, buf, d.limiter), output.Body, part.Size); err != nil {
		return "", errors.NewObjectError("getObject", d.bucket, d.key,
			fmt.Errorf("part %d: read body: %w", part.Number, err))
	}

	if err := d.writeAt(buf.Bytes(), part.Offset); err != nil {
		return "", errors.NewError("writePart", fmt.Errorf("part %d: %w", part.Number, err))
	}

	if tag := aws.ToString(output.ETag); tag != "" {
		return tag, nil
	}
	return part.Range(), nil
}

// writeAt writes p at off and flushes it to stable storage before the part
// can be recorded as succeeded. billy files have no WriteAt, so seek and
// write happen under one lock.
func (d *downloadOps) writeAt(p []byte, off int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return os.ErrClosed
	}
	if _, err := d.file.Seek(off, io.SeekStart); err != nil {
		return err
	}
	if _, err := d.file.Write(p); err != nil {
		return err
	}
	if syncer, ok := d.file.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}

// Complete moves the finished temporary file into place.
func (d *downloadOps) Complete(context.Context, string, []CompletedPart) (*Completion, error) {
	if err := d.release(); err != nil {
		return nil, errors.NewError("closeTempFile", err)
	}
	fs := d.engine.fs
	if err := fs.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return nil, errors.NewError("replaceFile", err)
	}
	if err := fs.Rename(d.tmpPath, d.path); err != nil {
		return nil, errors.NewError("replaceFile", err)
	}
	return &Completion{ETag: d.etag, Location: d.path}, nil
}

// CompleteEmpty creates or truncates the target file.
func (d *downloadOps) CompleteEmpty(context.Context) (*Completion, error) {
	fs := d.engine.fs
	if err := fs.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return nil, errors.NewError("createFile", err)
	}
	f, err := fs.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.NewError("createFile", err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewError("createFile", err)
	}
	return &Completion{ETag: d.etag, Location: d.path}, nil
}

// Abort removes the temporary file.
func (d *downloadOps) Abort(context.Context, string) error {
	if err := d.release(); err != nil {
		return errors.NewError("closeTempFile", err)
	}
	if err := d.engine.fs.Remove(d.tmpPath); err != nil && !os.IsNotExist(err) {
		return errors.NewError("removeTempFile", err)
	}
	return nil
}

// release closes the temporary file if it is open.
func (d *downloadOps) release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
