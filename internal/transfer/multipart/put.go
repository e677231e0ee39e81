package multipart

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/ratelimit"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/events"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Put uploads the local file at filePath to bucket/key in a single PutObject
// request. It keeps no checkpoint; byte-level status goes to opts.DataTransfer.
func (e *Engine) Put(
	ctx context.Context,
	bucket, key, filePath string,
	opts *s3types.TransferOptionConfig,
) (*s3types.PutResult, error) {
	if opts == nil {
		opts = &s3types.TransferOptionConfig{}
	}
	if err := validation.Object(bucket, key); err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}
	if err := validation.LocalPath(filePath); err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}
	if err := validation.Metadata(opts.Metadata); err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}
	if err := validation.ContentType(opts.ContentType); err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}

	info, err := e.fs.Stat(filePath)
	if err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}
	if info.IsDir() {
		return nil, errors.NewObjectError("putObject", bucket, key,
			fmt.Errorf("%w: %s is a directory", errors.ErrInvalidConfiguration, filePath))
	}
	file, err := e.fs.Open(filePath)
	if err != nil {
		return nil, errors.NewObjectError("putObject", bucket, key, err)
	}
	defer file.Close()

	attrs := objectAttributes{
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		StorageClass: opts.StorageClass,
		SSE:          opts.SSE,
	}
	if attrs.ContentType == "" {
		attrs.ContentType = detectContentType(file, info.Size())
	}

	stream := events.NewStream(events.StreamConfig{
		Bucket:       bucket,
		Key:          key,
		TotalBytes:   info.Size(),
		DataTransfer: opts.DataTransfer,
		Progress:     opts.ProgressListener,
		Logger:       e.logger,
	})
	body := ratelimit.NewReader(ctx, file, opts.RateLimiter, ratelimit.Hooks{
		OnRead:   stream.Read,
		OnRewind: stream.Rewind,
	})

	started := time.Now()
	stream.Started()
	output, err := e.api.PutObject(ctx, attrs.putInput(bucket, key, body, info.Size()))
	if err != nil {
		stream.Failed()
		e.logger.DebugContext(ctx, "put failed", "bucket", bucket, "key", key, "error", err)
		return nil, errors.NewObjectError("putObject", bucket, key, errors.Classify(err))
	}
	stream.Succeed()

	e.logger.InfoContext(ctx, "put completed", "bucket", bucket, "key", key, "size", info.Size())
	return &s3types.PutResult{
		Key:       key,
		Size:      info.Size(),
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Duration:  time.Since(started),
	}, nil
}
