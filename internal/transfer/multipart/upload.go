package multipart

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/ratelimit"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Upload transfers the local file at filePath to bucket/key.
func (e *Engine) Upload(
	ctx context.Context,
	bucket, key, filePath string,
	opts *s3types.TransferOptionConfig,
) (*s3types.TransferResult, error) {
	if opts == nil {
		opts = &s3types.TransferOptionConfig{}
	}
	if err := validation.Object(bucket, key); err != nil {
		return nil, invalid(s3types.KindUpload, bucket, key, err)
	}
	if err := validation.LocalPath(filePath); err != nil {
		return nil, invalid(s3types.KindUpload, bucket, key, err)
	}
	if err := checkOptions(opts); err != nil {
		return nil, invalid(s3types.KindUpload, bucket, key, err)
	}

	info, err := e.fs.Stat(filePath)
	if err != nil {
		return nil, invalid(s3types.KindUpload, bucket, key, errors.NewError("statFile", err))
	}
	if info.IsDir() {
		return nil, invalid(s3types.KindUpload, bucket, key,
			errors.NewError("statFile", fmt.Errorf("%w: %s is a directory", errors.ErrInvalidConfiguration, filePath)))
	}
	file, err := e.fs.Open(filePath)
	if err != nil {
		return nil, invalid(s3types.KindUpload, bucket, key, errors.NewError("openFile", err))
	}
	defer file.Close()

	modified := info.ModTime().UTC()
	s := &Session{
		Kind:               s3types.KindUpload,
		Bucket:             bucket,
		Key:                key,
		FilePath:           filePath,
		ObjectSize:         info.Size(),
		SourceLastModified: &modified,
	}
	s.applyOptions(opts)

	ops := &uploadOps{
		multipartTarget: multipartTarget{
			api:    e.api,
			bucket: bucket,
			key:    key,
			attrs: objectAttributes{
				ContentType:  opts.ContentType,
				Metadata:     opts.Metadata,
				StorageClass: opts.StorageClass,
				SSE:          opts.SSE,
			},
		},
		engine:  e,
		file:    file,
		size:    info.Size(),
		limiter: opts.RateLimiter,
	}
	if ops.attrs.ContentType == "" {
		ops.attrs.ContentType = detectContentType(file, info.Size())
	}

	return e.Run(ctx, s, ops)
}

// detectContentType sniffs the MIME type from the head of the file.
func detectContentType(r io.ReaderAt, size int64) string {
	mt, err := mimetype.DetectReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return ""
	}
	return mt.String()
}

// uploadOps sends the parts of a local file with UploadPart.
type uploadOps struct {
	multipartTarget

	engine  *Engine
	file    billy.File
	size    int64
	limiter s3types.RateLimiter
}

func (u *uploadOps) Initiate(ctx context.Context) (string, error) {
	return u.create(ctx)
}

// Resume has nothing to check locally; a stale upload id surfaces as
// NoSuchUpload on the first part.
func (u *uploadOps) Resume(context.Context, string) error {
	return nil
}

func (u *uploadOps) Part(ctx context.Context, uploadID string, part planner.Part) (string, error) {
	buffers := u.engine.partBuffers(part.Size)
	buf := buffers.Get(int(part.Size))
	defer buffers.Put(buf)

	// the limiter is charged here, once; the SDK may re-read the body on retry
	src := ratelimit.NewReader(ctx, io.NewSectionReader(u.file, part.Offset, part.Size), u.limiter, ratelimit.Hooks{})
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", errors.NewObjectError("readPart", u.bucket, u.key,
			fmt.Errorf("part %d: %w", part.Number, err))
	}

	algorithm, customerKey, customerMD5 := customerKey(u.attrs.SSE)
	output, err := u.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(u.key),
		UploadId:             aws.String(uploadID),
		PartNumber:           aws.Int32(part.Number),
		Body:                 bytes.NewReader(buf),
		ContentLength:        aws.Int64(part.Size),
		SSECustomerAlgorithm: algorithm,
		SSECustomerKey:       customerKey,
		SSECustomerKeyMD5:    customerMD5,
	})
	if err != nil {
		return "", errors.NewObjectError("uploadPart", u.bucket, u.key,
			fmt.Errorf("part %d: %w", part.Number, err))
	}

	etag := aws.ToString(output.ETag)
	if etag == "" {
		return "", errors.NewObjectError("uploadPart", u.bucket, u.key,
			fmt.Errorf("part %d: response carried no ETag", part.Number))
	}
	return etag, nil
}

func (u *uploadOps) Complete(ctx context.Context, uploadID string, parts []CompletedPart) (*Completion, error) {
	return u.complete(ctx, uploadID, parts)
}

// CompleteEmpty writes a zero-byte object with a single PutObject, because
// S3 rejects a multipart completion without parts.
func (u *uploadOps) CompleteEmpty(ctx context.Context) (*Completion, error) {
	input := u.attrs.putInput(u.bucket, u.key, bytes.NewReader(nil), 0)
	output, err := u.api.PutObject(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("putObject", u.bucket, u.key, err)
	}
	return &Completion{
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

func (u *uploadOps) Abort(ctx context.Context, uploadID string) error {
	return u.abort(ctx, uploadID)
}
