package multipart

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Copy copies srcBucket/srcKey to bucket/key on the server side.
func (e *Engine) Copy(
	ctx context.Context,
	srcBucket, srcKey, bucket, key string,
	opts *s3types.TransferOptionConfig,
) (*s3types.TransferResult, error) {
	if opts == nil {
		opts = &s3types.TransferOptionConfig{}
	}
	if err := validation.Object(srcBucket, srcKey); err != nil {
		return nil, invalid(s3types.KindCopy, bucket, key, err)
	}
	if err := validation.Object(bucket, key); err != nil {
		return nil, invalid(s3types.KindCopy, bucket, key, err)
	}
	if err := checkOptions(opts); err != nil {
		return nil, invalid(s3types.KindCopy, bucket, key, err)
	}

	src, err := probe(ctx, e.api, srcBucket, srcKey, nil)
	if err != nil {
		return nil, invalid(s3types.KindCopy, bucket, key, err)
	}

	s := &Session{
		Kind:               s3types.KindCopy,
		Bucket:             bucket,
		Key:                key,
		SourceBucket:       srcBucket,
		SourceKey:          srcKey,
		ObjectSize:         src.Size,
		SourceLastModified: src.LastModified,
	}
	s.applyOptions(opts)

	// multipart copies do not carry the source attributes over
	attrs := objectAttributes{
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		StorageClass: opts.StorageClass,
		SSE:          opts.SSE,
	}
	if attrs.ContentType == "" {
		attrs.ContentType = src.ContentType
	}
	if attrs.Metadata == nil {
		attrs.Metadata = src.Metadata
	}

	ops := &copyOps{
		multipartTarget: multipartTarget{api: e.api, bucket: bucket, key: key, attrs: attrs},
		source:          copySource(srcBucket, srcKey),
		etag:            src.ETag,
		replaceMetadata: opts.Metadata != nil || opts.ContentType != "",
	}
	return e.Run(ctx, s, ops)
}

// copySource formats the url-escaped bucket/key of a copy request. Each key
// segment is escaped on its own so the separators survive, and "+" is escaped
// because S3 would read it as a space.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// copyOps copies byte ranges of the source with UploadPartCopy. Every
// request is conditional on the source ETag seen at the start, when there is one.
type copyOps struct {
	multipartTarget

	source          string
	etag            string
	replaceMetadata bool
}

func (c *copyOps) Initiate(ctx context.Context) (string, error) {
	return c.create(ctx)
}

func (c *copyOps) Resume(context.Context, string) error {
	return nil
}

func (c *copyOps) Part(ctx context.Context, uploadID string, part planner.Part) (string, error) {
	algorithm, customerKey, customerMD5 := customerKey(c.attrs.SSE)
	output, err := c.api.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
		Bucket:               aws.String(c.bucket),
		Key:                  aws.String(c.key),
		UploadId:             aws.String(uploadID),
		PartNumber:           aws.Int32(part.Number),
		CopySource:           aws.String(c.source),
		CopySourceRange:      aws.String(part.Range()),
		CopySourceIfMatch:    ifMatch(c.etag),
		SSECustomerAlgorithm: algorithm,
		SSECustomerKey:       customerKey,
		SSECustomerKeyMD5:    customerMD5,
	})
	if err != nil {
		return "", errors.NewObjectError("uploadPartCopy", c.bucket, c.key,
			fmt.Errorf("part %d: %w", part.Number, err))
	}
	if output.CopyPartResult == nil || aws.ToString(output.CopyPartResult.ETag) == "" {
		return "", errors.NewObjectError("uploadPartCopy", c.bucket, c.key,
			fmt.Errorf("part %d: response carried no ETag", part.Number))
	}
	return aws.ToString(output.CopyPartResult.ETag), nil
}

func (c *copyOps) Complete(ctx context.Context, uploadID string, parts []CompletedPart) (*Completion, error) {
	return c.complete(ctx, uploadID, parts)
}

// CompleteEmpty copies a zero-byte source with a single CopyObject.
func (c *copyOps) CompleteEmpty(ctx context.Context) (*Completion, error) {
	sse := newSSEHeaders(c.attrs.SSE)
	input := &s3.CopyObjectInput{
		Bucket:               aws.String(c.bucket),
		Key:                  aws.String(c.key),
		CopySource:           aws.String(c.source),
		CopySourceIfMatch:    ifMatch(c.etag),
		ServerSideEncryption: sse.serverSide,
		SSEKMSKeyId:          sse.kmsKeyID,
		SSECustomerAlgorithm: sse.algorithm,
		SSECustomerKey:       sse.customerKey,
		SSECustomerKeyMD5:    sse.customerMD5,
	}
	if c.replaceMetadata {
		input.MetadataDirective = awstypes.MetadataDirectiveReplace
		input.Metadata = c.attrs.Metadata
		if c.attrs.ContentType != "" {
			input.ContentType = aws.String(c.attrs.ContentType)
		}
	}
	if c.attrs.StorageClass != "" {
		input.StorageClass = awstypes.StorageClass(c.attrs.StorageClass)
	}

	output, err := c.api.CopyObject(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("copyObject", c.bucket, c.key, err)
	}
	done := &Completion{VersionID: aws.ToString(output.VersionId)}
	if output.CopyObjectResult != nil {
		done.ETag = aws.ToString(output.CopyObjectResult.ETag)
	}
	return done, nil
}

func (c *copyOps) Abort(ctx context.Context, uploadID string) error {
	return c.abort(ctx, uploadID)
}
