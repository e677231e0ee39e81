package multipart

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// objectAttributes are the properties given to a newly written object.
type objectAttributes struct {
	ContentType  string
	Metadata     map[string]string
	StorageClass s3types.StorageClass
	SSE          *s3types.SSEConfig
}

// sseHeaders are the encryption settings of a request.
type sseHeaders struct {
	serverSide  awstypes.ServerSideEncryption
	kmsKeyID    *string
	algorithm   *string
	customerKey *string
	customerMD5 *string
}

func newSSEHeaders(sse *s3types.SSEConfig) sseHeaders {
	var h sseHeaders
	if sse == nil {
		return h
	}
	switch sse.Type {
	case s3types.SSES3:
		h.serverSide = awstypes.ServerSideEncryptionAes256
	case s3types.SSEKMS:
		h.serverSide = awstypes.ServerSideEncryptionAwsKms
		if sse.KMSKeyID != "" {
			h.kmsKeyID = aws.String(sse.KMSKeyID)
		}
	case s3types.SSEC:
		h.algorithm, h.customerKey, h.customerMD5 = customerKey(sse)
	}
	return h
}

// customerKey returns the SSE-C headers every request on the object repeats.
func customerKey(sse *s3types.SSEConfig) (algorithm, key, keyMD5 *string) {
	if sse == nil || sse.Type != s3types.SSEC || sse.CustomerKey == "" {
		return nil, nil, nil
	}
	return aws.String("AES256"), aws.String(sse.CustomerKey), aws.String(sse.CustomerKeyMD5)
}

// putInput is a single-shot PutObject request writing size bytes of body.
func (a objectAttributes) putInput(bucket, key string, body io.Reader, size int64) *s3.PutObjectInput {
	sse := newSSEHeaders(a.SSE)
	input := &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentLength:        aws.Int64(size),
		Metadata:             a.Metadata,
		ServerSideEncryption: sse.serverSide,
		SSEKMSKeyId:          sse.kmsKeyID,
		SSECustomerAlgorithm: sse.algorithm,
		SSECustomerKey:       sse.customerKey,
		SSECustomerKeyMD5:    sse.customerMD5,
	}
	if a.ContentType != "" {
		input.ContentType = aws.String(a.ContentType)
	}
	if a.StorageClass != "" {
		input.StorageClass = awstypes.StorageClass(a.StorageClass)
	}
	return input
}

// multipartTarget creates, completes and aborts multipart uploads on one
// destination object. Uploads and copies share it.
type multipartTarget struct {
	api    s3api.S3API
	bucket string
	key    string
	attrs  objectAttributes
}

func (t *multipartTarget) create(ctx context.Context) (string, error) {
	sse := newSSEHeaders(t.attrs.SSE)
	input := &s3.CreateMultipartUploadInput{
		Bucket:               aws.String(t.bucket),
		Key:                  aws.String(t.key),
		ServerSideEncryption: sse.serverSide,
		SSEKMSKeyId:          sse.kmsKeyID,
		SSECustomerAlgorithm: sse.algorithm,
		SSECustomerKey:       sse.customerKey,
		SSECustomerKeyMD5:    sse.customerMD5,
	}
	if t.attrs.ContentType != "" {
		input.ContentType = aws.String(t.attrs.ContentType)
	}
	if len(t.attrs.Metadata) > 0 {
		input.Metadata = t.attrs.Metadata
	}
	if t.attrs.StorageClass != "" {
		input.StorageClass = awstypes.StorageClass(t.attrs.StorageClass)
	}

	output, err := t.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", errors.NewObjectError("createMultipartUpload", t.bucket, t.key, err)
	}
	id := aws.ToString(output.UploadId)
	if id == "" {
		return "", errors.NewObjectError("createMultipartUpload", t.bucket, t.key,
			fmt.Errorf("%w: empty upload id", errors.ErrFatalRemote))
	}
	return id, nil
}

func (t *multipartTarget) complete(ctx context.Context, uploadID string, parts []CompletedPart) (*Completion, error) {
	completed := make([]awstypes.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, awstypes.CompletedPart{
			ETag:       aws.String(p.RemoteTag),
			PartNumber: aws.Int32(p.Number),
		})
	}

	output, err := t.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(t.bucket),
		Key:             aws.String(t.key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, errors.NewObjectError("completeMultipartUpload", t.bucket, t.key, err)
	}
	return &Completion{
		ETag:      aws.ToString(output.ETag),
		Location:  aws.ToString(output.Location),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

func (t *multipartTarget) abort(ctx context.Context, uploadID string) error {
	_, err := t.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(t.key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return errors.NewObjectError("abortMultipartUpload", t.bucket, t.key, err)
	}
	return nil
}

// ifMatch returns the condition for etag, or nil when the source reported none.
func ifMatch(etag string) *string {
	if etag == "" {
		return nil
	}
	return aws.String(etag)
}

// sourceObject is what HeadObject reports about a remote source.
type sourceObject struct {
	Size         int64
	ETag         string
	LastModified *time.Time
	ContentType  string
	Metadata     map[string]string
}

func probe(ctx context.Context, api s3api.S3API, bucket, key string, sse *s3types.SSEConfig) (*sourceObject, error) {
	algorithm, customerKey, customerMD5 := customerKey(sse)
	output, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		SSECustomerAlgorithm: algorithm,
		SSECustomerKey:       customerKey,
		SSECustomerKeyMD5:    customerMD5,
	})
	if err != nil {
		return nil, errors.NewObjectError("headObject", bucket, key, errors.Classify(err))
	}
	src := &sourceObject{
		Size:        aws.ToInt64(output.ContentLength),
		ETag:        aws.ToString(output.ETag),
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}
	if output.LastModified != nil {
		modified := output.LastModified.UTC()
		src.LastModified = &modified
	}
	return src, nil
}
