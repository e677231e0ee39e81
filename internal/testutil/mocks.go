// Package testutil provides test doubles and helpers for resumable transfers.
// This package is internal and should only be used for testing within the module.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/s3api"
)

// APIFunc is the shape of every S3API method.
type APIFunc[I, O any] func(context.Context, *I, ...func(*s3.Options)) (*O, error)

// MockS3Client is an S3API whose operations can be replaced one at a time.
// An operation without an override is forwarded to Fallback, typically a
// FakeS3; with no Fallback it fails as an unexpected call.
type MockS3Client struct {
	Fallback s3api.S3API

	HeadObjectFunc              APIFunc[s3.HeadObjectInput, s3.HeadObjectOutput]
	GetObjectFunc               APIFunc[s3.GetObjectInput, s3.GetObjectOutput]
	PutObjectFunc               APIFunc[s3.PutObjectInput, s3.PutObjectOutput]
	CopyObjectFunc              APIFunc[s3.CopyObjectInput, s3.CopyObjectOutput]
	CreateMultipartUploadFunc   APIFunc[s3.CreateMultipartUploadInput, s3.CreateMultipartUploadOutput]
	UploadPartFunc              APIFunc[s3.UploadPartInput, s3.UploadPartOutput]
	UploadPartCopyFunc          APIFunc[s3.UploadPartCopyInput, s3.UploadPartCopyOutput]
	CompleteMultipartUploadFunc APIFunc[s3.CompleteMultipartUploadInput, s3.CompleteMultipartUploadOutput]
	AbortMultipartUploadFunc    APIFunc[s3.AbortMultipartUploadInput, s3.AbortMultipartUploadOutput]

	mu    sync.Mutex
	calls []string
}

var _ s3api.S3API = (*MockS3Client)(nil)

// Calls returns the operations invoked so far, in order.
func (m *MockS3Client) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func dispatch[I, O any](
	ctx context.Context,
	m *MockS3Client,
	op string,
	override APIFunc[I, O],
	fallback func(s3api.S3API) APIFunc[I, O],
	in *I,
	optFns []func(*s3.Options),
) (*O, error) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()

	switch {
	case override != nil:
		return override(ctx, in, optFns...)
	case m.Fallback != nil:
		return fallback(m.Fallback)(ctx, in, optFns...)
	default:
		return nil, fmt.Errorf("testutil: unexpected %s call", op)
	}
}

func (m *MockS3Client) HeadObject(
	ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	return dispatch(ctx, m, "HeadObject", m.HeadObjectFunc,
		func(a s3api.S3API) APIFunc[s3.HeadObjectInput, s3.HeadObjectOutput] { return a.HeadObject },
		in, optFns)
}

func (m *MockS3Client) GetObject(
	ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	return dispatch(ctx, m, "GetObject", m.GetObjectFunc,
		func(a s3api.S3API) APIFunc[s3.GetObjectInput, s3.GetObjectOutput] { return a.GetObject },
		in, optFns)
}

func (m *MockS3Client) PutObject(
	ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	return dispatch(ctx, m, "PutObject", m.PutObjectFunc,
		func(a s3api.S3API) APIFunc[s3.PutObjectInput, s3.PutObjectOutput] { return a.PutObject },
		in, optFns)
}

func (m *MockS3Client) CopyObject(
	ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	return dispatch(ctx, m, "CopyObject", m.CopyObjectFunc,
		func(a s3api.S3API) APIFunc[s3.CopyObjectInput, s3.CopyObjectOutput] { return a.CopyObject },
		in, optFns)
}

func (m *MockS3Client) CreateMultipartUpload(
	ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	return dispatch(ctx, m, "CreateMultipartUpload", m.CreateMultipartUploadFunc,
		func(a s3api.S3API) APIFunc[s3.CreateMultipartUploadInput, s3.CreateMultipartUploadOutput] {
			return a.CreateMultipartUpload
		},
		in, optFns)
}

func (m *MockS3Client) UploadPart(
	ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	return dispatch(ctx, m, "UploadPart", m.UploadPartFunc,
		func(a s3api.S3API) APIFunc[s3.UploadPartInput, s3.UploadPartOutput] { return a.UploadPart },
		in, optFns)
}

func (m *MockS3Client) UploadPartCopy(
	ctx context.Context, in *s3.UploadPartCopyInput, optFns ...func(*s3.Options),
) (*s3.UploadPartCopyOutput, error) {
	return dispatch(ctx, m, "UploadPartCopy", m.UploadPartCopyFunc,
		func(a s3api.S3API) APIFunc[s3.UploadPartCopyInput, s3.UploadPartCopyOutput] { return a.UploadPartCopy },
		in, optFns)
}

func (m *MockS3Client) CompleteMultipartUpload(
	ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	return dispatch(ctx, m, "CompleteMultipartUpload", m.CompleteMultipartUploadFunc,
		func(a s3api.S3API) APIFunc[s3.CompleteMultipartUploadInput, s3.CompleteMultipartUploadOutput] {
			return a.CompleteMultipartUpload
		},
		in, optFns)
}

func (m *MockS3Client) AbortMultipartUpload(
	ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	return dispatch(ctx, m, "AbortMultipartUpload", m.AbortMultipartUploadFunc,
		func(a s3api.S3API) APIFunc[s3.AbortMultipartUploadInput, s3.AbortMultipartUploadOutput] {
			return a.AbortMultipartUpload
		},
		in, optFns)
}
