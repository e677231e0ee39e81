package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bucket and key",
			err:  NewObjectError("uploadPart", "bucket", "key", errors.New("boom")),
			want: "s3transfer.uploadPart bucket/key: boom",
		},
		{
			name: "bucket only",
			err:  NewError("head", errors.New("boom")).WithBucket("bucket"),
			want: "s3transfer.head bucket bucket: boom",
		},
		{
			name: "key only",
			err:  NewError("head", errors.New("boom")).WithKey("key"),
			want: "s3transfer.head object key: boom",
		},
		{
			name: "with message",
			err:  NewError("plan", ErrInvalidConfiguration).WithMessage("part size must be positive"),
			want: "s3transfer.plan: part size must be positive: s3transfer: invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTransferError(t *testing.T) {
	err := &TransferError{
		Op:             "copy",
		Bucket:         "dst",
		Key:            "obj",
		TransferID:     "upload-1",
		PartsCompleted: 4,
		CheckpointFile: "/tmp/cp.json",
		Err:            fmt.Errorf("%w: %w", ErrCancelled, context.Canceled),
	}

	assert.Contains(t, err.Error(), "transfer upload-1")
	assert.Contains(t, err.Error(), "(4 parts completed)")
	assert.True(t, IsCancelled(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, err.Resumable())

	err.Err = ErrSourceChanged
	assert.False(t, err.Resumable())
	assert.True(t, IsFatalRemote(err))
	assert.True(t, IsSourceChanged(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{
			name:   "precondition failed",
			err:    &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"},
			target: ErrSourceChanged,
		},
		{
			name:   "no such upload",
			err:    &smithy.GenericAPIError{Code: "NoSuchUpload"},
			target: ErrUploadNotFound,
		},
		{
			name:   "not found",
			err:    &smithy.GenericAPIError{Code: "NotFound"},
			target: ErrObjectNotFound,
		},
		{
			name:   "context cancelled",
			err:    fmt.Errorf("upload part: %w", context.Canceled),
			target: ErrCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.target)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("unclassified passes through", func(t *testing.T) {
		err := errors.New("connection reset")
		assert.Equal(t, err, Classify(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Classify(nil))
	})

	t.Run("already classified", func(t *testing.T) {
		err := fmt.Errorf("%w: %w", ErrCancelled, context.Canceled)
		assert.Equal(t, err, Classify(err))
	})
}
