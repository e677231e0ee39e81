// Package errors provides error types and handling for resumable S3 transfers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Error represents an S3 operation error with context about the operation that failed.
// It wraps the underlying AWS SDK error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "uploadPart", "completeMultipartUpload")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3transfer.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3transfer.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3transfer.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3transfer.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// TransferError is the terminal error of a resumable transfer.
// It carries what a caller needs to diagnose the failure or resume it later.
type TransferError struct {
	// Op is the transfer operation ("upload", "download", "copy")
	Op string

	// Bucket and Key identify the remote object of the transfer
	Bucket string
	Key    string

	// TransferID is the remote multipart upload id, empty for downloads
	TransferID string

	// PartsCompleted is the number of parts recorded as succeeded
	PartsCompleted int

	// CheckpointFile is the checkpoint left on disk, empty if none remains
	CheckpointFile string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	msg := fmt.Sprintf("s3transfer.%s %s/%s", e.Op, e.Bucket, e.Key)
	if e.TransferID != "" {
		msg += " transfer " + e.TransferID
	}
	msg += fmt.Sprintf(" (%d parts completed)", e.PartsCompleted)
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Resumable reports whether the transfer left a checkpoint that a later call
// can resume from.
func (e *TransferError) Resumable() bool {
	return e.CheckpointFile != "" && !IsFatalRemote(e.Err)
}

// Sentinel errors for transfer failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidConfiguration indicates an invalid part size, task count or resume parameters
	ErrInvalidConfiguration = errors.New("s3transfer: invalid configuration")

	// ErrInvalidInput indicates invalid metadata or content type values
	ErrInvalidInput = errors.New("s3transfer: invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("s3transfer: invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("s3transfer: invalid object key")

	// ErrObjectNotFound indicates that the source object does not exist
	ErrObjectNotFound = errors.New("s3transfer: object not found")

	// ErrCancelled indicates that the caller cancelled the transfer; the checkpoint is kept
	ErrCancelled = errors.New("s3transfer: transfer cancelled")

	// ErrFatalRemote indicates a remote failure that must not be resumed
	ErrFatalRemote = errors.New("s3transfer: fatal remote error")

	// ErrSourceChanged indicates that the copy or download source was modified mid-transfer
	ErrSourceChanged = fmt.Errorf("%w: source object changed", ErrFatalRemote)

	// ErrUploadNotFound indicates that the remote multipart upload no longer exists
	ErrUploadNotFound = fmt.Errorf("%w: multipart upload not found", ErrFatalRemote)

	// ErrIncompleteTransfer indicates that finalization was attempted with missing parts
	ErrIncompleteTransfer = errors.New("s3transfer: incomplete transfer")
)

// IsCancelled checks if an error indicates the transfer was cancelled by the caller.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsFatalRemote checks if an error is a non-retriable remote failure.
func IsFatalRemote(err error) bool {
	return errors.Is(err, ErrFatalRemote)
}

// IsSourceChanged checks if an error indicates the source object was modified.
func IsSourceChanged(err error) bool {
	return errors.Is(err, ErrSourceChanged)
}

// IsInvalidConfiguration checks if an error indicates invalid configuration.
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsObjectNotFound checks if an error indicates that an object was not found.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// Classify maps an error returned by the transport onto the sentinel taxonomy.
// The original error stays in the chain so callers can still inspect it.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return join(ErrCancelled, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed":
			return join(ErrSourceChanged, err)
		case "NoSuchUpload":
			return join(ErrUploadNotFound, err)
		case "NoSuchKey", "NotFound":
			return join(ErrObjectNotFound, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed:
			return join(ErrSourceChanged, err)
		case http.StatusNotFound:
			return join(ErrObjectNotFound, err)
		}
	}

	return err
}

// join wraps err under sentinel unless it is already classified.
func join(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
