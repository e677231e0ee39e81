// Package s3types provides shared type definitions for the s3transfer module.
package s3types

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
)

// TransferKind identifies which multipart protocol a transfer drives.
type TransferKind string

const (
	// KindUpload uploads a local file with UploadPart
	KindUpload TransferKind = "upload"

	// KindDownload downloads an object with ranged GetObject calls
	KindDownload TransferKind = "download"

	// KindCopy copies an object server-side with UploadPartCopy
	KindCopy TransferKind = "copy"
)

// StorageClass represents the S3 storage class for objects.
type StorageClass string

// Predefined S3 storage classes
const (
	StorageClassStandard           StorageClass = "STANDARD"
	StorageClassStandardIA         StorageClass = "STANDARD_IA"
	StorageClassIntelligentTiering StorageClass = "INTELLIGENT_TIERING"
	StorageClassGlacierIR          StorageClass = "GLACIER_IR"
)

// SSEType represents the server-side encryption type for objects.
type SSEType string

// Predefined server-side encryption types
const (
	// SSES3 uses S3-managed encryption keys
	SSES3 SSEType = "AES256"

	// SSEKMS uses AWS KMS-managed encryption keys
	SSEKMS SSEType = "aws:kms"

	// SSEC uses customer-provided encryption keys
	SSEC SSEType = "SSE-C"
)

// SSEConfig contains server-side encryption configuration.
type SSEConfig struct {
	// Type is the encryption type (S3, KMS, or customer-provided)
	Type SSEType

	// KMSKeyID is the KMS key ID (required for SSE-KMS)
	KMSKeyID string

	// CustomerKey is the customer-provided encryption key (for SSE-C)
	CustomerKey string

	// CustomerKeyMD5 is the MD5 hash of the customer key (for SSE-C)
	CustomerKeyMD5 string
}

// EventType names a transfer lifecycle event.
type EventType string

const (
	// EventInitiated is emitted once the remote transfer id is known
	EventInitiated EventType = "initiated"

	// EventPartSucceeded is emitted after a part is recorded in the checkpoint
	EventPartSucceeded EventType = "partSucceeded"

	// EventCompleted is emitted after the remote completion call succeeded
	EventCompleted EventType = "completed"

	// EventFailed is emitted when the transfer stops on an error
	EventFailed EventType = "failed"

	// EventCancelled is emitted when the caller cancelled the transfer
	EventCancelled EventType = "cancelled"
)

// Event is a single notification delivered to a Listener.
type Event struct {
	Type      EventType
	Kind      TransferKind
	Timestamp time.Time

	Bucket     string
	Key        string
	TransferID string

	// CheckpointFile is the checkpoint path, empty when checkpointing is disabled
	CheckpointFile string

	// PartNumber and PartSize are set on EventPartSucceeded
	PartNumber int32
	PartSize   int64

	// ConsumedBytes is the cumulative number of bytes recorded as done
	ConsumedBytes int64
	TotalBytes    int64

	// Err is set on EventFailed and EventCancelled
	Err error
}

// Listener observes the lifecycle events of a resumable transfer.
// Callbacks are invoked serially; a panic inside a callback is recovered and logged.
type Listener interface {
	OnEvent(event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(event Event)

// OnEvent calls f(event).
func (f ListenerFunc) OnEvent(event Event) { f(event) }

// ProgressListener receives the fraction of the transfer that is done, in [0, 1].
type ProgressListener interface {
	OnProgress(percent float64)
}

// ProgressFunc adapts a function to the ProgressListener interface.
type ProgressFunc func(percent float64)

// OnProgress calls f(percent).
func (f ProgressFunc) OnProgress(percent float64) { f(percent) }

// DataTransferType is the stage of a single-shot data transfer.
type DataTransferType string

const (
	DataTransferStarted DataTransferType = "started"
	DataTransferRW      DataTransferType = "rw"
	DataTransferSucceed DataTransferType = "succeed"
	DataTransferFailed  DataTransferType = "failed"
)

// DataTransferStatus reports byte-level progress of a single-shot transfer.
type DataTransferStatus struct {
	Type DataTransferType

	// RWOnceBytes is the number of bytes moved by the read that triggered this status
	RWOnceBytes int64

	// ConsumedBytes restarts at zero when the request body is rewound for a retry
	ConsumedBytes int64
	TotalBytes    int64
}

// DataTransferListener observes single-shot transfer status changes.
type DataTransferListener interface {
	OnDataTransfer(status DataTransferStatus)
}

// DataTransferFunc adapts a function to the DataTransferListener interface.
type DataTransferFunc func(status DataTransferStatus)

// OnDataTransfer calls f(status).
func (f DataTransferFunc) OnDataTransfer(status DataTransferStatus) { f(status) }

// RateLimiter bounds the aggregate byte throughput of a transfer.
// Acquire blocks until n bytes worth of tokens are available or ctx is done.
type RateLimiter interface {
	Acquire(ctx context.Context, n int) error
}

// TransferResult contains the result of a completed transfer.
type TransferResult struct {
	Kind TransferKind

	// Bucket and Key identify the destination object (the source for downloads)
	Bucket string
	Key    string

	// TransferID is the multipart upload id, empty for downloads and zero-byte objects
	TransferID string

	// Size is the object size in bytes
	Size int64

	// ETag is the entity tag of the resulting object
	ETag string

	// Location is the object URL for uploads and copies, or the local path for downloads
	Location string

	// VersionID is the version ID if versioning is enabled
	VersionID string

	// PartsTotal is the number of planned parts
	PartsTotal int

	// PartsResumed is the number of parts taken over from a checkpoint
	PartsResumed int

	// Duration is how long the transfer took
	Duration time.Duration
}

// PutResult contains the result of a single-shot put.
type PutResult struct {
	Key       string
	Size      int64
	ETag      string
	VersionID string
	Duration  time.Duration
}

// Configuration types for functional options

// ClientConfig holds configuration for the transfer client.
type ClientConfig struct {
	Region          string
	Endpoint        string
	MaxRetries      int
	Retryer         aws.Retryer
	Timeout         time.Duration
	ForcePathStyle  bool
	CustomAWSConfig *aws.Config
	HTTPClient      *http.Client
	Filesystem      billy.Filesystem
	Logger          *slog.Logger
	DefaultPartSize int64
	DefaultTaskNum  int
}

// TransferOptionConfig holds per-transfer configuration set via functional options.
type TransferOptionConfig struct {
	PartSize         int64
	TaskNum          int
	Checkpoint       string
	RateLimiter      RateLimiter
	Listener         Listener
	ProgressListener ProgressListener
	DataTransfer     DataTransferListener
	ContentType      string
	Metadata         map[string]string
	StorageClass     StorageClass
	SSE              *SSEConfig
	StrictResume     bool
}

type (
	// Option is a functional option for configuring the transfer client.
	Option func(*ClientConfig)
	// TransferOption is a functional option for configuring a single transfer.
	TransferOption func(*TransferOptionConfig)
)
