package s3transfer

import (
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// WithRegion sets the AWS region for S3 operations.
// If not specified, uses the default AWS region from the credential chain.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMaxRetries sets the number of retries after the first attempt of every
// remote call. Default is 3. Set to 0 to disable retries.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithRetryer replaces the retry policy. It takes precedence over WithMaxRetries.
func WithRetryer(retryer aws.Retryer) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Retryer = retryer
	}
}

// WithTimeout sets the HTTP timeout of individual S3 requests.
// Default is no timeout (0).
func WithTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithHTTPClient sets the HTTP client used for S3 requests.
func WithHTTPClient(client *http.Client) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithFilesystem sets the filesystem that holds local files and checkpoints.
// If not specified, defaults to the OS filesystem.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithLogger configures the client with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithDefaultPartSize sets the part size used by transfers that don't set one.
func WithDefaultPartSize(partSize int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if partSize > 0 {
			c.DefaultPartSize = partSize
		}
	}
}

// WithDefaultTaskNum sets the part concurrency used by transfers that don't set one.
func WithDefaultTaskNum(taskNum int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if taskNum > 0 {
			c.DefaultTaskNum = taskNum
		}
	}
}

// WithPartSize sets the part size of a transfer.
// When resuming, a zero part size adopts the size recorded in the checkpoint.
func WithPartSize(partSize int64) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.PartSize = partSize
	}
}

// WithTaskNum sets how many parts of a transfer may be in flight at once.
func WithTaskNum(taskNum int) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.TaskNum = taskNum
	}
}

// WithCheckpoint enables checkpointing. path is either a checkpoint file or a
// directory, shown by a trailing separator or by already existing as one, in
// which case the file name is derived from the transfer.
func WithCheckpoint(path string) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.Checkpoint = path
	}
}

// WithStrictResume makes a checkpoint recorded with a different part size an
// error instead of a reason to start over.
func WithStrictResume() s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.StrictResume = true
	}
}

// WithRateLimiter throttles the bytes of a transfer through limiter.
// The same limiter may be shared by several transfers.
func WithRateLimiter(limiter s3types.RateLimiter) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.RateLimiter = limiter
	}
}

// WithEventListener receives the lifecycle events of a resumable transfer.
func WithEventListener(listener s3types.Listener) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.Listener = listener
	}
}

// WithProgressListener receives the fraction of a transfer that is done.
func WithProgressListener(listener s3types.ProgressListener) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.ProgressListener = listener
	}
}

// WithDataTransferListener receives byte-level status of a single-shot put.
func WithDataTransferListener(listener s3types.DataTransferListener) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.DataTransfer = listener
	}
}

// WithContentType sets the content type of the resulting object.
func WithContentType(contentType string) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets user metadata of the resulting object.
func WithMetadata(metadata map[string]string) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

// WithStorageClass sets the storage class of the resulting object.
func WithStorageClass(storageClass s3types.StorageClass) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.StorageClass = storageClass
	}
}

// WithServerSideEncryption sets server-side encryption of the resulting object.
// For SSE-C the same key is used to read the source of a download.
func WithServerSideEncryption(sse *s3types.SSEConfig) s3types.TransferOption {
	return func(c *s3types.TransferOptionConfig) {
		c.SSE = sse
	}
}
