package s3transfer

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

const (
	defaultRegion     = "us-east-1"
	defaultMaxRetries = 3
	defaultTaskNum    = 3
)

// Client runs resumable transfers against one S3 endpoint.
// It is safe for concurrent use; every transfer has its own state.
type Client struct {
	// api is the transport used for every remote call
	api s3api.S3API

	// engine drives multipart transfers over the client filesystem
	engine *multipart.Engine

	config s3types.ClientConfig
}

// New creates a Client with the provided options.
// It loads AWS credentials using the default credential chain unless
// WithAWSConfig is given.
//
// Example:
//
//	client, err := s3transfer.New(
//	    s3transfer.WithRegion("us-west-2"),
//	    s3transfer.WithMaxRetries(5),
//	)
func New(opts ...s3types.Option) (*Client, error) {
	clientCfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&clientCfg)
		}
	}

	var cfg aws.Config
	if clientCfg.CustomAWSConfig != nil {
		cfg = clientCfg.CustomAWSConfig.Copy()
	} else {
		var err error
		cfg, err = config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, errors.NewError("client initialization", err)
		}
	}

	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	retryer := clientCfg.Retryer
	if retryer == nil {
		retryer = NewRetryer(clientCfg.MaxRetries)
	}

	httpClient := clientCfg.HTTPClient
	if httpClient == nil && clientCfg.Timeout > 0 {
		httpClient = &http.Client{Timeout: clientCfg.Timeout}
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Retryer = retryer
		o.UsePathStyle = clientCfg.ForcePathStyle
		if clientCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(clientCfg.Endpoint)
		}
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
	})

	return newClient(api, clientCfg), nil
}

// NewWithClient creates a Client on top of a custom S3API implementation.
// Transport options such as region or retries are ignored; the caller's
// implementation owns them.
func NewWithClient(api s3api.S3API, opts ...s3types.Option) *Client {
	clientCfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&clientCfg)
		}
	}
	return newClient(api, clientCfg)
}

func defaultConfig() s3types.ClientConfig {
	return s3types.ClientConfig{
		MaxRetries:     defaultMaxRetries,
		DefaultTaskNum: defaultTaskNum,
	}
}

func newClient(api s3api.S3API, cfg s3types.ClientConfig) *Client {
	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}
	return &Client{
		api:    api,
		engine: multipart.NewEngine(api, filesystem, cfg.Logger),
		config: cfg,
	}
}

// transferOptions resolves the options of one transfer against the client defaults.
func (c *Client) transferOptions(opts []s3types.TransferOption) *s3types.TransferOptionConfig {
	cfg := &s3types.TransferOptionConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = c.config.DefaultPartSize
	}
	if cfg.TaskNum == 0 {
		cfg.TaskNum = c.config.DefaultTaskNum
	}
	return cfg
}

// Upload transfers the local file at filePath to bucket/key as a multipart
// upload. With WithCheckpoint, an interrupted upload resumes from the parts
// already sent.
//
// On failure the returned error is a *errors.TransferError.
func (c *Client) Upload(
	ctx context.Context,
	bucket, key, filePath string,
	opts ...s3types.TransferOption,
) (*s3types.TransferResult, error) {
	return c.engine.Upload(ctx, bucket, key, filePath, c.transferOptions(opts))
}

// Download fetches bucket/key into filePath with concurrent ranged reads.
// The file is assembled next to filePath and renamed into place once every
// part is written.
func (c *Client) Download(
	ctx context.Context,
	bucket, key, filePath string,
	opts ...s3types.TransferOption,
) (*s3types.TransferResult, error) {
	return c.engine.Download(ctx, bucket, key, filePath, c.transferOptions(opts))
}

// Copy copies srcBucket/srcKey to bucket/key server-side with UploadPartCopy.
// The copy fails without resuming if the source changes while it runs.
func (c *Client) Copy(
	ctx context.Context,
	srcBucket, srcKey, bucket, key string,
	opts ...s3types.TransferOption,
) (*s3types.TransferResult, error) {
	return c.engine.Copy(ctx, srcBucket, srcKey, bucket, key, c.transferOptions(opts))
}

// PutObject uploads the local file at filePath to bucket/key in a single
// request. It keeps no checkpoint. Byte-level status is reported through
// WithDataTransferListener and restarts from zero if the body is re-sent.
func (c *Client) PutObject(
	ctx context.Context,
	bucket, key, filePath string,
	opts ...s3types.TransferOption,
) (*s3types.PutResult, error) {
	return c.engine.Put(ctx, bucket, key, filePath, c.transferOptions(opts))
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}
