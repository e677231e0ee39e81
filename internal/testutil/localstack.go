package testutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

const localStackImage = "localstack/localstack:3.8"

// LocalStack is a running LocalStack container serving S3.
type LocalStack struct {
	container *localstack.LocalStackContainer

	// Endpoint is the base URL of the S3 service
	Endpoint string
	Region   string

	// S3 is a raw SDK client for arranging and inspecting test state
	S3 *s3.Client
}

// StartLocalStack starts a LocalStack container and terminates it when the
// test ends. The test is skipped in short mode.
func StartLocalStack(t *testing.T) *LocalStack {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := localstack.Run(ctx,
		localStackImage,
		testcontainers.WithEnv(map[string]string{"SERVICES": "s3"}),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start LocalStack container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566/tcp")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	ls := &LocalStack{
		container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		Region:    "us-east-1",
	}
	cfg := ls.AWSConfig()
	ls.S3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(ls.Endpoint)
	})
	return ls
}

// AWSConfig returns a configuration with the static credentials LocalStack accepts.
func (ls *LocalStack) AWSConfig() aws.Config {
	return aws.Config{
		Region:      ls.Region,
		Credentials: credentials.NewStaticCredentialsProvider("test", "test", ""),
	}
}

// CreateBucket creates a uniquely named bucket that is emptied and removed
// when the test ends.
func (ls *LocalStack) CreateBucket(t *testing.T, prefix string) string {
	t.Helper()
	ctx := context.Background()

	name := GenerateTestBucketName(prefix)
	if _, err := ls.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("Failed to create bucket %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := ls.removeBucket(context.Background(), name); err != nil {
			t.Logf("Failed to remove bucket %s: %v", name, err)
		}
	})
	return name
}

// PendingUploads returns the number of multipart uploads still open in bucket.
func (ls *LocalStack) PendingUploads(t *testing.T, bucket string) int {
	t.Helper()
	out, err := ls.S3.ListMultipartUploads(context.Background(), &s3.ListMultipartUploadsInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		t.Fatalf("Failed to list multipart uploads: %v", err)
	}
	return len(out.Uploads)
}

// Overwrite replaces bucket/key with data, changing its ETag and last-modified time.
func (ls *LocalStack) Overwrite(t *testing.T, bucket, key string, data []byte) {
	t.Helper()
	_, err := ls.S3.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("Failed to overwrite %s/%s: %v", bucket, key, err)
	}
}

func (ls *LocalStack) removeBucket(ctx context.Context, bucket string) error {
	uploads, err := ls.S3.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{Bucket: aws.String(bucket)})
	if err == nil {
		for _, u := range uploads.Uploads {
			_, _ = ls.S3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(bucket),
				Key:      u.Key,
				UploadId: u.UploadId,
			})
		}
	}

	listInput := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	for {
		listOutput, err := ls.S3.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		objects := make([]types.ObjectIdentifier, 0, len(listOutput.Contents))
		for _, obj := range listOutput.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := ls.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects},
		}); err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}

		if !aws.ToBool(listOutput.IsTruncated) {
			break
		}
		listInput.ContinuationToken = listOutput.NextContinuationToken
	}

	if _, err := ls.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	return nil
}
