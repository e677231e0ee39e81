package validation

import (
	"fmt"
	"net/netip"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
)

// Multipart protocol limits.
const (
	// MaxPartSize is the largest part S3 accepts
	MaxPartSize int64 = 5 * 1024 * 1024 * 1024

	// MaxTaskNum bounds the number of parts in flight for one transfer
	MaxTaskNum = 1000

	maxKeyLength           = 1024
	maxMetadataKeyLength   = 128
	maxMetadataValueLength = 2048
)

var (
	bucketNamePattern  = regexp.MustCompile(`^[a-z][a-z0-9.-]{1,61}[a-z0-9]$`)
	contentTypePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*(\s*;.*)?$`)

	reservedBucketNames      = map[string]bool{"localhost": true}
	reservedMetadataPrefixes = []string{"aws:", "x-amz-", "x-amz:"}
)

// Object validates a bucket and key pair.
func Object(bucket, key string) error {
	if err := BucketName(bucket); err != nil {
		return err
	}
	return ObjectKey(key)
}

// BucketName validates that bucket is a DNS-compliant S3 bucket name.
func BucketName(bucket string) error {
	reason := bucketNameProblem(bucket)
	if reason == "" {
		return nil
	}
	return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
		WithBucket(bucket).
		WithMessage(reason)
}

func bucketNameProblem(bucket string) string {
	switch {
	case bucket == "":
		return "bucket name cannot be empty"
	case len(bucket) < 3 || len(bucket) > 63:
		return "bucket name must be between 3 and 63 characters long"
	case looksLikeIP(bucket):
		return "bucket name cannot be formatted as an IP address"
	case !bucketNamePattern.MatchString(bucket):
		return "bucket name must start with a lowercase letter, end with a letter or digit, " +
			"and contain only lowercase letters, digits, dots and hyphens"
	case strings.Contains(bucket, "..") || strings.Contains(bucket, "--"):
		return "bucket name cannot contain two adjacent periods or hyphens"
	case reservedBucketNames[bucket]:
		return "bucket name cannot be a reserved word"
	}
	return ""
}

// looksLikeIP reports dotted-quad names, including malformed ones like "192.168..1".
func looksLikeIP(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// ObjectKey validates that key is a safe S3 object key.
func ObjectKey(key string) error {
	reason := objectKeyProblem(key)
	if reason == "" {
		return nil
	}
	return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
		WithKey(key).
		WithMessage(reason)
}

func objectKeyProblem(key string) string {
	switch {
	case key == "":
		return "object key cannot be empty"
	case len(key) > maxKeyLength:
		return fmt.Sprintf("object key cannot exceed %d bytes", maxKeyLength)
	case hasPathTraversal(key):
		return "object key cannot contain path traversal sequences"
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		return "object key cannot contain control characters"
	}
	return ""
}

func hasPathTraversal(key string) bool {
	if strings.Contains(key, "..") {
		return true
	}
	normalized := strings.ReplaceAll(key, `\`, "/")
	if strings.HasPrefix(path.Clean(normalized), "/") {
		return true
	}
	// drive letters such as C:/ or C:\
	return len(normalized) >= 3 && normalized[1] == ':' && normalized[2] == '/'
}

// PartSize validates an explicitly requested part size. Zero means "choose one".
// The 5 MiB service minimum is left to the service so that S3-compatible
// stores with smaller limits keep working.
func PartSize(size int64) error {
	if size < 0 || size > MaxPartSize {
		return errors.NewError("validatePartSize", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("part size %d must be between 1 and %d bytes", size, MaxPartSize))
	}
	return nil
}

// TaskNum validates the number of parts allowed in flight. Zero means the default.
func TaskNum(n int) error {
	if n < 0 || n > MaxTaskNum {
		return errors.NewError("validateTaskNum", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("task number %d must be between 1 and %d", n, MaxTaskNum))
	}
	return nil
}

// Metadata validates user metadata keys and values.
func Metadata(metadata map[string]string) error {
	for key, value := range metadata {
		if reason := metadataKeyProblem(key); reason != "" {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata key %q: %s", key, reason))
		}
		if reason := metadataValueProblem(value); reason != "" {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata value for %q: %s", key, reason))
		}
	}
	return nil
}

func metadataKeyProblem(key string) string {
	if key == "" {
		return "cannot be empty"
	}
	if len(key) > maxMetadataKeyLength {
		return fmt.Sprintf("cannot exceed %d characters", maxMetadataKeyLength)
	}
	lower := strings.ToLower(key)
	for _, prefix := range reservedMetadataPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "uses reserved prefix " + prefix
		}
	}
	for _, c := range key {
		if c <= ' ' || c > '~' {
			return "can only contain printable ASCII characters without spaces"
		}
	}
	return ""
}

func metadataValueProblem(value string) string {
	if len(value) > maxMetadataValueLength {
		return fmt.Sprintf("cannot exceed %d characters", maxMetadataValueLength)
	}
	for _, c := range value {
		if !unicode.IsPrint(c) && c != '\t' {
			return "can only contain printable characters"
		}
	}
	return ""
}

// ContentType validates an explicitly supplied MIME type. Empty is allowed.
func ContentType(contentType string) error {
	if contentType == "" || contentTypePattern.MatchString(contentType) {
		return nil
	}
	return errors.NewError("validateContentType", errors.ErrInvalidInput).
		WithMessage(fmt.Sprintf("%q is not a valid MIME type", contentType))
}

// LocalPath validates the local side of an upload or download.
func LocalPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.NewError("validateLocalPath", errors.ErrInvalidConfiguration).
			WithMessage("local file path cannot be empty")
	}
	if strings.ContainsRune(p, 0) {
		return errors.NewError("validateLocalPath", errors.ErrInvalidConfiguration).
			WithMessage("local file path cannot contain NUL bytes")
	}
	return nil
}
