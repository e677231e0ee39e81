package main

import (
	"fmt"
	"strings"
)

// s3Location is a bucket and key parsed from an s3:// URL.
type s3Location struct {
	Bucket string
	Key    string
}

func (l s3Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// parseS3URL parses s3://bucket/key. The key may contain slashes but must not be empty.
func parseS3URL(raw string) (s3Location, error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return s3Location{}, fmt.Errorf("invalid S3 URL %q: must start with s3://", raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return s3Location{}, fmt.Errorf("invalid S3 URL %q: missing bucket", raw)
	}
	if key == "" {
		return s3Location{}, fmt.Errorf("invalid S3 URL %q: missing key", raw)
	}
	return s3Location{Bucket: bucket, Key: key}, nil
}
