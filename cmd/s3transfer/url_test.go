package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    s3Location
		wantErr bool
	}{
		{name: "simple", raw: "s3://bucket/key", want: s3Location{Bucket: "bucket", Key: "key"}},
		{name: "nested key", raw: "s3://bucket/a/b/c.bin", want: s3Location{Bucket: "bucket", Key: "a/b/c.bin"}},
		{name: "trailing slash kept", raw: "s3://bucket/dir/", want: s3Location{Bucket: "bucket", Key: "dir/"}},
		{name: "wrong scheme", raw: "https://bucket/key", wantErr: true},
		{name: "no scheme", raw: "bucket/key", wantErr: true},
		{name: "missing bucket", raw: "s3:///key", wantErr: true},
		{name: "missing key", raw: "s3://bucket", wantErr: true},
		{name: "empty key", raw: "s3://bucket/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseS3URL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}
