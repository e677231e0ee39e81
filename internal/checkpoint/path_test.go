package checkpoint

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

func TestResolvePath(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/checkpoints", 0o755))

	id := Identity{
		Kind:       s3types.KindUpload,
		Bucket:     "bucket",
		Key:        "photos/2024/cat.jpg",
		ObjectSize: 10 * mib,
		PartSize:   mib,
	}

	tests := []struct {
		name string
		path string
		want func(string) bool
	}{
		{
			name: "disabled",
			path: "",
			want: func(got string) bool { return got == "" },
		},
		{
			name: "existing directory",
			path: "/checkpoints",
			want: func(got string) bool { return strings.HasPrefix(got, "/checkpoints/photos_2024_cat.jpg.upload.") },
		},
		{
			name: "trailing separator",
			path: "/not-yet/",
			want: func(got string) bool { return strings.HasPrefix(got, "/not-yet/") && strings.HasSuffix(got, ".json") },
		},
		{
			name: "explicit file",
			path: "/checkpoints/specific_checkpoint_file.json",
			want: func(got string) bool { return got == "/checkpoints/specific_checkpoint_file.json" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePath(fs, tt.path, id)
			assert.True(t, tt.want(got), "unexpected path %q", got)
		})
	}
}

func TestFileName_Deterministic(t *testing.T) {
	id := Identity{Kind: s3types.KindCopy, Bucket: "b", Key: "k", SourceBucket: "sb", SourceKey: "sk", ObjectSize: 5, PartSize: 1}

	assert.Equal(t, FileName(id), FileName(id))

	other := id
	other.PartSize = 2
	assert.NotEqual(t, FileName(id), FileName(other))

	other = id
	other.Kind = s3types.KindUpload
	assert.NotEqual(t, FileName(id), FileName(other))
}

func TestFileName_LongAndEmptyKeys(t *testing.T) {
	long := FileName(Identity{Kind: s3types.KindUpload, Key: strings.Repeat("x", 500)})
	assert.Less(t, len(long), 120)

	empty := FileName(Identity{Kind: s3types.KindUpload, Key: "///"})
	assert.True(t, strings.HasPrefix(empty, "___.upload."))

	none := FileName(Identity{Kind: s3types.KindUpload})
	assert.True(t, strings.HasPrefix(none, "object.upload."))
}
