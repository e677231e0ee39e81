package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// MiB is one mebibyte.
const MiB = 1024 * 1024

// GenerateRandomData generates deterministic pseudo-random bytes of the specified size.
// This is useful for creating test data for uploads.
func GenerateRandomData(size int) []byte {
	r := rand.New(rand.NewSource(int64(size))) //nolint:gosec // test data
	data := make([]byte, size)
	_, _ = r.Read(data)
	return data
}

// GenerateTestKey generates a unique test object key with optional prefix.
func GenerateTestKey(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%stest-object-%s", prefix, uuid.NewString())
}

// GenerateTestBucketName generates a valid, unique test bucket name.
func GenerateTestBucketName(prefix string) string {
	name := strings.ToLower(fmt.Sprintf("%s-%s", prefix, uuid.NewString()))
	name = strings.ReplaceAll(name, "_", "-")
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}

// NewMemFSWithFile returns an in-memory filesystem holding data at path.
func NewMemFSWithFile(t *testing.T, path string, data []byte) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, path, data, 0o644))
	return fs
}

// ReadFile reads a whole file from fs.
func ReadFile(t *testing.T, fs billy.Filesystem, path string) []byte {
	t.Helper()
	data, err := util.ReadFile(fs, path)
	require.NoError(t, err)
	return data
}
