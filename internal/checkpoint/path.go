package checkpoint

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/zeebo/blake3"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// maxKeyInName bounds the readable key prefix of a derived filename.
const maxKeyInName = 64

// Identity is the input to a derived checkpoint filename.
type Identity struct {
	Kind         s3types.TransferKind
	Bucket       string
	Key          string
	SourceBucket string
	SourceKey    string
	ObjectSize   int64
	PartSize     int64
}

// ResolvePath returns the checkpoint file for path. When path names an
// existing directory, or ends with a separator, a deterministic filename
// derived from id is placed inside it; otherwise path is the file.
func ResolvePath(fs billy.Filesystem, path string, id Identity) string {
	if path == "" {
		return ""
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return filepath.Join(path, FileName(id))
	}
	if info, err := fs.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, FileName(id))
	}
	return path
}

// FileName derives the checkpoint filename for id.
func FileName(id Identity) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%d\x00%d",
		id.Kind, id.Bucket, id.Key, id.SourceBucket, id.SourceKey, id.ObjectSize, id.PartSize)
	sum := hex.EncodeToString(h.Sum(nil))[:16]

	return fmt.Sprintf("%s.%s.%s.json", sanitize(id.Key), id.Kind, sum)
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= maxKeyInName {
			break
		}
	}
	if b.Len() == 0 {
		return "object"
	}
	return b.String()
}
