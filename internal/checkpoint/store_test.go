package checkpoint

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

const mib = 1024 * 1024

func newCopyRecord() Record {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		Kind:               s3types.KindCopy,
		TransferID:         "upload-1",
		Bucket:             "dst-bucket",
		Key:                "dst/key",
		SourceBucket:       "src-bucket",
		SourceKey:          "src/key",
		ObjectSize:         10 * mib,
		PartSize:           mib,
		SourceLastModified: &modified,
	}
}

func matchFor(rec Record) Match {
	return Match{
		Kind:               rec.Kind,
		Bucket:             rec.Bucket,
		Key:                rec.Key,
		SourceBucket:       rec.SourceBucket,
		SourceKey:          rec.SourceKey,
		ObjectSize:         rec.ObjectSize,
		PartSize:           rec.PartSize,
		SourceLastModified: rec.SourceLastModified,
	}
}

func TestStore_CreateLoadRoundTrip(t *testing.T) {
	fs := memfs.New()
	store := NewStore(fs, nil)

	rec, err := store.Create("/cp/copy.json", newCopyRecord())
	require.NoError(t, err)
	assert.Equal(t, Version, rec.Version)

	require.NoError(t, store.RecordPartSucceeded(rec, 3, mib, "etag-3"))
	require.NoError(t, store.RecordPartSucceeded(rec, 1, mib, "etag-1"))
	require.NoError(t, store.RecordPartSucceeded(rec, 2, mib, "etag-2"))

	loaded, err := store.Load("/cp/copy.json", matchFor(newCopyRecord()))
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "upload-1", loaded.TransferID)
	require.Len(t, loaded.PartsInfo, 3)
	for i, p := range loaded.PartsInfo {
		assert.Equal(t, int32(i+1), p.PartNumber)
		assert.Equal(t, StatusSucceeded, p.Status)
		assert.Equal(t, fmt.Sprintf("etag-%d", i+1), p.RemoteTag)
	}
	assert.Equal(t, int64(3*mib), loaded.ConsumedBytes())
	assert.Len(t, loaded.Succeeded(), 3)
}

func TestStore_FileFormat(t *testing.T) {
	fs := memfs.New()
	store := NewStore(fs, nil)

	rec, err := store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)
	require.NoError(t, store.RecordPartSucceeded(rec, 1, mib, "etag-1"))

	data, err := util.ReadFile(fs, "cp.json")
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &raw))
	for _, field := range []string{
		"version", "kind", "transfer_id", "bucket", "key", "source_bucket", "source_key",
		"object_size", "part_size", "source_last_modified", "parts_info",
	} {
		assert.Contains(t, raw, field)
	}

	parts, ok := raw["parts_info"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	part, ok := parts[0].(map[string]any)
	require.True(t, ok)
	for _, field := range []string{"part_number", "size", "status", "remote_tag"} {
		assert.Contains(t, part, field)
	}
}

func TestStore_LoadSoftFails(t *testing.T) {
	tests := []struct {
		name    string
		content string
		match   func(Match) Match
		wantErr error
	}{
		{
			name:    "missing file",
			wantErr: ErrNotFound,
		},
		{
			name:    "truncated json",
			content: `{"version": 1, "kind": "copy", "transfer_id": "upl`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "schema mismatch",
			content: `{"version": 1, "kind": "copy", "bucket": "dst-bucket"}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "unknown version",
			content: `{"version": 7, "kind": "copy", "transfer_id": "u", "bucket": "b", "key": "k", "source_bucket": "s", "source_key": "k", "object_size": 1, "part_size": 1, "parts_info": []}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "parts out of plan",
			content: `{"version": 1, "kind": "copy", "transfer_id": "u", "bucket": "b", "key": "k", "source_bucket": "s", "source_key": "k", "object_size": 2, "part_size": 1, "parts_info": [{"part_number": 3, "size": 1, "status": "succeeded", "remote_tag": "e"}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "duplicate parts",
			content: `{"version": 1, "kind": "copy", "transfer_id": "u", "bucket": "b", "key": "k", "source_bucket": "s", "source_key": "k", "object_size": 2, "part_size": 1, "parts_info": [{"part_number": 1, "size": 1, "status": "succeeded", "remote_tag": "e"}, {"part_number": 1, "size": 1, "status": "succeeded", "remote_tag": "e"}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "wrong part size",
			content: `{"version": 1, "kind": "copy", "transfer_id": "u", "bucket": "b", "key": "k", "source_bucket": "s", "source_key": "k", "object_size": 3, "part_size": 2, "parts_info": [{"part_number": 2, "size": 2, "status": "succeeded", "remote_tag": "e"}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name:    "succeeded part without tag",
			content: `{"version": 1, "kind": "copy", "transfer_id": "u", "bucket": "b", "key": "k", "source_bucket": "s", "source_key": "k", "object_size": 2, "part_size": 1, "parts_info": [{"part_number": 1, "size": 1, "status": "succeeded", "remote_tag": ""}]}`,
			wantErr: ErrCorrupt,
		},
		{
			name: "object size mismatch",
			match: func(m Match) Match {
				m.ObjectSize++
				return m
			},
			wantErr: ErrMismatch,
		},
		{
			name: "part size mismatch",
			match: func(m Match) Match {
				m.PartSize = 2 * mib
				return m
			},
			wantErr: ErrPartSizeMismatch,
		},
		{
			name: "source modified",
			match: func(m Match) Match {
				later := m.SourceLastModified.Add(time.Second)
				m.SourceLastModified = &later
				return m
			},
			wantErr: ErrMismatch,
		},
		{
			name: "kind mismatch",
			match: func(m Match) Match {
				m.Kind = s3types.KindUpload
				return m
			},
			wantErr: ErrMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			store := NewStore(fs, nil)

			match := matchFor(newCopyRecord())
			switch {
			case tt.content != "":
				require.NoError(t, util.WriteFile(fs, "cp.json", []byte(tt.content), 0o644))
			case tt.match != nil:
				_, err := store.Create("cp.json", newCopyRecord())
				require.NoError(t, err)
				match = tt.match(match)
			}

			rec, err := store.Load("cp.json", match)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStore_LoadMismatchReportsStaleTransfer(t *testing.T) {
	store := NewStore(memfs.New(), nil)
	_, err := store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)

	match := matchFor(newCopyRecord())
	match.ObjectSize = 4 * mib

	rec, err := store.Load("cp.json", match)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrMismatch)

	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, s3types.KindCopy, stale.Kind)
	assert.Equal(t, "dst-bucket", stale.Bucket)
	assert.Equal(t, "dst/key", stale.Key)
	assert.Equal(t, "upload-1", stale.TransferID)
}

func TestStore_PartSizeIgnoredWhenNotExplicit(t *testing.T) {
	store := NewStore(memfs.New(), nil)
	_, err := store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)

	match := matchFor(newCopyRecord())
	match.PartSize = 0

	rec, err := store.Load("cp.json", match)
	require.NoError(t, err)
	assert.Equal(t, int64(mib), rec.PartSize)
}

func TestStore_FinalizeAndDiscard(t *testing.T) {
	fs := memfs.New()
	store := NewStore(fs, nil)

	rec, err := store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)

	require.NoError(t, store.Finalize(rec))
	_, err = fs.Stat("cp.json")
	assert.Error(t, err)

	// removing twice is fine
	require.NoError(t, store.Finalize(rec))
	require.NoError(t, store.Discard("missing.json"))
}

func TestStore_ConcurrentWritesStayParseable(t *testing.T) {
	fs := memfs.New()
	store := NewStore(fs, nil)

	rec, err := store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			assert.NoError(t, store.RecordPartSucceeded(rec, n, mib, fmt.Sprintf("etag-%d", n)))
		}(int32(i))
	}
	wg.Wait()

	loaded, err := store.Load("cp.json", matchFor(newCopyRecord()))
	require.NoError(t, err)
	assert.Len(t, loaded.PartsInfo, 10)

	// no temp files are left behind
	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_CreateOverwritesCorruptFile(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "cp.json", []byte("{not json"), 0o644))

	store := NewStore(fs, nil)
	_, err := store.Load("cp.json", matchFor(newCopyRecord()))
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = store.Create("cp.json", newCopyRecord())
	require.NoError(t, err)

	f, err := fs.Open("cp.json")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.True(t, sonic.ConfigStd.Valid(data))
}
