package multipart

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bytedance/sonic"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/ratelimit"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

func TestDownload_CompletesWithConcurrency(t *testing.T) {
	f := newFixture()
	data := testutil.GenerateRandomData(10*mib + 123)
	f.fake.Seed(bucket, "big.bin", data)
	f.fake.RangePartSize = mib

	limiter, err := ratelimit.New(mib, 200*mib)
	require.NoError(t, err)

	l := &testutil.RecordingListener{}
	res, err := f.engine.Download(context.Background(), bucket, "big.bin", "/out/big.bin",
		options(l, func(o *s3types.TransferOptionConfig) {
			o.TaskNum = 3
			o.Checkpoint = "/cp/"
			o.RateLimiter = limiter
		}))
	require.NoError(t, err)

	assert.Equal(t, s3types.KindDownload, res.Kind)
	assert.Equal(t, 11, res.PartsTotal)
	assert.Equal(t, "/out/big.bin", res.Location)
	assert.Empty(t, res.TransferID)
	assert.Equal(t, f.fake.Object(bucket, "big.bin").ETag, res.ETag)

	got, err := util.ReadFile(f.fs, "/out/big.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
	assert.False(t, f.exists("/out/big.bin"+TempSuffix))
	assert.LessOrEqual(t, f.fake.PeakParts(), 3)
	assertMonotonic(t, l.Progress())
	assert.Equal(t, 1, l.Count(s3types.EventCompleted))
}

func TestDownload_CancelThenResume(t *testing.T) {
	f := newFixture()
	data := testutil.GenerateRandomData(10 * mib)
	f.fake.Seed(bucket, "big.bin", data)
	f.fake.RangePartSize = mib

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelAtPart(f.fake, 5, cancel)

	opts := options(nil, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/" })
	_, err := f.engine.Download(ctx, bucket, "big.bin", "/out/big.bin", opts)
	require.True(t, errors.IsCancelled(err))

	te := transferError(t, err)
	require.NotEmpty(t, te.CheckpointFile)
	rec := f.loadRecord(t, te.CheckpointFile)
	assert.Equal(t, s3types.KindDownload, rec.Kind)
	assert.Equal(t, "/out/big.bin", rec.FilePath)
	assert.Len(t, rec.PartsInfo, 4)
	assert.True(t, f.exists("/out/big.bin"+TempSuffix))
	assert.False(t, f.exists("/out/big.bin"))

	f.fake.BeforePart = nil
	before := f.fake.Calls("GetObject")
	l := &testutil.RecordingListener{}
	res, err := f.engine.Download(context.Background(), bucket, "big.bin", "/out/big.bin",
		options(l, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/" }))
	require.NoError(t, err)

	assert.Equal(t, 6, f.fake.Calls("GetObject")-before)
	assert.Equal(t, 4, res.PartsResumed)
	assert.InDelta(t, 0.4, l.Progress()[0], 1e-9)

	got, err := util.ReadFile(f.fs, "/out/big.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
	assert.False(t, f.exists(te.CheckpointFile))
}

func TestDownload_MissingTempFileStartsFresh(t *testing.T) {
	f := newFixture()
	data := testutil.GenerateRandomData(4 * mib)
	f.fake.Seed(bucket, "file.bin", data)
	f.fake.RangePartSize = mib

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelAtPart(f.fake, 3, cancel)

	opts := options(nil, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/dl.json" })
	_, err := f.engine.Download(ctx, bucket, "file.bin", "/out/file.bin", opts)
	require.True(t, errors.IsCancelled(err))
	require.NoError(t, f.fs.Remove("/out/file.bin"+TempSuffix))

	f.fake.BeforePart = nil
	res, err := f.engine.Download(context.Background(), bucket, "file.bin", "/out/file.bin", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PartsResumed)

	got, err := util.ReadFile(f.fs, "/out/file.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestDownload_SourceChangedIsFatal(t *testing.T) {
	f := newFixture()
	f.fake.Seed(bucket, "file.bin", testutil.GenerateRandomData(4*mib))
	f.fake.RangePartSize = mib
	f.fake.BeforePart = func(ctx context.Context, partNumber int32) error {
		if partNumber == 3 {
			f.fake.Touch(bucket, "file.bin", []byte("changed"))
		}
		return nil
	}

	_, err := f.engine.Download(context.Background(), bucket, "file.bin", "/out/file.bin",
		options(nil, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/dl.json" }))
	require.Error(t, err)

	assert.True(t, errors.IsSourceChanged(err))
	assert.False(t, f.exists("/cp/dl.json"))
	assert.False(t, f.exists("/out/file.bin"+TempSuffix))
	assert.False(t, f.exists("/out/file.bin"))
}

func TestDownload_ChangedETagDiscardsCheckpoint(t *testing.T) {
	f := newFixture()
	f.fake.Seed(bucket, "file.bin", testutil.GenerateRandomData(4*mib))
	f.fake.RangePartSize = mib

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelAtPart(f.fake, 2, cancel)

	opts := options(nil, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/dl.json" })
	_, err := f.engine.Download(ctx, bucket, "file.bin", "/out/file.bin", opts)
	require.True(t, errors.IsCancelled(err))

	// same size, different content
	f.fake.Touch(bucket, "file.bin", testutil.GenerateRandomData(4*mib+1)[1:])
	f.fake.BeforePart = nil

	res, err := f.engine.Download(context.Background(), bucket, "file.bin", "/out/file.bin", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PartsResumed)
}

func TestDownload_ZeroByte(t *testing.T) {
	f := newFixture()
	f.fake.Seed(bucket, "empty", nil)

	l := &testutil.RecordingListener{}
	_, err := f.engine.Download(context.Background(), bucket, "empty", "/out/nested/empty",
		&s3types.TransferOptionConfig{ProgressListener: l})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1}, l.Progress())
	assert.Zero(t, f.fake.Calls("GetObject"))
	info, err := f.fs.Stat("/out/nested/empty")
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestDownload_ReplacesExistingFile(t *testing.T) {
	f := newFixture()
	data := testutil.GenerateRandomData(2 * mib)
	f.fake.Seed(bucket, "file.bin", data)
	f.writeFile(t, "/out/file.bin", []byte("old content"))

	_, err := f.engine.Download(context.Background(), bucket, "file.bin", "/out/file.bin", options(nil, nil))
	require.NoError(t, err)

	got, err := util.ReadFile(f.fs, "/out/file.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestDownload_MissingObject(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Download(context.Background(), bucket, "missing", "/out/file", nil)
	assert.True(t, errors.IsObjectNotFound(err))
	assert.False(t, f.exists("/out/file"+TempSuffix))
}

func TestDownload_CheckpointFormat(t *testing.T) {
	f := newFixture()
	f.fake.Seed(bucket, "file.bin", testutil.GenerateRandomData(3*mib))
	f.fake.RangePartSize = mib

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelAtPart(f.fake, 2, cancel)

	_, err := f.engine.Download(ctx, bucket, "file.bin", "/out/file.bin",
		options(nil, func(o *s3types.TransferOptionConfig) { o.Checkpoint = "/cp/dl.json" }))
	require.True(t, errors.IsCancelled(err))

	raw, err := util.ReadFile(f.fs, "/cp/dl.json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, sonic.ConfigStd.Unmarshal(raw, &doc))
	assert.Equal(t, "download", doc["kind"])
	assert.Equal(t, f.fake.Object(bucket, "file.bin").ETag, doc["source_etag"])
	assert.Equal(t, "/out/file.bin", doc["file_path"])
}

// syncCountingFS hands out files that count Sync calls.
type syncCountingFS struct {
	billy.Filesystem

	mu    sync.Mutex
	syncs int
}

func (s *syncCountingFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	f, err := s.Filesystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &syncCountingFile{File: f, fs: s}, nil
}

func (s *syncCountingFS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs
}

type syncCountingFile struct {
	billy.File
	fs *syncCountingFS
}

func (f *syncCountingFile) Sync() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.syncs++
	return nil
}

func TestDownload_PartSyncedBeforeRecorded(t *testing.T) {
	f := newFixture()
	f.fake.Seed(bucket, "big.bin", testutil.GenerateRandomData(4*mib))
	f.fake.RangePartSize = mib

	fs := &syncCountingFS{Filesystem: f.fs}
	engine := NewEngine(f.fake, fs, nil)

	var succeeded, unsynced int
	listener := s3types.ListenerFunc(func(event s3types.Event) {
		if event.Type != s3types.EventPartSucceeded {
			return
		}
		succeeded++
		if fs.count() < succeeded {
			unsynced++
		}
	})

	_, err := engine.Download(context.Background(), bucket, "big.bin", "/out/big.bin",
		options(nil, func(o *s3types.TransferOptionConfig) {
			o.Checkpoint = "/cp/"
			o.Listener = listener
		}))
	require.NoError(t, err)

	assert.Equal(t, 4, succeeded)
	assert.Zero(t, unsynced, "a part was reported before its bytes were synced")
	assert.GreaterOrEqual(t, fs.count(), 4)
}

func TestDownload_UnconditionalWithoutETag(t *testing.T) {
	f := newFixture()
	data := testutil.GenerateRandomData(3 * mib)
	f.fake.Seed(bucket, "big.bin", data)
	f.fake.RangePartSize = mib

	var mu sync.Mutex
	var conditions []*string
	api := &testutil.MockS3Client{
		Fallback: f.fake,
		HeadObjectFunc: func(
			ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options),
		) (*s3.HeadObjectOutput, error) {
			out, err := f.fake.HeadObject(ctx, in, optFns...)
			if out != nil {
				out.ETag = nil
			}
			return out, err
		},
		GetObjectFunc: func(
			ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options),
		) (*s3.GetObjectOutput, error) {
			mu.Lock()
			conditions = append(conditions, in.IfMatch)
			mu.Unlock()
			return f.fake.GetObject(ctx, in, optFns...)
		},
	}
	engine := NewEngine(api, f.fs, nil)

	_, err := engine.Download(context.Background(), bucket, "big.bin", "/out/big.bin", options(nil, nil))
	require.NoError(t, err)

	got, err := util.ReadFile(f.fs, "/out/big.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
	require.Len(t, conditions, 3)
	for _, c := range conditions {
		assert.Nil(t, c)
	}
}
