package testutil

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // ETags are MD5 based
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/s3api"
)

// FakeObject is an object stored by FakeS3.
type FakeObject struct {
	Data         []byte
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

type fakeUpload struct {
	bucket      string
	key         string
	contentType string
	metadata    map[string]string
	parts       map[int32]fakePart
}

type fakePart struct {
	data []byte
	etag string
}

// FakeS3 is an in-memory S3API that implements enough of the multipart
// protocol to run whole transfers against it.
type FakeS3 struct {
	mu       sync.Mutex
	objects  map[string]*FakeObject
	uploads  map[string]*fakeUpload
	calls    map[string]int
	inFlight int
	peak     int

	// PartDelay is slept inside every part call to make overlap observable
	PartDelay time.Duration

	// BeforePart runs before UploadPart, UploadPartCopy and ranged GetObject
	// calls; a non-nil error is returned from the call.
	BeforePart func(ctx context.Context, partNumber int32) error

	// RangePartSize maps ranged GetObject offsets to part numbers; when zero
	// the length of the requested range is used
	RangePartSize int64

	// BeforeComplete runs before CompleteMultipartUpload.
	BeforeComplete func(ctx context.Context, uploadID string) error
}

// NewFakeS3 creates an empty FakeS3.
func NewFakeS3() *FakeS3 {
	return &FakeS3{
		objects: make(map[string]*FakeObject),
		uploads: make(map[string]*fakeUpload),
		calls:   make(map[string]int),
	}
}

var _ s3api.S3API = (*FakeS3)(nil)

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// ETagOf returns the quoted MD5 ETag S3 assigns to a single-part body.
func ETagOf(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // ETag compatibility
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// Seed stores an object directly.
func (f *FakeS3) Seed(bucket, key string, data []byte) *FakeObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := &FakeObject{
		Data:         append([]byte(nil), data...),
		ETag:         ETagOf(data),
		LastModified: time.Now().UTC().Truncate(time.Second),
	}
	f.objects[objectKey(bucket, key)] = obj
	return obj
}

// Touch rewrites an object with new content and a later modification time.
func (f *FakeS3) Touch(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := f.objects[objectKey(bucket, key)]
	modified := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if obj != nil {
		modified = obj.LastModified.Add(time.Second)
	}
	f.objects[objectKey(bucket, key)] = &FakeObject{
		Data:         append([]byte(nil), data...),
		ETag:         ETagOf(data),
		LastModified: modified,
	}
}

// Object returns a stored object or nil.
func (f *FakeS3) Object(bucket, key string) *FakeObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[objectKey(bucket, key)]
}

// Calls returns how many times op was called.
func (f *FakeS3) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ActiveUploads returns the number of multipart uploads neither completed nor aborted.
func (f *FakeS3) ActiveUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// PeakParts returns the highest number of part calls served at once.
func (f *FakeS3) PeakParts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *FakeS3) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *FakeS3) enterPart(ctx context.Context, partNumber int32) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	if f.BeforePart != nil {
		if err := f.BeforePart(ctx, partNumber); err != nil {
			return err
		}
	}
	if f.PartDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.PartDelay):
		}
	}
	return ctx.Err()
}

func (f *FakeS3) leavePart() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// HeadObject implements s3api.S3API.
func (f *FakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.count("HeadObject")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj := f.Object(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if obj == nil {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Data))),
		ETag:          aws.String(obj.ETag),
		LastModified:  aws.Time(obj.LastModified),
		ContentType:   aws.String(obj.ContentType),
		Metadata:      obj.Metadata,
	}, nil
}

// GetObject implements s3api.S3API.
func (f *FakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.count("GetObject")
	obj := f.Object(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if obj == nil {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	if in.IfMatch != nil && aws.ToString(in.IfMatch) != obj.ETag {
		return nil, preconditionFailed()
	}

	data := obj.Data
	if in.Range != nil {
		start, end, err := parseRange(aws.ToString(in.Range), int64(len(obj.Data)))
		if err != nil {
			return nil, err
		}
		partSize := f.RangePartSize
		if partSize <= 0 {
			partSize = end - start + 1
		}
		if err := f.enterPart(ctx, int32(start/partSize)+1); err != nil { //nolint:gosec // test helper
			f.leavePart()
			return nil, err
		}
		f.leavePart()
		data = obj.Data[start : end+1]
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(obj.ETag),
		LastModified:  aws.Time(obj.LastModified),
	}, nil
}

// PutObject implements s3api.S3API.
func (f *FakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.count("PutObject")
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj := f.Seed(aws.ToString(in.Bucket), aws.ToString(in.Key), data)
	return &s3.PutObjectOutput{ETag: aws.String(obj.ETag)}, nil
}

// CopyObject implements s3api.S3API.
func (f *FakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.count("CopyObject")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := f.source(aws.ToString(in.CopySource), in.CopySourceIfMatch)
	if err != nil {
		return nil, err
	}
	obj := f.Seed(aws.ToString(in.Bucket), aws.ToString(in.Key), src.Data)
	return &s3.CopyObjectOutput{
		CopyObjectResult: &types.CopyObjectResult{ETag: aws.String(obj.ETag)},
	}, nil
}

// CreateMultipartUpload implements s3api.S3API.
func (f *FakeS3) CreateMultipartUpload(
	ctx context.Context,
	in *s3.CreateMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	f.count("CreateMultipartUpload")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()

	f.mu.Lock()
	f.uploads[id] = &fakeUpload{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		parts:       make(map[int32]fakePart),
	}
	f.mu.Unlock()

	return &s3.CreateMultipartUploadOutput{
		Bucket:   in.Bucket,
		Key:      in.Key,
		UploadId: aws.String(id),
	}, nil
}

// UploadPart implements s3api.S3API.
func (f *FakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.count("UploadPart")
	partNumber := aws.ToInt32(in.PartNumber)
	defer f.leavePart()
	if err := f.enterPart(ctx, partNumber); err != nil {
		return nil, err
	}

	if err := f.uploadErr(in.UploadId); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && aws.ToInt64(in.ContentLength) != int64(len(data)) {
		return nil, &smithy.GenericAPIError{Code: "IncompleteBody", Message: "body shorter than content length"}
	}
	return &s3.UploadPartOutput{ETag: aws.String(f.storePart(in.UploadId, partNumber, data))}, nil
}

// UploadPartCopy implements s3api.S3API.
func (f *FakeS3) UploadPartCopy(
	ctx context.Context,
	in *s3.UploadPartCopyInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartCopyOutput, error) {
	f.count("UploadPartCopy")
	partNumber := aws.ToInt32(in.PartNumber)
	defer f.leavePart()
	if err := f.enterPart(ctx, partNumber); err != nil {
		return nil, err
	}

	src, err := f.source(aws.ToString(in.CopySource), in.CopySourceIfMatch)
	if err != nil {
		return nil, err
	}
	data := src.Data
	if in.CopySourceRange != nil {
		start, end, err := parseRange(aws.ToString(in.CopySourceRange), int64(len(src.Data)))
		if err != nil {
			return nil, err
		}
		data = src.Data[start : end+1]
	}
	if err := f.uploadErr(in.UploadId); err != nil {
		return nil, err
	}
	return &s3.UploadPartCopyOutput{
		CopyPartResult: &types.CopyPartResult{ETag: aws.String(f.storePart(in.UploadId, partNumber, data))},
	}, nil
}

// CompleteMultipartUpload implements s3api.S3API.
func (f *FakeS3) CompleteMultipartUpload(
	ctx context.Context,
	in *s3.CompleteMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	f.count("CompleteMultipartUpload")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := aws.ToString(in.UploadId)
	if f.BeforeComplete != nil {
		if err := f.BeforeComplete(ctx, id); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	up, ok := f.uploads[id]
	if !ok {
		return nil, noSuchUpload()
	}
	if in.MultipartUpload == nil || len(in.MultipartUpload.Parts) == 0 {
		return nil, &smithy.GenericAPIError{Code: "MalformedXML", Message: "no parts"}
	}

	var body bytes.Buffer
	sums := md5.New() //nolint:gosec // ETag compatibility
	prev := int32(0)
	for _, p := range in.MultipartUpload.Parts {
		n := aws.ToInt32(p.PartNumber)
		stored, ok := up.parts[n]
		if !ok || n <= prev || stored.etag != aws.ToString(p.ETag) {
			return nil, &smithy.GenericAPIError{Code: "InvalidPart", Message: fmt.Sprintf("part %d", n)}
		}
		prev = n
		body.Write(stored.data)
		raw, _ := hex.DecodeString(strings.Trim(stored.etag, `"`))
		sums.Write(raw)
	}

	etag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(sums.Sum(nil)), len(in.MultipartUpload.Parts))
	f.objects[objectKey(up.bucket, up.key)] = &FakeObject{
		Data:         body.Bytes(),
		ETag:         etag,
		LastModified: time.Now().UTC().Truncate(time.Second),
		ContentType:  up.contentType,
		Metadata:     up.metadata,
	}
	delete(f.uploads, id)

	return &s3.CompleteMultipartUploadOutput{
		Bucket:   aws.String(up.bucket),
		Key:      aws.String(up.key),
		ETag:     aws.String(etag),
		Location: aws.String("https://" + up.bucket + ".s3.example.com/" + up.key),
	}, nil
}

// AbortMultipartUpload implements s3api.S3API.
func (f *FakeS3) AbortMultipartUpload(
	ctx context.Context,
	in *s3.AbortMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.count("AbortMultipartUpload")
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	if _, ok := f.uploads[id]; !ok {
		return nil, noSuchUpload()
	}
	delete(f.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

// DropUpload forgets an upload as if it expired remotely.
func (f *FakeS3) DropUpload(uploadID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, uploadID)
}

// UploadedParts returns the part numbers stored for an upload.
func (f *FakeS3) UploadedParts(uploadID string) []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		return nil
	}
	numbers := make([]int32, 0, len(up.parts))
	for n := range up.parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

func (f *FakeS3) storePart(uploadID *string, partNumber int32, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	etag := ETagOf(data)
	if up, ok := f.uploads[aws.ToString(uploadID)]; ok {
		up.parts[partNumber] = fakePart{data: append([]byte(nil), data...), etag: etag}
	}
	return etag
}

func (f *FakeS3) uploadErr(uploadID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.uploads[aws.ToString(uploadID)]; !ok {
		return noSuchUpload()
	}
	return nil
}

func (f *FakeS3) source(copySource string, ifMatch *string) (*FakeObject, error) {
	decoded, err := url.PathUnescape(copySource)
	if err != nil {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "copy source"}
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(decoded, "/"), "/")
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "copy source"}
	}
	src := f.Object(bucket, key)
	if src == nil {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	if ifMatch != nil && aws.ToString(ifMatch) != src.ETag {
		return nil, preconditionFailed()
	}
	return src, nil
}

func parseRange(spec string, size int64) (int64, int64, error) {
	invalid := &smithy.GenericAPIError{Code: "InvalidRange", Message: spec}
	rng, ok := strings.CutPrefix(spec, "bytes=")
	if !ok {
		return 0, 0, invalid
	}
	a, b, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, invalid
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, invalid
	}
	end, err := strconv.ParseInt(b, 10, 64)
	if err != nil || start > end || end >= size {
		return 0, 0, invalid
	}
	return start, end, nil
}

func preconditionFailed() error {
	return &smithy.GenericAPIError{
		Code:    "PreconditionFailed",
		Message: "At least one of the pre-conditions you specified did not hold",
	}
}

func noSuchUpload() error {
	return &types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
}
