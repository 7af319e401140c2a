// Package s3test provides an in-memory object store for tests.
package s3test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Operation names accepted by FailNext and Calls.
const (
	OpHeadBucket              = "HeadBucket"
	OpHeadObject              = "HeadObject"
	OpGetObject               = "GetObject"
	OpPutObject               = "PutObject"
	OpDeleteObject            = "DeleteObject"
	OpCreateMultipartUpload   = "CreateMultipartUpload"
	OpUploadPart              = "UploadPart"
	OpCompleteMultipartUpload = "CompleteMultipartUpload"
	OpAbortMultipartUpload    = "AbortMultipartUpload"
)

// Object is a stored object.
type Object struct {
	Data         []byte
	ContentType  string
	CacheControl string
	ETag         string
	LastModified time.Time
}

type upload struct {
	bucket string
	key    string
	input  s3.CreateMultipartUploadInput
	parts  map[int32][]byte
}

// FakeS3 keeps objects in memory and serves ranged reads the way S3 does.
type FakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]map[string]*Object
	uploads  map[string]*upload
	calls    map[string]int
	failures map[string][]error
	seq      int

	putGate chan struct{}
}

// New returns a fake with no buckets.
func New() *FakeS3 {
	return &FakeS3{
		buckets:  make(map[string]map[string]*Object),
		uploads:  make(map[string]*upload),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// AddBucket creates an empty bucket.
func (f *FakeS3) AddBucket(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[name]; !ok {
		f.buckets[name] = make(map[string]*Object)
	}
}

// PutRaw stores an object directly.
func (f *FakeS3) PutRaw(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(bucket, key, data, "", "")
}

// Object returns a copy of a stored object.
func (f *FakeS3) Object(bucket, key string) (Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.buckets[bucket][key]
	if !ok {
		return Object{}, false
	}
	out := *obj
	out.Data = append([]byte(nil), obj.Data...)
	return out, true
}

// FailNext makes the next call of op return err.
func (f *FakeS3) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Calls returns how many times op was invoked.
func (f *FakeS3) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of calls across every operation.
func (f *FakeS3) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// HoldPuts makes PutObject and CompleteMultipartUpload wait until the returned function
// is called.
func (f *FakeS3) HoldPuts() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.putGate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.putGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpHeadBucket); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *FakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpHeadObject); err != nil {
		return nil, err
	}
	objects, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	obj, ok := objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Data))),
		ContentType:   aws.String(obj.ContentType),
		CacheControl:  aws.String(obj.CacheControl),
		ETag:          aws.String(obj.ETag),
		LastModified:  aws.Time(obj.LastModified),
	}, nil
}

func (f *FakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpGetObject); err != nil {
		return nil, err
	}
	objects, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	obj, ok := objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	size := int64(len(obj.Data))
	out := &s3.GetObjectOutput{
		ContentType:  aws.String(obj.ContentType),
		CacheControl: aws.String(obj.CacheControl),
		ETag:         aws.String(obj.ETag),
		LastModified: aws.Time(obj.LastModified),
	}

	rng := aws.ToString(params.Range)
	if rng == "" {
		out.Body = io.NopCloser(strings.NewReader(string(obj.Data)))
		out.ContentLength = aws.Int64(size)
		return out, nil
	}

	start, end, err := parseRange(rng)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		out.Body = io.NopCloser(strings.NewReader(""))
		out.ContentLength = aws.Int64(0)
		out.ContentRange = aws.String("bytes */0")
		return out, nil
	}
	if start >= size {
		return nil, rangeNotSatisfiable(size)
	}
	if end < 0 || end >= size {
		end = size - 1
	}

	chunk := obj.Data[start : end+1]
	out.Body = io.NopCloser(strings.NewReader(string(chunk)))
	out.ContentLength = aws.Int64(int64(len(chunk)))
	out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	return out, nil
}

func (f *FakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := readBody(params.Body)
	if err != nil {
		return nil, err
	}
	if err := f.waitGate(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpPutObject); err != nil {
		return nil, err
	}
	if _, err := f.bucket(params.Bucket); err != nil {
		return nil, err
	}
	obj := f.store(aws.ToString(params.Bucket), aws.ToString(params.Key), data,
		aws.ToString(params.ContentType), aws.ToString(params.CacheControl))
	return &s3.PutObjectOutput{ETag: aws.String(obj.ETag)}, nil
}

func (f *FakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpDeleteObject); err != nil {
		return nil, err
	}
	objects, err := f.bucket(params.Bucket)
	if err != nil {
		return nil, err
	}
	delete(objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *FakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpCreateMultipartUpload); err != nil {
		return nil, err
	}
	if _, err := f.bucket(params.Bucket); err != nil {
		return nil, err
	}

	f.seq++
	id := "upload-" + strconv.Itoa(f.seq)
	f.uploads[id] = &upload{
		bucket: aws.ToString(params.Bucket),
		key:    aws.ToString(params.Key),
		input:  *params,
		parts:  make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{
		Bucket:   params.Bucket,
		Key:      params.Key,
		UploadId: aws.String(id),
	}, nil
}

func (f *FakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := readBody(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpUploadPart); err != nil {
		return nil, err
	}
	up, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &s3types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}
	up.parts[aws.ToInt32(params.PartNumber)] = data
	return &s3.UploadPartOutput{ETag: aws.String(etag(data))}, nil
}

func (f *FakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if err := f.waitGate(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpCompleteMultipartUpload); err != nil {
		return nil, err
	}
	id := aws.ToString(params.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &s3types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}

	var numbers []int32
	if params.MultipartUpload != nil {
		for _, p := range params.MultipartUpload.Parts {
			numbers = append(numbers, aws.ToInt32(p.PartNumber))
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var data []byte
	for _, n := range numbers {
		part, ok := up.parts[n]
		if !ok {
			return nil, fmt.Errorf("InvalidPart: part %d was not uploaded", n)
		}
		data = append(data, part...)
	}

	delete(f.uploads, id)
	obj := f.store(up.bucket, up.key, data, aws.ToString(up.input.ContentType), aws.ToString(up.input.CacheControl))
	return &s3.CompleteMultipartUploadOutput{
		Bucket: aws.String(up.bucket),
		Key:    aws.String(up.key),
		ETag:   aws.String(obj.ETag),
	}, nil
}

func (f *FakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpAbortMultipartUpload); err != nil {
		return nil, err
	}
	delete(f.uploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

// Helper methods

func (f *FakeS3) begin(ctx context.Context, op string) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *FakeS3) bucket(name *string) (map[string]*Object, error) {
	objects, ok := f.buckets[aws.ToString(name)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return objects, nil
}

func (f *FakeS3) store(bucket, key string, data []byte, contentType, cacheControl string) *Object {
	objects, ok := f.buckets[bucket]
	if !ok {
		objects = make(map[string]*Object)
		f.buckets[bucket] = objects
	}
	obj := &Object{
		Data:         data,
		ContentType:  contentType,
		CacheControl: cacheControl,
		ETag:         etag(data),
		LastModified: time.Now(),
	}
	objects[key] = obj
	return obj
}

func (f *FakeS3) waitGate(ctx context.Context) error {
	f.mu.Lock()
	gate := f.putGate
	f.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return []byte{}, nil
	}
	return io.ReadAll(body)
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// parseRange parses "bytes=start-end" or "bytes=start-". end is -1 when open.
func parseRange(rng string) (int64, int64, error) {
	bounds, ok := strings.CutPrefix(rng, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range %q", rng)
	}
	first, last, ok := strings.Cut(bounds, "-")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range %q", rng)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("unsupported range %q: %w", rng, err)
	}
	if last == "" {
		return start, -1, nil
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("unsupported range %q: %w", rng, err)
	}
	return start, end, nil
}

func rangeNotSatisfiable(size int64) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusRequestedRangeNotSatisfiable}},
		Err:      fmt.Errorf("InvalidRange: the requested range is not satisfiable for an object of %d bytes", size),
	}
}
