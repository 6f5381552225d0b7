package testutil

import (
	"context"
	"crypto/md5"
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
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/s3api"
)

// FakeS3 is an in-memory S3 that follows the service's observable rules
// closely enough to exercise listing, ranged reads and multipart uploads:
// parts may be re-uploaded (last write wins) and completion fails when the
// manifest names a part that was never uploaded or carries a stale ETag.
type FakeS3 struct {
	// PageSize bounds ListObjectsV2 pages; 0 means 1000
	PageSize int

	// Latency, if set, delays every GetObject call
	Latency func(key string) time.Duration

	mu      sync.Mutex
	objects map[string]map[string][]byte
	uploads map[string]*fakeUpload
	nextID  int
}

type fakeUpload struct {
	bucket, key string
	parts       map[int32][]byte
}

// NewFakeS3 creates an empty fake store.
func NewFakeS3() *FakeS3 {
	return &FakeS3{
		objects: make(map[string]map[string][]byte),
		uploads: make(map[string]*fakeUpload),
	}
}

// PutBytes stores an object directly, bypassing the API.
func (f *FakeS3) PutBytes(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(bucket, key, data)
}

// Object returns the stored content of an object.
func (f *FakeS3) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket][key]
	return data, ok
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (f *FakeS3) PendingUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *FakeS3) store(bucket, key string, data []byte) {
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string][]byte)
	}
	f.objects[bucket][key] = append([]byte(nil), data...)
}

func noSuchKey() error {
	return APIError(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
}

func noSuchUpload() error {
	return APIError(http.StatusNotFound, "NoSuchUpload", "The specified upload does not exist.")
}

// GetObject implements S3API.
func (f *FakeS3) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	if f.Latency != nil {
		select {
		case <-time.After(f.Latency(key)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	data, ok := f.objects[aws.ToString(params.Bucket)][key]
	f.mu.Unlock()
	if !ok {
		return nil, noSuchKey()
	}

	window, err := ApplyRange(data, aws.ToString(params.Range))
	if err != nil {
		return nil, err
	}
	return CreateGetObjectOutput(window, ""), nil
}

// PutObject implements S3API.
func (f *FakeS3) PutObject(
	_ context.Context,
	params *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.store(aws.ToString(params.Bucket), aws.ToString(params.Key), data)
	f.mu.Unlock()

	return &s3.PutObjectOutput{ETag: aws.String(CalculateETag(data))}, nil
}

// HeadObject implements S3API.
func (f *FakeS3) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[aws.ToString(params.Bucket)][aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, APIError(http.StatusNotFound, "NotFound", "")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(CalculateETag(data)),
	}, nil
}

// ListObjectsV2 implements S3API. Continuation tokens are offsets into the
// sorted key space.
func (f *FakeS3) ListObjectsV2(
	_ context.Context,
	params *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	bucket := aws.ToString(params.Bucket)
	prefix := aws.ToString(params.Prefix)

	f.mu.Lock()
	var keys []string
	for k := range f.objects[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sizes := make(map[string]int64, len(keys))
	for _, k := range keys {
		sizes[k] = int64(len(f.objects[bucket][k]))
	}
	f.mu.Unlock()
	sort.Strings(keys)

	offset := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(keys) {
			return nil, APIError(http.StatusBadRequest, "InvalidArgument", "The continuation token provided is incorrect")
		}
		offset = n
	}

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	end := min(offset+pageSize, len(keys))

	out := &s3.ListObjectsV2Output{
		Name:        aws.String(bucket),
		Prefix:      aws.String(prefix),
		KeyCount:    aws.Int32(int32(end - offset)),
		IsTruncated: aws.Bool(end < len(keys)),
	}
	for _, k := range keys[offset:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(sizes[k]),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// CreateMultipartUpload implements S3API.
func (f *FakeS3) CreateMultipartUpload(
	_ context.Context,
	params *s3.CreateMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{
		bucket: aws.ToString(params.Bucket),
		key:    aws.ToString(params.Key),
		parts:  make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{
		Bucket:   params.Bucket,
		Key:      params.Key,
		UploadId: aws.String(id),
	}, nil
}

// UploadPart implements S3API.
func (f *FakeS3) UploadPart(
	_ context.Context,
	params *s3.UploadPartInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	up, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, noSuchUpload()
	}
	up.parts[aws.ToInt32(params.PartNumber)] = data
	return &s3.UploadPartOutput{ETag: aws.String(CalculateETag(data))}, nil
}

// CompleteMultipartUpload implements S3API.
func (f *FakeS3) CompleteMultipartUpload(
	_ context.Context,
	params *s3.CompleteMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, noSuchUpload()
	}
	if params.MultipartUpload == nil || len(params.MultipartUpload.Parts) == 0 {
		return nil, APIError(http.StatusBadRequest, "MalformedXML", "The XML you provided was not well-formed")
	}

	var assembled []byte
	digests := md5.New()
	last := int32(0)
	for _, p := range params.MultipartUpload.Parts {
		n := aws.ToInt32(p.PartNumber)
		if n <= last {
			return nil, APIError(http.StatusBadRequest, "InvalidPartOrder", "The list of parts was not in ascending order.")
		}
		last = n

		data, ok := up.parts[n]
		if !ok || CalculateETag(data) != aws.ToString(p.ETag) {
			return nil, APIError(http.StatusBadRequest, "InvalidPart",
				fmt.Sprintf("One or more of the specified parts could not be found: part %d", n))
		}
		assembled = append(assembled, data...)
		sum := md5.Sum(data)
		digests.Write(sum[:])
	}

	f.store(up.bucket, up.key, assembled)
	delete(f.uploads, id)

	etag := fmt.Sprintf(`"%x-%d"`, digests.Sum(nil), len(params.MultipartUpload.Parts))
	return &s3.CompleteMultipartUploadOutput{
		Bucket: params.Bucket,
		Key:    params.Key,
		ETag:   aws.String(etag),
	}, nil
}

// AbortMultipartUpload implements S3API.
func (f *FakeS3) AbortMultipartUpload(
	_ context.Context,
	params *s3.AbortMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)
	if _, ok := f.uploads[id]; !ok {
		return nil, noSuchUpload()
	}
	delete(f.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

// ApplyRange cuts data down to an HTTP Range header value ("bytes=a-b" or
// "bytes=a-"). An empty header returns data unchanged.
func ApplyRange(data []byte, header string) ([]byte, error) {
	if header == "" {
		return data, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, APIError(http.StatusBadRequest, "InvalidArgument", "bad range "+header)
	}
	from, to, _ := strings.Cut(spec, "-")

	start, err := strconv.Atoi(from)
	if err != nil || start >= len(data) {
		return nil, APIError(http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "The requested range is not satisfiable")
	}

	end := len(data) - 1
	if to != "" {
		n, err := strconv.Atoi(to)
		if err != nil || n < start {
			return nil, APIError(http.StatusBadRequest, "InvalidArgument", "bad range "+header)
		}
		end = min(n, end)
	}
	return data[start : end+1], nil
}

var _ s3api.S3API = (*FakeS3)(nil)
