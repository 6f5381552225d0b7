// Package testutil provides a builder for creating mock S3 clients.
package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockBuilder provides a fluent interface for building MockS3Client instances.
type MockBuilder struct {
	client *MockS3Client
}

// NewMockBuilder creates a new MockBuilder.
func NewMockBuilder() *MockBuilder {
	return &MockBuilder{
		client: &MockS3Client{},
	}
}

// Build returns the configured MockS3Client.
func (b *MockBuilder) Build() *MockS3Client {
	return b.client
}

// WithGetObject configures the GetObject behavior.
func (b *MockBuilder) WithGetObject(
	fn func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error),
) *MockBuilder {
	b.client.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return fn(ctx, params)
	}
	return b
}

// WithObjects serves GetObject from a key -> content map, honouring Range.
// Unknown keys answer NoSuchKey.
func (b *MockBuilder) WithObjects(objects map[string][]byte) *MockBuilder {
	return b.WithGetObject(func(_ context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		data, ok := objects[aws.ToString(in.Key)]
		if !ok {
			return nil, APIError(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		}
		window, err := ApplyRange(data, aws.ToString(in.Range))
		if err != nil {
			return nil, err
		}
		return CreateGetObjectOutput(window, ""), nil
	})
}

// WithFlakyGetObject fails the first failures GetObject calls with a
// transport error, then serves data.
func (b *MockBuilder) WithFlakyGetObject(failures int64, data []byte) *MockBuilder {
	var calls atomic.Int64
	return b.WithGetObject(func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		if calls.Add(1) <= failures {
			return nil, TransportError()
		}
		return CreateGetObjectOutput(data, ""), nil
	})
}

// WithListPages serves ListObjectsV2 from pages of keys. Page i is returned
// for continuation token "" (i == 0) or "token-i"; all pages but the last
// carry a next token.
func (b *MockBuilder) WithListPages(bucket string, pages ...[]string) *MockBuilder {
	b.client.ListObjectsV2Func = func(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		idx := 0
		if tok := aws.ToString(in.ContinuationToken); tok != "" {
			for i := range pages {
				if tok == pageToken(i) {
					idx = i
				}
			}
		}
		next := ""
		if idx < len(pages)-1 {
			next = pageToken(idx + 1)
		}
		return CreateListObjectsV2Output(bucket, pages[idx], next), nil
	}
	return b
}

func pageToken(i int) string {
	return fmt.Sprintf("token-%d", i)
}

// WithObjectNotFound configures the mock to return object not found errors.
func (b *MockBuilder) WithObjectNotFound() *MockBuilder {
	notFoundErr := APIError(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")

	b.client.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return nil, notFoundErr
	}
	b.client.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
		return nil, notFoundErr
	}
	return b
}

// WithMultipartUpload configures the mock for multipart upload operations.
func (b *MockBuilder) WithMultipartUpload() *MockBuilder {
	uploadID := "test-upload-id"

	b.client.CreateMultipartUploadFunc = func(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
		return &s3.CreateMultipartUploadOutput{
			UploadId: StringPtr(uploadID),
			Bucket:   params.Bucket,
			Key:      params.Key,
		}, nil
	}

	b.client.UploadPartFunc = func(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
		data, _ := io.ReadAll(params.Body)
		return &s3.UploadPartOutput{
			ETag: StringPtr(CalculateETag(data)),
		}, nil
	}

	b.client.CompleteMultipartUploadFunc = func(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
		return &s3.CompleteMultipartUploadOutput{
			ETag:   StringPtr(`"multipart-etag"`),
			Bucket: params.Bucket,
			Key:    params.Key,
		}, nil
	}

	b.client.AbortMultipartUploadFunc = func(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
		return &s3.AbortMultipartUploadOutput{}, nil
	}

	return b
}

// WithAccessDenied configures the mock to return access denied errors.
func (b *MockBuilder) WithAccessDenied() *MockBuilder {
	accessDeniedErr := APIError(http.StatusForbidden, "AccessDenied", "Access Denied")

	b.client.PutObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, accessDeniedErr
	}
	b.client.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return nil, accessDeniedErr
	}
	b.client.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
		return nil, accessDeniedErr
	}
	b.client.ListObjectsV2Func = func(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		return nil, accessDeniedErr
	}

	return b
}
