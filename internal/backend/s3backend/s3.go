// Package s3backend implements the backend capability set on top of the
// AWS SDK S3 client, for AWS itself and S3-compatible stores.
package s3backend

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// defaultRegion is used when neither the config nor the environment names one.
const defaultRegion = "us-east-1"

// Backend is the S3 backend.
type Backend struct {
	api s3api.S3API
}

// New wraps an existing S3 API.
func New(api s3api.S3API) *Backend {
	return &Backend{api: api}
}

// NewFromConfig loads AWS configuration for cfg and builds an S3 client.
// SDK-level retries default to a single attempt; the caller decides
// whether a failed request deserves another go.
func NewFromConfig(ctx context.Context, cfg rftypes.BackendConfig, cc *rftypes.ClientConfig) (*Backend, error) {
	if cc.S3Factory != nil {
		api, err := cc.S3Factory(ctx, cfg)
		if err != nil {
			return nil, errors.NewError("client initialization", err).WithBackend("s3")
		}
		return New(api), nil
	}

	maxAttempts := cc.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(maxAttempts),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Account != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Account, cfg.Key, ""),
		))
	}
	if cc.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(cc.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewError("client initialization", err).WithBackend("s3")
	}

	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	}
	if cc.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

// Kind implements backend.Backend.
func (b *Backend) Kind() rftypes.BackendKind {
	return rftypes.KindS3
}

// requestOptions turns access flags into per-operation SDK options.
func requestOptions(acc backend.Access) []func(*s3.Options) {
	if !acc.Anonymous {
		return nil
	}
	return []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = aws.AnonymousCredentials{}
		},
	}
}

func requestPayer(acc backend.Access) awstypes.RequestPayer {
	if acc.RequesterPays {
		return awstypes.RequestPayerRequester
	}
	return ""
}

// Fetch implements backend.Backend.
func (b *Backend) Fetch(ctx context.Context, req backend.Request) ([]byte, error) {
	bucket, key, err := validation.SplitObjectPath(req.Location)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: requestPayer(req.Access),
	}
	if rng := req.HeaderValue(); rng != "" {
		input.Range = aws.String(rng)
	}

	output, err := b.api.GetObject(ctx, input, requestOptions(req.Access)...)
	if err != nil {
		return nil, errors.NewObjectError("getObject", bucket, key, classify(err)).WithBackend("s3")
	}
	defer output.Body.Close()

	data, err := pool.ReadAll(output.Body, aws.ToInt64(output.ContentLength))
	if err != nil {
		return nil, errors.NewObjectError("getObject", bucket, key, err).WithBackend("s3")
	}
	return data, nil
}

// ListPage implements backend.Lister.
func (b *Backend) ListPage(
	ctx context.Context,
	bucket, prefix, token string,
	acc backend.Access,
) (backend.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:       aws.String(bucket),
		Prefix:       aws.String(prefix),
		RequestPayer: requestPayer(acc),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	output, err := b.api.ListObjectsV2(ctx, input, requestOptions(acc)...)
	if err != nil {
		return backend.Page{}, errors.NewError("listObjects", classify(err)).
			WithBackend("s3").
			WithContainer(bucket)
	}

	page := backend.Page{
		Entries:   make([]rftypes.Entry, 0, len(output.Contents)),
		NextToken: aws.ToString(output.NextContinuationToken),
	}
	for _, obj := range output.Contents {
		page.Entries = append(page.Entries, rftypes.Entry{
			Name: bucket + "/" + aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		})
	}
	return page, nil
}

// Stat implements backend.Statter.
func (b *Backend) Stat(ctx context.Context, location string, acc backend.Access) (rftypes.ObjectInfo, error) {
	bucket, key, err := validation.SplitObjectPath(location)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}

	output, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: requestPayer(acc),
	}, requestOptions(acc)...)
	if err != nil {
		return rftypes.ObjectInfo{}, errors.NewObjectError("headObject", bucket, key, classify(err)).WithBackend("s3")
	}

	return rftypes.ObjectInfo{
		Size:         aws.ToInt64(output.ContentLength),
		ETag:         aws.ToString(output.ETag),
		ContentType:  aws.ToString(output.ContentType),
		LastModified: aws.ToTime(output.LastModified),
	}, nil
}

// Put implements backend.Putter.
func (b *Backend) Put(ctx context.Context, location string, data []byte, contentType string) (string, error) {
	bucket, key, err := validation.SplitObjectPath(location)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	output, err := b.api.PutObject(ctx, input)
	if err != nil {
		return "", errors.NewObjectError("putObject", bucket, key, classify(err)).WithBackend("s3")
	}
	return aws.ToString(output.ETag), nil
}

// CreateMultipart implements backend.MultipartUploader.
func (b *Backend) CreateMultipart(ctx context.Context, bucket, key string) (string, error) {
	output, err := b.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", errors.NewObjectError("createMultipartUpload", bucket, key, classify(err)).WithBackend("s3")
	}
	return aws.ToString(output.UploadId), nil
}

// UploadPart implements backend.MultipartUploader.
func (b *Backend) UploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	part int32,
	data []byte,
) (string, error) {
	output, err := b.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(part),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", errors.NewObjectError("uploadPart", bucket, key, classify(err)).WithBackend("s3")
	}
	return aws.ToString(output.ETag), nil
}

// CompleteMultipart implements backend.MultipartUploader.
func (b *Backend) CompleteMultipart(
	ctx context.Context,
	bucket, key, uploadID string,
	parts []backend.Part,
) error {
	completed := make([]awstypes.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, awstypes.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		})
	}

	_, err := b.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return errors.NewObjectError("completeMultipartUpload", bucket, key, classify(err)).WithBackend("s3")
	}
	return nil
}

// AbortMultipart implements backend.MultipartUploader.
func (b *Backend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	_, err := b.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return errors.NewObjectError("abortMultipartUpload", bucket, key, classify(err)).WithBackend("s3")
	}
	return nil
}

// classify converts SDK errors that carry a service response into a
// ResponseError. Anything else is left as is and treated as transport failure.
func classify(err error) error {
	var respErr *awshttp.ResponseError
	var apiErr smithy.APIError

	hasResp := stderrors.As(err, &respErr)
	hasAPI := stderrors.As(err, &apiErr)
	if !hasResp && !hasAPI {
		return err
	}

	out := &errors.ResponseError{Err: err}
	if hasResp {
		out.StatusCode = respErr.HTTPStatusCode()
	}
	if hasAPI {
		out.Code = apiErr.ErrorCode()
		out.Message = apiErr.ErrorMessage()
		if out.StatusCode == 0 && isNotFoundCode(out.Code) {
			out.StatusCode = http.StatusNotFound
		}
	}
	return out
}

func isNotFoundCode(code string) bool {
	switch code {
	case "NoSuchKey", "NotFound", "NoSuchBucket", "NoSuchUpload":
		return true
	}
	return false
}

var (
	_ backend.Backend           = (*Backend)(nil)
	_ backend.Lister            = (*Backend)(nil)
	_ backend.Statter           = (*Backend)(nil)
	_ backend.Putter            = (*Backend)(nil)
	_ backend.MultipartUploader = (*Backend)(nil)
)
