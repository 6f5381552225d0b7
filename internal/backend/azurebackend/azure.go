// Package azurebackend reads, lists and writes Azure Blob Storage objects.
package azurebackend

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// DefaultServiceURL is the public blob endpoint, formatted with the account name.
const DefaultServiceURL = "https://%s.blob.core.windows.net/"

// blobAPI is the slice of the azblob client the backend uses.
type blobAPI interface {
	Download(ctx context.Context, container, name string, rng blob.HTTPRange) (io.ReadCloser, int64, error)
	List(ctx context.Context, container, prefix, marker string) ([]rftypes.Entry, string, error)
	Properties(ctx context.Context, container, name string) (rftypes.ObjectInfo, error)
	Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error)
}

// Backend is the Azure Blob backend.
type Backend struct {
	api blobAPI
}

// NewFromConfig builds an azblob client for cfg. Anonymous configs get a
// no-credential client; everything else needs an account key.
// SDK retries are disabled so the caller's single retry is the only one.
func NewFromConfig(_ context.Context, cfg rftypes.BackendConfig, cc *rftypes.ClientConfig) (*Backend, error) {
	serviceURL, err := serviceURL(cfg, cc.AzureServiceURL)
	if err != nil {
		return nil, err
	}

	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if cc.HTTPClient != nil {
		opts.Transport = cc.HTTPClient
	}

	var client *azblob.Client
	if cfg.Anonymous {
		client, err = azblob.NewClientWithNoCredential(serviceURL, opts)
	} else {
		if cfg.Key == "" {
			return nil, errors.NewError("client initialization",
				fmt.Errorf("%w: azure account key required unless anonymous", errors.ErrInvalidConfig)).
				WithBackend("azure")
		}
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
		}
	}
	if err != nil {
		return nil, errors.NewError("client initialization", err).WithBackend("azure")
	}
	return &Backend{api: sdkAPI{client: client}}, nil
}

func serviceURL(cfg rftypes.BackendConfig, format string) (string, error) {
	if cfg.EndpointURL != "" {
		return cfg.EndpointURL, nil
	}
	if cfg.Account == "" {
		return "", errors.NewError("client initialization",
			fmt.Errorf("%w: azure account or endpoint required", errors.ErrInvalidConfig)).
			WithBackend("azure")
	}
	if format == "" {
		format = DefaultServiceURL
	}
	return fmt.Sprintf(format, cfg.Account), nil
}

// Kind implements backend.Backend.
func (b *Backend) Kind() rftypes.BackendKind {
	return rftypes.KindAzure
}

// httpRange maps a half-open window onto Azure's offset and count.
// A zero count reads to the end of the blob.
func httpRange(r rftypes.RangeRequest) blob.HTTPRange {
	return blob.HTTPRange{Offset: int64(r.Start), Count: int64(r.Length())}
}

func (b *Backend) open(ctx context.Context, req backend.Request) (io.ReadCloser, int64, string, string, error) {
	container, name, err := validation.SplitObjectPath(req.Location)
	if err != nil {
		return nil, 0, "", "", err
	}
	body, size, err := b.api.Download(ctx, container, name, httpRange(req.RangeRequest))
	if err != nil {
		return nil, 0, container, name, errors.NewObjectError("download", container, name, classify(err)).WithBackend("azure")
	}
	return body, size, container, name, nil
}

// Fetch implements backend.Backend.
func (b *Backend) Fetch(ctx context.Context, req backend.Request) ([]byte, error) {
	body, size, container, name, err := b.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := pool.ReadAll(body, size)
	if err != nil {
		return nil, errors.NewObjectError("download", container, name, err).WithBackend("azure")
	}
	return data, nil
}

// Stream implements backend.Streamer.
func (b *Backend) Stream(ctx context.Context, req backend.Request, w io.Writer) (int64, error) {
	body, size, container, name, err := b.open(ctx, req)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := pool.Copy(w, body, size)
	if err != nil {
		return n, errors.NewObjectError("download", container, name, err).WithBackend("azure")
	}
	return n, nil
}

// ListPage implements backend.Lister.
func (b *Backend) ListPage(
	ctx context.Context,
	container, prefix, token string,
	_ backend.Access,
) (backend.Page, error) {
	entries, next, err := b.api.List(ctx, container, prefix, token)
	if err != nil {
		return backend.Page{}, errors.NewError("listBlobs", classify(err)).
			WithBackend("azure").
			WithContainer(container)
	}
	for i := range entries {
		entries[i].Name = container + "/" + entries[i].Name
	}
	return backend.Page{Entries: entries, NextToken: next}, nil
}

// Stat implements backend.Statter.
func (b *Backend) Stat(ctx context.Context, location string, _ backend.Access) (rftypes.ObjectInfo, error) {
	container, name, err := validation.SplitObjectPath(location)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}
	info, err := b.api.Properties(ctx, container, name)
	if err != nil {
		return rftypes.ObjectInfo{}, errors.NewObjectError("getProperties", container, name, classify(err)).
			WithBackend("azure")
	}
	return info, nil
}

// Put implements backend.Putter.
func (b *Backend) Put(ctx context.Context, location string, data []byte, contentType string) (string, error) {
	container, name, err := validation.SplitObjectPath(location)
	if err != nil {
		return "", err
	}
	etag, err := b.api.Upload(ctx, container, name, data, contentType)
	if err != nil {
		return "", errors.NewObjectError("uploadBuffer", container, name, classify(err)).WithBackend("azure")
	}
	return etag, nil
}

// classify turns azcore response errors into ResponseErrors.
func classify(err error) error {
	var respErr *azcore.ResponseError
	if !stderrors.As(err, &respErr) {
		return err
	}
	re := &errors.ResponseError{
		StatusCode: respErr.StatusCode,
		Code:       respErr.ErrorCode,
		Message:    respErr.Error(),
		Err:        err,
	}
	if respErr.RawResponse != nil {
		// the SDK has already buffered the body, so this does not touch the network
		if body, perr := runtime.Payload(respErr.RawResponse); perr == nil && len(body) > 0 {
			re.Body = body
		}
	}
	return re
}

// sdkAPI adapts *azblob.Client to blobAPI.
type sdkAPI struct {
	client *azblob.Client
}

func (s sdkAPI) Download(ctx context.Context, container, name string, rng blob.HTTPRange) (io.ReadCloser, int64, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, &azblob.DownloadStreamOptions{Range: rng})
	if err != nil {
		return nil, 0, err
	}
	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

func (s sdkAPI) List(ctx context.Context, container, prefix, marker string) ([]rftypes.Entry, string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	if marker != "" {
		opts.Marker = &marker
	}

	pager := s.client.NewListBlobsFlatPager(container, opts)
	if !pager.More() {
		return nil, "", nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", err
	}

	var entries []rftypes.Entry
	if resp.Segment != nil {
		entries = make([]rftypes.Entry, 0, len(resp.Segment.BlobItems))
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			e := rftypes.Entry{Name: *item.Name}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				e.Size = *item.Properties.ContentLength
			}
			entries = append(entries, e)
		}
	}

	next := ""
	if resp.NextMarker != nil {
		next = *resp.NextMarker
	}
	return entries, next, nil
}

func (s sdkAPI) Properties(ctx context.Context, container, name string) (rftypes.ObjectInfo, error) {
	resp, err := s.client.ServiceClient().
		NewContainerClient(container).
		NewBlobClient(name).
		GetProperties(ctx, nil)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}

	var info rftypes.ObjectInfo
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	if resp.LastModified != nil {
		info.LastModified = resp.LastModified.UTC().Truncate(time.Second)
	}
	return info, nil
}

func (s sdkAPI) Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error) {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	resp, err := s.client.UploadBuffer(ctx, container, name, data, opts)
	if err != nil {
		return "", err
	}
	if resp.ETag == nil {
		return "", nil
	}
	return string(*resp.ETag), nil
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Streamer = (*Backend)(nil)
	_ backend.Lister   = (*Backend)(nil)
	_ backend.Statter  = (*Backend)(nil)
	_ backend.Putter   = (*Backend)(nil)
)
