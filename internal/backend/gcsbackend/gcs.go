// Package gcsbackend reads, lists and writes Google Cloud Storage objects
// through the cloud.google.com/go/storage client.
package gcsbackend

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

const (
	// DefaultHost is the public GCS endpoint.
	DefaultHost = "https://storage.googleapis.com"

	// FullControlScope is the OAuth2 scope requested for authenticated clients.
	FullControlScope = "https://www.googleapis.com/auth/devstorage.full_control"

	// EmulatorHostEnv points the backend at a local emulator.
	EmulatorHostEnv = "STORAGE_EMULATOR_HOST"

	// DefaultPageSize is how many objects one listing page asks for.
	DefaultPageSize = 1000
)

// objectAPI is the slice of the storage client the backend uses.
type objectAPI interface {
	Read(ctx context.Context, acc backend.Access, bucket, name string, offset, length int64) (io.ReadCloser, int64, error)
	List(ctx context.Context, acc backend.Access, bucket, prefix, token string) ([]rftypes.Entry, string, error)
	Attrs(ctx context.Context, acc backend.Access, bucket, name string) (rftypes.ObjectInfo, error)
	Write(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
}

// Backend is the GCS backend.
type Backend struct {
	api objectAPI
}

// NewFromConfig builds storage clients for cfg: an authenticated one and an
// anonymous one for requests that ask for it. Anonymous configs share the
// anonymous client for both. Token acquisition is detached from ctx
// cancellation because the token source outlives the call that created it.
// SDK retries are disabled so the caller's single retry is the only one.
func NewFromConfig(ctx context.Context, cfg rftypes.BackendConfig, cc *rftypes.ClientConfig) (*Backend, error) {
	ctx = context.WithoutCancel(ctx)
	host := ResolveHost(cc.GCSHost)

	anon, err := newClient(ctx, host, anonymousOptions(cc.HTTPClient))
	if err != nil {
		return nil, errors.NewError("client initialization", err).WithBackend("gcs")
	}
	if cfg.Anonymous {
		return &Backend{api: &sdkAPI{client: anon, anon: anon, pageSize: DefaultPageSize}}, nil
	}

	ts := cc.TokenSource
	if ts == nil {
		ts, err = google.DefaultTokenSource(ctx, FullControlScope)
		if err != nil {
			return nil, errors.NewError("client initialization", err).WithBackend("gcs")
		}
	}
	authed, err := newClient(ctx, host, authenticatedOptions(cc.HTTPClient, ts))
	if err != nil {
		return nil, errors.NewError("client initialization", err).WithBackend("gcs")
	}
	return &Backend{api: &sdkAPI{client: authed, anon: anon, pageSize: DefaultPageSize}}, nil
}

func anonymousOptions(base *http.Client) []option.ClientOption {
	if base != nil {
		// a caller-supplied client is used as-is, without credentials
		return []option.ClientOption{option.WithHTTPClient(base)}
	}
	return []option.ClientOption{option.WithoutAuthentication()}
}

func authenticatedOptions(base *http.Client, ts oauth2.TokenSource) []option.ClientOption {
	if base == nil {
		return []option.ClientOption{option.WithTokenSource(ts)}
	}
	return []option.ClientOption{option.WithHTTPClient(&http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, ts),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	})}
}

func newClient(ctx context.Context, host string, opts []option.ClientOption) (*storage.Client, error) {
	if host != DefaultHost {
		opts = append(opts, option.WithEndpoint(host+"/storage/v1/"))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client.SetRetry(storage.WithPolicy(storage.RetryNever))
	return client, nil
}

// ResolveHost picks the API host: explicit option, then the emulator
// environment variable, then the public endpoint.
func ResolveHost(explicit string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if emu := os.Getenv(EmulatorHostEnv); emu != "" {
		if !strings.Contains(emu, "://") {
			emu = "http://" + emu
		}
		return strings.TrimRight(emu, "/")
	}
	return DefaultHost
}

// Kind implements backend.Backend.
func (b *Backend) Kind() rftypes.BackendKind {
	return rftypes.KindGCS
}

// window maps a half-open range onto the client's offset and length.
// A negative length reads to the end of the object.
func window(r rftypes.RangeRequest) (int64, int64) {
	if r.End == 0 {
		return int64(r.Start), -1
	}
	return int64(r.Start), int64(r.Length())
}

func (b *Backend) open(ctx context.Context, req backend.Request) (io.ReadCloser, int64, string, string, error) {
	bucket, name, err := validation.SplitObjectPath(req.Location)
	if err != nil {
		return nil, 0, "", "", err
	}
	offset, length := window(req.RangeRequest)
	body, size, err := b.api.Read(ctx, req.Access, bucket, name, offset, length)
	if err != nil {
		return nil, 0, bucket, name, errors.NewObjectError("download", bucket, name, classify(err)).WithBackend("gcs")
	}
	return body, size, bucket, name, nil
}

// Fetch implements backend.Backend.
func (b *Backend) Fetch(ctx context.Context, req backend.Request) ([]byte, error) {
	body, size, bucket, name, err := b.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := pool.ReadAll(body, size)
	if err != nil {
		return nil, errors.NewObjectError("download", bucket, name, err).WithBackend("gcs")
	}
	return data, nil
}

// Stream implements backend.Streamer.
func (b *Backend) Stream(ctx context.Context, req backend.Request, w io.Writer) (int64, error) {
	body, size, bucket, name, err := b.open(ctx, req)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := pool.Copy(w, body, size)
	if err != nil {
		return n, errors.NewObjectError("download", bucket, name, err).WithBackend("gcs")
	}
	return n, nil
}

// ListPage implements backend.Lister.
func (b *Backend) ListPage(
	ctx context.Context,
	bucket, prefix, token string,
	acc backend.Access,
) (backend.Page, error) {
	entries, next, err := b.api.List(ctx, acc, bucket, prefix, token)
	if err != nil {
		return backend.Page{}, errors.NewError("listObjects", classify(err)).
			WithBackend("gcs").
			WithContainer(bucket)
	}
	for i := range entries {
		entries[i].Name = bucket + "/" + entries[i].Name
	}
	return backend.Page{Entries: entries, NextToken: next}, nil
}

// Stat implements backend.Statter.
func (b *Backend) Stat(ctx context.Context, location string, acc backend.Access) (rftypes.ObjectInfo, error) {
	bucket, name, err := validation.SplitObjectPath(location)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}
	info, err := b.api.Attrs(ctx, acc, bucket, name)
	if err != nil {
		return rftypes.ObjectInfo{}, errors.NewObjectError("stat", bucket, name, classify(err)).WithBackend("gcs")
	}
	return info, nil
}

// Put implements backend.Putter with a single-request upload.
func (b *Backend) Put(ctx context.Context, location string, data []byte, contentType string) (string, error) {
	bucket, name, err := validation.SplitObjectPath(location)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	etag, err := b.api.Write(ctx, bucket, name, data, contentType)
	if err != nil {
		return "", errors.NewObjectError("upload", bucket, name, classify(err)).WithBackend("gcs")
	}
	return etag, nil
}

// classify turns storage client failures into ResponseErrors.
func classify(err error) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) || stderrors.Is(err, storage.ErrBucketNotExist) {
		return &errors.ResponseError{
			StatusCode: http.StatusNotFound,
			Code:       "notFound",
			Message:    err.Error(),
			Err:        err,
		}
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return err
	}
	re := &errors.ResponseError{
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
		Body:       []byte(apiErr.Body),
		Err:        err,
	}
	if len(apiErr.Errors) > 0 {
		re.Code = apiErr.Errors[0].Reason
	}
	return re
}

// sdkAPI adapts *storage.Client to objectAPI.
type sdkAPI struct {
	client   *storage.Client
	anon     *storage.Client
	pageSize int
}

// bucket picks the client for acc and bills requester-pays reads to the
// configured project.
func (s *sdkAPI) bucket(acc backend.Access, name string) *storage.BucketHandle {
	client := s.client
	if acc.Anonymous {
		client = s.anon
	}
	bkt := client.Bucket(name)
	if acc.RequesterPays && acc.Project != "" {
		bkt = bkt.UserProject(acc.Project)
	}
	return bkt
}

func (s *sdkAPI) Read(
	ctx context.Context,
	acc backend.Access,
	bucket, name string,
	offset, length int64,
) (io.ReadCloser, int64, error) {
	// ranges address stored bytes, so skip decompressive transcoding
	obj := s.bucket(acc, bucket).Object(name).ReadCompressed(true)
	r, err := obj.NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, 0, err
	}
	return r, r.Remain(), nil
}

func (s *sdkAPI) List(
	ctx context.Context,
	acc backend.Access,
	bucket, prefix, token string,
) ([]rftypes.Entry, string, error) {
	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name", "Size"}); err != nil {
		return nil, "", err
	}

	pager := iterator.NewPager(s.bucket(acc, bucket).Objects(ctx, q), s.pageSize, token)
	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, "", err
	}

	entries := make([]rftypes.Entry, 0, len(attrs))
	for _, a := range attrs {
		entries = append(entries, rftypes.Entry{Name: a.Name, Size: a.Size})
	}
	return entries, next, nil
}

func (s *sdkAPI) Attrs(ctx context.Context, acc backend.Access, bucket, name string) (rftypes.ObjectInfo, error) {
	attrs, err := s.bucket(acc, bucket).Object(name).Attrs(ctx)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}
	return rftypes.ObjectInfo{
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
	}, nil
}

func (s *sdkAPI) Write(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	// one request for the whole buffer
	w.ChunkSize = 0

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.Attrs().Etag, nil
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Streamer = (*Backend)(nil)
	_ backend.Lister   = (*Backend)(nil)
	_ backend.Statter  = (*Backend)(nil)
	_ backend.Putter   = (*Backend)(nil)
)
