// Package httpbackend fetches plain URLs with a shared net/http client.
package httpbackend

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 * 1024

// Backend is the generic HTTP backend.
type Backend struct {
	client *http.Client
}

// New creates an HTTP backend. A nil client uses http.DefaultClient.
func New(client *http.Client) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{client: client}
}

// Kind implements backend.Backend.
func (b *Backend) Kind() rftypes.BackendKind {
	return rftypes.KindHTTP
}

// Fetch implements backend.Backend.
func (b *Backend) Fetch(ctx context.Context, req backend.Request) ([]byte, error) {
	resp, err := b.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := pool.ReadAll(resp.Body, resp.ContentLength)
	if err != nil {
		return nil, errors.NewError("fetch", err).WithKey(req.Location)
	}
	return data, nil
}

// Stream implements backend.Streamer.
func (b *Backend) Stream(ctx context.Context, req backend.Request, w io.Writer) (int64, error) {
	resp, err := b.do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := pool.Copy(w, resp.Body, resp.ContentLength)
	if err != nil {
		return n, errors.NewError("stream", err).WithKey(req.Location)
	}
	return n, nil
}

// Stat implements backend.Statter with a HEAD request.
func (b *Backend) Stat(ctx context.Context, location string, _ backend.Access) (rftypes.ObjectInfo, error) {
	resp, err := b.do(ctx, backend.Request{
		RangeRequest: rftypes.RangeRequest{Location: location},
		Method:       http.MethodHead,
	})
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		return rftypes.ObjectInfo{}, errors.NewError("stat", errors.ErrNotImplemented).
			WithKey(location).
			WithMessage("server did not report a content length")
	}

	info := rftypes.ObjectInfo{
		Size:        resp.ContentLength,
		ETag:        resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.LastModified = lm
	}
	return info, nil
}

// do sends req and turns error statuses into ResponseErrors.
// On success the caller owns resp.Body.
func (b *Backend) do(ctx context.Context, req backend.Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.Location, nil)
	if err != nil {
		return nil, errors.NewError("fetch", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)).
			WithKey(req.Location)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	if rng := req.HeaderValue(); rng != "" {
		httpReq.Header.Set("Range", rng)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewError("fetch", err).WithKey(req.Location)
	}

	if err := CheckResponse(resp); err != nil {
		return nil, errors.NewError("fetch", err).WithKey(req.Location)
	}
	return resp, nil
}

// CheckResponse returns a ResponseError carrying the start of the body when
// resp has an error status, closing the body. Otherwise it returns nil and
// leaves resp untouched.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &errors.ResponseError{
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Streamer = (*Backend)(nil)
	_ backend.Statter  = (*Backend)(nil)
)
