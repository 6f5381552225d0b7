package azurebackend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// fakeBlobs is an in-memory blobAPI with one-entry pages.
type fakeBlobs struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	types     map[string]string
	lastRange blob.HTTPRange
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}, types: map[string]string{}}
}

func notFound() error {
	return &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "BlobNotFound"}
}

func (f *fakeBlobs) Download(_ context.Context, c, n string, rng blob.HTTPRange) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = rng

	data, ok := f.blobs[c+"/"+n]
	if !ok {
		return nil, 0, notFound()
	}
	end := int64(len(data))
	if rng.Count > 0 {
		end = min(rng.Offset+rng.Count, end)
	}
	window := data[rng.Offset:end]
	return io.NopCloser(bytes.NewReader(window)), int64(len(window)), nil
}

func (f *fakeBlobs) List(_ context.Context, c, prefix, marker string) ([]rftypes.Entry, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for k := range f.blobs {
		name, ok := strings.CutPrefix(k, c+"/")
		if ok && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	idx := 0
	if marker != "" {
		idx, _ = strconv.Atoi(marker)
	}
	if idx >= len(names) {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(names) {
		next = strconv.Itoa(idx + 1)
	}
	name := names[idx]
	return []rftypes.Entry{{Name: name, Size: int64(len(f.blobs[c+"/"+name]))}}, next, nil
}

func (f *fakeBlobs) Properties(_ context.Context, c, n string) (rftypes.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[c+"/"+n]
	if !ok {
		return rftypes.ObjectInfo{}, notFound()
	}
	return rftypes.ObjectInfo{Size: int64(len(data)), ContentType: f.types[c+"/"+n], ETag: "0x1"}, nil
}

func (f *fakeBlobs) Upload(_ context.Context, c, n string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[c+"/"+n] = append([]byte(nil), data...)
	f.types[c+"/"+n] = contentType
	return "0x" + strconv.Itoa(len(data)), nil
}

func fetchReq(location string, start, end uint64) backend.Request {
	return backend.Request{RangeRequest: rftypes.RangeRequest{Location: location, Start: start, End: end}}
}

func TestHTTPRange(t *testing.T) {
	tests := []struct {
		start, end uint64
		want       blob.HTTPRange
	}{
		{0, 0, blob.HTTPRange{}},
		{10, 20, blob.HTTPRange{Offset: 10, Count: 10}},
		{5, 0, blob.HTTPRange{Offset: 5}},
	}
	for _, tt := range tests {
		got := httpRange(rftypes.RangeRequest{Start: tt.start, End: tt.end})
		assert.Equal(t, tt.want, got)
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	fake.blobs["ctr/path/blob.bin"] = []byte("0123456789abcdef")
	b := &Backend{api: fake}

	data, err := b.Fetch(ctx, fetchReq("ctr/path/blob.bin", 10, 14))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
	assert.Equal(t, blob.HTTPRange{Offset: 10, Count: 4}, fake.lastRange)

	var buf bytes.Buffer
	n, err := b.Stream(ctx, fetchReq("ctr/path/blob.bin", 12, 0), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "cdef", buf.String())

	_, err = b.Fetch(ctx, fetchReq("ctr/missing", 0, 0))
	require.Error(t, err)
	assert.True(t, errors.IsObjectNotFound(err))
	re, ok := errors.AsResponse(err)
	require.True(t, ok)
	assert.Equal(t, "BlobNotFound", re.Code)
}

func TestListPage(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	fake.blobs["ctr/logs/a"] = []byte("1")
	fake.blobs["ctr/logs/b"] = []byte("22")
	fake.blobs["ctr/other"] = []byte("333")
	b := &Backend{api: fake}

	first, err := b.ListPage(ctx, "ctr", "logs/", "", backend.Access{})
	require.NoError(t, err)
	assert.Equal(t, []rftypes.Entry{{Name: "ctr/logs/a", Size: 1}}, first.Entries)
	require.NotEmpty(t, first.NextToken)

	second, err := b.ListPage(ctx, "ctr", "logs/", first.NextToken, backend.Access{})
	require.NoError(t, err)
	assert.Equal(t, []rftypes.Entry{{Name: "ctr/logs/b", Size: 2}}, second.Entries)
	assert.Empty(t, second.NextToken)
}

func TestStatAndPut(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBlobs()
	b := &Backend{api: fake}

	etag, err := b.Put(ctx, "ctr/doc.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "0x5", etag)

	info, err := b.Stat(ctx, "ctr/doc.txt", backend.Access{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)

	_, err = b.Put(ctx, "nocontainer", nil, "")
	assert.ErrorIs(t, err, errors.ErrBadPath)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     rftypes.BackendConfig
		wantErr error
	}{
		{
			name: "anonymous",
			cfg:  rftypes.BackendConfig{Kind: rftypes.KindAzure, Account: "acct", Anonymous: true},
		},
		{
			name: "shared key",
			cfg:  rftypes.BackendConfig{Kind: rftypes.KindAzure, Account: "acct", Key: "dGVzdGtleQ=="},
		},
		{
			name:    "missing key",
			cfg:     rftypes.BackendConfig{Kind: rftypes.KindAzure, Account: "acct"},
			wantErr: errors.ErrInvalidConfig,
		},
		{
			name:    "missing account",
			cfg:     rftypes.BackendConfig{Kind: rftypes.KindAzure, Anonymous: true},
			wantErr: errors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewFromConfig(ctx, tt.cfg, &rftypes.ClientConfig{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rftypes.KindAzure, b.Kind())
		})
	}
}

func TestServiceURL(t *testing.T) {
	cfg := rftypes.BackendConfig{Account: "acct"}

	u, err := serviceURL(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/", u)

	u, err = serviceURL(cfg, "http://127.0.0.1:10000/%s")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:10000/acct", u)

	cfg.EndpointURL = "http://azurite:10000/devstoreaccount1"
	u, err = serviceURL(cfg, "ignored/%s")
	require.NoError(t, err)
	assert.Equal(t, cfg.EndpointURL, u)
}

func TestClassify(t *testing.T) {
	const serviceBody = `<?xml version="1.0" encoding="utf-8"?><Error><Code>AuthorizationFailure</Code>` +
		`<Message>This request is not authorized to perform this operation.</Message></Error>`

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantPayload string
	}{
		{
			name: "service body is kept",
			err: &azcore.ResponseError{
				StatusCode: http.StatusForbidden,
				ErrorCode:  "AuthorizationFailure",
				RawResponse: &http.Response{
					Status:     "403 Forbidden",
					StatusCode: http.StatusForbidden,
					Body:       io.NopCloser(strings.NewReader(serviceBody)),
				},
			},
			wantStatus:  http.StatusForbidden,
			wantPayload: "This request is not authorized to perform this operation.",
		},
		{
			name:        "no raw response falls back to the sdk message",
			err:         notFound(),
			wantStatus:  http.StatusNotFound,
			wantPayload: "BlobNotFound",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, ok := errors.AsResponse(classify(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, re.StatusCode)
			assert.Contains(t, re.Payload(), tt.wantPayload)
			assert.NotEqual(t, http.StatusText(tt.wantStatus), re.Message)
		})
	}

	plain := io.ErrUnexpectedEOF
	assert.Same(t, plain, classify(plain))
}
