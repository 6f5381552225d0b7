package binding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

var s3Config = rftypes.BackendConfig{Kind: rftypes.KindS3, Region: "us-east-1"}

func newHost(t *testing.T, api s3api.S3API) *Host {
	t.Helper()
	c, err := rangefetch.New(rangefetch.WithS3API(func(context.Context, rftypes.BackendConfig) (s3api.S3API, error) {
		return api, nil
	}))
	require.NoError(t, err)
	return New(c)
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		kind rftypes.BackendKind
		want string
	}{
		{rftypes.KindHTTP, "HTTP ERROR: "},
		{rftypes.KindS3, "S3 ERROR: "},
		{rftypes.KindGCS, "GCS ERROR: "},
		{rftypes.KindAzure, "AZURE ERROR: "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Prefix(tt.kind))
	}
}

func TestFlatten(t *testing.T) {
	app := &errors.ResponseError{StatusCode: http.StatusForbidden, Body: []byte("<Error>denied</Error>")}
	assert.Equal(t, "S3 ERROR: <Error>denied</Error>", Flatten(rftypes.KindS3, errors.NewError("get", app)))

	sdk := &errors.ResponseError{StatusCode: http.StatusNotFound, Code: "BlobNotFound", Message: "Not Found"}
	assert.Equal(t, "AZURE ERROR: BlobNotFound: Not Found", Flatten(rftypes.KindAzure, sdk))

	assert.Equal(t, "HTTP ERROR: "+io.ErrClosedPipe.Error(), Flatten(rftypes.KindHTTP, io.ErrClosedPipe))
}

func TestCatRangesIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	c, err := rangefetch.New()
	require.NoError(t, err)
	h := New(c)

	out, err := h.CatRanges(context.Background(),
		[]string{srv.URL + "/one", srv.URL + "/broken", srv.URL + "/three"}, nil, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "ok /one", string(out[0]))
	assert.True(t, strings.HasPrefix(string(out[1]), "HTTP ERROR: "))
	assert.Contains(t, string(out[1]), "upstream exploded")
	assert.Equal(t, "ok /three", string(out[2]))
}

func TestS3CatRanges(t *testing.T) {
	fake := testutil.NewFakeS3()
	fake.PutBytes("bkt", "obj", []byte("0123456789"))
	h := newHost(t, fake)

	// the kind is forced by the method, whatever the config says
	out, err := h.S3CatRanges(context.Background(),
		[]string{"bkt/obj", "bkt/none", "noslash"},
		rftypes.BackendConfig{Region: "us-east-1"},
		[]uint64{2, 0, 0}, []uint64{5, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, "234", string(out[0]))
	assert.True(t, strings.HasPrefix(string(out[1]), "S3 ERROR: "))
	assert.Contains(t, string(out[1]), "NoSuchKey")
	assert.True(t, strings.HasPrefix(string(out[2]), "S3 ERROR: "))
	assert.Contains(t, string(out[2]), "bad path")

	partial, err := h.S3CatRanges(context.Background(), []string{"bkt/obj"}, s3Config, []uint64{5}, nil)
	require.NoError(t, err)
	assert.Empty(t, partial)
}

func TestFindAndInfo(t *testing.T) {
	fake := testutil.NewFakeS3()
	fake.PutBytes("bkt", "logs/a", []byte("abc"))
	fake.PutBytes("bkt", "logs/b", []byte("de"))
	h := newHost(t, fake)
	ctx := context.Background()

	entries, err := h.Find(ctx, "bkt/logs/", s3Config)
	require.NoError(t, err)
	assert.ElementsMatch(t, []map[string]string{
		{"name": "bkt/logs/a", "size": "3"},
		{"name": "bkt/logs/b", "size": "2"},
	}, entries)

	assert.Equal(t, map[string]string{"size": "3"}, h.Info(ctx, "bkt/logs/a", s3Config))

	missing := h.Info(ctx, "bkt/logs/zzz", s3Config)
	assert.NotContains(t, missing, "size")
	assert.True(t, strings.HasPrefix(missing["error"], "S3 ERROR: "))
}

// failingPages serves the first listing page and fails every later one.
type failingPages struct {
	*testutil.FakeS3
	calls atomic.Int32
}

func (f *failingPages) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	if f.calls.Add(1) > 1 {
		return nil, io.ErrUnexpectedEOF
	}
	return f.FakeS3.ListObjectsV2(ctx, params, optFns...)
}

func TestFindErrors(t *testing.T) {
	ctx := context.Background()
	c, err := rangefetch.New()
	require.NoError(t, err)
	h := New(c)

	tests := []struct {
		name    string
		path    string
		cfg     rftypes.BackendConfig
		wantErr error
	}{
		{
			name:    "azure without account",
			path:    "ctr/",
			cfg:     rftypes.BackendConfig{Kind: rftypes.KindAzure},
			wantErr: errors.ErrInvalidConfig,
		},
		{
			name:    "path without container",
			path:    "noslash",
			cfg:     s3Config,
			wantErr: errors.ErrBadPath,
		},
		{
			name:    "backend cannot list",
			path:    "example.com/dir/",
			cfg:     rftypes.BackendConfig{Kind: rftypes.KindHTTP},
			wantErr: errors.ErrNotImplemented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := h.Find(ctx, tt.path, tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, entries)
		})
	}

	t.Run("failure after the first page keeps entries", func(t *testing.T) {
		fake := testutil.NewFakeS3()
		fake.PageSize = 1
		fake.PutBytes("bkt", "logs/a", []byte("abc"))
		fake.PutBytes("bkt", "logs/b", []byte("de"))
		lister := &failingPages{FakeS3: fake}

		entries, err := newHost(t, lister).Find(ctx, "bkt/logs/", s3Config)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"name": "bkt/logs/a", "size": "3"}}, entries)
		assert.Equal(t, int32(2), lister.calls.Load())
	})
}

func TestUploadFlow(t *testing.T) {
	fake := testutil.NewFakeS3()
	h := newHost(t, fake)
	ctx := context.Background()

	bad := h.InitUpload(ctx, "no-slash", s3Config)
	assert.True(t, strings.HasPrefix(bad, "S3 ERROR: "))

	id := h.InitUpload(ctx, "bkt/big", s3Config)
	require.NotEmpty(t, id)
	require.False(t, strings.HasPrefix(id, "S3 ERROR: "))

	e2, err := h.UploadChunk(ctx, "bkt/big", id, 2, []byte("world"), s3Config)
	require.NoError(t, err)
	e1, err := h.UploadChunk(ctx, "bkt/big", id, 1, []byte("hello "), s3Config)
	require.NoError(t, err)

	err = h.CompleteUpload(ctx, "bkt/big", id, map[int32]string{1: e1}, s3Config)
	require.NoError(t, err)
	got, ok := fake.Object("bkt", "big")
	require.True(t, ok)
	assert.Equal(t, "hello ", string(got))

	id = h.InitUpload(ctx, "bkt/other", s3Config)
	err = h.CompleteUpload(ctx, "bkt/other", id, map[int32]string{1: "bogus"}, s3Config)
	assert.ErrorIs(t, err, errors.ErrCompleteFailed)

	require.NoError(t, h.AbortUpload(ctx, "bkt/other", id, s3Config))
	assert.Zero(t, fake.PendingUploads())
	assert.NotEmpty(t, e2)
}

func TestPipe(t *testing.T) {
	fake := testutil.NewFakeS3()
	h := newHost(t, fake)

	out, err := h.Pipe(context.Background(), map[string][]byte{
		"bkt/b.txt": []byte("b"),
		"bkt/a.txt": []byte("a"),
		"bkt/../x":  []byte("x"),
	}, s3Config)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.True(t, strings.HasPrefix(out[0], "S3 ERROR: "))
	assert.Equal(t, testutil.CalculateETag([]byte("a")), out[1])
	assert.Equal(t, testutil.CalculateETag([]byte("b")), out[2])
}

func TestPipeUnsupported(t *testing.T) {
	c, err := rangefetch.New()
	require.NoError(t, err)

	_, err = New(c).Pipe(context.Background(), map[string][]byte{"host/x": nil},
		rftypes.BackendConfig{Kind: rftypes.KindHTTP})
	assert.ErrorIs(t, err, errors.ErrNotImplemented)
}
