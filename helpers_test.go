package rangefetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

var (
	s3Config   = rftypes.BackendConfig{Kind: rftypes.KindS3, Region: "us-east-1"}
	httpConfig = rftypes.BackendConfig{Kind: rftypes.KindHTTP}
)

// newS3Client returns a client whose S3 backends all talk to api.
func newS3Client(t *testing.T, api s3api.S3API, opts ...rftypes.Option) *Client {
	t.Helper()
	opts = append(opts, WithS3API(func(context.Context, rftypes.BackendConfig) (s3api.S3API, error) {
		return api, nil
	}))
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// newObjectServer serves objects by path with random latency so that
// completion order differs from request order. Unknown paths answer 404
// with a plain body.
func newObjectServer(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		body, ok := objects[r.URL.Path]
		if !ok {
			http.Error(w, "no such object "+r.URL.Path, http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, strings.NewReader(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// flakyTransport fails the first failures round trips with a transport
// error, then delegates.
type flakyTransport struct {
	failures int64
	calls    atomic.Int64
	base     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return f.base.RoundTrip(req)
}

// sharedFake is a FakeS3 with a few fixed objects.
func sharedFake() *testutil.FakeS3 {
	fake := testutil.NewFakeS3()
	fake.PutBytes("bkt", "alpha", []byte("0123456789"))
	fake.PutBytes("bkt", "beta", []byte("abcdefghij"))
	fake.PutBytes("bkt", "dir/one", []byte("1"))
	fake.PutBytes("bkt", "dir/two", []byte("22"))
	fake.PutBytes("bkt", "dir/three", []byte("333"))
	return fake
}
