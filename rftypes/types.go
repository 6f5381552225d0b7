// Package rftypes provides shared type definitions for the rangefetch module.
package rftypes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/s3api"
)

// BackendKind selects the storage backend a request is sent to.
type BackendKind int

// Supported backends
const (
	// KindHTTP fetches plain URLs with a shared HTTP client
	KindHTTP BackendKind = iota

	// KindS3 talks to S3 or an S3-compatible store
	KindS3

	// KindGCS talks to Google Cloud Storage through the storage client
	KindGCS

	// KindAzure talks to Azure Blob Storage
	KindAzure
)

// String returns the short lowercase name of the backend.
func (k BackendKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindS3:
		return "s3"
	case KindGCS:
		return "gcs"
	case KindAzure:
		return "azure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// unset is what an empty identity field contributes to a cache key.
const unset = "None"

// BackendConfig describes one backend connection.
// Which fields matter depends on Kind; the rest are ignored.
type BackendConfig struct {
	Kind BackendKind

	// Region is the S3 region
	Region string

	// Profile is the shared-config profile used to load S3 credentials
	Profile string

	// EndpointURL overrides the service endpoint (S3-compatible stores, Azurite)
	EndpointURL string

	// Account is the Azure storage account, or an S3 access key ID when Key is set
	Account string

	// Key is the Azure shared key, or the S3 secret access key
	Key string

	// Project is the GCS billing project used for requester-pays buckets
	Project string

	// Anonymous sends unsigned requests against public objects
	Anonymous bool

	// RequesterPays bills the requester rather than the bucket owner
	RequesterPays bool
}

// CacheKey returns the identity of the client this config resolves to.
// Two configs with the same key share one client.
func (c BackendConfig) CacheKey() string {
	switch c.Kind {
	case KindHTTP:
		return "http"
	case KindS3:
		key := strings.Join([]string{"s3", orUnset(c.Region), orUnset(c.Profile), orUnset(c.EndpointURL)}, "|")
		if c.Account != "" {
			key += "|static:" + c.Account + ":" + fingerprint(c.Key)
		}
		return key
	case KindGCS:
		if c.Anonymous {
			return "gcs|anon"
		}
		return "gcs|full-control"
	case KindAzure:
		cred := "anon"
		if !c.Anonymous {
			cred = "key:" + fingerprint(c.Key)
		}
		return strings.Join([]string{"azure", orUnset(c.Account), orUnset(c.EndpointURL), cred}, "|")
	default:
		return c.Kind.String()
	}
}

func orUnset(s string) string {
	if s == "" {
		return unset
	}
	return s
}

// fingerprint keeps secrets out of cache keys while still telling them apart.
func fingerprint(secret string) string {
	if secret == "" {
		return unset
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// RangeRequest names one object and the byte window to read from it.
// Start == 0 && End == 0 means the whole object; otherwise the window is
// [Start, End). End == 0 with Start > 0 reads from Start to the end.
type RangeRequest struct {
	// Location is a URL for HTTP, "container/key" for object stores
	Location string

	Start uint64
	End   uint64
}

// IsWhole reports whether the request reads the whole object.
func (r RangeRequest) IsWhole() bool {
	return r.Start == 0 && r.End == 0
}

// Validate rejects windows that end at or before they start.
func (r RangeRequest) Validate() error {
	if r.End != 0 && r.End <= r.Start {
		return fmt.Errorf("%w: [%d, %d)", errors.ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// HeaderValue returns the HTTP Range header value for the window,
// or "" when the whole object is requested.
func (r RangeRequest) HeaderValue() string {
	switch {
	case r.IsWhole():
		return ""
	case r.End == 0:
		return fmt.Sprintf("bytes=%d-", r.Start)
	default:
		return fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1)
	}
}

// Length returns the number of bytes in the window, 0 when open-ended.
func (r RangeRequest) Length() uint64 {
	if r.End == 0 {
		return 0
	}
	return r.End - r.Start
}

// Outcome is the result of one fetch: Data on success, Err otherwise.
type Outcome struct {
	Data []byte
	Err  error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Entry is one listed object.
type Entry struct {
	// Name is "container/key"
	Name string

	// Size is the object size in bytes
	Size int64
}

// ObjectInfo contains metadata about a single object.
type ObjectInfo struct {
	// Size is the object size in bytes
	Size int64

	// ETag is the entity tag, if the backend reports one
	ETag string

	// ContentType is the MIME type of the object, if known
	ContentType string

	// LastModified is when the object was last modified, if known
	LastModified time.Time
}

// PutResult is the outcome of uploading one object.
type PutResult struct {
	// Path is the "container/key" that was written
	Path string

	// ETag is the entity tag of the stored object on success
	ETag string

	// Err is set when the upload failed
	Err error
}

// S3Factory builds the S3 API a backend config talks to.
type S3Factory func(ctx context.Context, cfg BackendConfig) (s3api.S3API, error)

// ClientConfig holds configuration for a rangefetch Client.
type ClientConfig struct {
	// Logger receives structured logs; nil discards them
	Logger *slog.Logger

	// HTTPClient is used by the HTTP and GCS backends and handed to the SDKs
	HTTPClient *http.Client

	// ConcurrencyLimit caps in-flight requests per batch; 0 means unbounded
	ConcurrencyLimit int

	// MaxAttempts is the SDK-level attempt count for S3 requests
	MaxAttempts int

	// ForcePathStyle uses path-style S3 addressing even without an endpoint override
	ForcePathStyle bool

	// GCSHost is the GCS API base URL
	GCSHost string

	// TokenSource supplies GCS bearer tokens; nil uses Google default credentials
	TokenSource oauth2.TokenSource

	// AzureServiceURL is a format string taking the account name
	AzureServiceURL string

	// Filesystem receives files written by DownloadMany
	Filesystem fs.Filesystem

	// Registerer receives the client's Prometheus collectors; nil disables metrics
	Registerer prometheus.Registerer

	// S3Factory replaces SDK client construction, mainly for tests
	S3Factory S3Factory
}

// Option configures a Client.
type Option func(*ClientConfig)
