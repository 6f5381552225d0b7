// Package backend defines the capability set every storage backend offers.
//
// A backend always supports Fetch. Listing, metadata, uploads and multipart
// uploads are optional capabilities discovered with a type assertion, so a
// caller asking for something a backend cannot do gets ErrNotImplemented
// instead of a half-working fallback.
package backend

import (
	"context"
	"io"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// Access carries the per-request authorization and billing flags.
type Access struct {
	// Anonymous sends the request unsigned
	Anonymous bool

	// RequesterPays bills the requester
	RequesterPays bool

	// Project is the GCS billing project
	Project string
}

// AccessFor extracts the per-request flags from a backend config.
func AccessFor(cfg rftypes.BackendConfig) Access {
	return Access{
		Anonymous:     cfg.Anonymous,
		RequesterPays: cfg.RequesterPays,
		Project:       cfg.Project,
	}
}

// Request is one outbound fetch.
type Request struct {
	rftypes.RangeRequest

	// Method is the HTTP method; only the HTTP backend honours it
	Method string

	// Header holds extra request headers; only the HTTP backend honours them
	Header map[string]string

	Access Access
}

// Backend fetches whole objects or byte ranges of them.
// Implementations must be safe for concurrent use.
type Backend interface {
	Kind() rftypes.BackendKind
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Streamer writes a response body to w instead of buffering it.
type Streamer interface {
	Stream(ctx context.Context, req Request, w io.Writer) (int64, error)
}

// Page is one page of a listing.
type Page struct {
	Entries []rftypes.Entry

	// NextToken continues the listing; empty on the last page
	NextToken string
}

// Lister lists objects under a prefix one page at a time.
type Lister interface {
	ListPage(ctx context.Context, container, prefix, token string, acc Access) (Page, error)
}

// Statter looks up metadata for a single object.
type Statter interface {
	Stat(ctx context.Context, location string, acc Access) (rftypes.ObjectInfo, error)
}

// Putter stores a whole object in one request and returns its ETag.
type Putter interface {
	Put(ctx context.Context, location string, data []byte, contentType string) (string, error)
}

// Part is one entry of a multipart completion manifest.
type Part struct {
	Number int32
	ETag   string
}

// MultipartUploader drives the create / upload part / complete / abort protocol.
type MultipartUploader interface {
	CreateMultipart(ctx context.Context, container, key string) (string, error)
	UploadPart(ctx context.Context, container, key, uploadID string, part int32, data []byte) (string, error)
	CompleteMultipart(ctx context.Context, container, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, container, key, uploadID string) error
}
