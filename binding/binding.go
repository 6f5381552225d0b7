// Package binding adapts a rangefetch.Client to hosts that cannot carry
// structured per-item errors.
//
// Failed items are returned in place as a payload beginning with a backend
// prefix such as "S3 ERROR: ", so results keep their positional
// correspondence with the input batch. Errors that affect the whole call,
// such as a client that cannot be constructed, are still returned as
// errors, and so is a failed multipart completion.
package binding

import (
	"context"
	"strconv"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// Host is the boundary adapter around a Client.
type Host struct {
	client *rangefetch.Client
}

// New wraps client.
func New(client *rangefetch.Client) *Host {
	return &Host{client: client}
}

// Prefix returns the error prefix for a backend kind, e.g. "GCS ERROR: ".
func Prefix(kind rftypes.BackendKind) string {
	return strings.ToUpper(kind.String()) + " ERROR: "
}

// Flatten renders err as a prefixed payload. Application errors carry the
// backend's response body; everything else uses the error text.
func Flatten(kind rftypes.BackendKind, err error) string {
	if re, ok := errors.AsResponse(err); ok {
		return Prefix(kind) + re.Payload()
	}
	return Prefix(kind) + err.Error()
}

func flattenOutcomes(kind rftypes.BackendKind, outcomes []rftypes.Outcome) [][]byte {
	out := make([][]byte, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil {
			out[i] = []byte(Flatten(kind, o.Err))
			continue
		}
		out[i] = o.Data
	}
	return out
}

func fetchOptions(headers map[string]string, method string) []rangefetch.FetchOption {
	var opts []rangefetch.FetchOption
	if len(headers) > 0 {
		opts = append(opts, rangefetch.WithHeaders(headers))
	}
	if method != "" {
		opts = append(opts, rangefetch.WithMethod(method))
	}
	return opts
}

// CatRanges fetches byte ranges of URLs. starts and ends follow
// Client.FetchRanges: both nil reads whole objects.
func (h *Host) CatRanges(
	ctx context.Context,
	urls []string,
	starts, ends []uint64,
	headers map[string]string,
	method string,
) ([][]byte, error) {
	cfg := rftypes.BackendConfig{Kind: rftypes.KindHTTP}
	outcomes, err := h.client.FetchRanges(ctx, urls, starts, ends, cfg, fetchOptions(headers, method)...)
	if err != nil {
		return nil, err
	}
	return flattenOutcomes(cfg.Kind, outcomes), nil
}

// Get downloads each URL to the matching local path. Per-item failures
// are not reported; inspect the resulting files.
func (h *Host) Get(ctx context.Context, urls, localPaths []string, headers map[string]string, method string) error {
	return h.client.DownloadMany(ctx, urls, localPaths, fetchOptions(headers, method)...)
}

func (h *Host) catRanges(
	ctx context.Context,
	kind rftypes.BackendKind,
	paths []string,
	cfg rftypes.BackendConfig,
	starts, ends []uint64,
) ([][]byte, error) {
	cfg.Kind = kind
	outcomes, err := h.client.FetchRanges(ctx, paths, starts, ends, cfg)
	if err != nil {
		return nil, err
	}
	return flattenOutcomes(kind, outcomes), nil
}

// S3CatRanges fetches byte ranges of "bucket/key" paths from S3.
func (h *Host) S3CatRanges(ctx context.Context, paths []string, cfg rftypes.BackendConfig, starts, ends []uint64) ([][]byte, error) {
	return h.catRanges(ctx, rftypes.KindS3, paths, cfg, starts, ends)
}

// GCSCatRanges fetches byte ranges of "bucket/object" paths from GCS.
func (h *Host) GCSCatRanges(ctx context.Context, paths []string, cfg rftypes.BackendConfig, starts, ends []uint64) ([][]byte, error) {
	return h.catRanges(ctx, rftypes.KindGCS, paths, cfg, starts, ends)
}

// AzureCatRanges fetches byte ranges of "container/blob" paths from Azure.
func (h *Host) AzureCatRanges(ctx context.Context, paths []string, cfg rftypes.BackendConfig, starts, ends []uint64) ([][]byte, error) {
	return h.catRanges(ctx, rftypes.KindAzure, paths, cfg, starts, ends)
}

// Find lists objects under path as name/size maps. A listing that fails
// part way returns what was gathered before the failure with no error;
// anything that stops the listing from starting is returned.
func (h *Host) Find(ctx context.Context, path string, cfg rftypes.BackendConfig) ([]map[string]string, error) {
	entries, err := h.client.Find(ctx, cfg, path)
	if err != nil && !errors.IsListingIncomplete(err) {
		return nil, err
	}
	out := make([]map[string]string, len(entries))
	for i, e := range entries {
		out[i] = map[string]string{
			"name": e.Name,
			"size": strconv.FormatInt(e.Size, 10),
		}
	}
	return out, nil
}

// Info returns {"size": n} for path, or {"error": payload}.
func (h *Host) Info(ctx context.Context, path string, cfg rftypes.BackendConfig) map[string]string {
	info, err := h.client.Info(ctx, cfg, path)
	if err != nil {
		return map[string]string{"error": Flatten(cfg.Kind, err)}
	}
	return map[string]string{"size": strconv.FormatInt(info.Size, 10)}
}

// InitUpload starts a multipart upload and returns its upload ID, or a
// prefixed error payload.
func (h *Host) InitUpload(ctx context.Context, path string, cfg rftypes.BackendConfig) string {
	s, err := h.client.InitMultipart(ctx, cfg, path)
	if err != nil {
		return Flatten(cfg.Kind, err)
	}
	return s.UploadID
}

// UploadChunk uploads one part of an upload started by InitUpload.
func (h *Host) UploadChunk(
	ctx context.Context,
	path, uploadID string,
	part int32,
	data []byte,
	cfg rftypes.BackendConfig,
) (string, error) {
	s, err := rangefetch.ResumeMultipart(path, uploadID)
	if err != nil {
		return "", err
	}
	return h.client.UploadPart(ctx, cfg, s, part, data)
}

// CompleteUpload assembles the parts. Failure is returned, never
// flattened, because the upload is left open on the backend.
func (h *Host) CompleteUpload(
	ctx context.Context,
	path, uploadID string,
	parts map[int32]string,
	cfg rftypes.BackendConfig,
) error {
	s, err := rangefetch.ResumeMultipart(path, uploadID)
	if err != nil {
		return err
	}
	return h.client.CompleteMultipart(ctx, cfg, s, parts)
}

// AbortUpload discards an upload and its parts.
func (h *Host) AbortUpload(ctx context.Context, path, uploadID string, cfg rftypes.BackendConfig) error {
	s, err := rangefetch.ResumeMultipart(path, uploadID)
	if err != nil {
		return err
	}
	return h.client.AbortMultipart(ctx, cfg, s)
}

// Pipe uploads whole objects and returns one ETag or error payload per
// item, ordered by path.
func (h *Host) Pipe(ctx context.Context, items map[string][]byte, cfg rftypes.BackendConfig) ([]string, error) {
	results, err := h.client.PutMany(ctx, cfg, items)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = Flatten(cfg.Kind, r.Err)
			continue
		}
		out[i] = r.ETag
	}
	return out, nil
}
