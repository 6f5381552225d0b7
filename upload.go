package rangefetch

import (
	"context"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/engine"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// DefaultContentType is used when neither content nor extension identify the type.
const DefaultContentType = "application/octet-stream"

// PutMany uploads each "container/key" -> content pair as one whole object,
// concurrently. Results are sorted by path; a failed upload only sets the
// Err of its own result.
func (c *Client) PutMany(
	ctx context.Context,
	cfg rftypes.BackendConfig,
	items map[string][]byte,
) ([]rftypes.PutResult, error) {
	if len(items) == 0 {
		return []rftypes.PutResult{}, nil
	}

	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	putter, ok := b.(backend.Putter)
	if !ok {
		return nil, unsupported("putMany", cfg.Kind)
	}

	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	kind := cfg.Kind.String()
	results := engine.Run(ctx, len(paths), engine.Options{Limit: c.cfg.ConcurrencyLimit},
		func(ctx context.Context, i int) (string, error) {
			p := paths[i]
			data := items[p]

			container, key, err := validation.SplitObjectPath(p)
			if err != nil {
				return "", err
			}
			if err := validation.ValidateObjectKey(key); err != nil {
				return "", errors.NewObjectError("put", container, key, err).WithBackend(kind)
			}

			started := time.Now()
			etag, err := putter.Put(ctx, p, data, detectContentType(key, data))
			c.metrics.ObserveRequest(kind, "put", started, err)
			if err == nil {
				c.metrics.Bytes(kind, metrics.DirectionUp, len(data))
			}
			return etag, err
		})

	out := make([]rftypes.PutResult, len(paths))
	for i, res := range results {
		out[i] = rftypes.PutResult{Path: paths[i], ETag: res.Value, Err: res.Err}
		if res.Err != nil {
			c.logger.Warn("put failed", "backend", kind, "location", paths[i], "error", res.Err)
		}
	}
	return out, nil
}

// detectContentType sniffs the content with mimetype, falling back to
// the key's extension when the content is not recognised.
func detectContentType(key string, data []byte) string {
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil && !mt.Is(DefaultContentType) {
			return mt.String()
		}
	}

	if ext := strings.ToLower(path.Ext(key)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
