package rangefetch

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// Find lists every object under "container/prefix", following continuation
// tokens until the last page.
//
// If a page fails, Find returns the entries gathered so far together with
// the error.
func (c *Client) Find(ctx context.Context, cfg rftypes.BackendConfig, path string) ([]rftypes.Entry, error) {
	container, prefix, err := validation.SplitPath(path)
	if err != nil {
		return nil, err
	}

	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lister, ok := b.(backend.Lister)
	if !ok {
		return nil, unsupported("find", cfg.Kind)
	}

	started := time.Now()
	entries, err := listing.All(ctx, lister, container, prefix, backend.AccessFor(cfg))
	c.metrics.ObserveRequest(cfg.Kind.String(), "list", started, err)
	if err != nil {
		c.logger.Warn("listing stopped early",
			"backend", cfg.Kind.String(),
			"location", path,
			"entries", len(entries),
			"error", err)
	}
	return entries, err
}

// Info returns metadata for a single object. For the HTTP backend path is
// a URL and only the size is guaranteed.
func (c *Client) Info(ctx context.Context, cfg rftypes.BackendConfig, path string) (rftypes.ObjectInfo, error) {
	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return rftypes.ObjectInfo{}, err
	}
	statter, ok := b.(backend.Statter)
	if !ok {
		return rftypes.ObjectInfo{}, unsupported("info", cfg.Kind)
	}

	started := time.Now()
	info, err := statter.Stat(ctx, path, backend.AccessFor(cfg))
	c.metrics.ObserveRequest(cfg.Kind.String(), "info", started, err)
	return info, err
}
