package rangefetch

import (
	"context"
	"fmt"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/engine"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// fetchRetries is the number of extra attempts after a transport failure.
const fetchRetries = 1

// FetchMany fetches every request concurrently and returns one Outcome per
// request, in input order.
//
// The error return is reserved for failures that affect the whole batch,
// such as a backend client that cannot be built. Per-item failures,
// including invalid ranges, are reported in the item's Outcome.
func (c *Client) FetchMany(
	ctx context.Context,
	reqs []rftypes.RangeRequest,
	cfg rftypes.BackendConfig,
	opts ...FetchOption,
) ([]rftypes.Outcome, error) {
	if len(reqs) == 0 {
		return []rftypes.Outcome{}, nil
	}

	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fc := applyFetchOptions(opts)
	acc := backend.AccessFor(cfg)
	kind := cfg.Kind.String()

	results := engine.Run(ctx, len(reqs), engine.Options{
		Limit:   c.cfg.ConcurrencyLimit,
		Retries: fetchRetries,
		OnRetry: func(i, attempt int, err error) {
			c.metrics.Retry(kind)
			c.logger.Debug("retrying request",
				"backend", kind,
				"location", reqs[i].Location,
				"attempt", attempt+1,
				"error", err)
		},
	}, func(ctx context.Context, i int) ([]byte, error) {
		r := reqs[i]
		if err := r.Validate(); err != nil {
			return nil, errors.NewError("fetch", err).WithBackend(kind).WithKey(r.Location)
		}

		started := time.Now()
		data, err := b.Fetch(ctx, backend.Request{
			RangeRequest: r,
			Method:       fc.method,
			Header:       fc.header,
			Access:       acc,
		})
		c.metrics.ObserveRequest(kind, "fetch", started, err)
		c.metrics.Bytes(kind, metrics.DirectionDown, len(data))
		return data, err
	})

	outcomes := make([]rftypes.Outcome, len(results))
	for i, res := range results {
		outcomes[i] = rftypes.Outcome{Data: res.Value, Err: res.Err}
		if res.Err != nil {
			c.logger.Warn("fetch failed",
				"backend", kind,
				"location", reqs[i].Location,
				"attempt", res.Attempts,
				"error", res.Err)
		}
	}
	return outcomes, nil
}

// FetchRanges builds range requests from parallel slices and fetches them.
//
// Both starts and ends nil reads whole objects. When exactly one of them is
// nil nothing is fetched and the result is empty. Otherwise both must have
// one entry per location; End == 0 reads from Start to the end of the object.
func (c *Client) FetchRanges(
	ctx context.Context,
	locations []string,
	starts, ends []uint64,
	cfg rftypes.BackendConfig,
	opts ...FetchOption,
) ([]rftypes.Outcome, error) {
	if (starts == nil) != (ends == nil) {
		c.logger.Debug("partial range bounds, nothing fetched",
			"backend", cfg.Kind.String(),
			"locations", len(locations))
		return []rftypes.Outcome{}, nil
	}

	if starts != nil && (len(starts) != len(locations) || len(ends) != len(locations)) {
		return nil, errors.NewError("fetchRanges", fmt.Errorf(
			"%w: %d locations, %d starts, %d ends",
			errors.ErrInvalidInput, len(locations), len(starts), len(ends),
		)).WithBackend(cfg.Kind.String())
	}

	reqs := make([]rftypes.RangeRequest, len(locations))
	for i, loc := range locations {
		reqs[i] = rftypes.RangeRequest{Location: loc}
		if starts != nil {
			reqs[i].Start = starts[i]
			reqs[i].End = ends[i]
		}
	}
	return c.FetchMany(ctx, reqs, cfg, opts...)
}
