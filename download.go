package rangefetch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/engine"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// DownloadMany streams each URL into the matching local path, concurrently.
// Parent directories are created as needed and a failed download leaves no
// file behind. Per-item failures are logged, not returned; the error is
// reserved for mismatched inputs.
func (c *Client) DownloadMany(ctx context.Context, urls, localPaths []string, opts ...FetchOption) error {
	if len(urls) != len(localPaths) {
		return errors.NewError("downloadMany", fmt.Errorf(
			"%w: %d urls, %d local paths", errors.ErrInvalidInput, len(urls), len(localPaths)))
	}
	if len(urls) == 0 {
		return nil
	}

	cfg := rftypes.BackendConfig{Kind: rftypes.KindHTTP}
	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return err
	}
	streamer, ok := b.(backend.Streamer)
	if !ok {
		return unsupported("downloadMany", cfg.Kind)
	}

	fc := applyFetchOptions(opts)
	kind := cfg.Kind.String()

	results := engine.Run(ctx, len(urls), engine.Options{
		Limit:   c.cfg.ConcurrencyLimit,
		Retries: fetchRetries,
		OnRetry: func(int, int, error) { c.metrics.Retry(kind) },
	}, func(ctx context.Context, i int) (int64, error) {
		started := time.Now()
		n, err := c.downloadOne(ctx, streamer, backend.Request{
			RangeRequest: rftypes.RangeRequest{Location: urls[i]},
			Method:       fc.method,
			Header:       fc.header,
		}, c.localPath(localPaths[i]))
		c.metrics.ObserveRequest(kind, "download", started, err)
		c.metrics.Bytes(kind, metrics.DirectionDown, int(n))
		return n, err
	})

	for i, res := range results {
		if res.Err != nil {
			c.logger.Warn("download failed",
				"location", urls[i],
				"path", localPaths[i],
				"attempt", res.Attempts,
				"error", res.Err)
			continue
		}
		c.logger.Debug("downloaded", "location", urls[i], "path", localPaths[i], "bytes", res.Value)
	}
	return nil
}

// localPath resolves relative paths against the working directory when
// writing to the default OS filesystem, which is rooted at "/".
func (c *Client) localPath(p string) string {
	if c.cfg.Filesystem != nil || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (c *Client) downloadOne(ctx context.Context, s backend.Streamer, req backend.Request, dst string) (int64, error) {
	if dir := filepath.Dir(dst); dir != "." && dir != "/" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return 0, errors.NewError("download", err).WithKey(dst)
		}
	}

	f, err := c.fs.Create(dst)
	if err != nil {
		return 0, errors.NewError("download", err).WithKey(dst)
	}

	n, err := s.Stream(ctx, req, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.NewError("download", closeErr).WithKey(dst)
	}
	if err != nil {
		_ = c.fs.Remove(dst)
		return n, err
	}
	return n, nil
}
