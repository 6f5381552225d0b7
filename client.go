package rangefetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend/azurebackend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend/gcsbackend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend/httpbackend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend/s3backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/registry"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// RegistryStats reports how often backend clients were built and reused.
type RegistryStats = registry.Stats

// Client fetches from and uploads to remote object stores.
// It is safe for concurrent use; backend clients are cached per
// configuration identity for the lifetime of the Client.
type Client struct {
	cfg      rftypes.ClientConfig
	logger   *slog.Logger
	registry *registry.Registry
	metrics  *metrics.Recorder
	fs       fs.Filesystem
}

// New creates a Client with the provided options.
// No backend client is built until a call needs one.
//
// Example:
//
//	client, err := rangefetch.New(
//	    rangefetch.WithLogger(slog.Default()),
//	    rangefetch.WithConcurrencyLimit(64),
//	)
func New(opts ...rftypes.Option) (*Client, error) {
	cfg := rftypes.ClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rec, err := metrics.New(cfg.Registerer)
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}

	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = billy.NewOSFS("/")
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: rec,
		fs:      filesystem,
	}
	c.registry = registry.New(c.construct)
	return c, nil
}

// Stats returns backend client cache statistics.
func (c *Client) Stats() RegistryStats {
	return c.registry.Stats()
}

// construct builds the backend client for bc. Only the registry calls it.
func (c *Client) construct(ctx context.Context, bc rftypes.BackendConfig) (backend.Backend, error) {
	var (
		b   backend.Backend
		err error
	)

	switch bc.Kind {
	case rftypes.KindHTTP:
		b = httpbackend.New(c.cfg.HTTPClient)
	case rftypes.KindS3:
		var s3b *s3backend.Backend
		if s3b, err = s3backend.NewFromConfig(ctx, bc, &c.cfg); err == nil {
			b = s3b
		}
	case rftypes.KindGCS:
		var gcsb *gcsbackend.Backend
		if gcsb, err = gcsbackend.NewFromConfig(ctx, bc, &c.cfg); err == nil {
			b = gcsb
		}
	case rftypes.KindAzure:
		var azb *azurebackend.Backend
		if azb, err = azurebackend.NewFromConfig(ctx, bc, &c.cfg); err == nil {
			b = azb
		}
	default:
		err = errors.NewError("client initialization",
			fmt.Errorf("%w: unknown backend %s", errors.ErrInvalidConfig, bc.Kind))
	}

	if err != nil {
		c.logger.Warn("backend client construction failed", "backend", bc.Kind.String(), "error", err)
		return nil, err
	}

	c.metrics.ClientConstructed(bc.Kind.String())
	c.logger.Debug("backend client constructed", "backend", bc.Kind.String())
	return b, nil
}

// resolve returns the shared backend client for bc.
func (c *Client) resolve(ctx context.Context, bc rftypes.BackendConfig) (backend.Backend, error) {
	return c.registry.Resolve(ctx, bc)
}

// unsupported is the error for a capability the backend lacks.
func unsupported(op string, kind rftypes.BackendKind) error {
	return errors.NewError(op, errors.ErrNotImplemented).WithBackend(kind.String())
}
