package rangefetch

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithHTTPClient sets the HTTP client used by the HTTP and GCS backends and
// handed to the S3 and Azure SDKs as their transport.
func WithHTTPClient(client *http.Client) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithConcurrencyLimit caps the number of requests in flight per batch.
// Default is no cap: one goroutine per item.
func WithConcurrencyLimit(limit int) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		if limit > 0 {
			c.ConcurrencyLimit = limit
		}
	}
}

// WithMaxAttempts sets the AWS SDK's own attempt count for S3 requests.
// Default is 1, leaving the single batch-level retry as the only one.
func WithMaxAttempts(attempts int) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithForcePathStyle forces path-style S3 URLs.
// Endpoint overrides always use path style.
func WithForcePathStyle(forcePathStyle bool) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithGCSHost overrides the GCS API base URL.
func WithGCSHost(host string) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.GCSHost = host
	}
}

// WithTokenSource sets the GCS token source instead of Google default credentials.
func WithTokenSource(ts oauth2.TokenSource) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.TokenSource = ts
	}
}

// WithAzureServiceURL sets the Azure service URL format; "%s" is replaced
// by the account name.
func WithAzureServiceURL(format string) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.AzureServiceURL = format
	}
}

// WithFilesystem sets where DownloadMany writes files.
// If not specified, defaults to the OS filesystem.
func WithFilesystem(filesystem fs.Filesystem) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithMetrics registers the client's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.Registerer = reg
	}
}

// WithS3API replaces S3 client construction.
// This is primarily used for testing with mocked clients.
func WithS3API(factory rftypes.S3Factory) rftypes.Option {
	return func(c *rftypes.ClientConfig) {
		c.S3Factory = factory
	}
}

// FetchOption configures one fetch batch.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	method string
	header map[string]string
}

// WithMethod sets the HTTP method for HTTP backend requests. Default is GET.
func WithMethod(method string) FetchOption {
	return func(c *fetchConfig) {
		c.method = method
	}
}

// WithHeaders adds request headers for HTTP backend requests.
func WithHeaders(header map[string]string) FetchOption {
	return func(c *fetchConfig) {
		if c.header == nil {
			c.header = make(map[string]string, len(header))
		}
		for k, v := range header {
			c.header[k] = v
		}
	}
}

func applyFetchOptions(opts []FetchOption) fetchConfig {
	var fc fetchConfig
	for _, opt := range opts {
		opt(&fc)
	}
	return fc
}
