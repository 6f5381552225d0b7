package rangefetch

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/rftypes"
)

// MultipartSession is an open multipart upload. Its exported fields name
// the upload; recorded part ETags are kept internally for completion.
type MultipartSession = multipart.Session

// Multipart session states
const (
	SessionUploading = multipart.StateUploading
	SessionCompleted = multipart.StateCompleted
	SessionAborted   = multipart.StateAborted
)

// ResumeMultipart rebuilds a session for an upload started elsewhere,
// from its "bucket/key" path and upload ID. The session has no recorded
// parts, so CompleteMultipart must be given the manifest explicitly.
func ResumeMultipart(path, uploadID string) (*MultipartSession, error) {
	return multipart.Resume(path, uploadID)
}

func (c *Client) coordinator(ctx context.Context, cfg rftypes.BackendConfig, op string) (*multipart.Coordinator, error) {
	b, err := c.resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	up, ok := b.(backend.MultipartUploader)
	if !ok {
		return nil, unsupported(op, cfg.Kind)
	}
	return multipart.NewCoordinator(up, c.logger), nil
}

// InitMultipart starts a multipart upload to "bucket/key".
func (c *Client) InitMultipart(ctx context.Context, cfg rftypes.BackendConfig, path string) (*MultipartSession, error) {
	coord, err := c.coordinator(ctx, cfg, "initMultipart")
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s, err := coord.Init(ctx, path)
	c.metrics.ObserveRequest(cfg.Kind.String(), "initMultipart", started, err)
	return s, err
}

// UploadPart uploads one part and returns its ETag. Parts of one session
// may be uploaded concurrently and in any order. Uploading the same part
// number again replaces the recorded ETag.
func (c *Client) UploadPart(
	ctx context.Context,
	cfg rftypes.BackendConfig,
	s *MultipartSession,
	part int32,
	data []byte,
) (string, error) {
	coord, err := c.coordinator(ctx, cfg, "uploadPart")
	if err != nil {
		return "", err
	}

	started := time.Now()
	etag, err := coord.UploadPart(ctx, s, part, data)
	c.metrics.ObserveRequest(cfg.Kind.String(), "uploadPart", started, err)
	if err == nil {
		c.metrics.Bytes(cfg.Kind.String(), metrics.DirectionUp, len(data))
	}
	return etag, err
}

// CompleteMultipart assembles the uploaded parts in part-number order.
// A nil parts map uses the ETags recorded on the session. A rejection by
// the backend wraps errors.ErrCompleteFailed.
func (c *Client) CompleteMultipart(
	ctx context.Context,
	cfg rftypes.BackendConfig,
	s *MultipartSession,
	parts map[int32]string,
) error {
	coord, err := c.coordinator(ctx, cfg, "completeMultipart")
	if err != nil {
		return err
	}

	started := time.Now()
	err = coord.Complete(ctx, s, parts)
	c.metrics.ObserveRequest(cfg.Kind.String(), "completeMultipart", started, err)
	return err
}

// AbortMultipart cancels the upload and discards its parts.
func (c *Client) AbortMultipart(ctx context.Context, cfg rftypes.BackendConfig, s *MultipartSession) error {
	coord, err := c.coordinator(ctx, cfg, "abortMultipart")
	if err != nil {
		return err
	}

	started := time.Now()
	err = coord.Abort(ctx, s)
	c.metrics.ObserveRequest(cfg.Kind.String(), "abortMultipart", started, err)
	return err
}
