package multipart

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/validation"
)

// State is where a session is in its lifecycle.
type State int

// Session states
const (
	StateUploading State = iota
	StateCompleted
	StateAborted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one multipart upload in progress. The zero value plus Bucket,
// Key and UploadID is a usable uploading session.
type Session struct {
	Bucket   string
	Key      string
	UploadID string

	mu    sync.Mutex
	parts map[int32]string
	state State
}

// NewSession creates a session for an upload that already exists remotely.
func NewSession(bucket, key, uploadID string) *Session {
	return &Session{
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
		parts:    make(map[int32]string),
	}
}

// Resume rebuilds a session from a "bucket/key" path and a stored upload ID.
// The resumed session has no recorded parts.
func Resume(path, uploadID string) (*Session, error) {
	bucket, key, err := validation.SplitObjectPath(path)
	if err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, errors.NewObjectError("resume", bucket, key,
			fmt.Errorf("%w: empty upload id", errors.ErrInvalidInput))
	}
	return NewSession(bucket, key, uploadID), nil
}

// Path returns "bucket/key".
func (s *Session) Path() string {
	return s.Bucket + "/" + s.Key
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Parts returns a copy of the recorded part ETags.
func (s *Session) Parts() map[int32]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int32]string, len(s.parts))
	for n, etag := range s.parts {
		out[n] = etag
	}
	return out
}

func (s *Session) record(part int32, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts == nil {
		s.parts = make(map[int32]string)
	}
	s.parts[part] = etag
}

func (s *Session) checkOpen(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUploading {
		return errors.NewObjectError(op, s.Bucket, s.Key,
			fmt.Errorf("%w: upload %s is %s", errors.ErrSessionClosed, s.UploadID, s.state))
	}
	return nil
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = to
}

// Manifest orders part ETags by part number.
func Manifest(parts map[int32]string) []backend.Part {
	out := make([]backend.Part, 0, len(parts))
	for n, etag := range parts {
		out = append(out, backend.Part{Number: n, ETag: etag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Coordinator drives the multipart protocol against one backend.
type Coordinator struct {
	uploader backend.MultipartUploader
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. A nil logger discards.
func NewCoordinator(uploader backend.MultipartUploader, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{uploader: uploader, logger: logger}
}

// Init starts a multipart upload for "bucket/key".
func (c *Coordinator) Init(ctx context.Context, path string) (*Session, error) {
	bucket, key, err := validation.SplitObjectPath(path)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, errors.NewObjectError("createMultipartUpload", bucket, key, err)
	}

	uploadID, err := c.uploader.CreateMultipart(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("multipart upload created", "location", path, "upload_id", uploadID)
	return NewSession(bucket, key, uploadID), nil
}

// UploadPart uploads one part and records its ETag on the session.
// Safe for concurrent use on the same session.
func (c *Coordinator) UploadPart(ctx context.Context, s *Session, part int32, data []byte) (string, error) {
	if err := s.checkOpen("uploadPart"); err != nil {
		return "", err
	}

	etag, err := c.uploader.UploadPart(ctx, s.Bucket, s.Key, s.UploadID, part, data)
	if err != nil {
		c.logger.Warn("part upload failed", "location", s.Path(), "upload_id", s.UploadID, "part", part, "error", err)
		return "", err
	}

	s.record(part, etag)
	c.logger.Debug("part uploaded", "location", s.Path(), "upload_id", s.UploadID, "part", part, "bytes", len(data))
	return etag, nil
}

// Complete finishes the upload. A nil parts map uses the ETags recorded
// on the session. Backend rejections wrap ErrCompleteFailed.
func (c *Coordinator) Complete(ctx context.Context, s *Session, parts map[int32]string) error {
	if err := s.checkOpen("completeMultipartUpload"); err != nil {
		return err
	}
	if parts == nil {
		parts = s.Parts()
	}

	if err := c.uploader.CompleteMultipart(ctx, s.Bucket, s.Key, s.UploadID, Manifest(parts)); err != nil {
		c.logger.Error("multipart completion failed", "location", s.Path(), "upload_id", s.UploadID, "error", err)
		return fmt.Errorf("%w: %w", errors.ErrCompleteFailed, err)
	}

	s.transition(StateCompleted)
	c.logger.Debug("multipart upload completed", "location", s.Path(), "upload_id", s.UploadID, "parts", len(parts))
	return nil
}

// Abort cancels the upload and discards its parts.
func (c *Coordinator) Abort(ctx context.Context, s *Session) error {
	if err := s.checkOpen("abortMultipartUpload"); err != nil {
		return err
	}

	if err := c.uploader.AbortMultipart(ctx, s.Bucket, s.Key, s.UploadID); err != nil {
		return err
	}

	s.transition(StateAborted)
	c.logger.Debug("multipart upload aborted", "location", s.Path(), "upload_id", s.UploadID)
	return nil
}
