package multipart

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/backend/s3backend"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/testutil"
)

func newCoordinator() (*Coordinator, *testutil.FakeS3) {
	fake := testutil.NewFakeS3()
	return NewCoordinator(s3backend.New(fake), nil), fake
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	s, err := c.Init(ctx, "bucket/big.bin")
	require.NoError(t, err)
	assert.Equal(t, "bucket", s.Bucket)
	assert.Equal(t, "big.bin", s.Key)
	assert.NotEmpty(t, s.UploadID)

	chunks := []string{"alpha-", "beta-", "gamma-", "delta"}
	var wg sync.WaitGroup
	for i := len(chunks) - 1; i >= 0; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.UploadPart(ctx, s, int32(i+1), []byte(chunks[i]))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, s.Parts(), len(chunks))

	require.NoError(t, c.Complete(ctx, s, nil))
	assert.Equal(t, StateCompleted, s.State())

	got, ok := fake.Object("bucket", "big.bin")
	require.True(t, ok)
	assert.Equal(t, "alpha-beta-gamma-delta", string(got))
}

func TestCompleteWithExplicitParts(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	s, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)
	e1, err := c.UploadPart(ctx, s, 1, []byte("one"))
	require.NoError(t, err)
	_, err = c.UploadPart(ctx, s, 2, []byte("two"))
	require.NoError(t, err)

	// only part 1 is listed, so only part 1 is assembled
	require.NoError(t, c.Complete(ctx, s, map[int32]string{1: e1}))
	got, _ := fake.Object("bucket", "obj")
	assert.Equal(t, "one", string(got))
}

func TestCompleteMissingPart(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	s, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)
	e1, err := c.UploadPart(ctx, s, 1, []byte("one"))
	require.NoError(t, err)

	err = c.Complete(ctx, s, map[int32]string{1: e1, 2: `"never-uploaded"`})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompleteFailed)
	assert.True(t, errors.IsApplication(err))

	assert.Equal(t, StateUploading, s.State())
	_, ok := fake.Object("bucket", "obj")
	assert.False(t, ok)
}

func TestReuploadLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	s, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)
	first, err := c.UploadPart(ctx, s, 1, []byte("draft"))
	require.NoError(t, err)
	second, err := c.UploadPart(ctx, s, 1, []byte("final"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, map[int32]string{1: second}, s.Parts())

	require.NoError(t, c.Complete(ctx, s, nil))
	got, _ := fake.Object("bucket", "obj")
	assert.Equal(t, "final", string(got))
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	s, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)
	_, err = c.UploadPart(ctx, s, 1, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, c.Abort(ctx, s))
	assert.Equal(t, StateAborted, s.State())
	assert.Zero(t, fake.PendingUploads())

	_, err = c.UploadPart(ctx, s, 2, []byte("y"))
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.ErrorIs(t, c.Complete(ctx, s, nil), errors.ErrSessionClosed)
	assert.ErrorIs(t, c.Abort(ctx, s), errors.ErrSessionClosed)
}

func TestClosedAfterComplete(t *testing.T) {
	ctx := context.Background()
	c, _ := newCoordinator()

	s, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)
	_, err = c.UploadPart(ctx, s, 1, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, c.Complete(ctx, s, nil))

	_, err = c.UploadPart(ctx, s, 2, []byte("y"))
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.False(t, errors.Retryable(err))
}

func TestInitErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "no slash", path: "justabucket", wantErr: errors.ErrBadPath},
		{name: "empty key", path: "bucket/", wantErr: errors.ErrBadPath},
		{name: "traversal", path: "bucket/../etc", wantErr: errors.ErrInvalidObjectKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newCoordinator()
			_, err := c.Init(ctx, tt.path)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, fake.PendingUploads())
		})
	}

	t.Run("backend failure", func(t *testing.T) {
		mock := &testutil.MockS3Client{
			CreateMultipartUploadFunc: func(
				context.Context,
				*s3.CreateMultipartUploadInput,
				...func(*s3.Options),
			) (*s3.CreateMultipartUploadOutput, error) {
				return nil, testutil.APIError(403, "AccessDenied", "Access Denied")
			},
		}
		c := NewCoordinator(s3backend.New(mock), nil)

		s, err := c.Init(ctx, "bucket/obj")
		assert.Nil(t, s)
		re, ok := errors.AsResponse(err)
		require.True(t, ok)
		assert.Equal(t, "AccessDenied: Access Denied", re.Payload())
	})
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	started, err := c.Init(ctx, "bucket/obj")
	require.NoError(t, err)

	s, err := Resume("bucket/obj", started.UploadID)
	require.NoError(t, err)
	etag, err := c.UploadPart(ctx, s, 1, []byte("resumed"))
	require.NoError(t, err)
	require.NoError(t, c.Complete(ctx, s, map[int32]string{1: etag}))

	got, _ := fake.Object("bucket", "obj")
	assert.Equal(t, "resumed", string(got))

	_, err = Resume("bucket/obj", "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = Resume("nobucket", "id")
	assert.ErrorIs(t, err, errors.ErrBadPath)
}

func TestLiteralSession(t *testing.T) {
	ctx := context.Background()
	c, fake := newCoordinator()

	started, err := c.Init(ctx, "bucket/literal")
	require.NoError(t, err)

	s := &Session{Bucket: started.Bucket, Key: started.Key, UploadID: started.UploadID}
	assert.Empty(t, s.Parts())

	var etag string
	require.NotPanics(t, func() {
		etag, err = c.UploadPart(ctx, s, 1, []byte("built by hand"))
	})
	require.NoError(t, err)
	assert.Equal(t, map[int32]string{1: etag}, s.Parts())

	require.NoError(t, c.Complete(ctx, s, nil))
	got, _ := fake.Object("bucket", "literal")
	assert.Equal(t, "built by hand", string(got))
}

func TestManifest(t *testing.T) {
	got := Manifest(map[int32]string{3: "c", 1: "a", 10: "j", 2: "b"})
	assert.Equal(t, []backend.Part{
		{Number: 1, ETag: "a"},
		{Number: 2, ETag: "b"},
		{Number: 3, ETag: "c"},
		{Number: 10, ETag: "j"},
	}, got)
	assert.Empty(t, Manifest(nil))
	assert.Equal(t, "uploading", fmt.Sprint(StateUploading))
}
