//go:build integration
// +build integration

package rangefetch_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/internal/testutil"
)

// TestIntegrationS3 runs the S3 surface against LocalStack.
func TestIntegrationS3(t *testing.T) {
	ctx := context.Background()
	container, raw, bucket := testutil.SetupLocalStackTest(t)
	cfg := container.BackendConfig()

	client, err := rangefetch.New()
	require.NoError(t, err)

	payload := testutil.GenerateRandomData(64 * 1024)
	_, err = raw.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("data/blob.bin"),
		Body:   bytes.NewReader(payload),
	})
	require.NoError(t, err)

	t.Run("fetch ranges", func(t *testing.T) {
		loc := bucket + "/data/blob.bin"
		outcomes, err := client.FetchRanges(ctx,
			[]string{loc, loc, loc, bucket + "/data/missing"},
			[]uint64{0, 1000, 60000, 0},
			[]uint64{100, 2000, 0, 10},
			cfg)
		require.NoError(t, err)
		require.Len(t, outcomes, 4)

		assert.Equal(t, payload[:100], outcomes[0].Data)
		assert.Equal(t, payload[1000:2000], outcomes[1].Data)
		assert.Equal(t, payload[60000:], outcomes[2].Data)
		assert.True(t, errors.IsObjectNotFound(outcomes[3].Err))
	})

	t.Run("put many then find", func(t *testing.T) {
		items := make(map[string][]byte)
		for i := range 5 {
			items[fmt.Sprintf("%s/batch/item-%d.txt", bucket, i)] = []byte(fmt.Sprintf("item %d", i))
		}
		results, err := client.PutMany(ctx, cfg, items)
		require.NoError(t, err)
		for _, r := range results {
			require.NoError(t, r.Err, r.Path)
		}

		entries, err := client.Find(ctx, cfg, bucket+"/batch/")
		require.NoError(t, err)
		assert.Len(t, entries, 5)
		for _, e := range entries {
			assert.Equal(t, int64(6), e.Size)
		}
	})

	t.Run("info", func(t *testing.T) {
		info, err := client.Info(ctx, cfg, bucket+"/data/blob.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), info.Size)
		assert.NotEmpty(t, info.ETag)
	})

	t.Run("multipart", func(t *testing.T) {
		s, err := client.InitMultipart(ctx, cfg, bucket+"/big/assembled.bin")
		require.NoError(t, err)

		first := testutil.GenerateRandomData(5 * 1024 * 1024)
		second := []byte("tail")

		// Parts go up out of order.
		_, err = client.UploadPart(ctx, cfg, s, 2, second)
		require.NoError(t, err)
		_, err = client.UploadPart(ctx, cfg, s, 1, first)
		require.NoError(t, err)

		require.NoError(t, client.CompleteMultipart(ctx, cfg, s, nil))

		info, err := client.Info(ctx, cfg, bucket+"/big/assembled.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(len(first)+len(second)), info.Size)

		outcomes, err := client.FetchRanges(ctx,
			[]string{bucket + "/big/assembled.bin"},
			[]uint64{uint64(len(first))}, []uint64{0}, cfg)
		require.NoError(t, err)
		assert.Equal(t, "tail", string(outcomes[0].Data))
	})

	t.Run("multipart abort", func(t *testing.T) {
		s, err := client.InitMultipart(ctx, cfg, bucket+"/big/abandoned.bin")
		require.NoError(t, err)
		_, err = client.UploadPart(ctx, cfg, s, 1, []byte("x"))
		require.NoError(t, err)
		require.NoError(t, client.AbortMultipart(ctx, cfg, s))
		assert.Equal(t, rangefetch.SessionAborted, s.State())
	})
}
