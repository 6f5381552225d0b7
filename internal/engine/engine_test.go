package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
)

func transportErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
}

func TestRunPreservesOrder(t *testing.T) {
	const n = 64
	results := Run(context.Background(), n, Options{}, func(_ context.Context, i int) (int, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return i * i, nil
	})

	require.Len(t, results, n)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Value)
		assert.Equal(t, 1, r.Attempts)
	}
}

func TestRunEmpty(t *testing.T) {
	results := Run(context.Background(), 0, Options{}, func(context.Context, int) (int, error) {
		t.Fatal("task must not run")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestRunRetry(t *testing.T) {
	tests := []struct {
		name         string
		failures     int64
		err          error
		wantAttempts int
		wantErr      bool
	}{
		{name: "transport failure recovers on second attempt", failures: 1, err: transportErr(), wantAttempts: 2},
		{name: "transport failure twice is final", failures: 2, err: transportErr(), wantAttempts: 2, wantErr: true},
		{
			name:         "application error is not retried",
			failures:     1,
			err:          &errors.ResponseError{StatusCode: 404},
			wantAttempts: 1,
			wantErr:      true,
		},
		{name: "invalid range is not retried", failures: 1, err: errors.ErrInvalidRange, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			var retried []int
			var mu sync.Mutex

			opts := Options{
				Retries: 1,
				OnRetry: func(index, attempt int, err error) {
					mu.Lock()
					defer mu.Unlock()
					retried = append(retried, attempt)
					assert.Error(t, err)
				},
			}
			results := Run(context.Background(), 1, opts, func(context.Context, int) (string, error) {
				if calls.Add(1) <= tt.failures {
					return "", tt.err
				}
				return "ok", nil
			})

			r := results[0]
			assert.Equal(t, tt.wantAttempts, r.Attempts)
			assert.Equal(t, int64(tt.wantAttempts), calls.Load())
			assert.Len(t, retried, tt.wantAttempts-1)
			if tt.wantErr {
				assert.Error(t, r.Err)
				return
			}
			require.NoError(t, r.Err)
			assert.Equal(t, "ok", r.Value)
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	results := Run(context.Background(), 3, Options{Retries: 1}, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			return 0, &errors.ResponseError{StatusCode: 500}
		}
		return i, nil
	})

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, results[2].Value)
}

func TestRunLimit(t *testing.T) {
	var inFlight, peak atomic.Int64
	Run(context.Background(), 20, Options{Limit: 3}, func(context.Context, int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Positive(t, peak.Load())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	results := Run(ctx, 5, Options{Retries: 1}, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Zero(t, r.Attempts)
	}
}
