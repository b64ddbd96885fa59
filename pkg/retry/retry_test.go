package retry_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Initialize(logger.Config{Level: "debug", Environment: "development"}); err != nil {
		panic(err)
	}
}

func fastConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), "test", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	sentinel := errors.New("persistent failure")
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), "test", func() error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryableErrors = func(err error) bool { return false }
	sentinel := errors.New("definitive rejection")

	calls := 0
	err := retry.Do(context.Background(), cfg, "test", func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(), "test", func() error {
		return errors.New("should not matter")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	result, err := retry.DoWithResult(context.Background(), fastConfig(), "test", func() (string, error) {
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", result)
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, retry.IsNetworkError(nil))
	assert.False(t, retry.IsNetworkError(errors.New("application error")))
	assert.True(t, retry.IsNetworkError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, retry.IsNetworkError(&net.DNSError{IsTimeout: true}))
}
