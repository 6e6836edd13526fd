package l1sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/0xurb/l1sload/precompile"
)

// flakySource fails the first failures calls.
type flakySource struct {
	failures int
	calls    int
	err      error
}

func (s *flakySource) StorageAt(context.Context, common.Address, common.Hash, precompile.BlockPin) (common.Hash, error) {
	s.calls++
	if s.calls <= s.failures {
		return common.Hash{}, s.err
	}
	return common.Hash{0x01}, nil
}

func (s *flakySource) BlockNumber(context.Context) (uint64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, s.err
	}
	return 42, nil
}

func newTestRetryingSource(t *testing.T, source L1Source, attempts int) *RetryingL1Source {
	s := NewRetryingL1Source(testlog.Logger(t, log.LevelDebug), source, attempts)
	s.strategy = retry.Fixed(time.Millisecond)
	return s
}

func TestRetryingL1Source(t *testing.T) {
	cause := errors.New("503 service unavailable")

	t.Run("StorageAtSucceedsAfterRetry", func(t *testing.T) {
		source := &flakySource{failures: 2, err: cause}
		v, err := newTestRetryingSource(t, source, 3).StorageAt(context.Background(), common.Address{}, common.Hash{}, precompile.Latest)
		require.NoError(t, err)
		require.Equal(t, common.Hash{0x01}, v)
		require.Equal(t, 3, source.calls)
	})

	t.Run("StorageAtGivesUp", func(t *testing.T) {
		source := &flakySource{failures: 5, err: cause}
		_, err := newTestRetryingSource(t, source, 3).StorageAt(context.Background(), common.Address{}, common.Hash{}, precompile.Latest)
		require.ErrorIs(t, err, cause)
		require.Equal(t, 3, source.calls)
	})

	t.Run("SingleAttempt", func(t *testing.T) {
		source := &flakySource{failures: 1, err: cause}
		_, err := newTestRetryingSource(t, source, 1).StorageAt(context.Background(), common.Address{}, common.Hash{}, precompile.Latest)
		require.ErrorIs(t, err, cause)
		require.Equal(t, 1, source.calls)
	})

	t.Run("BlockNumber", func(t *testing.T) {
		source := &flakySource{failures: 1, err: cause}
		n, err := newTestRetryingSource(t, source, 2).BlockNumber(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(42), n)
	})
}

func TestRetryingL1SourceStopsAtDeadline(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("StorageAt", func(t *testing.T) {
		source := &flakySource{failures: 100, err: cause}
		s := NewRetryingL1Source(testlog.Logger(t, log.LevelDebug), source, 3)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := s.StorageAt(ctx, common.Address{}, common.Hash{}, precompile.Latest)
		require.Less(t, time.Since(start), 500*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.ErrorIs(t, err, cause)
		require.Equal(t, 1, source.calls)
	})

	t.Run("BlockNumber", func(t *testing.T) {
		source := &flakySource{failures: 100, err: cause}
		s := NewRetryingL1Source(testlog.Logger(t, log.LevelDebug), source, 3)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		start := time.Now()
		_, err := s.BlockNumber(ctx)
		require.Less(t, time.Since(start), 500*time.Millisecond)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("AlreadyCancelled", func(t *testing.T) {
		source := &flakySource{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestRetryingSource(t, source, 3).StorageAt(ctx, common.Address{}, common.Hash{}, precompile.Latest)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, source.calls)
	})

	t.Run("BatchReader", func(t *testing.T) {
		keys := []common.Hash{{0x01}, {0x02}}
		source := &delayedSource{fail: map[common.Hash]error{{0x01}: cause, {0x02}: cause}}
		logger := testlog.Logger(t, log.LevelDebug)
		reader := NewBatchReader(logger, NewRetryingL1Source(logger, source, 3), nil, false)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		values, err := reader.ReadStorage(ctx, common.Address{}, keys, precompile.PinAt(1))
		require.Less(t, time.Since(start), 500*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.ErrorIs(t, err, cause)
		require.Nil(t, values)
	})
}

func TestRetryingL1SourceInvalidAttempts(t *testing.T) {
	source := &flakySource{}
	_, err := newTestRetryingSource(t, source, 0).BlockNumber(context.Background())
	require.ErrorContains(t, err, "at least 1 attempt")
	require.Zero(t, source.calls)
}
