package l1sources

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/0xurb/l1sload/precompile"
)

// StorageSource reads a single L1 storage slot.
type StorageSource interface {
	StorageAt(ctx context.Context, address common.Address, slot common.Hash, pin precompile.BlockPin) (common.Hash, error)
}

type L1Source interface {
	StorageSource
	BlockNumber(ctx context.Context) (uint64, error)
}

// RetryingL1Source retries failed reads with exponential backoff, giving up after maxAttempts.
// Cancellation of the context interrupts the backoff and ends the read.
type RetryingL1Source struct {
	logger      log.Logger
	source      L1Source
	maxAttempts int
	strategy    retry.Strategy
}

func NewRetryingL1Source(logger log.Logger, source L1Source, maxAttempts int) *RetryingL1Source {
	return &RetryingL1Source{
		logger:      logger,
		source:      source,
		maxAttempts: maxAttempts,
		strategy:    retry.Exponential(),
	}
}

func (s *RetryingL1Source) StorageAt(ctx context.Context, address common.Address, slot common.Hash, pin precompile.BlockPin) (common.Hash, error) {
	return do(ctx, s.maxAttempts, s.strategy, func() (common.Hash, error) {
		res, err := s.source.StorageAt(ctx, address, slot, pin)
		if err != nil {
			s.logger.Warn("Failed to read L1 storage", "address", address, "slot", slot, "block", pin, "err", err)
		}
		return res, err
	})
}

func (s *RetryingL1Source) BlockNumber(ctx context.Context) (uint64, error) {
	return do(ctx, s.maxAttempts, s.strategy, func() (uint64, error) {
		res, err := s.source.BlockNumber(ctx)
		if err != nil {
			s.logger.Warn("Failed to fetch L1 block number", "err", err)
		}
		return res, err
	})
}

var _ L1Source = (*RetryingL1Source)(nil)

// do runs op up to maxAttempts times, waiting strategy.Duration between attempts.
// Unlike retry.Do it never waits past the end of ctx.
func do[T any](ctx context.Context, maxAttempts int, strategy retry.Strategy, op func() (T, error)) (T, error) {
	var empty T
	if maxAttempts < 1 {
		return empty, fmt.Errorf("need at least 1 attempt to run op, but have %d max attempts", maxAttempts)
	}
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return empty, err
			}
			return empty, fmt.Errorf("%w: %w", err, lastErr)
		}
		res, err := op()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if i == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(strategy.Duration(i))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return empty, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		}
	}
	return empty, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
