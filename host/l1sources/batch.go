package l1sources

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xurb/l1sload/host/metrics"
	"github.com/0xurb/l1sload/precompile"
)

// BatchReader reads all keys of a call concurrently and reassembles the values in key order.
// The first failing key cancels the others and fails the whole batch.
type BatchReader struct {
	log       log.Logger
	source    L1Source
	metrics   metrics.Metricer
	pinLatest bool
}

var _ precompile.BatchStorageReader = (*BatchReader)(nil)

// NewBatchReader creates a reader over source. With pinLatest set, unpinned batches are first pinned
// to the current L1 head so that every key is read at the same block.
func NewBatchReader(logger log.Logger, source L1Source, m metrics.Metricer, pinLatest bool) *BatchReader {
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &BatchReader{
		log:       logger,
		source:    source,
		metrics:   m,
		pinLatest: pinLatest,
	}
}

func (r *BatchReader) ReadStorage(ctx context.Context, address common.Address, keys []common.Hash, pin precompile.BlockPin) ([]common.Hash, error) {
	start := time.Now()
	values, err := r.readStorage(ctx, address, keys, pin)
	r.metrics.RecordBatch(len(keys), time.Since(start), err)
	return values, err
}

func (r *BatchReader) readStorage(ctx context.Context, address common.Address, keys []common.Hash, pin precompile.BlockPin) ([]common.Hash, error) {
	if _, pinned := pin.Number(); !pinned && r.pinLatest {
		number, err := r.source.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch latest L1 block number: %w", err)
		}
		r.log.Debug("Pinned batch to L1 head", "block", number)
		pin = precompile.PinAt(number)
	}

	values := make([]common.Hash, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(precompile.MaxKeys)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			value, err := r.source.StorageAt(gctx, address, key, pin)
			if err != nil {
				return fmt.Errorf("failed to read slot %s of %s at block %s: %w", key, address, pin, err)
			}
			values[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}
