package l1sources

import (
	"context"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/semaphore"
)

type limitClient struct {
	client.RPC
	sema *semaphore.Weighted
}

// LimitRPC limits concurrent RPC requests (excluding subscriptions) to a given number by wrapping the client with a semaphore.
func LimitRPC(c client.RPC, concurrentRequests int) client.RPC {
	return &limitClient{
		RPC:  c,
		sema: semaphore.NewWeighted(int64(concurrentRequests)),
	}
}

func (lc *limitClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if err := lc.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer lc.sema.Release(1)
	return lc.RPC.CallContext(ctx, result, method, args...)
}

func (lc *limitClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	if err := lc.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer lc.sema.Release(1)
	return lc.RPC.BatchCallContext(ctx, b)
}

func (lc *limitClient) Close() {
	lc.RPC.Close()
}
