// Package l2state reads L2 account storage over JSON-RPC, for running L1SLOAD outside of an EVM.
package l2state

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0xurb/l1sload/precompile"
)

// Reader is a precompile.StateReader backed by an L2 node. A nil block reads the latest L2 state.
type Reader struct {
	client  *ethclient.Client
	block   *big.Int
	timeout time.Duration
}

var _ precompile.StateReader = (*Reader)(nil)

func NewReader(client *ethclient.Client, block *big.Int, timeout time.Duration) *Reader {
	return &Reader{
		client:  client,
		block:   block,
		timeout: timeout,
	}
}

func (r *Reader) GetState(address common.Address, slot common.Hash) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	value, err := r.client.StorageAt(ctx, address, slot, r.block)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(value), nil
}

// FixedState answers every read with the same value. It stands in for L2 state when
// the L1 block to read at is given directly.
type FixedState common.Hash

func (s FixedState) GetState(common.Address, common.Hash) (common.Hash, error) {
	return common.Hash(s), nil
}

// PinnedState returns a state whose L1Block slot records the given L1 block number.
func PinnedState(l1Block uint64) FixedState {
	return FixedState(common.BigToHash(new(big.Int).SetUint64(l1Block)))
}
