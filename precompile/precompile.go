// Package precompile implements L1SLOAD, a precompile that lets L2 contracts read L1 storage slots.
//
// Call data is a 20-byte L1 account address followed by 1 to MaxKeys 32-byte storage keys.
// The output is the ABI encoding of a uint256[] holding the slot values in key order.
// Reads are pinned to the latest L1 block recorded by the L2 L1Block system contract.
package precompile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Address is where L1SLOAD is registered.
var Address = common.BytesToAddress([]byte{0x01, 0x01})

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrOutOfGas     = errors.New("out of gas")
	ErrRPC          = errors.New("l1 rpc error")
)

// BatchStorageReader reads several storage slots of one L1 account at the given block.
// Implementations return exactly one value per key, in key order, or an error and no values.
type BatchStorageReader interface {
	ReadStorage(ctx context.Context, address common.Address, keys []common.Hash, pin BlockPin) ([]common.Hash, error)
}

// L1SLoad executes L1SLOAD calls. It holds no per-call state and is safe for concurrent use.
type L1SLoad struct {
	log    log.Logger
	reader BatchStorageReader
}

func New(logger log.Logger, reader BatchStorageReader) *L1SLoad {
	return &L1SLoad{
		log:    logger,
		reader: reader,
	}
}

// Run executes a single call. Gas is checked before any L1 request is made.
// On failure no output is returned and gasUsed is 0.
func (p *L1SLoad) Run(ctx context.Context, input []byte, gasLimit uint64, state StateReader) ([]byte, uint64, error) {
	req, err := DecodeInput(input)
	if err != nil {
		return nil, 0, err
	}
	gasUsed, err := CheckGas(len(req.Keys), gasLimit)
	if err != nil {
		return nil, 0, err
	}
	pin := ResolveBlockPin(p.log, state)

	values, err := p.reader.ReadStorage(ctx, req.Address, req.Keys, pin)
	if err != nil {
		p.log.Warn("Failed to read L1 storage", "address", req.Address, "keys", len(req.Keys), "block", pin, "err", err)
		return nil, 0, fmt.Errorf("%w: %w", ErrRPC, err)
	}
	if len(values) != len(req.Keys) {
		return nil, 0, fmt.Errorf("%w: expected %d values but got %d", ErrRPC, len(req.Keys), len(values))
	}

	out, err := EncodeOutput(values)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode output: %w", err)
	}
	p.log.Trace("Read L1 storage", "address", req.Address, "keys", len(req.Keys), "block", pin, "gas", gasUsed)
	return out, gasUsed, nil
}
