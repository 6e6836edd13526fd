package engineapi

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/0xurb/l1sload/precompile"
)

// StateDB is the part of vm.StateDB the L1SLOAD contract reads from.
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
}

var _ StateDB = (vm.StateDB)(nil)

// stateReader adapts an EVM StateDB, which cannot fail, to precompile.StateReader.
type stateReader struct {
	db StateDB
}

func (s stateReader) GetState(address common.Address, slot common.Hash) (common.Hash, error) {
	return s.db.GetState(address, slot), nil
}

// l1sloadContract is L1SLOAD bound to the state of one EVM instance.
type l1sloadContract struct {
	handler *precompile.L1SLoad
	state   stateReader
	timeout time.Duration
}

var _ vm.PrecompiledContract = (*l1sloadContract)(nil)

// NewL1SLoadContract exposes handler as a vm.PrecompiledContract reading the L1 block pin from db.
// Every call blocks for at most timeout.
func NewL1SLoadContract(handler *precompile.L1SLoad, db StateDB, timeout time.Duration) vm.PrecompiledContract {
	return &l1sloadContract{
		handler: handler,
		state:   stateReader{db: db},
		timeout: timeout,
	}
}

// RequiredGas returns 0 for malformed input, so Run rejects it as invalid rather than out of gas.
func (c *l1sloadContract) RequiredGas(input []byte) uint64 {
	req, err := precompile.DecodeInput(input)
	if err != nil {
		return 0
	}
	return precompile.RequiredGas(len(req.Keys))
}

func (c *l1sloadContract) Run(input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	// The EVM has already charged RequiredGas, so the handler's own gas check always passes.
	out, _, err := c.handler.Run(ctx, input, c.RequiredGas(input), c.state)
	return out, err
}

// Precompiles returns a copy of base with contract registered at the L1SLOAD address.
// It never replaces an existing precompile.
func Precompiles(base map[common.Address]vm.PrecompiledContract, contract vm.PrecompiledContract) (map[common.Address]vm.PrecompiledContract, error) {
	if _, ok := base[precompile.Address]; ok {
		return nil, fmt.Errorf("precompile already registered at %s", precompile.Address)
	}
	out := make(map[common.Address]vm.PrecompiledContract, len(base)+1)
	for addr, p := range base {
		out[addr] = p
	}
	out[precompile.Address] = contract
	return out, nil
}
