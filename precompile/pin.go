package precompile

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum-optimism/optimism/op-service/predeploys"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// L1BlockSlot is the slot of the L1Block system contract holding the latest L1 block number known to L2.
var L1BlockSlot = common.Hash{}

// StateReader reads L2 account storage.
type StateReader interface {
	GetState(address common.Address, slot common.Hash) (common.Hash, error)
}

// BlockPin selects the L1 block a read is evaluated against. The zero value reads "latest".
type BlockPin struct {
	number uint64
	pinned bool
}

// Latest is the unpinned selector.
var Latest = BlockPin{}

// PinAt pins reads to the given L1 block number.
func PinAt(number uint64) BlockPin {
	return BlockPin{number: number, pinned: true}
}

// Number returns the pinned block number, and false if the pin is "latest".
func (p BlockPin) Number() (uint64, bool) {
	return p.number, p.pinned
}

// Arg translates the pin into a JSON-RPC block selector.
func (p BlockPin) Arg() string {
	if !p.pinned {
		return "latest"
	}
	return hexutil.EncodeUint64(p.number)
}

func (p BlockPin) String() string {
	if !p.pinned {
		return "latest"
	}
	return fmt.Sprintf("%d", p.number)
}

// ResolveBlockPin derives the L1 block to read from, using the L1 block number the L2 chain has recorded.
// It never fails: an unreadable or unpopulated system contract falls back to "latest".
func ResolveBlockPin(logger log.Logger, state StateReader) BlockPin {
	value, err := state.GetState(predeploys.L1BlockAddr, L1BlockSlot)
	if err != nil {
		logger.Error("Failed to read L1 block number, reading latest L1 state", "err", err)
		return Latest
	}
	number := binary.BigEndian.Uint64(value[common.HashLength-8:])
	if number == 0 {
		logger.Warn("L1 block number not recorded yet, reading latest L1 state")
		return Latest
	}
	return PinAt(number)
}
