package precompile

import (
	"github.com/ethereum/go-ethereum/params"
)

const (
	// BaseGas is charged once per call.
	BaseGas uint64 = 2000
	// RPCCallGas is the surcharge for the eth_getStorageAt round trip behind every slot.
	RPCCallGas uint64 = 50
	// PerLoadGas is charged per requested slot.
	PerLoadGas = params.ColdSloadCostEIP2929 + RPCCallGas
)

// RequiredGas returns the cost of reading n slots.
func RequiredGas(n int) uint64 {
	return BaseGas + PerLoadGas*uint64(n)
}

// CheckGas returns the cost of reading n slots, or ErrOutOfGas if it exceeds gasLimit.
func CheckGas(n int, gasLimit uint64) (uint64, error) {
	cost := RequiredGas(n)
	if cost > gasLimit {
		return 0, ErrOutOfGas
	}
	return cost, nil
}
