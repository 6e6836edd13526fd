package precompile

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var outputArgs abi.Arguments

func init() {
	uint256Array, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	outputArgs = abi.Arguments{{Type: uint256Array}}
}

// EncodeOutput ABI-encodes the slot values as a single dynamic uint256[], in the given order.
func EncodeOutput(values []common.Hash) ([]byte, error) {
	words := make([]*big.Int, len(values))
	for i, v := range values {
		words[i] = v.Big()
	}
	return outputArgs.Pack(words)
}

// DecodeOutput is the inverse of EncodeOutput.
func DecodeOutput(output []byte) ([]common.Hash, error) {
	unpacked, err := outputArgs.UnpackValues(output)
	if err != nil {
		return nil, err
	}
	words, ok := unpacked[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", unpacked[0])
	}
	values := make([]common.Hash, len(words))
	for i, w := range words {
		values[i] = common.BigToHash(w)
	}
	return values, nil
}
