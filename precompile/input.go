package precompile

import (
	"github.com/ethereum/go-ethereum/common"
)

// MaxKeys is the maximum number of storage slots a single call may read.
const MaxKeys = 5

const keyLength = common.HashLength

// Request is a decoded L1SLOAD call: one L1 account and the slots to read from it.
type Request struct {
	Address common.Address
	Keys    []common.Hash
}

// DecodeInput parses the call data `address ++ key_1 ++ ... ++ key_n`.
// The returned request owns its memory and does not alias input.
func DecodeInput(input []byte) (*Request, error) {
	n := len(input) / keyLength
	if n == 0 || n > MaxKeys {
		return nil, ErrInvalidInput
	}
	if len(input) != common.AddressLength+keyLength*n {
		return nil, ErrInvalidInput
	}

	req := &Request{
		Address: common.BytesToAddress(input[:common.AddressLength]),
		Keys:    make([]common.Hash, n),
	}
	for i := range req.Keys {
		start := common.AddressLength + keyLength*i
		req.Keys[i] = common.BytesToHash(input[start : start+keyLength])
	}
	return req, nil
}

// EncodeInput is the inverse of DecodeInput. It does not validate the key count.
func EncodeInput(address common.Address, keys ...common.Hash) []byte {
	out := make([]byte, 0, common.AddressLength+keyLength*len(keys))
	out = append(out, address.Bytes()...)
	for _, key := range keys {
		out = append(out, key.Bytes()...)
	}
	return out
}
