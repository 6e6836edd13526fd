package l1sources

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
)

type StorageProofEntry struct {
	Key   common.Hash     `json:"key"`
	Value hexutil.Big     `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// AccountResult is the eth_getProof response.
type AccountResult struct {
	AccountProof []hexutil.Bytes `json:"accountProof"`

	Address     common.Address `json:"address"`
	Balance     *hexutil.Big   `json:"balance"`
	CodeHash    common.Hash    `json:"codeHash"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	StorageHash common.Hash    `json:"storageHash"`

	StorageProof []StorageProofEntry `json:"storageProof"`
}

func proofDB(proof []hexutil.Bytes) *memorydb.Database {
	db := memorydb.New()
	for _, node := range proof {
		_ = db.Put(crypto.Keccak256(node), node)
	}
	return db
}

// Verify checks the account proof against stateRoot and every storage proof against the proven storage root.
func (res *AccountResult) Verify(stateRoot common.Hash) error {
	if res.Balance == nil {
		return fmt.Errorf("missing balance of account %s", res.Address)
	}
	balance, overflow := uint256.FromBig(res.Balance.ToInt())
	if overflow {
		return fmt.Errorf("balance of account %s overflows", res.Address)
	}
	accountProofValue, err := trie.VerifyProof(stateRoot, crypto.Keccak256(res.Address[:]), proofDB(res.AccountProof))
	if err != nil {
		return fmt.Errorf("failed to verify account value with key %s (path %x) in account trie %s: %w", res.Address, crypto.Keccak256(res.Address[:]), stateRoot, err)
	}
	if len(accountProofValue) == 0 {
		// an absent account has empty storage
		if res.StorageHash != types.EmptyRootHash && res.StorageHash != (common.Hash{}) {
			return fmt.Errorf("account %s is absent but claims storage root %s", res.Address, res.StorageHash)
		}
	} else {
		accountClaimed := types.StateAccount{
			Nonce:    uint64(res.Nonce),
			Balance:  balance,
			Root:     res.StorageHash,
			CodeHash: res.CodeHash[:],
		}
		accountClaimedValue, err := rlp.EncodeToBytes(&accountClaimed)
		if err != nil {
			return fmt.Errorf("failed to encode account from retrieved values: %w", err)
		}
		if !bytes.Equal(accountClaimedValue, accountProofValue) {
			return fmt.Errorf("L1 RPC is tricking us, account proof does not match provided deserialized values:\n"+
				"  claimed: %x\n"+
				"  proof:   %x", accountClaimedValue, accountProofValue)
		}
	}

	if len(accountProofValue) == 0 || res.StorageHash == types.EmptyRootHash {
		for i, entry := range res.StorageProof {
			if entry.Value.ToInt().Sign() != 0 {
				return fmt.Errorf("storage of account %s is empty but entry %d claims value %s", res.Address, i, entry.Value.String())
			}
		}
		return nil
	}
	for i, entry := range res.StorageProof {
		value, err := trie.VerifyProof(res.StorageHash, crypto.Keccak256(entry.Key[:]), proofDB(entry.Proof))
		if err != nil {
			return fmt.Errorf("failed to verify storage value %d with key %s in storage trie %s: %w", i, entry.Key, res.StorageHash, err)
		}
		var claimed []byte
		if v := entry.Value.ToInt(); v.Sign() != 0 {
			claimed, err = rlp.EncodeToBytes(v.Bytes())
			if err != nil {
				return fmt.Errorf("failed to encode storage value %d: %w", i, err)
			}
		}
		if !bytes.Equal(claimed, value) {
			return fmt.Errorf("L1 RPC is tricking us, storage proof %d for key %s does not match value %s", i, entry.Key, entry.Value.String())
		}
	}
	return nil
}
