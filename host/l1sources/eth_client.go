// Package l1sources provides the L1 side of L1SLOAD: a JSON-RPC client reading L1 account storage,
// a retrying wrapper, and the concurrent batch reader the precompile blocks on.
package l1sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum-optimism/optimism/op-service/sources/caching"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/0xurb/l1sload/host/metrics"
	"github.com/0xurb/l1sload/precompile"
)

type EthClientConfig struct {
	// limit concurrent requests, applies to the source as a whole
	MaxConcurrentRequests int

	// Number of pinned storage values to cache
	StorageCacheSize int
	// Number of block headers to cache
	HeadersCacheSize int

	// If the RPC is untrusted, every storage value is fetched with eth_getProof
	// and verified against the state root of the block it was read at.
	TrustRPC bool
}

func (c *EthClientConfig) Check() error {
	if c.StorageCacheSize < 0 {
		return fmt.Errorf("invalid storage cache size: %d", c.StorageCacheSize)
	}
	if c.HeadersCacheSize < 0 {
		return fmt.Errorf("invalid headers cache size: %d", c.HeadersCacheSize)
	}
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("expected at least 1 concurrent request, but max is %d", c.MaxConcurrentRequests)
	}
	return nil
}

type storageKey struct {
	block   uint64
	address common.Address
	slot    common.Hash
}

// EthClient reads L1 storage over JSON-RPC. Values read at a pinned block are cached;
// reads at "latest" never are.
type EthClient struct {
	client client.RPC

	trustRPC bool

	log     log.Logger
	metrics metrics.Metricer

	// cache storage values of pinned reads
	// (block, address, slot) -> value
	storageCache *caching.LRUCache[storageKey, common.Hash]

	// cache block headers by number, only used for proof verification
	headersCache *caching.LRUCache[uint64, *types.Header]
}

var _ L1Source = (*EthClient)(nil)

// NewEthClient returns an [EthClient] wrapping an RPC. The RPC is wrapped with a limiter
// bounding the number of concurrent requests across all callers.
func NewEthClient(rpc client.RPC, log log.Logger, m metrics.Metricer, config *EthClientConfig) (*EthClient, error) {
	if err := config.Check(); err != nil {
		return nil, fmt.Errorf("bad config, cannot create L1 source: %w", err)
	}
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &EthClient{
		client:       LimitRPC(rpc, config.MaxConcurrentRequests),
		trustRPC:     config.TrustRPC,
		log:          log,
		metrics:      m,
		storageCache: caching.NewLRUCache[storageKey, common.Hash](m, "storage", max(config.StorageCacheSize, 1)),
		headersCache: caching.NewLRUCache[uint64, *types.Header](m, "headers", max(config.HeadersCacheSize, 1)),
	}, nil
}

func (s *EthClient) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := s.client.CallContext(ctx, result, method, args...)
	s.metrics.RecordL1Request(method, time.Since(start), err)
	return err
}

// BlockNumber returns the number of the latest L1 block.
func (s *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	var number hexutil.Uint64
	if err := s.call(ctx, &number, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(number), nil
}

// HeaderByPin fetches the header of the pinned block, or of the latest block when unpinned.
func (s *EthClient) HeaderByPin(ctx context.Context, pin precompile.BlockPin) (*types.Header, error) {
	number, pinned := pin.Number()
	if pinned {
		if header, ok := s.headersCache.Get(number); ok {
			return header, nil
		}
	}
	var raw json.RawMessage
	if err := s.call(ctx, &raw, "eth_getBlockByNumber", pin.Arg(), false); err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ethereum.NotFound
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if pinned && header.Number.Uint64() != number {
		return nil, fmt.Errorf("expected block number %d but got block %d", number, header.Number.Uint64())
	}
	// can't cache by label, only by the number it resolved to
	s.headersCache.Add(header.Number.Uint64(), header)
	return header, nil
}

// decodeHeader decodes a block header and checks that it hashes to the hash the RPC claims for it.
func decodeHeader(raw json.RawMessage) (*types.Header, error) {
	var header types.Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	var claimed struct {
		Hash *common.Hash `json:"hash"`
	}
	if err := json.Unmarshal(raw, &claimed); err != nil {
		return nil, fmt.Errorf("failed to decode header hash: %w", err)
	}
	if claimed.Hash == nil {
		return nil, fmt.Errorf("header of block %d has no hash", header.Number)
	}
	if computed := header.Hash(); computed != *claimed.Hash {
		return nil, fmt.Errorf("failed to verify block hash: computed %s but RPC said %s", computed, *claimed.Hash)
	}
	return &header, nil
}

// GetProof returns an account proof result with storage proofs for the requested keys.
// The retrieval sanity-checks that a proof is present for every key, but does not verify the result.
// Call accountResult.Verify(stateRoot) to verify it.
func (s *EthClient) GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockTag string) (*AccountResult, error) {
	var getProofResponse *AccountResult
	if err := s.call(ctx, &getProofResponse, "eth_getProof", address, storage, blockTag); err != nil {
		return nil, err
	}
	if getProofResponse == nil {
		return nil, ethereum.NotFound
	}
	if len(getProofResponse.StorageProof) != len(storage) {
		return nil, fmt.Errorf("missing storage proof data, got %d proof entries but requested %d storage keys", len(getProofResponse.StorageProof), len(storage))
	}
	for i, key := range storage {
		if key != getProofResponse.StorageProof[i].Key {
			return nil, fmt.Errorf("unexpected storage proof key difference for entry %d: got %s but requested %s", i, getProofResponse.StorageProof[i].Key, key)
		}
	}
	return getProofResponse, nil
}

// GetStorageAt returns the storage value at the given address and slot, without verifying it.
func (s *EthClient) GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockTag string) (common.Hash, error) {
	var out common.Hash
	err := s.call(ctx, &out, "eth_getStorageAt", address, storageSlot, blockTag)
	return out, err
}

// ReadStorageAt reads a single storage value and verifies it against the state root of the block it was read at.
func (s *EthClient) ReadStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, pin precompile.BlockPin) (common.Hash, error) {
	header, err := s.HeaderByPin(ctx, pin)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to retrieve state root of block %s: %w", pin, err)
	}
	// read at the resolved number so that proof and root belong to the same block
	blockTag := hexutil.EncodeBig(header.Number)
	result, err := s.GetProof(ctx, address, []common.Hash{storageSlot}, blockTag)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch proof of storage slot %s at block %s: %w", storageSlot, blockTag, err)
	}
	if err := result.Verify(header.Root); err != nil {
		return common.Hash{}, fmt.Errorf("failed to verify retrieved proof against state root: %w", err)
	}
	return common.BigToHash(result.StorageProof[0].Value.ToInt()), nil
}

// StorageAt reads one storage slot at the pinned block, with or without proof depending on TrustRPC.
func (s *EthClient) StorageAt(ctx context.Context, address common.Address, slot common.Hash, pin precompile.BlockPin) (common.Hash, error) {
	number, pinned := pin.Number()
	key := storageKey{block: number, address: address, slot: slot}
	if pinned {
		if value, ok := s.storageCache.Get(key); ok {
			return value, nil
		}
	}
	var value common.Hash
	var err error
	if s.trustRPC {
		value, err = s.GetStorageAt(ctx, address, slot, pin.Arg())
	} else {
		value, err = s.ReadStorageAt(ctx, address, slot, pin)
	}
	if err != nil {
		return common.Hash{}, err
	}
	if pinned {
		s.storageCache.Add(key, value)
	}
	return value, nil
}

// PinLatest reports whether unpinned reads should be pinned to one block before fetching.
// Verified reads each resolve "latest" separately, so a batch of them is pinned up front.
func (s *EthClient) PinLatest() bool {
	return !s.trustRPC
}

func (s *EthClient) Close() {
	s.client.Close()
}
