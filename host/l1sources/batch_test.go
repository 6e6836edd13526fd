package l1sources

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/0xurb/l1sload/precompile"
)

// delayedSource answers each slot with its own latency, value = slot + 1.
type delayedSource struct {
	delays  map[common.Hash]time.Duration
	fail    map[common.Hash]error
	head    uint64
	heads   atomic.Int32
	mu      sync.Mutex
	pins    []precompile.BlockPin
	aborted atomic.Int32
}

func (s *delayedSource) StorageAt(ctx context.Context, _ common.Address, slot common.Hash, pin precompile.BlockPin) (common.Hash, error) {
	s.mu.Lock()
	s.pins = append(s.pins, pin)
	s.mu.Unlock()
	if err := s.fail[slot]; err != nil {
		return common.Hash{}, err
	}
	select {
	case <-time.After(s.delays[slot]):
	case <-ctx.Done():
		s.aborted.Add(1)
		return common.Hash{}, ctx.Err()
	}
	return common.BigToHash(new(big.Int).Add(slot.Big(), common.Big1)), nil
}

func (s *delayedSource) BlockNumber(context.Context) (uint64, error) {
	s.heads.Add(1)
	return s.head, nil
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			perm := make([]int, 0, n)
			perm = append(perm, p[:i]...)
			perm = append(perm, n-1)
			perm = append(perm, p[i:]...)
			out = append(out, perm)
		}
	}
	return out
}

func TestBatchReaderPreservesKeyOrder(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	keys := make([]common.Hash, precompile.MaxKeys)
	expected := make([]common.Hash, precompile.MaxKeys)
	for i := range keys {
		keys[i] = common.BigToHash(big.NewInt(int64(100 * (i + 1))))
		expected[i] = common.BigToHash(big.NewInt(int64(100*(i+1) + 1)))
	}

	perms := permutations(len(keys))
	require.Len(t, perms, 120)
	for _, perm := range perms {
		source := &delayedSource{delays: make(map[common.Hash]time.Duration)}
		for i, rank := range perm {
			source.delays[keys[i]] = time.Duration(rank) * time.Millisecond
		}
		reader := NewBatchReader(logger, source, nil, false)
		values, err := reader.ReadStorage(context.Background(), common.Address{0x01}, keys, precompile.PinAt(7))
		require.NoError(t, err)
		require.Equal(t, expected, values, "completion order %v", perm)
	}
}

func TestBatchReaderRunsKeysConcurrently(t *testing.T) {
	keys := make([]common.Hash, precompile.MaxKeys)
	source := &delayedSource{delays: make(map[common.Hash]time.Duration)}
	for i := range keys {
		keys[i] = common.BigToHash(big.NewInt(int64(i)))
		source.delays[keys[i]] = 200 * time.Millisecond
	}
	reader := NewBatchReader(testlog.Logger(t, log.LevelInfo), source, nil, false)
	start := time.Now()
	_, err := reader.ReadStorage(context.Background(), common.Address{}, keys, precompile.Latest)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 200*time.Millisecond*precompile.MaxKeys)
}

func TestBatchReaderFailsAsWhole(t *testing.T) {
	keys := []common.Hash{{0x01}, {0x02}, {0x03}}
	cause := errors.New("header not found")
	source := &delayedSource{
		delays: map[common.Hash]time.Duration{{0x01}: time.Minute, {0x03}: time.Minute},
		fail:   map[common.Hash]error{{0x02}: cause},
	}
	reader := NewBatchReader(testlog.Logger(t, log.LevelInfo), source, nil, false)
	values, err := reader.ReadStorage(context.Background(), common.Address{}, keys, precompile.PinAt(1))
	require.ErrorIs(t, err, cause)
	require.Nil(t, values)
	require.Equal(t, int32(2), source.aborted.Load(), "in-flight reads must be cancelled")
}

func TestBatchReaderCancellation(t *testing.T) {
	keys := []common.Hash{{0x01}, {0x02}}
	source := &delayedSource{delays: map[common.Hash]time.Duration{{0x01}: time.Minute, {0x02}: time.Minute}}
	reader := NewBatchReader(testlog.Logger(t, log.LevelInfo), source, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	values, err := reader.ReadStorage(ctx, common.Address{}, keys, precompile.Latest)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, values)
	require.Equal(t, int32(2), source.aborted.Load())
}

func TestBatchReaderPinLatest(t *testing.T) {
	keys := []common.Hash{{0x01}, {0x02}, {0x03}}
	source := &delayedSource{delays: map[common.Hash]time.Duration{}, head: 1234}

	reader := NewBatchReader(testlog.Logger(t, log.LevelInfo), source, nil, true)
	_, err := reader.ReadStorage(context.Background(), common.Address{}, keys, precompile.Latest)
	require.NoError(t, err)
	require.Equal(t, int32(1), source.heads.Load())
	for _, pin := range source.pins {
		require.Equal(t, precompile.PinAt(1234), pin)
	}

	// an explicit pin is never replaced
	source.pins = nil
	_, err = reader.ReadStorage(context.Background(), common.Address{}, keys, precompile.PinAt(5))
	require.NoError(t, err)
	require.Equal(t, int32(1), source.heads.Load())
	for _, pin := range source.pins {
		require.Equal(t, precompile.PinAt(5), pin)
	}
}

func TestBatchReaderWithPrecompile(t *testing.T) {
	keys := []common.Hash{{0x0a}, {0x0b}}
	source := &delayedSource{delays: map[common.Hash]time.Duration{{0x0a}: 5 * time.Millisecond}}
	logger := testlog.Logger(t, log.LevelDebug)
	p := precompile.New(logger, NewBatchReader(logger, source, nil, false))

	out, gasUsed, err := p.Run(context.Background(), precompile.EncodeInput(common.Address{}, keys...), precompile.RequiredGas(2), failingState{})
	require.NoError(t, err)
	require.Equal(t, precompile.RequiredGas(2), gasUsed)
	values, err := precompile.DecodeOutput(out)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.BigToHash(new(big.Int).Add(keys[0].Big(), common.Big1)), common.BigToHash(new(big.Int).Add(keys[1].Big(), common.Big1))}, values)
	require.Equal(t, []precompile.BlockPin{precompile.Latest, precompile.Latest}, source.pins)
}

type failingState struct{}

func (failingState) GetState(common.Address, common.Hash) (common.Hash, error) {
	return common.Hash{}, errors.New("no state")
}
