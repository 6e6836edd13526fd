// Package host wires the L1SLOAD precompile to live L1 and L2 endpoints.
package host

import (
	"context"
	"fmt"
	"math/big"
	"net"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/0xurb/l1sload/host/config"
	"github.com/0xurb/l1sload/host/l1sources"
	"github.com/0xurb/l1sload/host/l2state"
	"github.com/0xurb/l1sload/host/metrics"
	"github.com/0xurb/l1sload/precompile"
)

// Host owns the L1 and L2 connections behind a precompile instance.
type Host struct {
	logger     log.Logger
	cfg        *config.Config
	l1         *l1sources.EthClient
	l2         *rpc.Client
	precompile *precompile.L1SLoad
	state      precompile.StateReader
	metricsSrv *httputil.HTTPServer
}

func dial(ctx context.Context, cfg *config.Config, url string) (*rpc.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	return rpc.DialContext(dialCtx, url)
}

func New(ctx context.Context, logger log.Logger, m metrics.Metricer, cfg *config.Config) (*Host, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	l1RPC, err := dial(ctx, cfg, cfg.L1URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial L1 RPC %s: %w", cfg.L1URL, err)
	}
	l1, err := l1sources.NewEthClient(client.NewBaseRPCClient(l1RPC), logger, m, cfg.L1EthClientConfig)
	if err != nil {
		l1RPC.Close()
		return nil, fmt.Errorf("failed to create L1 client: %w", err)
	}
	source := l1sources.NewRetryingL1Source(logger, l1, cfg.L1RetryAttempts)
	reader := l1sources.NewBatchReader(logger, source, m, l1.PinLatest())

	h := &Host{
		logger:     logger,
		cfg:        cfg,
		l1:         l1,
		precompile: precompile.New(logger, reader),
	}

	switch {
	case cfg.L2URL != "":
		l2RPC, err := dial(ctx, cfg, cfg.L2URL)
		if err != nil {
			l1.Close()
			return nil, fmt.Errorf("failed to dial L2 RPC %s: %w", cfg.L2URL, err)
		}
		var block *big.Int
		if cfg.L2Block != nil {
			block = new(big.Int).SetUint64(*cfg.L2Block)
		}
		h.l2 = l2RPC
		h.state = l2state.NewReader(ethclient.NewClient(l2RPC), block, cfg.CallTimeout)
	case cfg.L1Block != nil:
		h.state = l2state.PinnedState(*cfg.L1Block)
	default:
		// an empty L1Block slot reads latest
		h.state = l2state.FixedState{}
	}
	if err := h.initMetricsServer(&cfg.MetricsConfig, m); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Host) initMetricsServer(cfg *opmetrics.CLIConfig, m metrics.Metricer) error {
	if !cfg.Enabled {
		return nil
	}
	h.logger.Debug("Starting metrics server", "addr", cfg.ListenAddr, "port", cfg.ListenPort)
	rm, ok := m.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", m)
	}
	metricsSrv, err := opmetrics.StartServer(rm.Registry(), cfg.ListenAddr, cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	h.logger.Info("Started metrics server", "addr", metricsSrv.Addr())
	h.metricsSrv = metricsSrv
	return nil
}

// MetricsAddr returns the address the metrics server listens on, or nil when it is disabled.
func (h *Host) MetricsAddr() net.Addr {
	if h.metricsSrv == nil {
		return nil
	}
	return h.metricsSrv.Addr()
}

// Precompile returns the handler, for registering with an EVM through engineapi.
func (h *Host) Precompile() *precompile.L1SLoad {
	return h.precompile
}

type Result struct {
	Output  []byte
	Values  []common.Hash
	GasUsed uint64
}

// Call runs a single L1SLOAD invocation reading keys of address.
func (h *Host) Call(ctx context.Context, address common.Address, keys []common.Hash, gasLimit uint64) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CallTimeout)
	defer cancel()
	out, gasUsed, err := h.precompile.Run(ctx, precompile.EncodeInput(address, keys...), gasLimit, h.state)
	if err != nil {
		return nil, err
	}
	values, err := precompile.DecodeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return &Result{Output: out, Values: values, GasUsed: gasUsed}, nil
}

func (h *Host) Close() {
	if h.metricsSrv != nil {
		if err := h.metricsSrv.Stop(context.Background()); err != nil {
			h.logger.Error("Failed to stop metrics server", "err", err)
		}
	}
	h.l1.Close()
	if h.l2 != nil {
		h.l2.Close()
	}
}
