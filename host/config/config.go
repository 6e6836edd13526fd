package config

import (
	"errors"
	"fmt"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/urfave/cli/v2"

	"github.com/0xurb/l1sload/host/flags"
	"github.com/0xurb/l1sload/host/l1sources"
)

var (
	ErrMissingL1RPC       = errors.New("missing l1 rpc url")
	ErrInvalidRetries     = errors.New("l1 retry attempts must be at least 1")
	ErrInvalidCallTimeout = errors.New("call timeout must be positive")
	ErrConflictingPins    = errors.New("l1 block number cannot be combined with an l2 endpoint")
	ErrInvalidL1Block     = errors.New("l1 block number must be positive, omit it to read at latest")
	ErrInvalidDialTimeout = errors.New("dial timeout must be positive")
)

type Config struct {
	L1URL string
	// L1EthClientConfig configures the L1 storage source
	L1EthClientConfig *l1sources.EthClientConfig
	L1RetryAttempts   int
	// DialTimeout bounds connecting to both the L1 and L2 endpoints
	DialTimeout time.Duration

	// L2URL is optional. Without it the L1 block is taken from L1Block, or read at latest.
	L2URL   string
	L2Block *uint64
	L1Block *uint64

	CallTimeout time.Duration
	CPUProfile  string

	MetricsConfig opmetrics.CLIConfig
}

func (c *Config) Check() error {
	if c.L1URL == "" {
		return ErrMissingL1RPC
	}
	if c.L1EthClientConfig == nil {
		return errors.New("missing l1 client config")
	}
	if err := c.L1EthClientConfig.Check(); err != nil {
		return fmt.Errorf("invalid l1 client config: %w", err)
	}
	if c.L1RetryAttempts < 1 {
		return ErrInvalidRetries
	}
	if c.DialTimeout <= 0 {
		return ErrInvalidDialTimeout
	}
	if c.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	if c.L2URL != "" && c.L1Block != nil {
		return ErrConflictingPins
	}
	// block 0 is indistinguishable from an unpopulated L1Block slot
	if c.L1Block != nil && *c.L1Block == 0 {
		return ErrInvalidL1Block
	}
	if err := c.MetricsConfig.Check(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	return nil
}

// NewConfig creates a Config with all optional values set to the CLI default value
func NewConfig(l1URL string) *Config {
	return &Config{
		L1URL: l1URL,
		L1EthClientConfig: &l1sources.EthClientConfig{
			MaxConcurrentRequests: flags.L1RPCMaxConcurrency.Value,
			StorageCacheSize:      flags.L1CacheSize.Value,
			HeadersCacheSize:      flags.L1CacheSize.Value,
			TrustRPC:              flags.L1TrustRPC.Value,
		},
		L1RetryAttempts: flags.L1RetryAttempts.Value,
		DialTimeout:     flags.DialTimeout.Value,
		CallTimeout:     flags.CallTimeout.Value,
		MetricsConfig:   opmetrics.DefaultCLIConfig(),
	}
}

func NewConfigFromCLI(ctx *cli.Context) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, err
	}
	cfg := NewConfig(ctx.String(flags.L1NodeAddr.Name))
	cfg.L1EthClientConfig.TrustRPC = ctx.Bool(flags.L1TrustRPC.Name)
	cfg.L1EthClientConfig.MaxConcurrentRequests = ctx.Int(flags.L1RPCMaxConcurrency.Name)
	cfg.L1EthClientConfig.StorageCacheSize = ctx.Int(flags.L1CacheSize.Name)
	cfg.L1EthClientConfig.HeadersCacheSize = ctx.Int(flags.L1CacheSize.Name)
	cfg.L1RetryAttempts = ctx.Int(flags.L1RetryAttempts.Name)
	cfg.DialTimeout = ctx.Duration(flags.DialTimeout.Name)
	cfg.L2URL = ctx.String(flags.L2NodeAddr.Name)
	if ctx.IsSet(flags.L2BlockNumber.Name) {
		n := ctx.Uint64(flags.L2BlockNumber.Name)
		cfg.L2Block = &n
	}
	if ctx.IsSet(flags.L1BlockNumber.Name) {
		n := ctx.Uint64(flags.L1BlockNumber.Name)
		cfg.L1Block = &n
	}
	cfg.CallTimeout = ctx.Duration(flags.CallTimeout.Name)
	cfg.CPUProfile = ctx.String(flags.CPUProfile.Name)
	cfg.MetricsConfig = opmetrics.ReadCLIConfig(ctx)
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}
