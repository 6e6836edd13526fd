package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/0xurb/l1sload/host"
	"github.com/0xurb/l1sload/host/config"
	"github.com/0xurb/l1sload/host/flags"
	"github.com/0xurb/l1sload/host/metrics"
	"github.com/0xurb/l1sload/precompile"
)

var (
	AddressFlag = &cli.StringFlag{
		Name:     "address",
		Usage:    "L1 account to read storage of",
		Required: true,
	}
	KeysFlag = &cli.StringSliceFlag{
		Name:     "key",
		Usage:    "Storage slot to read, may be given up to 5 times",
		Required: true,
	}
	GasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit of the call",
		Value: precompile.RequiredGas(precompile.MaxKeys),
	}
)

var CallCommand = &cli.Command{
	Name:        "call",
	Usage:       "Run one L1SLOAD call against the configured endpoints",
	Description: "Reads the given storage slots of an L1 account the way the L1SLOAD precompile does, and prints the result as JSON.",
	Action:      Call,
	Flags:       []cli.Flag{AddressFlag, KeysFlag, GasFlag},
}

type callOutput struct {
	Address common.Address `json:"address"`
	Keys    []common.Hash  `json:"keys"`
	Values  []common.Hash  `json:"values"`
	GasUsed uint64         `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output"`
}

func parseKeys(raw []string) ([]common.Hash, error) {
	keys := make([]common.Hash, len(raw))
	for i, k := range raw {
		b, err := hexutil.Decode(k)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", k, err)
		}
		if len(b) > common.HashLength {
			return nil, fmt.Errorf("invalid key %q: longer than 32 bytes", k)
		}
		keys[i] = common.BytesToHash(b)
	}
	return keys, nil
}

func Call(ctx *cli.Context) error {
	logger := oplog.NewLogger(os.Stderr, oplog.ReadCLIConfig(ctx))
	cfg, err := config.NewConfigFromCLI(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.CPUProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.CPUProfile), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	if !common.IsHexAddress(ctx.String(AddressFlag.Name)) {
		return fmt.Errorf("invalid address %q", ctx.String(AddressFlag.Name))
	}
	address := common.HexToAddress(ctx.String(AddressFlag.Name))
	keys, err := parseKeys(ctx.StringSlice(KeysFlag.Name))
	if err != nil {
		return err
	}

	h, err := host.New(ctx.Context, logger, metrics.NewMetrics(opmetrics.NewRegistry()), cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	logger.Info("Reading L1 storage", "address", address, "keys", len(keys), "gas", ctx.Uint64(GasFlag.Name))
	res, err := h.Call(ctx.Context, address, keys, ctx.Uint64(GasFlag.Name))
	if err != nil {
		return fmt.Errorf("l1sload call failed: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(&callOutput{
		Address: address,
		Keys:    keys,
		Values:  res.Values,
		GasUsed: res.GasUsed,
		Output:  res.Output,
	})
}

func main() {
	app := cli.NewApp()
	app.Name = "l1sload"
	app.Usage = "Read L1 storage slots through the L1SLOAD precompile"
	app.Flags = flags.Flags
	app.Commands = []*cli.Command{CallCommand}

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "err", err)
	}
}
