package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	service "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "L1SLOAD"

func prefixEnvVars(name string) []string {
	return service.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	L1NodeAddr = &cli.StringFlag{
		Name:    "l1",
		Usage:   "Address of L1 JSON-RPC endpoint to read storage from (eth namespace required)",
		EnvVars: prefixEnvVars("L1_RPC"),
	}
	L1TrustRPC = &cli.BoolFlag{
		Name:    "l1.trustrpc",
		Usage:   "Trust the L1 RPC and read storage with eth_getStorageAt. When disabled every value is read with eth_getProof and checked against the state root of a header fetched from the same RPC, which catches inconsistent responses but not a dishonest node",
		EnvVars: prefixEnvVars("L1_TRUST_RPC"),
		Value:   true,
	}
	L1RPCMaxConcurrency = &cli.IntFlag{
		Name:    "l1.max-concurrency",
		Usage:   "Maximum number of concurrent requests to the L1 RPC, across all calls",
		EnvVars: prefixEnvVars("L1_MAX_CONCURRENCY"),
		Value:   20,
	}
	L1CacheSize = &cli.IntFlag{
		Name:    "l1.cache-size",
		Usage:   "Number of storage values read at a pinned L1 block to keep cached",
		EnvVars: prefixEnvVars("L1_CACHE_SIZE"),
		Value:   1000,
	}
	L1RetryAttempts = &cli.IntFlag{
		Name:    "l1.retry-attempts",
		Usage:   "Number of attempts for a single L1 storage read before the call fails",
		EnvVars: prefixEnvVars("L1_RETRY_ATTEMPTS"),
		Value:   3,
	}
	DialTimeout = &cli.DurationFlag{
		Name:    "rpc.dial-timeout",
		Usage:   "Timeout for establishing the L1 and L2 RPC connections",
		EnvVars: prefixEnvVars("RPC_DIAL_TIMEOUT"),
		Value:   10 * time.Second,
	}
	L2NodeAddr = &cli.StringFlag{
		Name:    "l2",
		Usage:   "Address of L2 JSON-RPC endpoint to read the L1 block number known to L2 from. Optional",
		EnvVars: prefixEnvVars("L2_RPC"),
	}
	L2BlockNumber = &cli.Uint64Flag{
		Name:    "l2.blocknumber",
		Usage:   "L2 block to read the L1 block number at. Default is the latest L2 block",
		EnvVars: prefixEnvVars("L2_BLOCK_NUM"),
	}
	L1BlockNumber = &cli.Uint64Flag{
		Name:    "l1.blocknumber",
		Usage:   "L1 block to read at when no L2 endpoint is given. Default is the latest L1 block",
		EnvVars: prefixEnvVars("L1_BLOCK_NUM"),
	}
	CallTimeout = &cli.DurationFlag{
		Name:    "call-timeout",
		Usage:   "Maximum duration of a single L1SLOAD call",
		EnvVars: prefixEnvVars("CALL_TIMEOUT"),
		Value:   5 * time.Second,
	}
	CPUProfile = &cli.StringFlag{
		Name:    "pprof.cpu",
		Usage:   "Directory to write a CPU profile to. Profiling is disabled when empty",
		EnvVars: prefixEnvVars("PPROF_CPU"),
	}
)

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

var requiredFlags = []cli.Flag{
	L1NodeAddr,
}

var programFlags = []cli.Flag{
	L1TrustRPC,
	L1RPCMaxConcurrency,
	L1CacheSize,
	L1RetryAttempts,
	DialTimeout,
	L2NodeAddr,
	L2BlockNumber,
	L1BlockNumber,
	CallTimeout,
	CPUProfile,
}

func init() {
	Flags = append(Flags, oplog.CLIFlags(EnvVarPrefix)...)
	Flags = append(Flags, opmetrics.CLIFlags(EnvVarPrefix)...)
	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, programFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, flag := range requiredFlags {
		if !ctx.IsSet(flag.Names()[0]) {
			return fmt.Errorf("flag %s is required", flag.Names()[0])
		}
	}
	return nil
}
