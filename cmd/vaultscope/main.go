package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/consensuslabs/vaultscope/pkg/chain"
	"github.com/consensuslabs/vaultscope/pkg/logger"
	"github.com/consensuslabs/vaultscope/pkg/metrics"
	"github.com/consensuslabs/vaultscope/pkg/price"
	"github.com/consensuslabs/vaultscope/pkg/server"
	"github.com/consensuslabs/vaultscope/pkg/token"
	"github.com/consensuslabs/vaultscope/pkg/vault"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort .env for local development.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	rpcURLFlag := flag.String("rpc-url", "", "EVM JSON-RPC endpoint (or set RPC_URL env var)")
	factoryFlag := flag.String("factory-address", "", "VaultFactory contract address (or set FACTORY_ADDRESS env var)")
	multicallFlag := flag.String("multicall-address", chain.Multicall3.Hex(), "Multicall3 contract address (or set MULTICALL_ADDRESS env var)")
	chainSlugFlag := flag.String("chain-slug", "", "chain identifier for the price API, e.g. bsc (or set CHAIN_SLUG env var)")
	priceAPIFlag := flag.String("price-api-url", "https://api.dexscreener.com", "trading pair API base URL (or set PRICE_API_URL env var)")
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address (or set LISTEN_ADDR env var)")
	refreshIntervalFlag := flag.Duration("refresh-interval", vault.DefaultRefreshInterval, "price refresh interval")
	maxVaultsFlag := flag.Int("max-vaults", 0, "cap on discovered vaults, 0 for no cap")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("FACTORY_ADDRESS"); env != "" {
		*factoryFlag = env
	}
	if env := os.Getenv("MULTICALL_ADDRESS"); env != "" {
		*multicallFlag = env
	}
	if env := os.Getenv("CHAIN_SLUG"); env != "" {
		*chainSlugFlag = env
	}
	if env := os.Getenv("PRICE_API_URL"); env != "" {
		*priceAPIFlag = env
	}
	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}

	if *rpcURLFlag == "" {
		return fmt.Errorf("--rpc-url is required")
	}
	if !common.IsHexAddress(*factoryFlag) {
		return fmt.Errorf("--factory-address is required and must be a hex address")
	}
	if !common.IsHexAddress(*multicallFlag) {
		return fmt.Errorf("--multicall-address must be a hex address")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	eth, err := ethclient.DialContext(ctx, *rpcURLFlag)
	if err != nil {
		return fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	defer eth.Close()

	multicall, err := chain.NewMulticallReader(eth, common.HexToAddress(*multicallFlag))
	if err != nil {
		return err
	}
	caller := chain.NewFallbackReader(log, multicall, eth)

	tokens, err := token.NewResolver(log, caller)
	if err != nil {
		return err
	}

	aggregator, err := vault.NewAggregator(log, caller, common.HexToAddress(*factoryFlag), tokens)
	if err != nil {
		return err
	}

	quotes, err := price.NewCache(price.CacheConfig{
		Logger: log,
		Source: price.NewHTTPSource(*priceAPIFlag, *chainSlugFlag, nil),
	})
	if err != nil {
		return err
	}

	view, err := vault.NewView(vault.ViewConfig{
		Logger:          log,
		Source:          aggregator,
		Quotes:          quotes,
		RefreshInterval: *refreshIntervalFlag,
		MaxVaults:       *maxVaultsFlag,
	})
	if err != nil {
		return err
	}
	view.Start(ctx)

	srv, err := server.New(server.Config{
		Logger:     log,
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		View:   view,
		Source: aggregator,
		Quotes: quotes,
	})
	if err != nil {
		return err
	}

	log.Info("vaultscope starting",
		"version", version,
		"factory", common.HexToAddress(*factoryFlag).Hex(),
		"refresh_interval", refreshIntervalFlag.String(),
		"listen_addr", *listenAddrFlag)

	readyCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := view.WaitReady(readyCtx); err != nil {
		log.Warn("vault view not ready yet, serving anyway", "error", err)
	}

	return srv.Run(ctx)
}
