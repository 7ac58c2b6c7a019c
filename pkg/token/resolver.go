// Package token resolves ERC20 metadata and converts between smallest-unit
// integer amounts and decimal strings.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/consensuslabs/vaultscope/pkg/chain"
	"github.com/consensuslabs/vaultscope/pkg/chain/abis"
)

const (
	// DefaultSymbol and DefaultDecimals are served (and cached) when a token
	// contract cannot be read. 18 is the overwhelmingly common ERC20 scale.
	DefaultSymbol   = "TOKEN"
	DefaultDecimals = uint8(18)
)

// Metadata is immutable once resolved; symbol and decimals do not change for
// the lifetime of a token contract.
type Metadata struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

func defaultMetadata(addr common.Address) Metadata {
	return Metadata{Address: addr, Symbol: DefaultSymbol, Decimals: DefaultDecimals}
}

// Resolver caches token metadata for the process lifetime. A per-address
// lookup failure is cached too, so a consistently broken token contract is
// asked exactly once. The cache is owned by the resolver instance; two
// resolvers (for example, one per chain network) never share entries.
type Resolver struct {
	log    *slog.Logger
	caller chain.Caller
	erc20  *abi.ABI

	mu    sync.RWMutex
	cache map[common.Address]Metadata
}

func NewResolver(log *slog.Logger, caller chain.Caller) (*Resolver, error) {
	erc20, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load ERC20 ABI: %w", err)
	}
	return &Resolver{
		log:    log,
		caller: caller,
		erc20:  erc20,
		cache:  make(map[common.Address]Metadata),
	}, nil
}

// Resolve returns the metadata for one token address.
func (r *Resolver) Resolve(ctx context.Context, addr common.Address) Metadata {
	got := r.ResolveAll(ctx, []common.Address{addr})
	return got[addr]
}

// ResolveAll resolves the distinct set of addresses, serving cached entries
// from memory and batching the rest into a single round trip. A transport
// failure of the whole batch yields defaults without caching them, so a
// transient outage does not pin wrong metadata for the process lifetime.
func (r *Resolver) ResolveAll(ctx context.Context, addrs []common.Address) map[common.Address]Metadata {
	out := make(map[common.Address]Metadata, len(addrs))

	var pending []common.Address
	r.mu.RLock()
	for _, addr := range addrs {
		if _, seen := out[addr]; seen {
			continue
		}
		if addr == (common.Address{}) {
			out[addr] = defaultMetadata(addr)
			continue
		}
		if meta, ok := r.cache[addr]; ok {
			out[addr] = meta
			continue
		}
		out[addr] = defaultMetadata(addr) // placeholder until resolved below
		pending = append(pending, addr)
	}
	r.mu.RUnlock()

	if len(pending) == 0 {
		return out
	}

	symbolData, err := r.erc20.Pack("symbol")
	if err != nil {
		return out
	}
	decimalsData, err := r.erc20.Pack("decimals")
	if err != nil {
		return out
	}

	calls := make([]chain.Call, 0, len(pending)*2)
	for _, addr := range pending {
		calls = append(calls,
			chain.Call{Target: addr, AllowFailure: true, CallData: symbolData},
			chain.Call{Target: addr, AllowFailure: true, CallData: decimalsData},
		)
	}

	results, err := r.caller.Execute(ctx, calls)
	if err != nil {
		r.log.Warn("token: metadata batch failed, serving defaults uncached",
			"tokens", len(pending), "error", err)
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, addr := range pending {
		meta := defaultMetadata(addr)

		symbol, symErr := chain.DecodeString(r.erc20, "symbol", results[i*2])
		if symErr == nil && symbol != "" {
			meta.Symbol = symbol
		}
		decimals, decErr := chain.DecodeUint8(r.erc20, "decimals", results[i*2+1])
		if decErr == nil {
			meta.Decimals = decimals
		}
		if symErr != nil || decErr != nil {
			r.log.Warn("token: metadata lookup failed, caching defaults",
				"token", addr.Hex(), "symbol_err", symErr, "decimals_err", decErr)
		}

		r.cache[addr] = meta
		out[addr] = meta
	}
	return out
}

// Cached reports whether metadata for addr has already been resolved.
func (r *Resolver) Cached(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[addr]
	return ok
}
