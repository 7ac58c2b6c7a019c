package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/consensuslabs/vaultscope/pkg/chain"
	"github.com/consensuslabs/vaultscope/pkg/chain/abis"
	"github.com/consensuslabs/vaultscope/pkg/metrics"
	"github.com/consensuslabs/vaultscope/pkg/token"
)

// vaultFields are the per-vault detail reads, batched K at a time in vault
// order. Result slot for (vault i, field j) is i*len(vaultFields)+j.
var vaultFields = []string{
	"depositToken",
	"name",
	"totalPrincipal",
	"totalVoteWeight",
	"consensusReached",
	"unlockAt",
	"participantCount",
	"totalDonations",
}

// Aggregator turns factory discovery plus batched vault reads into Vault
// records. It holds no mutable state besides the token metadata cache inside
// the resolver, so Aggregate is idempotent for a fixed chain state.
type Aggregator struct {
	log    *slog.Logger
	caller chain.Caller
	tokens *token.Resolver

	factory    common.Address
	factoryABI *abi.ABI
	vaultABI   *abi.ABI
	erc20ABI   *abi.ABI
}

func NewAggregator(log *slog.Logger, caller chain.Caller, factory common.Address, tokens *token.Resolver) (*Aggregator, error) {
	factoryABI, err := abis.GetVaultFactoryABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load factory ABI: %w", err)
	}
	vaultABI, err := abis.GetConsensusVaultABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load vault ABI: %w", err)
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load ERC20 ABI: %w", err)
	}

	return &Aggregator{
		log:        log,
		caller:     caller,
		tokens:     tokens,
		factory:    factory,
		factoryABI: factoryABI,
		vaultABI:   vaultABI,
		erc20ABI:   erc20ABI,
	}, nil
}

// Aggregate discovers vaults and reads their full state. maxVaults caps the
// discovery result; 0 means no cap. A discovery or whole-batch failure
// returns an error, never an empty-but-successful list.
func (a *Aggregator) Aggregate(ctx context.Context, maxVaults int) ([]Vault, error) {
	addrs, err := a.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault discovery failed: %w", err)
	}
	if maxVaults > 0 && len(addrs) > maxVaults {
		addrs = addrs[:maxVaults]
	}
	if len(addrs) == 0 {
		return []Vault{}, nil
	}

	vaults, err := a.readDetails(ctx, addrs)
	if err != nil {
		return nil, err
	}

	tokenSet := make(map[common.Address]struct{})
	var distinct []common.Address
	for i := range vaults {
		t := vaults[i].DepositToken
		if _, seen := tokenSet[t]; !seen {
			tokenSet[t] = struct{}{}
			distinct = append(distinct, t)
		}
	}
	meta := a.tokens.ResolveAll(ctx, distinct)
	for i := range vaults {
		m := meta[vaults[i].DepositToken]
		vaults[i].TokenSymbol = m.Symbol
		vaults[i].TokenDecimals = m.Decimals
	}

	a.readBalances(ctx, vaults)
	return vaults, nil
}

// discover lists vault addresses from the factory: getAllVaults when the
// deployed factory supports it, otherwise count plus per-index enumeration.
func (a *Aggregator) discover(ctx context.Context) ([]common.Address, error) {
	allData, err := a.factoryABI.Pack("getAllVaults")
	if err != nil {
		return nil, err
	}
	results, err := a.caller.Execute(ctx, []chain.Call{
		{Target: a.factory, AllowFailure: true, CallData: allData},
	})
	if err != nil {
		return nil, err
	}
	if addrs, decodeErr := chain.DecodeAddresses(a.factoryABI, "getAllVaults", results[0]); decodeErr == nil {
		return addrs, nil
	}

	a.log.Debug("vault: getAllVaults unsupported, enumerating by index", "factory", a.factory.Hex())

	countData, err := a.factoryABI.Pack("getVaultsCount")
	if err != nil {
		return nil, err
	}
	results, err = a.caller.Execute(ctx, []chain.Call{
		{Target: a.factory, AllowFailure: false, CallData: countData},
	})
	if err != nil {
		return nil, err
	}
	count, err := chain.DecodeUint256(a.factoryABI, "getVaultsCount", results[0])
	if err != nil {
		return nil, fmt.Errorf("factory at %s answered neither getAllVaults nor getVaultsCount: %w", a.factory.Hex(), err)
	}
	if !count.IsUint64() || count.Uint64() == 0 {
		if count.Sign() == 0 {
			return []common.Address{}, nil
		}
		return nil, fmt.Errorf("implausible vault count %s", count.String())
	}

	n := int(count.Uint64())
	calls := make([]chain.Call, n)
	for i := 0; i < n; i++ {
		data, packErr := a.factoryABI.Pack("vaults", big.NewInt(int64(i)))
		if packErr != nil {
			return nil, packErr
		}
		calls[i] = chain.Call{Target: a.factory, AllowFailure: true, CallData: data}
	}
	results, err = a.caller.Execute(ctx, calls)
	if err != nil {
		return nil, err
	}

	addrs := make([]common.Address, 0, n)
	for i, res := range results {
		addr, decodeErr := chain.DecodeAddress(a.factoryABI, "vaults", res)
		if decodeErr != nil {
			a.log.Warn("vault: failed to enumerate vault index", "index", i, "error", decodeErr)
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// readDetails issues one flat batch of K field calls per vault. One field's
// decode failure keeps the vault with the documented default for that field;
// a vault whose every field failed is dropped.
func (a *Aggregator) readDetails(ctx context.Context, addrs []common.Address) ([]Vault, error) {
	k := len(vaultFields)
	calls := make([]chain.Call, 0, len(addrs)*k)
	for _, addr := range addrs {
		for _, field := range vaultFields {
			data, err := a.vaultABI.Pack(field)
			if err != nil {
				return nil, fmt.Errorf("failed to pack %s: %w", field, err)
			}
			calls = append(calls, chain.Call{Target: addr, AllowFailure: true, CallData: data})
		}
	}

	results, err := a.caller.Execute(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("vault detail batch failed: %w", err)
	}

	vaults := make([]Vault, 0, len(addrs))
	for i, addr := range addrs {
		slot := func(field int) chain.Result { return results[i*k+field] }

		succeeded := 0
		for j := 0; j < k; j++ {
			if slot(j).Success {
				succeeded++
			}
		}
		if succeeded == 0 {
			a.log.Warn("vault: every field read failed, dropping vault", "vault", addr.Hex())
			continue
		}

		depositToken, err := chain.DecodeAddress(a.vaultABI, "depositToken", slot(0))
		if err != nil {
			a.log.Warn("vault: depositToken unavailable", "vault", addr.Hex(), "error", err)
		}

		// unlockAt zero is a meaningful value (no timed lock), so a failed
		// read is flagged instead of defaulted; the vault stays locked.
		var unlockAt uint64
		unlockAtUnavailable := false
		if u, decodeErr := chain.DecodeUint256(a.vaultABI, "unlockAt", slot(5)); decodeErr != nil || !u.IsUint64() {
			a.log.Warn("vault: unlockAt unavailable, treating the lock as still pending",
				"vault", addr.Hex(), "error", decodeErr)
			unlockAtUnavailable = true
		} else {
			unlockAt = u.Uint64()
		}

		v := Vault{
			Address:             addr,
			DepositToken:        depositToken,
			Name:                chain.StringOrEmpty(a.vaultABI, "name", slot(1)),
			TotalPrincipal:      chain.Uint256OrZero(a.vaultABI, "totalPrincipal", slot(2)),
			TotalVoteWeight:     chain.Uint256OrZero(a.vaultABI, "totalVoteWeight", slot(3)),
			ConsensusReached:    chain.BoolOrFalse(a.vaultABI, "consensusReached", slot(4)),
			UnlockAt:            unlockAt,
			UnlockAtUnavailable: unlockAtUnavailable,
			ParticipantCount:    uint64OrZero(a.vaultABI, "participantCount", slot(6)),
			TotalDonations:      chain.Uint256OrZero(a.vaultABI, "totalDonations", slot(7)),
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

// readBalances fills ContractTokenBalance from one balanceOf batch. A failed
// slot falls back to TotalPrincipal, which is conservative after donations.
func (a *Aggregator) readBalances(ctx context.Context, vaults []Vault) {
	type pending struct{ vaultIdx, callIdx int }
	var pendings []pending
	var calls []chain.Call

	for i := range vaults {
		vaults[i].ContractTokenBalance = vaults[i].TotalPrincipal
		if vaults[i].DepositToken == (common.Address{}) {
			continue
		}
		data, err := a.erc20ABI.Pack("balanceOf", vaults[i].Address)
		if err != nil {
			continue
		}
		pendings = append(pendings, pending{vaultIdx: i, callIdx: len(calls)})
		calls = append(calls, chain.Call{Target: vaults[i].DepositToken, AllowFailure: true, CallData: data})
	}
	if len(calls) == 0 {
		return
	}

	results, err := a.caller.Execute(ctx, calls)
	if err != nil {
		a.log.Warn("vault: balanceOf batch failed, keeping principal fallback", "error", err)
		return
	}
	for _, p := range pendings {
		balance, decodeErr := chain.DecodeUint256(a.erc20ABI, "balanceOf", results[p.callIdx])
		if decodeErr != nil {
			a.log.Debug("vault: balanceOf unavailable, keeping principal fallback",
				"vault", vaults[p.vaultIdx].Address.Hex(), "error", decodeErr)
			continue
		}
		vaults[p.vaultIdx].ContractTokenBalance = balance
	}
}

// UserPosition reads userInfo and accRewardPerShare in the same batch so both
// observe the same chain height, then computes the pending reward locally.
func (a *Aggregator) UserPosition(ctx context.Context, vaultAddr, user common.Address) (*UserPosition, error) {
	userInfoData, err := a.vaultABI.Pack("userInfo", user)
	if err != nil {
		return nil, fmt.Errorf("failed to pack userInfo: %w", err)
	}
	accData, err := a.vaultABI.Pack("accRewardPerShare")
	if err != nil {
		return nil, fmt.Errorf("failed to pack accRewardPerShare: %w", err)
	}

	results, err := a.caller.Execute(ctx, []chain.Call{
		{Target: vaultAddr, AllowFailure: false, CallData: userInfoData},
		{Target: vaultAddr, AllowFailure: false, CallData: accData},
	})
	if err != nil {
		return nil, fmt.Errorf("user position batch failed: %w", err)
	}

	principal, rewardDebt, hasVoted, err := a.decodeUserInfo(results[0])
	if err != nil {
		return nil, err
	}
	acc, err := chain.DecodeUint256(a.vaultABI, "accRewardPerShare", results[1])
	if err != nil {
		return nil, err
	}

	pos := &UserPosition{
		Vault:             vaultAddr,
		User:              user,
		Principal:         principal,
		RewardDebt:        rewardDebt,
		HasVoted:          hasVoted,
		AccRewardPerShare: acc,
	}

	pending, err := PendingReward(principal, rewardDebt, acc, Precision)
	if err != nil {
		if !errors.Is(err, ErrStaleRead) {
			return nil, err
		}
		metrics.StaleReadsTotal.Inc()
		a.log.Warn("vault: stale reward inputs",
			"vault", vaultAddr.Hex(), "user", user.Hex(), "pending", pending.String())
		pos.Stale = true
	}
	pos.PendingReward = pending
	return pos, nil
}

func (a *Aggregator) decodeUserInfo(res chain.Result) (*big.Int, *big.Int, bool, error) {
	if !res.Success {
		return nil, nil, false, &chain.FieldDecodeError{Method: "userInfo", Err: chain.ErrUnavailable}
	}
	out, err := a.vaultABI.Unpack("userInfo", res.ReturnData)
	if err != nil {
		return nil, nil, false, &chain.FieldDecodeError{Method: "userInfo", Err: err}
	}
	if len(out) != 3 {
		return nil, nil, false, &chain.FieldDecodeError{Method: "userInfo", Err: fmt.Errorf("expected 3 outputs, got %d", len(out))}
	}
	principal, ok1 := out[0].(*big.Int)
	rewardDebt, ok2 := out[1].(*big.Int)
	hasVoted, ok3 := out[2].(bool)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil, false, &chain.FieldDecodeError{Method: "userInfo", Err: fmt.Errorf("unexpected output types %T %T %T", out[0], out[1], out[2])}
	}
	return principal, rewardDebt, hasVoted, nil
}

func uint64OrZero(contractABI *abi.ABI, method string, res chain.Result) uint64 {
	v, err := chain.DecodeUint256(contractABI, method, res)
	if err != nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
