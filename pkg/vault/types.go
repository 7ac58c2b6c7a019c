// Package vault aggregates on-chain ConsensusVault state into snapshot
// records: vault discovery, batched field reads, reward accounting and action
// eligibility, plus the refresh view that keeps an in-memory snapshot current.
package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is one on-chain vault instance. Records are replaced wholesale on
// each aggregation pass; consumers never observe a partially updated record.
// Amount fields are integers in the deposit token's smallest unit.
type Vault struct {
	Address      common.Address
	DepositToken common.Address
	Name         string

	TokenSymbol   string
	TokenDecimals uint8

	TotalPrincipal  *big.Int
	TotalVoteWeight *big.Int
	TotalDonations  *big.Int

	ConsensusReached bool

	// UnlockAt is the withdrawal unlock timestamp; zero means no timed lock
	// was set. When the read fails UnlockAtUnavailable is set instead of
	// fabricating a zero, and the vault is treated as still locked until a
	// later pass reads the real value.
	UnlockAt            uint64
	UnlockAtUnavailable bool

	ParticipantCount uint64

	// ContractTokenBalance is the token balance actually held by the vault
	// contract (principal plus undistributed donations). Valuation uses it
	// instead of TotalPrincipal alone. When the balanceOf read fails it is
	// set to TotalPrincipal, which under-reports after donations; the
	// behavior is kept as-is rather than guessed around.
	ContractTokenBalance *big.Int
}

// DisplayName falls back to the token symbol when the vault has no name.
func (v *Vault) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.TokenSymbol + " Vault"
}

// UserPosition is one (vault, user) pair, recomputed on demand and never
// persisted. AccRewardPerShare is the global accumulator value read in the
// same batch as RewardDebt; PendingReward is derived from the two.
type UserPosition struct {
	Vault common.Address
	User  common.Address

	Principal         *big.Int
	RewardDebt        *big.Int
	HasVoted          bool
	AccRewardPerShare *big.Int

	PendingReward *big.Int

	// Stale is set when the reward inputs were observed across mismatched
	// chain states (the subtraction went negative).
	Stale bool
}
