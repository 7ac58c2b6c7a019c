package vault

import (
	"errors"
	"fmt"
	"math/big"
)

// FormulaVersion locks the replicated reward formula to the contract's
// current fixed-point scheme. A change to the on-chain formula must bump this
// constant together with the code below, never be inferred at runtime.
const FormulaVersion = 1

// Precision is the contract's fixed-point scale for accRewardPerShare. It is
// a cross-system constant shared with the on-chain code, not a tuning knob.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// ErrStaleRead reports that two reads that should have been atomic were
// observed at different chain heights. The computed value is still returned
// so callers can inspect it; it must not be displayed as a real reward.
var ErrStaleRead = errors.New("vault: reward inputs read across mismatched chain states")

// PendingReward replicates the contract's pending reward computation with
// exact integer arithmetic: (principal * accRewardPerShare) / precision -
// rewardDebt, with truncating division and multiply before divide. Nil inputs
// count as zero. A negative result is returned as-is together with
// ErrStaleRead, never clamped.
func PendingReward(principal, rewardDebt, accRewardPerShare, precision *big.Int) (*big.Int, error) {
	if precision == nil || precision.Sign() <= 0 {
		return nil, fmt.Errorf("precision must be positive, got %v", precision)
	}
	if principal == nil {
		principal = new(big.Int)
	}
	if rewardDebt == nil {
		rewardDebt = new(big.Int)
	}
	if accRewardPerShare == nil {
		accRewardPerShare = new(big.Int)
	}

	accrued := new(big.Int).Mul(principal, accRewardPerShare)
	accrued.Quo(accrued, precision)
	pending := accrued.Sub(accrued, rewardDebt)

	if pending.Sign() < 0 {
		return pending, ErrStaleRead
	}
	return pending, nil
}
