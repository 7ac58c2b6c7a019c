package vault

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVaultScope_Vault_StateOf(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	t.Run("voting before consensus", func(t *testing.T) {
		t.Parallel()
		v := &Vault{ConsensusReached: false, UnlockAt: uint64(now.Unix()) + 3600}
		require.Equal(t, StateVoting, StateOf(v, now))
	})

	t.Run("waiting between consensus and unlock", func(t *testing.T) {
		t.Parallel()
		v := &Vault{ConsensusReached: true, UnlockAt: uint64(now.Unix()) + 3600}
		require.Equal(t, StateConsensusWaiting, StateOf(v, now))
	})

	t.Run("withdrawable after unlock", func(t *testing.T) {
		t.Parallel()
		v := &Vault{ConsensusReached: true, UnlockAt: uint64(now.Unix()) - 1}
		require.Equal(t, StateWithdrawable, StateOf(v, now))
	})

	t.Run("withdrawable with no unlock time", func(t *testing.T) {
		t.Parallel()
		v := &Vault{ConsensusReached: true, UnlockAt: 0}
		require.Equal(t, StateWithdrawable, StateOf(v, now))
	})

	t.Run("waiting while the unlock time is unreadable", func(t *testing.T) {
		t.Parallel()
		v := &Vault{ConsensusReached: true, UnlockAt: 0, UnlockAtUnavailable: true}
		require.Equal(t, StateConsensusWaiting, StateOf(v, now))
	})
}

func TestVaultScope_Vault_Eligibility(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	t.Run("open vault with principal", func(t *testing.T) {
		t.Parallel()

		v := &Vault{ConsensusReached: false}
		pos := &UserPosition{Principal: big.NewInt(100)}

		e := EligibilityOf(v, pos, now)
		require.True(t, e.CanDeposit)
		require.True(t, e.CanVote)
		require.True(t, e.CanDonate)
		require.False(t, e.CanWithdraw)
		require.Equal(t, ReasonConsensusPending, e.BlockedReason)
	})

	t.Run("consensus reached but still locked", func(t *testing.T) {
		t.Parallel()

		v := &Vault{ConsensusReached: true, UnlockAt: uint64(now.Unix()) + 3600}
		pos := &UserPosition{Principal: big.NewInt(100)}

		e := EligibilityOf(v, pos, now)
		require.False(t, e.CanDeposit)
		require.False(t, e.CanVote)
		require.False(t, e.CanWithdraw)
		require.Equal(t, ReasonWaitingUnlock, e.BlockedReason)
	})

	t.Run("consensus reached with zero unlock time", func(t *testing.T) {
		t.Parallel()

		v := &Vault{ConsensusReached: true, UnlockAt: 0}
		pos := &UserPosition{Principal: big.NewInt(100)}

		e := EligibilityOf(v, pos, now)
		require.True(t, e.CanWithdraw)
		require.Empty(t, e.BlockedReason)
	})

	t.Run("already voted blocks voting in any pre-withdraw state", func(t *testing.T) {
		t.Parallel()

		pos := &UserPosition{Principal: big.NewInt(100), HasVoted: true}

		voting := EligibilityOf(&Vault{ConsensusReached: false}, pos, now)
		require.False(t, voting.CanVote)
		require.Equal(t, ReasonAlreadyVoted, voting.BlockedReason)

		waiting := EligibilityOf(&Vault{ConsensusReached: true, UnlockAt: uint64(now.Unix()) + 3600}, pos, now)
		require.False(t, waiting.CanVote)
		require.Equal(t, ReasonAlreadyVoted, waiting.BlockedReason)
	})

	t.Run("unreadable unlock time never allows withdrawal", func(t *testing.T) {
		t.Parallel()

		v := &Vault{ConsensusReached: true, UnlockAtUnavailable: true}
		pos := &UserPosition{Principal: big.NewInt(100)}

		e := EligibilityOf(v, pos, now)
		require.False(t, e.CanWithdraw)
		require.Equal(t, ReasonWaitingUnlock, e.BlockedReason)
	})

	t.Run("no principal blocks voting", func(t *testing.T) {
		t.Parallel()

		v := &Vault{ConsensusReached: false}

		e := EligibilityOf(v, &UserPosition{Principal: big.NewInt(0)}, now)
		require.False(t, e.CanVote)
		require.True(t, e.CanDeposit, "deposits stay open without principal")
		require.Equal(t, ReasonNoPrincipal, e.BlockedReason)

		e = EligibilityOf(v, nil, now)
		require.False(t, e.CanVote)
		require.Equal(t, ReasonNoPrincipal, e.BlockedReason)
	})
}
