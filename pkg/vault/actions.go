package vault

import (
	"time"
)

// State is derived from chain truth on every query, never stored. From the
// client's point of view the progression Voting -> ConsensusWaiting ->
// Withdrawable is one-directional; the client only re-reads the contract to
// observe whichever state currently holds.
type State string

const (
	StateVoting           State = "voting"
	StateConsensusWaiting State = "consensus-waiting"
	StateWithdrawable     State = "withdrawable"
)

// Blocked reasons are user-facing and deliberately distinct; collapsing them
// into one generic "disabled" signal loses information the caller needs.
const (
	ReasonConsensusPending = "consensus-pending"
	ReasonWaitingUnlock    = "waiting-unlock"
	ReasonAlreadyVoted     = "already-voted"
	ReasonNoPrincipal      = "no-principal"
)

// Eligibility is the set of currently permitted actions for one (vault, user)
// pair. Computed fresh on every query; never cached across a state change.
type Eligibility struct {
	State         State  `json:"state"`
	CanDeposit    bool   `json:"canDeposit"`
	CanVote       bool   `json:"canVote"`
	CanDonate     bool   `json:"canDonate"`
	CanWithdraw   bool   `json:"canWithdraw"`
	BlockedReason string `json:"blockedReason,omitempty"`
}

// StateOf derives the vault-wide state. UnlockAt == 0 means no timed lock was
// set, so a vault with consensus and no unlock time is immediately
// withdrawable. An unreadable unlock time keeps the vault waiting; it never
// unlocks early on missing data.
func StateOf(v *Vault, now time.Time) State {
	if !v.ConsensusReached {
		return StateVoting
	}
	if v.UnlockAtUnavailable {
		return StateConsensusWaiting
	}
	if v.UnlockAt != 0 && now.Unix() < int64(v.UnlockAt) {
		return StateConsensusWaiting
	}
	return StateWithdrawable
}

// EligibilityOf gates actions for one user. Deposits and donations are open
// only while the vault is still voting; voting additionally requires
// principal and an unused vote; withdrawal requires the withdrawable state.
// The blocked reason explains the most user-relevant blocked action.
func EligibilityOf(v *Vault, pos *UserPosition, now time.Time) Eligibility {
	state := StateOf(v, now)

	hasVoted := pos != nil && pos.HasVoted
	hasPrincipal := pos != nil && pos.Principal != nil && pos.Principal.Sign() > 0

	e := Eligibility{
		State:       state,
		CanDeposit:  state == StateVoting,
		CanDonate:   state == StateVoting,
		CanVote:     state == StateVoting && !hasVoted && hasPrincipal,
		CanWithdraw: state == StateWithdrawable,
	}

	switch {
	case hasVoted && state != StateWithdrawable:
		e.BlockedReason = ReasonAlreadyVoted
	case state == StateConsensusWaiting:
		e.BlockedReason = ReasonWaitingUnlock
	case state == StateVoting && !hasPrincipal:
		e.BlockedReason = ReasonNoPrincipal
	case state == StateVoting:
		e.BlockedReason = ReasonConsensusPending
	}
	return e
}
