// Package chain implements the batched read path against the EVM node: many
// independent eth_call reads collapsed into one Multicall3 round trip, with a
// per-call fallback when the batching contract is unavailable. Results keep
// index correspondence with the submitted calls; a failed slot means "field
// unavailable", never zero.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Call is one read call against a contract.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the outcome of one Call. Success=false means the value is
// unavailable; callers must not interpret it as a zero value.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Caller executes an ordered list of calls and returns one Result per input,
// preserving index correspondence.
type Caller interface {
	Execute(ctx context.Context, calls []Call) ([]Result, error)
}

// Backend is the subset of ethclient.Client the readers need.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BatchReadError reports that a batched round trip itself failed. Per-call
// decode failures are not BatchReadErrors; they surface as unsuccessful
// Results instead.
type BatchReadError struct {
	Calls int
	Err   error
}

func (e *BatchReadError) Error() string {
	return fmt.Sprintf("batched read of %d calls failed: %v", e.Calls, e.Err)
}

func (e *BatchReadError) Unwrap() error { return e.Err }
