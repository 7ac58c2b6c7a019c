package chain

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum"

	"github.com/consensuslabs/vaultscope/pkg/metrics"
)

// FallbackReader tries the batched path first and, when the batching round
// trip itself fails, replays every call as an individual eth_call. Order is
// preserved either way, and a call that fails individually is reported as an
// unsuccessful Result rather than aborting the rest.
type FallbackReader struct {
	log     *slog.Logger
	batched Caller
	backend Backend
}

func NewFallbackReader(log *slog.Logger, batched Caller, backend Backend) *FallbackReader {
	return &FallbackReader{
		log:     log,
		batched: batched,
		backend: backend,
	}
}

func (r *FallbackReader) Execute(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	results, err := r.batched.Execute(ctx, calls)
	if err == nil {
		return results, nil
	}

	var batchErr *BatchReadError
	if !errors.As(err, &batchErr) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	r.log.Warn("chain: batched read failed, falling back to per-call reads",
		"calls", batchErr.Calls, "error", batchErr.Err)

	results = make([]Result, len(calls))
	for i, call := range calls {
		target := call.Target
		raw, callErr := r.backend.CallContract(ctx, ethereum.CallMsg{
			To:   &target,
			Data: call.CallData,
		}, nil)
		if callErr != nil {
			if ctx.Err() != nil {
				metrics.ChainBatchTotal.WithLabelValues("fallback", "error").Inc()
				return nil, &BatchReadError{Calls: len(calls), Err: ctx.Err()}
			}
			r.log.Debug("chain: per-call read failed", "target", target.Hex(), "error", callErr)
			results[i] = Result{Success: false}
			continue
		}
		results[i] = Result{Success: true, ReturnData: raw}
	}

	metrics.ChainBatchTotal.WithLabelValues("fallback", "success").Inc()
	metrics.ChainCallsTotal.Add(float64(len(calls)))
	return results, nil
}
