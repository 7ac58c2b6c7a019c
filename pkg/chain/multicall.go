package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/consensuslabs/vaultscope/pkg/chain/abis"
	"github.com/consensuslabs/vaultscope/pkg/metrics"
)

// Multicall3 is deployed at the same address on every major EVM chain.
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// MulticallReader bundles calls into one Multicall3 aggregate3 round trip.
type MulticallReader struct {
	backend Backend
	address common.Address
	abi     *abi.ABI
}

func NewMulticallReader(backend Backend, multicall3Address common.Address) (*MulticallReader, error) {
	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall3 ABI: %w", err)
	}

	return &MulticallReader{
		backend: backend,
		address: multicall3Address,
		abi:     multicallABI,
	}, nil
}

func (r *MulticallReader) Address() common.Address {
	return r.address
}

func (r *MulticallReader) Execute(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return []Result{}, nil
	}

	data, err := r.abi.Pack("aggregate3", calls)
	if err != nil {
		return nil, &BatchReadError{Calls: len(calls), Err: fmt.Errorf("failed to pack multicall: %w", err)}
	}

	msg := ethereum.CallMsg{
		To:   &r.address,
		Data: data,
	}

	raw, err := r.backend.CallContract(ctx, msg, nil)
	if err != nil {
		metrics.ChainBatchTotal.WithLabelValues("multicall", "error").Inc()
		return nil, &BatchReadError{Calls: len(calls), Err: fmt.Errorf("multicall at %s failed: %w", r.address.Hex(), err)}
	}

	unpacked, err := r.abi.Unpack("aggregate3", raw)
	if err != nil {
		metrics.ChainBatchTotal.WithLabelValues("multicall", "error").Inc()
		return nil, &BatchReadError{Calls: len(calls), Err: fmt.Errorf("failed to unpack multicall response: %w", err)}
	}

	resultsRaw, ok := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		metrics.ChainBatchTotal.WithLabelValues("multicall", "error").Inc()
		return nil, &BatchReadError{Calls: len(calls), Err: fmt.Errorf("unexpected multicall result shape %T", unpacked[0])}
	}
	if len(resultsRaw) != len(calls) {
		metrics.ChainBatchTotal.WithLabelValues("multicall", "error").Inc()
		return nil, &BatchReadError{Calls: len(calls), Err: fmt.Errorf("multicall returned %d results for %d calls", len(resultsRaw), len(calls))}
	}

	results := make([]Result, len(resultsRaw))
	for i, res := range resultsRaw {
		results[i] = Result{
			Success:    res.Success,
			ReturnData: res.ReturnData,
		}
	}

	metrics.ChainBatchTotal.WithLabelValues("multicall", "success").Inc()
	metrics.ChainCallsTotal.Add(float64(len(calls)))
	return results, nil
}
