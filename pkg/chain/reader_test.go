package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/consensuslabs/vaultscope/pkg/chain/abis"
	"github.com/consensuslabs/vaultscope/pkg/logger/logtest"
)

type mockBackend struct {
	callContractFunc func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func (m *mockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return m.callContractFunc(ctx, msg, blockNumber)
}

type mcResult struct {
	Success    bool   `json:"success"`
	ReturnData []byte `json:"returnData"`
}

// multicallBackend answers aggregate3 requests by looking up each inner call
// in responses, keyed by target plus calldata.
func multicallBackend(t *testing.T, responses map[string][]byte) *mockBackend {
	t.Helper()
	mcABI, err := abis.GetMulticall3ABI()
	require.NoError(t, err)
	method := mcABI.Methods["aggregate3"]

	return &mockBackend{
		callContractFunc: func(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			require.True(t, bytes.Equal(msg.Data[:4], method.ID), "expected an aggregate3 call")

			in, err := method.Inputs.Unpack(msg.Data[4:])
			require.NoError(t, err)
			calls, ok := in[0].([]struct {
				Target       common.Address `json:"target"`
				AllowFailure bool           `json:"allowFailure"`
				CallData     []byte         `json:"callData"`
			})
			require.True(t, ok, "unexpected aggregate3 input shape %T", in[0])

			results := make([]mcResult, len(calls))
			for i, c := range calls {
				data, found := responses[responseKey(c.Target, c.CallData)]
				if !found {
					results[i] = mcResult{Success: false}
					continue
				}
				results[i] = mcResult{Success: true, ReturnData: data}
			}
			return method.Outputs.Pack(results)
		},
	}
}

// perCallBackend serves the same response map one eth_call at a time.
func perCallBackend(responses map[string][]byte) *mockBackend {
	return &mockBackend{
		callContractFunc: func(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			data, found := responses[responseKey(*msg.To, msg.Data)]
			if !found {
				return nil, errors.New("execution reverted")
			}
			return data, nil
		},
	}
}

func responseKey(target common.Address, callData []byte) string {
	return target.Hex() + "/" + common.Bytes2Hex(callData)
}

func testFixture(t *testing.T) ([]Call, map[string][]byte) {
	t.Helper()
	vaultABI, err := abis.GetConsensusVaultABI()
	require.NoError(t, err)

	vaultA := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	vaultB := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	principalCall, err := vaultABI.Pack("totalPrincipal")
	require.NoError(t, err)
	reachedCall, err := vaultABI.Pack("consensusReached")
	require.NoError(t, err)

	principalA, err := vaultABI.Methods["totalPrincipal"].Outputs.Pack(big.NewInt(1000))
	require.NoError(t, err)
	principalB, err := vaultABI.Methods["totalPrincipal"].Outputs.Pack(big.NewInt(2000))
	require.NoError(t, err)
	reachedA, err := vaultABI.Methods["consensusReached"].Outputs.Pack(true)
	require.NoError(t, err)

	calls := []Call{
		{Target: vaultA, AllowFailure: true, CallData: principalCall},
		{Target: vaultA, AllowFailure: true, CallData: reachedCall},
		{Target: vaultB, AllowFailure: true, CallData: principalCall},
		{Target: vaultB, AllowFailure: true, CallData: reachedCall}, // no response fixture: stays failed
	}
	responses := map[string][]byte{
		responseKey(vaultA, principalCall): principalA,
		responseKey(vaultA, reachedCall):   reachedA,
		responseKey(vaultB, principalCall): principalB,
	}
	return calls, responses
}

func TestVaultScope_Chain_MulticallReader(t *testing.T) {
	t.Parallel()

	t.Run("preserves index correspondence", func(t *testing.T) {
		t.Parallel()

		calls, responses := testFixture(t)
		reader, err := NewMulticallReader(multicallBackend(t, responses), Multicall3)
		require.NoError(t, err)

		results, err := reader.Execute(context.Background(), calls)
		require.NoError(t, err)
		require.Len(t, results, len(calls))
		require.True(t, results[0].Success)
		require.True(t, results[1].Success)
		require.True(t, results[2].Success)
		require.False(t, results[3].Success)
	})

	t.Run("empty call list is a no-op", func(t *testing.T) {
		t.Parallel()

		reader, err := NewMulticallReader(&mockBackend{
			callContractFunc: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				t.Fatal("no round trip expected")
				return nil, nil
			},
		}, Multicall3)
		require.NoError(t, err)

		results, err := reader.Execute(context.Background(), nil)
		require.NoError(t, err)
		require.Empty(t, results)
	})

	t.Run("transport failure is a typed batch error", func(t *testing.T) {
		t.Parallel()

		calls, _ := testFixture(t)
		reader, err := NewMulticallReader(&mockBackend{
			callContractFunc: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, errors.New("connection refused")
			},
		}, Multicall3)
		require.NoError(t, err)

		_, err = reader.Execute(context.Background(), calls)
		var batchErr *BatchReadError
		require.ErrorAs(t, err, &batchErr)
		require.Equal(t, len(calls), batchErr.Calls)
	})
}

func TestVaultScope_Chain_FallbackReader(t *testing.T) {
	t.Parallel()

	log := logtest.New()

	t.Run("batched and per-call paths agree element for element", func(t *testing.T) {
		t.Parallel()

		calls, responses := testFixture(t)

		batched, err := NewMulticallReader(multicallBackend(t, responses), Multicall3)
		require.NoError(t, err)
		batchedResults, err := batched.Execute(context.Background(), calls)
		require.NoError(t, err)

		brokenBatcher, err := NewMulticallReader(&mockBackend{
			callContractFunc: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, errors.New("multicall contract missing")
			},
		}, Multicall3)
		require.NoError(t, err)
		fallback := NewFallbackReader(log, brokenBatcher, perCallBackend(responses))
		fallbackResults, err := fallback.Execute(context.Background(), calls)
		require.NoError(t, err)

		require.Equal(t, len(batchedResults), len(fallbackResults))
		for i := range batchedResults {
			require.Equal(t, batchedResults[i].Success, fallbackResults[i].Success, "call %d success", i)
			require.True(t, bytes.Equal(batchedResults[i].ReturnData, fallbackResults[i].ReturnData), "call %d data", i)
		}
	})

	t.Run("does not fall back when the batch succeeds", func(t *testing.T) {
		t.Parallel()

		calls, responses := testFixture(t)
		batched, err := NewMulticallReader(multicallBackend(t, responses), Multicall3)
		require.NoError(t, err)

		fallback := NewFallbackReader(log, batched, &mockBackend{
			callContractFunc: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				t.Fatal("per-call path must not be used")
				return nil, nil
			},
		})
		results, err := fallback.Execute(context.Background(), calls)
		require.NoError(t, err)
		require.Len(t, results, len(calls))
	})

	t.Run("context cancellation aborts the fallback sweep", func(t *testing.T) {
		t.Parallel()

		calls, _ := testFixture(t)
		brokenBatcher, err := NewMulticallReader(&mockBackend{
			callContractFunc: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, errors.New("down")
			},
		}, Multicall3)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		fallback := NewFallbackReader(log, brokenBatcher, &mockBackend{
			callContractFunc: func(ctx context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
				cancel()
				return nil, fmt.Errorf("call aborted: %w", ctx.Err())
			},
		})

		_, err = fallback.Execute(ctx, calls)
		require.Error(t, err)
	})
}
