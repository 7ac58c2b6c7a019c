package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestVaultScope_Price_HTTPSource(t *testing.T) {
	t.Parallel()

	token := common.HexToAddress("0x0000000000000000000000000000000000000042")

	t.Run("parses pairs and filters by chain", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/latest/dex/tokens/"+token.Hex(), r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"pairs": [
					{
						"chainId": "bsc",
						"baseToken": {"symbol": "TKX"},
						"quoteToken": {"symbol": "USDT"},
						"priceUsd": "1.25",
						"liquidity": {"usd": 150000},
						"priceChange": {"h24": -3.2}
					},
					{
						"chainId": "ethereum",
						"baseToken": {"symbol": "TKX"},
						"quoteToken": {"symbol": "USDC"},
						"priceUsd": "1.30",
						"liquidity": {"usd": 900000},
						"priceChange": {"h24": 1.1}
					},
					{
						"chainId": "bsc",
						"baseToken": {"symbol": "TKX"},
						"quoteToken": {"symbol": "WBNB"},
						"priceUsd": "",
						"liquidity": {"usd": 5000},
						"priceChange": {"h24": 0}
					}
				]
			}`))
		}))
		defer srv.Close()

		source := NewHTTPSource(srv.URL, "bsc", srv.Client())
		pairs, err := source.FetchPairs(context.Background(), token)
		require.NoError(t, err)
		require.Len(t, pairs, 2, "pairs from other chains are dropped")

		require.Equal(t, "USDT", pairs[0].QuoteSymbol)
		require.True(t, pairs[0].HasPrice)
		require.Equal(t, 1.25, pairs[0].PriceUSD)
		require.Equal(t, 150000.0, pairs[0].LiquidityUSD)
		require.Equal(t, -3.2, pairs[0].PriceChange24h)

		require.Equal(t, "WBNB", pairs[1].QuoteSymbol)
		require.False(t, pairs[1].HasPrice, "an unparsable price field means no price, not zero")
	})

	t.Run("keeps all chains when no slug is configured", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"pairs": [
				{"chainId": "bsc", "quoteToken": {"symbol": "USDT"}, "priceUsd": "1"},
				{"chainId": "ethereum", "quoteToken": {"symbol": "USDC"}, "priceUsd": "2"}
			]}`))
		}))
		defer srv.Close()

		source := NewHTTPSource(srv.URL, "", srv.Client())
		pairs, err := source.FetchPairs(context.Background(), token)
		require.NoError(t, err)
		require.Len(t, pairs, 2)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		source := NewHTTPSource(srv.URL, "bsc", srv.Client())
		_, err := source.FetchPairs(context.Background(), token)
		require.Error(t, err)
	})

	t.Run("empty pair list is valid", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"pairs": null}`))
		}))
		defer srv.Close()

		source := NewHTTPSource(srv.URL, "bsc", srv.Client())
		pairs, err := source.FetchPairs(context.Background(), token)
		require.NoError(t, err)
		require.Empty(t, pairs)
	})
}
