package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/consensuslabs/vaultscope/pkg/metrics"
	"github.com/consensuslabs/vaultscope/pkg/retry"
)

// DefaultFetchTimeout bounds one pair lookup end to end, retries included.
// On expiry the token resolves to absent; a slow source never poisons the
// cache or hangs a caller.
const DefaultFetchTimeout = 10 * time.Second

// HTTPSource queries a DexScreener-compatible pair API. Requests are keyed by
// (chain slug, token address); pairs from other chains are filtered out.
type HTTPSource struct {
	base      string
	chainSlug string
	client    *http.Client
	retry     retry.Config
}

func NewHTTPSource(base, chainSlug string, httpClient *http.Client) *HTTPSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &HTTPSource{
		base:      strings.TrimRight(base, "/"),
		chainSlug: chainSlug,
		client:    httpClient,
		retry:     retry.DefaultConfig(),
	}
}

type pairResponse struct {
	Pairs []struct {
		ChainID   string `json:"chainId"`
		BaseToken struct {
			Symbol string `json:"symbol"`
		} `json:"baseToken"`
		QuoteToken struct {
			Symbol string `json:"symbol"`
		} `json:"quoteToken"`
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
	} `json:"pairs"`
}

// FetchPairs returns the token's trading pairs on the configured chain.
// Transient transport failures are retried inside the caller's deadline.
func (s *HTTPSource) FetchPairs(ctx context.Context, token common.Address) ([]Pair, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()

	u := s.base + "/latest/dex/tokens/" + token.Hex()

	var out pairResponse
	err := retry.Do(ctx, s.retry, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if reqErr != nil {
			return reqErr
		}
		resp, reqErr := s.client.Do(req)
		if reqErr != nil {
			return reqErr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{Code: resp.StatusCode, URL: u}
		}
		out = pairResponse{}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		metrics.QuoteFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("pair lookup for %s failed: %w", token.Hex(), err)
	}
	metrics.QuoteFetchTotal.WithLabelValues("success").Inc()

	pairs := make([]Pair, 0, len(out.Pairs))
	for _, p := range out.Pairs {
		if s.chainSlug != "" && !strings.EqualFold(p.ChainID, s.chainSlug) {
			continue
		}
		pair := Pair{
			BaseSymbol:     p.BaseToken.Symbol,
			QuoteSymbol:    p.QuoteToken.Symbol,
			LiquidityUSD:   p.Liquidity.USD,
			PriceChange24h: p.PriceChange.H24,
		}
		if v, parseErr := strconv.ParseFloat(p.PriceUSD, 64); parseErr == nil {
			pair.PriceUSD = v
			pair.HasPrice = true
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
