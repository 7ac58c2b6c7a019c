package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/consensuslabs/vaultscope/pkg/logger/logtest"
)

type fetchRecord struct {
	token common.Address
	at    time.Time
}

type mockSource struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	fetches []fetchRecord
	pairs   map[common.Address][]Pair
	errFor  map[common.Address]error
}

func (m *mockSource) FetchPairs(_ context.Context, token common.Address) ([]Pair, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, fetchRecord{token: token, at: m.clock.Now()})
	m.mu.Unlock()

	if err, ok := m.errFor[token]; ok {
		return nil, err
	}
	if pairs, ok := m.pairs[token]; ok {
		return pairs, nil
	}
	return []Pair{{QuoteSymbol: "USDT", PriceUSD: 1.23, HasPrice: true, LiquidityUSD: 1000}}, nil
}

func (m *mockSource) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetches)
}

func (m *mockSource) recorded() []fetchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fetchRecord, len(m.fetches))
	copy(out, m.fetches)
	return out
}

func testCache(t *testing.T, clock clockwork.Clock, source Source) *Cache {
	t.Helper()
	c, err := NewCache(CacheConfig{
		Logger: logtest.New(),
		Clock:  clock,
		Source: source,
		// Unlimited so fake-clock tests stay deterministic; the default
		// limiter runs on wall time.
		Limiter: rate.NewLimiter(rate.Inf, 0),
	})
	require.NoError(t, err)
	return c
}

func addr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func TestVaultScope_Price_Cache_TTL(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	source := &mockSource{clock: clock}
	cache := testCache(t, clock, source)

	q, err := cache.GetPrice(context.Background(), addr(0))
	require.NoError(t, err)
	require.Equal(t, 1.23, q.PriceUSD)
	require.Equal(t, 1, source.fetchCount())

	clock.Advance(9999 * time.Millisecond)
	_, err = cache.GetPrice(context.Background(), addr(0))
	require.NoError(t, err)
	require.Equal(t, 1, source.fetchCount(), "a 9999ms old quote is served from cache")

	clock.Advance(2 * time.Millisecond)
	_, err = cache.GetPrice(context.Background(), addr(0))
	require.NoError(t, err)
	require.Equal(t, 2, source.fetchCount(), "a 10001ms old quote triggers a refetch")
}

func TestVaultScope_Price_Cache_Groups(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	source := &mockSource{clock: clock}
	cache := testCache(t, clock, source)

	tokens := make([]common.Address, 12)
	for i := range tokens {
		tokens[i] = addr(i)
	}

	start := clock.Now()
	done := make(chan map[common.Address]*Quote, 1)
	go func() {
		done <- cache.GetPrices(context.Background(), tokens)
	}()

	// Two inter-group delays for three groups of 5, 5 and 2.
	clock.BlockUntil(1)
	clock.Advance(DefaultGroupDelay)
	clock.BlockUntil(1)
	clock.Advance(DefaultGroupDelay)

	got := <-done
	require.Len(t, got, 12)
	require.Equal(t, 12, source.fetchCount())

	groupCounts := map[time.Duration]int{}
	for _, rec := range source.recorded() {
		groupCounts[rec.at.Sub(start)] += 1
	}
	require.Equal(t, map[time.Duration]int{
		0:                     5,
		DefaultGroupDelay:     5,
		2 * DefaultGroupDelay: 2,
	}, groupCounts, "12 tokens split into 3 groups with 200ms gaps")
}

func TestVaultScope_Price_Cache_Degradation(t *testing.T) {
	t.Parallel()

	t.Run("one token's failure does not block the others", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		source := &mockSource{
			clock:  clock,
			errFor: map[common.Address]error{addr(1): errors.New("upstream 500")},
		}
		cache := testCache(t, clock, source)

		got := cache.GetPrices(context.Background(), []common.Address{addr(0), addr(1), addr(2)})
		require.Len(t, got, 2)
		require.Contains(t, got, addr(0))
		require.NotContains(t, got, addr(1))
		require.Contains(t, got, addr(2))
	})

	t.Run("no usable pair means absent, never zero", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		source := &mockSource{
			clock: clock,
			pairs: map[common.Address][]Pair{addr(0): {{QuoteSymbol: "USDT", HasPrice: false}}},
		}
		cache := testCache(t, clock, source)

		_, err := cache.GetPrice(context.Background(), addr(0))
		require.ErrorIs(t, err, ErrQuoteUnavailable)
	})
}

func TestVaultScope_Price_Cache_Invalidate(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	source := &mockSource{clock: clock}
	cache := testCache(t, clock, source)

	_, err := cache.GetPrice(context.Background(), addr(0))
	require.NoError(t, err)
	require.Equal(t, 1, source.fetchCount())

	cache.Invalidate([]common.Address{addr(0)})

	_, err = cache.GetPrice(context.Background(), addr(0))
	require.NoError(t, err)
	require.Equal(t, 2, source.fetchCount(), "invalidation forces the next read to the network")
}
