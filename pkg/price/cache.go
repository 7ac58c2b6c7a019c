package price

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/consensuslabs/vaultscope/pkg/metrics"
)

const (
	// DefaultGroupSize and DefaultGroupDelay shape batch fetches: tokens are
	// fetched in groups of 5 with at least 200ms between groups.
	DefaultGroupSize  = 5
	DefaultGroupDelay = 200 * time.Millisecond

	// DefaultRequestsPerSecond is the quote source's published rate limit.
	// The limiter is global across all callers because the limit belongs to
	// the external service, not to any one request path.
	DefaultRequestsPerSecond = 5
)

type CacheConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Source Source

	TTL        time.Duration
	GroupSize  int
	GroupDelay time.Duration

	// Limiter is shared by every caller of this cache. Leave nil for the
	// default source rate limit.
	Limiter *rate.Limiter

	PrimaryStable   string
	SecondaryStable string
}

func (cfg *CacheConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("quote source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.GroupDelay < 0 {
		cfg.GroupDelay = DefaultGroupDelay
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(DefaultRequestsPerSecond, DefaultRequestsPerSecond)
	}
	if cfg.PrimaryStable == "" {
		cfg.PrimaryStable = DefaultPrimaryStable
	}
	if cfg.SecondaryStable == "" {
		cfg.SecondaryStable = DefaultSecondaryStable
	}
	return nil
}

// Cache serves quotes from memory while fresh and batch-fetches the rest.
// A failed token stays absent; it never blocks or poisons the others.
type Cache struct {
	log *slog.Logger
	cfg CacheConfig

	mu     sync.Mutex
	quotes map[common.Address]*Quote
}

func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache{
		log:    cfg.Logger,
		cfg:    cfg,
		quotes: make(map[common.Address]*Quote),
	}, nil
}

// GetPrice returns the quote for one token, fetching when stale or missing.
func (c *Cache) GetPrice(ctx context.Context, addr common.Address) (*Quote, error) {
	got := c.GetPrices(ctx, []common.Address{addr})
	q, ok := got[addr]
	if !ok {
		return nil, ErrQuoteUnavailable
	}
	return q, nil
}

// GetPrices returns quotes for the given tokens. Fresh entries come from
// memory; the rest are fetched in rate-limited groups. Tokens without a
// usable quote are simply absent from the result.
func (c *Cache) GetPrices(ctx context.Context, addrs []common.Address) map[common.Address]*Quote {
	out := make(map[common.Address]*Quote, len(addrs))
	now := c.cfg.Clock.Now()

	var toFetch []common.Address
	seen := make(map[common.Address]struct{}, len(addrs))
	c.mu.Lock()
	for _, addr := range addrs {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if q, ok := c.quotes[addr]; ok && q.Fresh(now, c.cfg.TTL) {
			metrics.QuoteCacheTotal.WithLabelValues("hit").Inc()
			out[addr] = q
			continue
		}
		metrics.QuoteCacheTotal.WithLabelValues("miss").Inc()
		toFetch = append(toFetch, addr)
	}
	c.mu.Unlock()

	for start := 0; start < len(toFetch); start += c.cfg.GroupSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-c.cfg.Clock.After(c.cfg.GroupDelay):
			}
		}
		end := start + c.cfg.GroupSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		c.fetchGroup(ctx, toFetch[start:end], out)
	}
	return out
}

// fetchGroup fetches one group concurrently. Each fetch first waits on the
// shared limiter, and a concurrent caller may have landed the quote in the
// meantime, so freshness is re-checked before going to the network.
func (c *Cache) fetchGroup(ctx context.Context, group []common.Address, out map[common.Address]*Quote) {
	var outMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range group {
		g.Go(func() error {
			c.mu.Lock()
			cached, ok := c.quotes[addr]
			c.mu.Unlock()
			if ok && cached.Fresh(c.cfg.Clock.Now(), c.cfg.TTL) {
				outMu.Lock()
				out[addr] = cached
				outMu.Unlock()
				return nil
			}

			if err := c.cfg.Limiter.Wait(gctx); err != nil {
				return nil
			}

			pairs, err := c.cfg.Source.FetchPairs(gctx, addr)
			if err != nil {
				c.log.Warn("price: pair fetch failed", "token", addr.Hex(), "error", err)
				return nil
			}
			best := SelectBestPair(pairs, c.cfg.PrimaryStable, c.cfg.SecondaryStable)
			if best == nil {
				c.log.Debug("price: no usable pair", "token", addr.Hex(), "pairs", len(pairs))
				return nil
			}

			q := &Quote{
				Token:     addr,
				PriceUSD:  best.PriceUSD,
				Change24h: best.PriceChange24h,
				FetchedAt: c.cfg.Clock.Now(),
			}
			c.mu.Lock()
			c.quotes[addr] = q
			c.mu.Unlock()
			outMu.Lock()
			out[addr] = q
			outMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate drops the given tokens from the cache so the next read goes to
// the network.
func (c *Cache) Invalidate(addrs []common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range addrs {
		delete(c.quotes, addr)
	}
}
