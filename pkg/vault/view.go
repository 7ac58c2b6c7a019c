package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/consensuslabs/vaultscope/pkg/metrics"
	"github.com/consensuslabs/vaultscope/pkg/price"
)

// DefaultRefreshInterval is the price re-valuation cadence. Chain state is
// read once up front and on explicit Refresh calls; the periodic loop only
// re-reads prices.
const DefaultRefreshInterval = 30 * time.Second

// VaultSource produces the full vault list from chain state.
type VaultSource interface {
	Aggregate(ctx context.Context, maxVaults int) ([]Vault, error)
	UserPosition(ctx context.Context, vaultAddr, user common.Address) (*UserPosition, error)
}

// QuoteProvider is the price cache surface the view needs.
type QuoteProvider interface {
	GetPrices(ctx context.Context, addrs []common.Address) map[common.Address]*price.Quote
	Invalidate(addrs []common.Address)
}

type ViewConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Source          VaultSource
	Quotes          QuoteProvider
	RefreshInterval time.Duration
	MaxVaults       int
}

func (cfg *ViewConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("vault source is required")
	}
	if cfg.Quotes == nil {
		return errors.New("quote provider is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Snapshot is one consistent observation of the vault set and its quotes.
// It is replaced wholesale; consumers never see a half-updated state.
type Snapshot struct {
	Cycle       string
	Vaults      []Vault
	Quotes      map[common.Address]*price.Quote
	RefreshedAt time.Time
}

// View holds the current snapshot and keeps it fresh. Full refreshes re-read
// chain state and prices; the periodic loop re-reads prices only.
type View struct {
	log       *slog.Logger
	cfg       ViewConfig
	refreshMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &View{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

func (v *View) Ready() bool {
	select {
	case <-v.readyCh:
		return true
	default:
		return false
	}
}

func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for vault view: %w", ctx.Err())
	}
}

func (v *View) Start(ctx context.Context) {
	go func() {
		v.log.Info("vault: starting refresh loop", "interval", v.cfg.RefreshInterval)

		v.safeRefresh(ctx, "full", v.Refresh)

		ticker := v.cfg.Clock.NewTicker(v.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				v.safeRefresh(ctx, "prices", v.RefreshPrices)
			}
		}
	}()
}

func (v *View) safeRefresh(ctx context.Context, stage string, refresh func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("vault: refresh panicked", "stage", stage, "panic", r)
			metrics.ViewRefreshTotal.WithLabelValues(stage, "panic").Inc()
		}
	}()

	if err := refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		v.log.Error("vault: refresh failed", "stage", stage, "error", err)
	}
}

// Refresh re-reads chain state, fetches quotes for the distinct deposit
// tokens and swaps in a fresh snapshot. The swap is skipped after
// cancellation so torn-down consumers never observe late mutations.
func (v *View) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	refreshStart := time.Now()
	cycle := uuid.NewString()
	v.log.Debug("vault: refresh started", "cycle", cycle)
	defer func() {
		duration := time.Since(refreshStart)
		v.log.Info("vault: refresh completed", "cycle", cycle, "duration", duration.String())
		metrics.ViewRefreshDuration.WithLabelValues("full").Observe(duration.Seconds())
	}()

	vaults, err := v.cfg.Source.Aggregate(ctx, v.cfg.MaxVaults)
	if err != nil {
		metrics.ViewRefreshTotal.WithLabelValues("full", "error").Inc()
		return fmt.Errorf("failed to aggregate vaults: %w", err)
	}

	quotes := v.cfg.Quotes.GetPrices(ctx, depositTokens(vaults))

	if ctx.Err() != nil {
		return fmt.Errorf("refresh cancelled, discarding results: %w", context.Canceled)
	}
	v.swap(&Snapshot{
		Cycle:       cycle,
		Vaults:      vaults,
		Quotes:      quotes,
		RefreshedAt: v.cfg.Clock.Now(),
	})

	v.readyOnce.Do(func() {
		close(v.readyCh)
		v.log.Info("vault: view is now ready")
	})

	metrics.ViewRefreshTotal.WithLabelValues("full", "success").Inc()
	return nil
}

// RefreshPrices re-values the current snapshot against fresh quotes without
// touching chain state. Quotes for the snapshot's tokens are force-expired
// first so the fetch actually goes to the network.
func (v *View) RefreshPrices(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	cur := v.Current()
	if cur == nil {
		return nil
	}

	refreshStart := time.Now()
	defer func() {
		metrics.ViewRefreshDuration.WithLabelValues("prices").Observe(time.Since(refreshStart).Seconds())
	}()

	tokens := depositTokens(cur.Vaults)
	v.cfg.Quotes.Invalidate(tokens)
	quotes := v.cfg.Quotes.GetPrices(ctx, tokens)

	if ctx.Err() != nil {
		return fmt.Errorf("price refresh cancelled, discarding results: %w", context.Canceled)
	}
	v.swap(&Snapshot{
		Cycle:       uuid.NewString(),
		Vaults:      cur.Vaults,
		Quotes:      quotes,
		RefreshedAt: v.cfg.Clock.Now(),
	})

	metrics.ViewRefreshTotal.WithLabelValues("prices", "success").Inc()
	return nil
}

func (v *View) swap(s *Snapshot) {
	v.mu.Lock()
	v.snapshot = s
	v.mu.Unlock()
}

// Current returns the latest snapshot, nil before the first refresh.
func (v *View) Current() *Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot
}

// Vaults returns the vault list of the current snapshot.
func (v *View) Vaults() []Vault {
	s := v.Current()
	if s == nil {
		return nil
	}
	return s.Vaults
}

// Vault looks up one vault by address in the current snapshot.
func (v *View) Vault(addr common.Address) (Vault, bool) {
	s := v.Current()
	if s == nil {
		return Vault{}, false
	}
	for i := range s.Vaults {
		if s.Vaults[i].Address == addr {
			return s.Vaults[i], true
		}
	}
	return Vault{}, false
}

// QuoteFor returns the current snapshot's quote for a deposit token.
func (v *View) QuoteFor(token common.Address) (*price.Quote, bool) {
	s := v.Current()
	if s == nil {
		return nil, false
	}
	q, ok := s.Quotes[token]
	return q, ok
}

func depositTokens(vaults []Vault) []common.Address {
	seen := make(map[common.Address]struct{}, len(vaults))
	var tokens []common.Address
	for i := range vaults {
		t := vaults[i].DepositToken
		if t == (common.Address{}) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	return tokens
}
