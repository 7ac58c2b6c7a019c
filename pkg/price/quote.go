// Package price fetches USD quotes for deposit tokens from an external
// trading-pair API and serves them through a TTL cache with a shared rate
// limit. Absence is explicit: a token with no usable quote yields
// ErrQuoteUnavailable, never a zero price.
package price

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTTL is how long a fetched quote is served from memory. A quote at
// exactly TTL age is expired.
const DefaultTTL = 10 * time.Second

// ErrQuoteUnavailable means no usable trading pair exists for the token, or
// the fetch timed out. Callers render "N/A", not zero.
var ErrQuoteUnavailable = errors.New("price: quote unavailable")

// Quote is one token's USD price observation. A newer quote supersedes an
// older one wholesale; quotes are never merged.
type Quote struct {
	Token     common.Address
	PriceUSD  float64
	Change24h float64
	FetchedAt time.Time
}

// Fresh reports whether the quote is still inside the TTL at the given time.
func (q *Quote) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(q.FetchedAt) < ttl
}

// Pair is one trading pair as reported by the quote source.
type Pair struct {
	BaseSymbol     string
	QuoteSymbol    string
	PriceUSD       float64
	HasPrice       bool
	LiquidityUSD   float64
	PriceChange24h float64
}

// Source fetches the trading pairs for one token.
type Source interface {
	FetchPairs(ctx context.Context, token common.Address) ([]Pair, error)
}
