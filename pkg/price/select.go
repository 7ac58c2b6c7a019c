package price

import "strings"

// Default stablecoin quote symbols. Primary beats secondary beats anything,
// regardless of liquidity; liquidity only breaks ties within a tier.
const (
	DefaultPrimaryStable   = "USDT"
	DefaultSecondaryStable = "USDC"
)

// SelectBestPair picks the pair to quote from: the most liquid pair whose
// quote symbol matches the primary stable, else the most liquid matching the
// secondary stable, else the most liquid overall. Pairs without a usable
// price field are skipped. Returns nil when nothing usable remains.
func SelectBestPair(pairs []Pair, primary, secondary string) *Pair {
	var bestPrimary, bestSecondary, bestAny *Pair

	for i := range pairs {
		p := &pairs[i]
		if !p.HasPrice {
			continue
		}
		switch {
		case strings.EqualFold(p.QuoteSymbol, primary):
			if bestPrimary == nil || p.LiquidityUSD > bestPrimary.LiquidityUSD {
				bestPrimary = p
			}
		case strings.EqualFold(p.QuoteSymbol, secondary):
			if bestSecondary == nil || p.LiquidityUSD > bestSecondary.LiquidityUSD {
				bestSecondary = p
			}
		}
		if bestAny == nil || p.LiquidityUSD > bestAny.LiquidityUSD {
			bestAny = p
		}
	}

	if bestPrimary != nil {
		return bestPrimary
	}
	if bestSecondary != nil {
		return bestSecondary
	}
	return bestAny
}
