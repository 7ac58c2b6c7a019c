// Package valuation merges a token amount with an independently-fetched price
// quote into a display string. It is a pure function of the two inputs, so
// "render now, patch when the price arrives" is just calling it twice.
package valuation

import (
	"fmt"
	"math"
	"math/big"

	"github.com/consensuslabs/vaultscope/pkg/price"
)

// Sentinel outputs. NotAvailable means no quote was available, which is a
// different statement than a true zero value.
const (
	NotAvailable = "N/A"
	ZeroValue    = "$0.00"
)

// MarketValue renders amount (in whole token units) times the quote as a USD
// string. It never errors; missing data degrades to a sentinel.
func MarketValue(amount float64, q *price.Quote) string {
	if q == nil {
		return NotAvailable
	}
	if math.IsNaN(amount) || amount <= 0 {
		return ZeroValue
	}

	value := amount * q.PriceUSD
	switch {
	case value >= 1e6:
		return fmt.Sprintf("$%.2fM", value/1e6)
	case value >= 1e3:
		return fmt.Sprintf("$%.2fK", value/1e3)
	case value >= 0.01:
		return fmt.Sprintf("$%.2f", value)
	case value > 0:
		return fmt.Sprintf("$%.6f", value)
	default:
		return ZeroValue
	}
}

// MarketValueAmount values a smallest-unit integer amount. Precision loss in
// the float conversion is acceptable here: the output is a banded display
// string, never an accounting figure.
func MarketValueAmount(amount *big.Int, decimals uint8, q *price.Quote) string {
	if q == nil {
		return NotAvailable
	}
	if amount == nil || amount.Sign() <= 0 {
		return ZeroValue
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return MarketValue(units, q)
}
