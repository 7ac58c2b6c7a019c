package token

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatAmount renders a smallest-unit integer amount as a decimal string,
// trimming trailing zeros ("1500000000000000000" with 18 decimals -> "1.5").
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient, remainder := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	s := quotient.String()
	if remainder.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", decimals, remainder.String())
		frac = strings.TrimRight(frac, "0")
		if frac != "" {
			s = s + "." + frac
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseAmount converts a decimal string ("1.5") into a smallest-unit integer.
// Fractional digits beyond the token's scale are truncated, matching the
// truncating integer semantics used everywhere else in this system.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}

	if len(fracPart) > int(decimals) {
		fracPart = fracPart[:decimals]
	}
	fracPart = fracPart + strings.Repeat("0", int(decimals)-len(fracPart))

	v, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
