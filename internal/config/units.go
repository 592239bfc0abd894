package config

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseDecimal converts a decimal amount string (e.g. "0.1") into integer
// base units using the given decimal exponent.
func ParseDecimal(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	units, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", amount)
	}
	return units, nil
}

// FormatDecimal renders an integer base-unit amount as a decimal string using
// the given decimal exponent, trimming trailing zeros ("100000000000000000"
// with 18 decimals renders as "0.1").
func FormatDecimal(units *big.Int, decimals int) string {
	if units == nil || units.Sign() == 0 {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Abs(units)
	if units.Sign() < 0 {
		sign = "-"
	}
	digits := abs.String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	split := len(digits) - decimals
	whole, frac := digits[:split], digits[split:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}
