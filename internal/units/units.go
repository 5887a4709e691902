// Package units converts human-entered token amounts to on-chain base units.
//
// All arithmetic is done on decimal digit strings; amounts routinely exceed
// what a float64 can represent exactly.
package units

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultDecimals matches native currency and most ERC-20 tokens.
const DefaultDecimals = 18

// ErrInvalidAmount is returned for negative, empty or non-numeric amounts.
var ErrInvalidAmount = errors.New("units: invalid amount")

// ToBaseUnits scales a decimal string by 10^decimals. Extra fraction digits
// are truncated, never rounded.
func ToBaseUnits(amount string, decimals int) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	whole, frac, err := split(amount)
	if err != nil {
		return "", err
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	} else {
		frac += strings.Repeat("0", decimals-len(frac))
	}
	out := strings.TrimLeft(whole+frac, "0")
	if out == "" {
		return "0", nil
	}
	return out, nil
}

// ParsePositive validates amount as a decimal strictly greater than zero and
// returns it in canonical form (no leading zeros, no trailing fraction zeros).
func ParsePositive(amount string) (string, error) {
	whole, frac, err := split(amount)
	if err != nil {
		return "", err
	}
	whole = strings.TrimLeft(whole, "0")
	frac = strings.TrimRight(frac, "0")
	if whole == "" && frac == "" {
		return "", fmt.Errorf("%w: %q is not positive", ErrInvalidAmount, amount)
	}
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		return whole, nil
	}
	return whole + "." + frac, nil
}

// IsNonNegativeInteger reports whether s is a plain run of ASCII digits.
func IsNonNegativeInteger(s string) bool {
	return s != "" && allDigits(s)
}

// FormatUnits renders a base-unit integer string as a decimal with the
// trailing fraction zeros removed.
func FormatUnits(base string, decimals int) (string, error) {
	base = strings.TrimSpace(base)
	if !IsNonNegativeInteger(base) || decimals < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, base)
	}
	base = strings.TrimLeft(base, "0")
	if len(base) <= decimals {
		base = strings.Repeat("0", decimals-len(base)+1) + base
	}
	cut := len(base) - decimals
	whole, frac := base[:cut], strings.TrimRight(base[cut:], "0")
	if frac == "" {
		return whole, nil
	}
	return whole + "." + frac, nil
}

func split(amount string) (whole, frac string, err error) {
	s := strings.TrimSpace(amount)
	s = strings.TrimPrefix(s, "+")
	if s == "" || strings.HasPrefix(s, "-") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	whole, frac, _ = strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return whole, frac, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
