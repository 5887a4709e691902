package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/penny/internal/units"
)

const centsDecimals = 2

// maxCents keeps amounts inside BIGINT with room for sums.
const maxCents = 1_000_000_000_000

// ErrInvalidMoney is returned for amounts that are not positive decimals.
var ErrInvalidMoney = errors.New("ledger: invalid amount")

// ParseMoney converts a positive decimal such as "12.5" to cents. Digits
// past the second decimal place are rejected rather than dropped.
func ParseMoney(s string) (int64, error) {
	canon, err := units.ParsePositive(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
	}
	if _, frac, ok := strings.Cut(canon, "."); ok && len(frac) > centsDecimals {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidMoney, s)
	}
	base, err := units.ToBaseUnits(canon, centsDecimals)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
	}
	cents, err := strconv.ParseInt(base, 10, 64)
	if err != nil || cents <= 0 || cents > maxCents {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidMoney, s)
	}
	return cents, nil
}

// FormatMoney renders cents as a decimal with two places.
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
