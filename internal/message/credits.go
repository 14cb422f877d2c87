package message

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const microPerCredit = 1_000_000

// FeeBuffer is added to every reported fee estimate as a margin against
// underestimation.
const FeeBuffer = 0.01

var (
	microScale = decimal.NewFromInt(microPerCredit)
	maxMicro   = decimal.NewFromUint64(math.MaxUint64)
)

// ParseCredits converts a positive credit amount such as "1.5" to
// microcredits.
func ParseCredits(field, raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidNumericInput, field, raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidNumericInput, field, raw)
	}
	micro := d.Mul(microScale)
	if !micro.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s is finer than one microcredit", ErrInvalidNumericInput, field, raw)
	}
	if micro.GreaterThan(maxMicro) {
		return 0, fmt.Errorf("%w: %s %s overflows", ErrInvalidNumericInput, field, raw)
	}
	return micro.BigInt().Uint64(), nil
}

// FeeCredits converts a raw engine fee to the reported credit value.
func FeeCredits(microcredits uint64) float64 {
	return float64(microcredits)/microPerCredit + FeeBuffer
}

// FormatCredits renders microcredits as an exact decimal credit string.
func FormatCredits(microcredits uint64) string {
	return decimal.NewFromUint64(microcredits).Div(microScale).String()
}
