package models

import (
	"math/bits"

	dErrors "airdrop/pkg/domain-errors"
)

// MaxDecimals is the largest decimal count whose scale factor fits in 64 bits.
const MaxDecimals = 19

var pow10 = [MaxDecimals + 1]uint64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
	10_000_000_000_000_000_000,
}

func overflow(msg string) error {
	return dErrors.Wrap(ErrArithmeticOverflow, dErrors.CodeArithmeticOverflow, msg)
}

// ScaleFactor returns 10^decimals.
func ScaleFactor(decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, overflow("decimal scale factor exceeds 64 bits")
	}
	return pow10[decimals], nil
}

// CheckedMul multiplies a and b, failing instead of wrapping.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, overflow("multiplication exceeds 64 bits")
	}
	return lo, nil
}

// ToBaseUnits scales a display amount to base units: amount × 10^decimals.
func ToBaseUnits(amount uint64, decimals uint8) (uint64, error) {
	factor, err := ScaleFactor(decimals)
	if err != nil {
		return 0, err
	}
	return CheckedMul(amount, factor)
}
