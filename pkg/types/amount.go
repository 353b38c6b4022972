package types

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a base-10 integer amount in smallest units
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q is not an integer", s)
	}
	if v.Sign() < 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q is negative", s)
	}
	return v, nil
}

// ToSmallestUnit converts a human readable amount ("1.5") into smallest units.
// Amounts with more fractional digits than the token supports are rejected.
func ToSmallestUnit(human string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q", human)
	}
	if d.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q is negative", human)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q has more than %d decimals", human, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatAmount renders smallest units as a decimal string
func FormatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// Percent returns part/whole*100 for display. It is never used to rank or
// compare amounts.
func Percent(part, whole *big.Int) float64 {
	if part == nil || whole == nil || whole.Sign() == 0 {
		return 0
	}
	return decimal.NewFromBigInt(part, 0).
		Div(decimal.NewFromBigInt(whole, 0)).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()
}
