package domain

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Decimals fixed-point scale used by the ledger contract.
const Decimals = 18

// ToUnits converts a decimal amount to 18-decimal fixed point, truncating extra precision.
func ToUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidAmount, "negative amount %s", d.String())
	}
	return d.Truncate(Decimals).Shift(Decimals).BigInt(), nil
}

// Representable reports whether d fits the 18-decimal scale without truncation.
func Representable(d decimal.Decimal) bool {
	return d.Truncate(Decimals).Equal(d)
}

// FromUnits converts 18-decimal fixed point back to a decimal.
func FromUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}
