package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept for every stored amount.
const AmountScale = 8

var hundred = decimal.NewFromInt(100)

// RoundAmount rounds d to AmountScale places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// Percent returns amount * pct / 100 rounded to AmountScale.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundAmount(amount.Mul(pct).Div(hundred))
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

// ParseAmount parses a decimal string and validates it is positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return RoundAmount(d), nil
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
