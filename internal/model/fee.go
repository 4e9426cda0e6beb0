package model

import "github.com/shopspring/decimal"

var (
	pixRate    = decimal.Zero
	debitRate  = decimal.RequireFromString("0.03")
	creditRate = decimal.RequireFromString("0.05")
)

// FeeRate returns the multiplicative fee charged on the requested value.
func FeeRate(m PaymentMethod) (decimal.Decimal, error) {
	switch m {
	case Pix:
		return pixRate, nil
	case Debit:
		return debitRate, nil
	case Credit:
		return creditRate, nil
	}
	return decimal.Zero, ErrInvalidPaymentMethod
}

// GrossDebit is value * (1 + rate). It is computed on its own rather than as
// value + Tax so the stored tax and the debited amount round independently.
func GrossDebit(value, rate decimal.Decimal) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(1).Add(rate))
}

// Tax is value * rate rounded to the storage scale.
func Tax(value, rate decimal.Decimal) decimal.Decimal {
	return value.Mul(rate).Round(MoneyScale)
}
