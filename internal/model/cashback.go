package model

import "github.com/shopspring/decimal"

var (
	creditCashbackRate = decimal.RequireFromString("0.005")
	pixCashbackRate    = decimal.RequireFromString("0.01")
	debitCashbackRate  = decimal.RequireFromString("0.01")
)

// CashbackBalance returns the account balance after the cashback for t.
//
// CREDIT and PIX add a reward proportional to the transaction value. DEBIT
// rescales the whole balance by value * 0.01; this asymmetry is the observed
// production behaviour and is kept until product confirms otherwise.
func CashbackBalance(t Transaction, balance decimal.Decimal) (decimal.Decimal, error) {
	var next decimal.Decimal
	switch t.Type {
	case Credit:
		next = balance.Add(t.Value.Mul(creditCashbackRate))
	case Pix:
		next = balance.Add(t.Value.Mul(pixCashbackRate))
	case Debit:
		next = balance.Mul(t.Value.Mul(debitCashbackRate))
	default:
		return decimal.Zero, ErrInvalidPaymentMethod
	}
	return next.Round(MoneyScale), nil
}
