package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of transaction types. The value is the
// one-letter code persisted in the transactions table.
type PaymentMethod string

const (
	Credit PaymentMethod = "C"
	Debit  PaymentMethod = "D"
	Pix    PaymentMethod = "P"
)

// ParsePaymentMethod accepts either the one-letter code or the full name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CREDIT":
		return Credit, nil
	case "D", "DEBIT":
		return Debit, nil
	case "P", "PIX":
		return Pix, nil
	}
	return "", ErrInvalidPaymentMethod
}

func (m PaymentMethod) String() string {
	switch m {
	case Credit:
		return "CREDIT"
	case Debit:
		return "DEBIT"
	case Pix:
		return "PIX"
	}
	return "UNKNOWN"
}

// MoneyScale is the number of fractional digits kept in storage.
const MoneyScale = 2

// IsMoney reports whether d has no more fractional digits than MoneyScale.
// Trailing zeros are ignored, so "1.500" is accepted.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

type Account struct {
	ID        int64           `json:"conta_id"`
	Balance   decimal.Decimal `json:"saldo"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"conta_id"`
	Type      PaymentMethod   `json:"forma_pagamento"`
	Value     decimal.Decimal `json:"valor"`
	Tax       decimal.Decimal `json:"tax"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Cashback records a cashback adjustment applied for one transaction.
type Cashback struct {
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"conta_id"`
	Type          PaymentMethod   `json:"forma_pagamento"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	AppliedAt     time.Time       `json:"applied_at"`
}

type CreateAccountRequest struct {
	AccountID      int64           `json:"conta_id"`
	InitialBalance decimal.Decimal `json:"valor"`
}

type TransactionRequest struct {
	AccountID int64           `json:"conta_id"`
	Method    PaymentMethod   `json:"forma_pagamento"`
	Value     decimal.Decimal `json:"valor"`
}

// AccountFilter narrows ListAccounts. Both fields address the account id.
type AccountFilter struct {
	ID        *int64
	AccountID *int64
}

// Active reports whether any filter field is set.
func (f AccountFilter) Active() bool {
	return f.ID != nil || f.AccountID != nil
}

// Resolve collapses the two filter fields into a single id. ok is false when
// the fields disagree, in which case no account can match.
func (f AccountFilter) Resolve() (id *int64, ok bool) {
	switch {
	case f.ID != nil && f.AccountID != nil:
		if *f.ID != *f.AccountID {
			return nil, false
		}
		return f.ID, true
	case f.ID != nil:
		return f.ID, true
	default:
		return f.AccountID, true
	}
}

// CashbackRequested is emitted after a transaction commits.
type CashbackRequested struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Type          PaymentMethod   `json:"type"`
	Value         decimal.Decimal `json:"value"`
	CreatedAt     time.Time       `json:"created_at"`
}
