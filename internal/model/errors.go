package model

import "errors"

var (
	ErrAccountExists          = errors.New("account already exists")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountInUse           = errors.New("account is referenced by transactions")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrCashbackAlreadyApplied = errors.New("cashback already applied")
)
