package models

import (
	"errors"
	"time"
)

type TransactionKind string

const (
	TransactionKindRide  TransactionKind = "ride"
	TransactionKindTopUp TransactionKind = "top_up"
)

type TransactionResult string

const (
	TransactionResultSuccess           TransactionResult = "success"
	TransactionResultInsufficientFunds TransactionResult = "insufficient_funds"
	TransactionResultCardDisabled      TransactionResult = "card_disabled"
)

// ResultFromError maps a ledger or gate error to a transaction result. The
// second return value is false for errors that are not transaction outcomes
// (invalid amounts, storage failures).
func ResultFromError(err error) (TransactionResult, bool) {
	switch {
	case err == nil:
		return TransactionResultSuccess, true
	case errors.Is(err, ErrInsufficientFunds):
		return TransactionResultInsufficientFunds, true
	case errors.Is(err, ErrCardDisabled):
		return TransactionResultCardDisabled, true
	}
	return "", false
}

// Transaction describes the outcome of one ride or payment.
type Transaction struct {
	ID        string            `json:"id"`
	CardID    string            `json:"card_id"`
	Kind      TransactionKind   `json:"kind"`
	Amount    int64             `json:"amount"`
	Result    TransactionResult `json:"result"`
	Balance   int64             `json:"balance"`
	CreatedAt time.Time         `json:"created_at"`
}

func (t Transaction) Succeeded() bool {
	return t.Result == TransactionResultSuccess
}
