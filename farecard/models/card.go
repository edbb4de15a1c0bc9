package models

import (
	"fmt"
	"math"
	"time"
)

// Card is the balance ledger of a fare card. Balance never goes below zero:
// Debit is the only way to take money off a card and it refuses to overdraw.
//
// Card does no locking of its own; the Gate that owns it serializes access.
type Card struct {
	ID     string
	Number string
	// HolderName is the optional name printed on the card.
	HolderName string
	CreatedAt  time.Time

	balance int64
}

func NewCard(id, number string, balance int64) (*Card, error) {
	if balance < 0 {
		return nil, fmt.Errorf("opening balance %d: %w", balance, ErrInvalidAmount)
	}

	return &Card{
		ID:        id,
		Number:    number,
		balance:   balance,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *Card) Balance() int64 {
	return c.balance
}

// Credit adds amount to the balance and returns the new balance. An amount
// the balance cannot hold is rejected with ErrInvalidAmount.
func (c *Card) Credit(amount int64) (int64, error) {
	if amount <= 0 {
		return c.balance, fmt.Errorf("credit %d: %w", amount, ErrInvalidAmount)
	}
	if amount > math.MaxInt64-c.balance {
		return c.balance, fmt.Errorf("credit %d overflows balance %d: %w", amount, c.balance, ErrInvalidAmount)
	}

	c.balance += amount

	return c.balance, nil
}

// Debit takes amount off the balance. When the balance does not cover the
// amount nothing changes and ErrInsufficientFunds is returned.
func (c *Card) Debit(amount int64) (int64, error) {
	if amount <= 0 {
		return c.balance, fmt.Errorf("debit %d: %w", amount, ErrInvalidAmount)
	}

	if amount > c.balance {
		return c.balance, ErrInsufficientFunds
	}

	c.balance -= amount

	return c.balance, nil
}
