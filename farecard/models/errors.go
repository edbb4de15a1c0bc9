package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCardDisabled      = errors.New("card is disabled")
	// ErrInvalidAmount is a caller contract violation: amounts must be positive.
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidState  = errors.New("invalid access state")
)
