package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced portfolio or position does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a unique-key violation or when concurrent
	// writes to the same rows could not be serialized. Units of work failing
	// with ErrConflict are safe to retry.
	ErrConflict = errors.New("conflict")

	// ErrInvalidAmount is returned for a non-positive funding amount or a
	// negative fee.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidQuantity is returned for a non-positive trade quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPrice is returned for a negative price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInsufficientFunds is returned when a withdrawal or buy exceeds the
	// available cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
