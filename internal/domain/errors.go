package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount is returned when a transfer amount is zero or negative
	ErrInvalidAmount = errors.New("transfer amount must be positive")

	// ErrSameAccount is returned when source and destination are the same account.
	// errors.Is(ErrSameAccount, ErrInvalidAmount) holds.
	ErrSameAccount error = &invalidTransferError{msg: "source and destination accounts must differ"}

	// ErrAmountOutOfRange is returned for amounts or balances carrying more
	// precision than MaxScale or MaxDigits allow. It is InvalidAmount-class.
	ErrAmountOutOfRange error = &invalidTransferError{msg: "amount exceeds supported precision"}

	// ErrAccountNotFound is returned when an account id is absent from the store
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists is returned when creating an account whose ID is taken
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrInsufficientFunds is returned when the source balance is lower than the amount
	ErrInsufficientFunds = errors.New("not enough funds in the account to transfer")

	// ErrNegativeBalance is returned when an account would be stored with a negative balance
	ErrNegativeBalance = errors.New("account balance cannot be negative")

	// ErrConflict is reported by a store when a unit of work could not be
	// serialized against concurrently committed units. It is retryable.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrOverloaded is returned once conflicts persisted through every retry attempt
	ErrOverloaded = errors.New("server is overloaded, please try again later")
)

// invalidTransferError is a validation fault that belongs to the ErrInvalidAmount class
type invalidTransferError struct {
	msg string
}

func (e *invalidTransferError) Error() string {
	return e.msg
}

func (e *invalidTransferError) Is(target error) bool {
	return target == ErrInvalidAmount
}

// AccountNotFoundError identifies which account was missing
type AccountNotFoundError struct {
	ID uuid.UUID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account with ID %s not found", e.ID)
}

// Unwrap lets errors.Is(err, ErrAccountNotFound) match
func (e *AccountNotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// NewAccountNotFoundError builds an AccountNotFoundError for id
func NewAccountNotFoundError(id uuid.UUID) error {
	return &AccountNotFoundError{ID: id}
}

// IsPermanent reports whether err is a business or input fault that must not be retried
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientFunds)
}
