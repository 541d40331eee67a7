package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferRequest moves Amount from one account to another.
// It is never persisted.
type TransferRequest struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
}

const (
	// MaxScale is the most decimal places an amount or balance may carry
	MaxScale = 18
	// MaxDigits bounds the significant digits, integer part included
	MaxDigits = 38
)

// ValidatePrecision rejects values outside MaxScale and MaxDigits.
// It only inspects the exponent and coefficient, so it is safe on untrusted input
// before any arithmetic rescales the value.
func ValidatePrecision(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxScale || exp > MaxDigits {
		return ErrAmountOutOfRange
	}

	digits := int64(d.NumDigits())
	if exp > 0 {
		digits += exp
	}
	if digits > MaxDigits {
		return ErrAmountOutOfRange
	}
	return nil
}

// ValidateAmount fails with ErrInvalidAmount unless amount is strictly positive
// and within ValidatePrecision bounds
func ValidateAmount(amount decimal.Decimal) error {
	if err := ValidatePrecision(amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the request shape without touching any store
func (r TransferRequest) Validate() error {
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if r.FromAccountID == r.ToAccountID {
		return ErrSameAccount
	}
	return nil
}

// LockOrder returns both account IDs, lexically smaller first.
// Every unit of work touching the same pair loads them in this order.
func (r TransferRequest) LockOrder() (uuid.UUID, uuid.UUID) {
	if r.ToAccountID.String() < r.FromAccountID.String() {
		return r.ToAccountID, r.FromAccountID
	}
	return r.FromAccountID, r.ToAccountID
}
