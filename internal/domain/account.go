package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents an account entity in the domain layer
type Account struct {
	ID      uuid.UUID
	Balance decimal.Decimal
}

// NewAccount creates an account with a fresh ID and the given opening balance
func NewAccount(balance decimal.Decimal) *Account {
	return &Account{
		ID:      uuid.New(),
		Balance: balance,
	}
}

// Validate ensures the account adheres to domain rules
func (a *Account) Validate() error {
	if err := ValidatePrecision(a.Balance); err != nil {
		return err
	}
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

// Withdraw subtracts amount from the balance.
// The balance is left untouched when it cannot cover the amount.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Deposit adds amount to the balance
func (a *Account) Deposit(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Clone returns a copy that shares no state with a
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// TotalBalance sums the balances of accounts
func TotalBalance(accounts []*Account) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range accounts {
		total = total.Add(acc.Balance)
	}
	return total
}
