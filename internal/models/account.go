package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType tags the variant payload carried by an Account
type AccountType string

const (
	CurrentAccount AccountType = "CurrentAccount"
	SavingAccount  AccountType = "SavingAccount"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	StatusCreated   AccountStatus = "CREATED"
	StatusActive    AccountStatus = "ACTIVE"
	StatusSuspended AccountStatus = "SUSPENDED"
)

// ParseAccountStatus validates a status name
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch st := AccountStatus(s); st {
	case StatusCreated, StatusActive, StatusSuspended:
		return st, nil
	}
	return "", fmt.Errorf("unknown account status %q: %w", s, ErrInvalidArgument)
}

// Account represents a bank account. Type selects which of OverDraft
// (CurrentAccount) or InterestRate (SavingAccount) is meaningful.
type Account struct {
	ID           string          `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Type         AccountType     `json:"type"`
	Balance      decimal.Decimal `json:"balance"`
	Status       AccountStatus   `json:"status"`
	OverDraft    decimal.Decimal `json:"over_draft"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Floor returns the lowest balance the account may hold
func (a *Account) Floor() decimal.Decimal {
	if a.Type == CurrentAccount {
		return a.OverDraft.Neg()
	}
	return decimal.Zero
}

// CanHold reports whether balance respects the account's floor
func (a *Account) CanHold(balance decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(a.Floor())
}

// Debit lowers the balance by amount, refusing to cross the floor
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	next := a.Balance.Sub(amount)
	if !a.CanHold(next) {
		return fmt.Errorf("account %s: balance %s, debit %s: %w", a.ID, a.Balance, amount, ErrInsufficientBalance)
	}
	a.Balance = next
	return nil
}

// Credit raises the balance by amount
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}
