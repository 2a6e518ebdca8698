package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

// AccountFactory opens typed accounts for existing customers. The initial
// balance is a creation parameter and is not recorded as an operation.
type AccountFactory struct {
	store   repository.Store
	log     *logrus.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewAccountFactory initializes an account factory. timeout bounds status
// changes the way it bounds ledger mutations.
func NewAccountFactory(store repository.Store, log *logrus.Logger, now func() time.Time, timeout time.Duration) *AccountFactory {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &AccountFactory{store: store, log: log, now: now, timeout: timeout}
}

// OpenCurrentAccount opens an account that may go down to -overDraft
func (f *AccountFactory) OpenCurrentAccount(ctx context.Context, customerID int64, initialBalance, overDraft decimal.Decimal) (*models.Account, error) {
	if overDraft.IsNegative() {
		return nil, fmt.Errorf("overdraft %s is negative: %w", overDraft, models.ErrInvalidArgument)
	}
	if initialBalance.LessThan(overDraft.Neg()) {
		return nil, fmt.Errorf("initial balance %s is below overdraft limit %s: %w", initialBalance, overDraft, models.ErrInvalidArgument)
	}
	return f.open(ctx, &models.Account{
		CustomerID: customerID,
		Type:       models.CurrentAccount,
		Balance:    initialBalance,
		OverDraft:  overDraft,
	})
}

// OpenSavingsAccount opens an account that never goes below zero
func (f *AccountFactory) OpenSavingsAccount(ctx context.Context, customerID int64, initialBalance, interestRate decimal.Decimal) (*models.Account, error) {
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("initial balance %s is negative: %w", initialBalance, models.ErrInvalidArgument)
	}
	if interestRate.IsNegative() {
		return nil, fmt.Errorf("interest rate %s is negative: %w", interestRate, models.ErrInvalidArgument)
	}
	return f.open(ctx, &models.Account{
		CustomerID:   customerID,
		Type:         models.SavingAccount,
		Balance:      initialBalance,
		InterestRate: interestRate,
	})
}

func (f *AccountFactory) open(ctx context.Context, a *models.Account) (*models.Account, error) {
	if _, err := f.store.LoadCustomer(ctx, a.CustomerID); err != nil {
		return nil, err
	}
	a.ID = uuid.NewString()
	a.Status = models.StatusActive
	a.CreatedAt = f.now()
	if err := f.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	f.log.Infof("%s %s opened for customer %d", a.Type, a.ID, a.CustomerID)
	return a, nil
}

// SetStatus suspends or reactivates an account. Only ACTIVE and SUSPENDED
// can be set; accounts are never deleted once opened.
func (f *AccountFactory) SetStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error) {
	if status != models.StatusActive && status != models.StatusSuspended {
		return nil, fmt.Errorf("status %q cannot be set: %w", status, models.ErrInvalidArgument)
	}
	var out *models.Account
	err := atomically(ctx, f.store, f.timeout, []string{accountID}, func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.LoadAccount(ctx, accountID)
		if err != nil {
			return err
		}
		a.Status = status
		out = a
		return tx.SaveAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	f.log.Infof("Account %s set to %s", accountID, status)
	return out, nil
}
