// Package repository holds the account store used by the banking services.
package repository

import (
	"context"
	"time"

	"github.com/Dan9191/digital-banking/internal/models"
)

// Store is the durable account store
type Store interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	// DeleteCustomer fails with models.ErrCustomerHasAccounts while accounts exist
	DeleteCustomer(ctx context.Context, id int64) error
	LoadCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	SearchCustomers(ctx context.Context, keyword string) ([]models.Customer, error)

	// CreateAccount fails with models.ErrCustomerNotFound for an unknown owner
	CreateAccount(ctx context.Context, a *models.Account) error
	LoadAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListCustomerAccounts(ctx context.Context, customerID int64) ([]models.Account, error)

	// QueryOperations returns one page of an account's operations, newest
	// first, together with the total number of operations for the account.
	QueryOperations(ctx context.Context, accountID string, page, size int) ([]models.Operation, int, error)
	ListOperations(ctx context.Context, accountID string) ([]models.Operation, error)

	Stats(ctx context.Context) (*models.DashboardStats, error)

	// Atomically runs fn with the given accounts locked in ascending id
	// order. Writes made through the Tx become visible together when fn
	// returns nil and are discarded otherwise.
	Atomically(ctx context.Context, accountIDs []string, fn func(tx Tx) error) error

	// PruneRequests forgets idempotency keys recorded before the cutoff
	PruneRequests(ctx context.Context, before time.Time) (int64, error)
}

// Tx is the write view of the store inside Atomically
type Tx interface {
	LoadAccount(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, a *models.Account) error
	AppendOperation(ctx context.Context, op *models.Operation) error
	// LookupRequest returns the operations committed under requestID, if any
	LookupRequest(ctx context.Context, requestID string) ([]models.Operation, bool, error)
	RecordRequest(ctx context.Context, requestID string, at time.Time) error
}

// UserStore holds login accounts
type UserStore interface {
	FindUser(ctx context.Context, username string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

// pageBounds returns the slice bounds of page within total items. Pages
// past the end are empty; no intermediate value overflows.
func pageBounds(total, page, size int) (int, int) {
	if page < 0 || size <= 0 || page > total/size {
		return total, total
	}
	start := page * size
	if size > total-start {
		return start, total
	}
	return start, start + size
}
