package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/digital-banking/internal/models"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(id string, customerID int64, balance string) *models.Account {
	return &models.Account{
		ID:         id,
		CustomerID: customerID,
		Type:       models.CurrentAccount,
		Balance:    decimal.RequireFromString(balance),
		Status:     models.StatusActive,
		OverDraft:  decimal.NewFromInt(100),
		CreatedAt:  epoch,
	}
}

// runStoreContract checks the behavior every Store implementation shares
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("customers", func(t *testing.T) {
		s := newStore(t)
		a := &models.Customer{Name: "Hassan", Email: "hassan@example.com"}
		b := &models.Customer{Name: "Mohamed"}
		if err := s.CreateCustomer(ctx, a); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateCustomer(ctx, b); err != nil {
			t.Fatal(err)
		}
		if a.ID == 0 || a.ID == b.ID {
			t.Fatalf("ids %d %d", a.ID, b.ID)
		}

		a.Email = "h@example.com"
		if err := s.UpdateCustomer(ctx, a); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadCustomer(ctx, a.ID)
		if err != nil || got.Email != "h@example.com" {
			t.Fatalf("got=%+v err=%v", got, err)
		}

		found, err := s.SearchCustomers(ctx, "HAM")
		if err != nil || len(found) != 1 || found[0].ID != b.ID {
			t.Fatalf("search=%+v err=%v", found, err)
		}
		found, err = s.SearchCustomers(ctx, "%")
		if err != nil || len(found) != 0 {
			t.Fatalf("wildcard search=%+v err=%v", found, err)
		}

		if err := s.DeleteCustomer(ctx, b.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LoadCustomer(ctx, b.ID); !errors.Is(err, models.ErrCustomerNotFound) {
			t.Fatalf("err=%v", err)
		}
		if err := s.UpdateCustomer(ctx, b); !errors.Is(err, models.ErrCustomerNotFound) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("accounts", func(t *testing.T) {
		s := newStore(t)
		c := &models.Customer{Name: "Hassan"}
		_ = s.CreateCustomer(ctx, c)

		if err := s.CreateAccount(ctx, newAccount("acc-x", c.ID+1000, "0")); !errors.Is(err, models.ErrCustomerNotFound) {
			t.Fatalf("err=%v", err)
		}
		if err := s.CreateAccount(ctx, newAccount("acc-1", c.ID, "10.50")); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadAccount(ctx, "acc-1")
		if err != nil || !got.Balance.Equal(decimal.RequireFromString("10.5")) || got.Type != models.CurrentAccount {
			t.Fatalf("got=%+v err=%v", got, err)
		}
		if _, err := s.LoadAccount(ctx, "nope"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Fatalf("err=%v", err)
		}
		owned, err := s.ListCustomerAccounts(ctx, c.ID)
		if err != nil || len(owned) != 1 {
			t.Fatalf("owned=%v err=%v", owned, err)
		}
		if err := s.DeleteCustomer(ctx, c.ID); !errors.Is(err, models.ErrCustomerHasAccounts) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("atomically", func(t *testing.T) {
		s := newStore(t)
		c := &models.Customer{Name: "Hassan"}
		_ = s.CreateCustomer(ctx, c)
		_ = s.CreateAccount(ctx, newAccount("acc-a", c.ID, "100"))
		_ = s.CreateAccount(ctx, newAccount("acc-b", c.ID, "0"))

		move := func(requestID string, fail error) error {
			return s.Atomically(ctx, []string{"acc-b", "acc-a"}, func(tx Tx) error {
				src, err := tx.LoadAccount(ctx, "acc-a")
				if err != nil {
					return err
				}
				dst, err := tx.LoadAccount(ctx, "acc-b")
				if err != nil {
					return err
				}
				src.Balance = src.Balance.Sub(decimal.NewFromInt(30))
				dst.Balance = dst.Balance.Add(decimal.NewFromInt(30))
				for i, a := range []*models.Account{src, dst} {
					if err := tx.SaveAccount(ctx, a); err != nil {
						return err
					}
					op := &models.Operation{
						ID:           fmt.Sprintf("%s-%d", requestID, i),
						AccountID:    a.ID,
						Type:         models.OperationTransferOut,
						Amount:       decimal.NewFromInt(30),
						BalanceAfter: a.Balance,
						RequestID:    requestID,
						CreatedAt:    epoch,
					}
					if i == 1 {
						op.Type = models.OperationTransferIn
					}
					if err := tx.AppendOperation(ctx, op); err != nil {
						return err
					}
				}
				if err := tx.RecordRequest(ctx, requestID, epoch); err != nil {
					return err
				}
				return fail
			})
		}

		boom := errors.New("boom")
		if err := move("r1", boom); !errors.Is(err, boom) {
			t.Fatalf("err=%v", err)
		}
		a, _ := s.LoadAccount(ctx, "acc-a")
		if !a.Balance.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("rolled back balance=%s", a.Balance)
		}

		if err := move("r2", nil); err != nil {
			t.Fatal(err)
		}
		a, _ = s.LoadAccount(ctx, "acc-a")
		b, _ := s.LoadAccount(ctx, "acc-b")
		if !a.Balance.Equal(decimal.NewFromInt(70)) || !b.Balance.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("balances %s %s", a.Balance, b.Balance)
		}

		err := s.Atomically(ctx, nil, func(tx Tx) error {
			ops, seen, err := tx.LookupRequest(ctx, "r2")
			if err != nil {
				return err
			}
			if !seen || len(ops) != 2 || ops[0].Type != models.OperationTransferOut {
				return fmt.Errorf("lookup r2: seen=%v ops=%v", seen, ops)
			}
			if _, seen, _ := tx.LookupRequest(ctx, "r1"); seen {
				return errors.New("rolled back request recorded")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		n, err := s.PruneRequests(ctx, epoch.Add(time.Second))
		if err != nil || n != 1 {
			t.Fatalf("pruned=%d err=%v", n, err)
		}
	})

	t.Run("request id recorded once", func(t *testing.T) {
		s := newStore(t)
		c := &models.Customer{Name: "Hassan"}
		_ = s.CreateCustomer(ctx, c)
		for _, id := range []string{"acc-a", "acc-b"} {
			if err := s.CreateAccount(ctx, newAccount(id, c.ID, "0")); err != nil {
				t.Fatal(err)
			}
		}
		record := func(accountID string) error {
			return s.Atomically(ctx, []string{accountID}, func(tx Tx) error {
				return tx.RecordRequest(ctx, "r1", epoch)
			})
		}
		if err := record("acc-a"); err != nil {
			t.Fatal(err)
		}
		if err := record("acc-b"); !errors.Is(err, models.ErrInvalidTransfer) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("operations", func(t *testing.T) {
		s := newStore(t)
		c := &models.Customer{Name: "Hassan"}
		_ = s.CreateCustomer(ctx, c)
		_ = s.CreateAccount(ctx, newAccount("acc-h", c.ID, "0"))
		for i := 0; i < 7; i++ {
			err := s.Atomically(ctx, []string{"acc-h"}, func(tx Tx) error {
				return tx.AppendOperation(ctx, &models.Operation{
					ID:           fmt.Sprintf("op-%d", i),
					AccountID:    "acc-h",
					Type:         models.OperationCredit,
					Amount:       decimal.NewFromInt(int64(i + 1)),
					BalanceAfter: decimal.NewFromInt(int64(i + 1)),
					CreatedAt:    epoch.Add(time.Duration(i) * time.Minute),
				})
			})
			if err != nil {
				t.Fatal(err)
			}
		}

		page, total, err := s.QueryOperations(ctx, "acc-h", 1, 3)
		if err != nil || total != 7 || len(page) != 3 || page[0].ID != "op-3" {
			t.Fatalf("page=%v total=%d err=%v", page, total, err)
		}
		page, _, _ = s.QueryOperations(ctx, "acc-h", 2, 3)
		if len(page) != 1 || page[0].ID != "op-0" {
			t.Fatalf("last page=%v", page)
		}
		page, _, _ = s.QueryOperations(ctx, "acc-h", 5, 3)
		if len(page) != 0 {
			t.Fatalf("beyond last page=%v", page)
		}
		if _, _, err := s.QueryOperations(ctx, "nope", 0, 3); !errors.Is(err, models.ErrAccountNotFound) {
			t.Fatalf("err=%v", err)
		}

		stats, err := s.Stats(ctx)
		if err != nil || stats.TotalOperations != 7 || stats.AccountTypeCounts[models.CurrentAccount] != 1 {
			t.Fatalf("stats=%+v err=%v", stats, err)
		}
	})
}

func runUserStoreContract(t *testing.T, users UserStore) {
	ctx := context.Background()
	if _, err := users.FindUser(ctx, "ghost"); !errors.Is(err, models.ErrUserNotFound) {
		t.Fatalf("err=%v", err)
	}
	u := &models.User{Username: "admin", PasswordHash: "h1", Roles: []models.Role{models.RoleUser, models.RoleAdmin}}
	if err := users.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := users.UpdatePasswordHash(ctx, "admin", "h2"); err != nil {
		t.Fatal(err)
	}
	got, err := users.FindUser(ctx, "admin")
	if err != nil || got.PasswordHash != "h2" || len(got.Roles) != 2 || got.Roles[1] != models.RoleAdmin {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	if err := users.UpdatePasswordHash(ctx, "ghost", "x"); !errors.Is(err, models.ErrUserNotFound) {
		t.Fatalf("err=%v", err)
	}
}
