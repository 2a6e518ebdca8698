package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so operations get distinct timestamps
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	ledger   *Ledger
	factory  *AccountFactory
	history  *History
	customer *models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := newFakeClock()
	log := quietLogger()
	c := &models.Customer{Name: "Hassan", Email: "hassan@example.com"}
	if err := store.CreateCustomer(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		store:    store,
		clock:    clock,
		ledger:   NewLedger(store, log, clock.Now, time.Second),
		factory:  NewAccountFactory(store, log, clock.Now, time.Second),
		history:  NewHistory(store),
		customer: c,
	}
}

func (f *fixture) current(t *testing.T, balance, overDraft string) *models.Account {
	t.Helper()
	a, err := f.factory.OpenCurrentAccount(context.Background(), f.customer.ID, dec(balance), dec(overDraft))
	if err != nil {
		t.Fatalf("open current: %v", err)
	}
	return a
}

func (f *fixture) savings(t *testing.T, balance string) *models.Account {
	t.Helper()
	a, err := f.factory.OpenSavingsAccount(context.Background(), f.customer.ID, dec(balance), dec("3.5"))
	if err != nil {
		t.Fatalf("open savings: %v", err)
	}
	return a
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.store.LoadAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return a.Balance
}

func (f *fixture) opCount(t *testing.T, id string) int {
	t.Helper()
	ops, err := f.store.ListOperations(context.Background(), id)
	if err != nil {
		t.Fatalf("ops %s: %v", id, err)
	}
	return len(ops)
}
