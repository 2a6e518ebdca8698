package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/auth"
	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

var (
	readScopes  = []models.Role{models.RoleUser, models.RoleAdmin}
	writeScopes = []models.Role{models.RoleAdmin}
)

// Notifier is told about every committed operation
type Notifier interface {
	NotifyOperation(ctx context.Context, customer models.Customer, op models.Operation) error
}

// RateSource supplies the reference interest rate
type RateSource interface {
	ReferenceRate(ctx context.Context) (decimal.Decimal, error)
}

// Service handles business logic. Every method authorizes the bearer
// token carried in ctx (see auth.WithToken) before doing any work.
type Service struct {
	gate      *auth.Gate
	store     repository.Store
	ledger    *Ledger
	factory   *AccountFactory
	history   *History
	customers *Customers
	notifiers []Notifier
	rates     RateSource
	log       *logrus.Logger
	wg        sync.WaitGroup
}

// Option customizes a Service
type Option func(*options)

type options struct {
	now       func() time.Time
	timeout   time.Duration
	notifiers []Notifier
	rates     RateSource
}

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithStoreTimeout bounds each ledger mutation
func WithStoreTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithNotifier sends a notification after each committed operation. It
// may be given more than once.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, n) }
}

// WithRateSource enables the reference rate lookup
func WithRateSource(r RateSource) Option { return func(o *options) { o.rates = r } }

// NewService initializes a new service
func NewService(store repository.Store, gate *auth.Gate, log *logrus.Logger, opts ...Option) *Service {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		gate:      gate,
		store:     store,
		ledger:    NewLedger(store, log, o.now, o.timeout),
		factory:   NewAccountFactory(store, log, o.now, o.timeout),
		history:   NewHistory(store),
		customers: NewCustomers(store, log),
		notifiers: o.notifiers,
		rates:     o.rates,
		log:       log,
	}
}

func (s *Service) authorize(ctx context.Context, scopes []models.Role) (*auth.Principal, error) {
	return s.gate.Authorize(auth.TokenFrom(ctx), scopes...)
}

// Wait blocks until pending notifications are sent
func (s *Service) Wait() {
	s.wg.Wait()
}

// auth

// Login authenticates a user and returns a signed token
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	return s.gate.Login(ctx, username, password)
}

// Profile returns the identity behind the caller's token
func (s *Service) Profile(ctx context.Context) (*auth.Principal, error) {
	return s.authorize(ctx, nil)
}

// ChangePassword changes the caller's own password
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	p, err := s.authorize(ctx, nil)
	if err != nil {
		return err
	}
	return s.gate.ChangePassword(ctx, p.Subject, oldPassword, newPassword)
}

// accounts

func (s *Service) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.store.LoadAccount(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.store.ListAccounts(ctx)
}

func (s *Service) ListCustomerAccounts(ctx context.Context, customerID int64) ([]models.Account, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.store.ListCustomerAccounts(ctx, customerID)
}

// OpenCurrentAccount opens a current account for a customer
func (s *Service) OpenCurrentAccount(ctx context.Context, customerID int64, initialBalance, overDraft decimal.Decimal) (*models.Account, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	return s.factory.OpenCurrentAccount(ctx, customerID, initialBalance, overDraft)
}

// OpenSavingsAccount opens a savings account. A nil interestRate takes the
// reference rate when a rate source is configured, zero otherwise.
func (s *Service) OpenSavingsAccount(ctx context.Context, customerID int64, initialBalance decimal.Decimal, interestRate *decimal.Decimal) (*models.Account, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	rate := decimal.Zero
	switch {
	case interestRate != nil:
		rate = *interestRate
	case s.rates != nil:
		ref, err := s.rates.ReferenceRate(ctx)
		if err != nil {
			s.log.Warnf("Reference rate unavailable, opening at zero: %v", err)
		} else {
			rate = ref
		}
	}
	return s.factory.OpenSavingsAccount(ctx, customerID, initialBalance, rate)
}

func (s *Service) SetAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	return s.factory.SetStatus(ctx, accountID, status)
}

// ledger

func (s *Service) Debit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Operation, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	op, err := s.ledger.Debit(ctx, accountID, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *op)
	return op, nil
}

func (s *Service) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Operation, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	op, err := s.ledger.Credit(ctx, accountID, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *op)
	return op, nil
}

func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	res, err := s.ledger.Transfer(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		s.notify(ctx, res.Out, res.In)
	}
	return res, nil
}

// notify sends notifications in the background; failures are only logged
func (s *Service) notify(ctx context.Context, ops ...models.Operation) {
	if len(s.notifiers) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, op := range ops {
			a, err := s.store.LoadAccount(ctx, op.AccountID)
			if err != nil {
				s.log.Warnf("Notification skipped for operation %s: %v", op.ID, err)
				continue
			}
			c, err := s.store.LoadCustomer(ctx, a.CustomerID)
			if err != nil {
				s.log.Warnf("Notification skipped for operation %s: %v", op.ID, err)
				continue
			}
			for _, n := range s.notifiers {
				if err := n.NotifyOperation(ctx, *c, op); err != nil {
					s.log.Errorf("Notification failed for operation %s: %v", op.ID, err)
				}
			}
		}
	}()
}

// history

// History returns one page of an account's operations, newest first
func (s *Service) History(ctx context.Context, accountID string, page, size int) (*models.HistoryPage, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.history.Page(ctx, accountID, page, size)
}

// AccountHistory returns all operations of an account, newest first
func (s *Service) AccountHistory(ctx context.Context, accountID string) ([]models.Operation, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.history.All(ctx, accountID)
}

// customers

func (s *Service) SaveCustomer(ctx context.Context, c models.Customer) (*models.Customer, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	return s.customers.Save(ctx, c)
}

func (s *Service) UpdateCustomer(ctx context.Context, c models.Customer) (*models.Customer, error) {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return nil, err
	}
	return s.customers.Update(ctx, c)
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if _, err := s.authorize(ctx, writeScopes); err != nil {
		return err
	}
	return s.customers.Delete(ctx, id)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.customers.Get(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.customers.List(ctx)
}

func (s *Service) SearchCustomers(ctx context.Context, keyword string) ([]models.Customer, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.customers.Search(ctx, keyword)
}

// dashboard

// DashboardStats aggregates customer, account and operation counts
func (s *Service) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return nil, err
	}
	return s.store.Stats(ctx)
}

// ReferenceRate returns the current reference interest rate
func (s *Service) ReferenceRate(ctx context.Context) (decimal.Decimal, error) {
	if _, err := s.authorize(ctx, readScopes); err != nil {
		return decimal.Zero, err
	}
	if s.rates == nil {
		return decimal.Zero, fmt.Errorf("no reference rate source configured: %w", models.ErrStoreUnavailable)
	}
	return s.rates.ReferenceRate(ctx)
}
