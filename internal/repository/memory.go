package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/digital-banking/internal/models"
)

// MemoryStore is an in-process Store. Each account has its own lock;
// writes staged by a Tx are checked before any of them is applied, so a
// failing commit leaves no partial effect.
type MemoryStore struct {
	mu           sync.RWMutex
	nextCustomer int64
	customers    map[int64]*models.Customer
	accounts     map[string]*models.Account
	locks        map[string]chan struct{}
	operations   map[string][]models.Operation // per account, oldest first
	totalOps     int64
	requests     map[string]time.Time
	requestOps   map[string][]models.Operation

	// FaultHook, when set, is called for every staged write while a
	// commit is prepared. A non-nil result aborts the whole commit.
	FaultHook func(kind string) error
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:  make(map[int64]*models.Customer),
		accounts:   make(map[string]*models.Account),
		locks:      make(map[string]chan struct{}),
		operations: make(map[string][]models.Operation),
		requests:   make(map[string]time.Time),
		requestOps: make(map[string][]models.Operation),
	}
}

func (s *MemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCustomer++
	c.ID = s.nextCustomer
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; !ok {
		return models.ErrCustomerNotFound
	}
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteCustomer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return models.ErrCustomerNotFound
	}
	for _, a := range s.accounts {
		if a.CustomerID == id {
			return models.ErrCustomerHasAccounts
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *MemoryStore) LoadCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, models.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return s.SearchCustomers(ctx, "")
}

func (s *MemoryStore) SearchCustomers(ctx context.Context, keyword string) ([]models.Customer, error) {
	keyword = strings.ToLower(keyword)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if strings.Contains(strings.ToLower(c.Name), keyword) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[a.CustomerID]; !ok {
		return models.ErrCustomerNotFound
	}
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	cp := *a
	s.accounts[a.ID] = &cp
	s.locks[a.ID] = make(chan struct{}, 1)
	return nil
}

func (s *MemoryStore) LoadAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadAccountLocked(id)
}

func (s *MemoryStore) loadAccountLocked(id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.filterAccounts(func(*models.Account) bool { return true }), nil
}

func (s *MemoryStore) ListCustomerAccounts(ctx context.Context, customerID int64) ([]models.Account, error) {
	s.mu.RLock()
	_, ok := s.customers[customerID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrCustomerNotFound
	}
	return s.filterAccounts(func(a *models.Account) bool { return a.CustomerID == customerID }), nil
}

func (s *MemoryStore) filterAccounts(keep func(*models.Account) bool) []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0)
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) QueryOperations(ctx context.Context, accountID string, page, size int) ([]models.Operation, int, error) {
	all, err := s.ListOperations(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	start, end := pageBounds(len(all), page, size)
	return all[start:end], len(all), nil
}

// ListOperations returns every operation of the account, newest first
func (s *MemoryStore) ListOperations(ctx context.Context, accountID string) ([]models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, models.ErrAccountNotFound
	}
	ops := s.operations[accountID]
	out := make([]models.Operation, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = op
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*models.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.DashboardStats{
		TotalCustomers:    int64(len(s.customers)),
		TotalAccounts:     int64(len(s.accounts)),
		AccountTypeCounts: map[models.AccountType]int64{models.CurrentAccount: 0, models.SavingAccount: 0},
		TotalOperations:   s.totalOps,
	}
	for _, a := range s.accounts {
		stats.AccountTypeCounts[a.Type]++
	}
	return stats, nil
}

func (s *MemoryStore) PruneRequests(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.requests {
		if at.Before(before) {
			delete(s.requests, id)
			delete(s.requestOps, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Atomically(ctx context.Context, accountIDs []string, fn func(tx Tx) error) error {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	var held []chan struct{}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}()
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		s.mu.RLock()
		lock, ok := s.locks[id]
		s.mu.RUnlock()
		if !ok {
			// unknown account: nothing to lock, the Tx load reports it
			continue
		}
		select {
		case lock <- struct{}{}:
			held = append(held, lock)
		case <-ctx.Done():
			return fmt.Errorf("lock account %s: %v: %w", id, ctx.Err(), models.ErrStoreUnavailable)
		}
	}

	tx := &memoryTx{store: s, accounts: make(map[string]*models.Account)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *MemoryStore) commit(ctx context.Context, tx *memoryTx) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %v: %w", err, models.ErrStoreUnavailable)
	}
	if s.FaultHook != nil {
		for range tx.accounts {
			if err := s.FaultHook("save_account"); err != nil {
				return fmt.Errorf("commit: %v: %w", err, models.ErrStoreUnavailable)
			}
		}
		for range tx.ops {
			if err := s.FaultHook("append_operation"); err != nil {
				return fmt.Errorf("commit: %v: %w", err, models.ErrStoreUnavailable)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.requests {
		if _, ok := s.requests[id]; ok {
			return fmt.Errorf("request %s already recorded: %w", id, models.ErrInvalidTransfer)
		}
	}
	for id, a := range tx.accounts {
		cp := *a
		s.accounts[id] = &cp
	}
	for _, op := range tx.ops {
		s.operations[op.AccountID] = append(s.operations[op.AccountID], op)
		s.totalOps++
		if op.RequestID != "" {
			s.requestOps[op.RequestID] = append(s.requestOps[op.RequestID], op)
		}
	}
	for id, at := range tx.requests {
		s.requests[id] = at
	}
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	accounts map[string]*models.Account
	ops      []models.Operation
	requests map[string]time.Time
}

func (t *memoryTx) LoadAccount(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := t.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return t.store.LoadAccount(ctx, id)
}

func (t *memoryTx) SaveAccount(ctx context.Context, a *models.Account) error {
	if _, err := t.LoadAccount(ctx, a.ID); err != nil {
		return err
	}
	cp := *a
	t.accounts[a.ID] = &cp
	return nil
}

func (t *memoryTx) AppendOperation(ctx context.Context, op *models.Operation) error {
	t.ops = append(t.ops, *op)
	return nil
}

func (t *memoryTx) LookupRequest(ctx context.Context, requestID string) ([]models.Operation, bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if _, ok := t.store.requests[requestID]; !ok {
		return nil, false, nil
	}
	return append([]models.Operation(nil), t.store.requestOps[requestID]...), true, nil
}

func (t *memoryTx) RecordRequest(ctx context.Context, requestID string, at time.Time) error {
	if t.requests == nil {
		t.requests = make(map[string]time.Time)
	}
	t.requests[requestID] = at
	return nil
}

// users

// MemoryUserStore keeps login accounts in process memory
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemoryUserStore returns an empty user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (s *MemoryUserStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	u.Roles = append([]models.Role(nil), u.Roles...)
	return &u, nil
}

func (s *MemoryUserStore) SaveUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	cp.Roles = append([]models.Role(nil), u.Roles...)
	s.users[u.Username] = cp
	return nil
}

func (s *MemoryUserStore) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[username] = u
	return nil
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ UserStore = (*MemoryUserStore)(nil)
)
