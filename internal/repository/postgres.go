package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Dan9191/digital-banking/internal/models"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS bank;
CREATE TABLE IF NOT EXISTS bank.customers (
	id    BIGSERIAL PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS bank.accounts (
	id            TEXT PRIMARY KEY,
	customer_id   BIGINT NOT NULL REFERENCES bank.customers (id),
	type          TEXT NOT NULL,
	balance       NUMERIC NOT NULL,
	status        TEXT NOT NULL,
	over_draft    NUMERIC NOT NULL DEFAULT 0,
	interest_rate NUMERIC NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bank.operations (
	seq           BIGSERIAL,
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES bank.accounts (id),
	type          TEXT NOT NULL,
	amount        NUMERIC NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	balance_after NUMERIC NOT NULL,
	request_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS operations_account_idx ON bank.operations (account_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS operations_request_idx ON bank.operations (request_id) WHERE request_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS bank.ledger_requests (
	request_id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bank.users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	roles         TEXT[] NOT NULL
);
`

// Migrate creates the bank schema if it does not exist yet
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return classify("failed to migrate", err)
	}
	return nil
}

// PostgresStore provides database operations
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore initializes a new store on an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, customer_id, type, balance, status, over_draft, interest_rate, created_at`
const operationColumns = `id, account_id, type, amount, description, balance_after, COALESCE(request_id, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.CustomerID, &a.Type, &a.Balance, &a.Status, &a.OverDraft, &a.InterestRate, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanOperation(row rowScanner) (models.Operation, error) {
	var op models.Operation
	err := row.Scan(&op.ID, &op.AccountID, &op.Type, &op.Amount, &op.Description, &op.BalanceAfter, &op.RequestID, &op.CreatedAt)
	return op, err
}

const uniqueViolation = "23505"

// classify marks transient database failures as models.ErrStoreUnavailable
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	transient := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone)
	var netErr net.Error
	if errors.As(err, &netErr) {
		transient = true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			transient = true
		case "55":
			transient = pqErr.Code == "55P03"
		}
	}
	if transient {
		return fmt.Errorf("%s: %v: %w", op, err, models.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateCustomer creates a new customer in the database
func (r *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO bank.customers (name, email)
		VALUES ($1, $2)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, c.Name, c.Email).Scan(&c.ID); err != nil {
		return classify("failed to create customer", err)
	}
	return nil
}

// UpdateCustomer overwrites the customer's contact fields
func (r *PostgresStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bank.customers SET name = $2, email = $3 WHERE id = $1`, c.ID, c.Name, c.Email)
	if err != nil {
		return classify("failed to update customer", err)
	}
	return expectRow(res, models.ErrCustomerNotFound)
}

// DeleteCustomer removes a customer that owns no accounts
func (r *PostgresStore) DeleteCustomer(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("failed to begin", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM bank.customers WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrCustomerNotFound
		}
		return classify("failed to lock customer", err)
	}
	var owned int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.accounts WHERE customer_id = $1`, id).Scan(&owned); err != nil {
		return classify("failed to count accounts", err)
	}
	if owned > 0 {
		return models.ErrCustomerHasAccounts
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bank.customers WHERE id = $1`, id); err != nil {
		return classify("failed to delete customer", err)
	}
	return classify("failed to commit", tx.Commit())
}

// LoadCustomer retrieves a customer by id
func (r *PostgresStore) LoadCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c := &models.Customer{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM bank.customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCustomerNotFound
	}
	if err != nil {
		return nil, classify("failed to find customer", err)
	}
	return c, nil
}

func (r *PostgresStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return r.SearchCustomers(ctx, "")
}

// SearchCustomers lists customers whose name contains keyword, ignoring case
func (r *PostgresStore) SearchCustomers(ctx context.Context, keyword string) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email FROM bank.customers WHERE name ILIKE $1 ORDER BY id`,
		"%"+escapeLike(keyword)+"%")
	if err != nil {
		return nil, classify("failed to search customers", err)
	}
	defer rows.Close()
	out := make([]models.Customer, 0)
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, classify("failed to scan customer", err)
		}
		out = append(out, c)
	}
	return out, classify("failed to iterate customers", rows.Err())
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CreateAccount creates a new account in the database
func (r *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO bank.accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.CustomerID, a.Type, a.Balance, a.Status, a.OverDraft, a.InterestRate, a.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return models.ErrCustomerNotFound
	}
	if err != nil {
		return classify("failed to create account", err)
	}
	return nil
}

// LoadAccount retrieves an account by id
func (r *PostgresStore) LoadAccount(ctx context.Context, id string) (*models.Account, error) {
	return loadAccount(ctx, r.db, id, "")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadAccount(ctx context.Context, q queryer, id, suffix string) (*models.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM bank.accounts WHERE id = $1`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, classify("failed to find account", err)
	}
	return a, nil
}

func (r *PostgresStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return r.listAccounts(ctx, `SELECT `+accountColumns+` FROM bank.accounts ORDER BY created_at, id`)
}

func (r *PostgresStore) ListCustomerAccounts(ctx context.Context, customerID int64) ([]models.Account, error) {
	if _, err := r.LoadCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return r.listAccounts(ctx, `SELECT `+accountColumns+` FROM bank.accounts WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
}

func (r *PostgresStore) listAccounts(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to list accounts", err)
	}
	defer rows.Close()
	out := make([]models.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, classify("failed to scan account", err)
		}
		out = append(out, *a)
	}
	return out, classify("failed to iterate accounts", rows.Err())
}

// QueryOperations reads one page of operations and the total count in a
// single read-only snapshot
func (r *PostgresStore) QueryOperations(ctx context.Context, accountID string, page, size int) ([]models.Operation, int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, classify("failed to begin", err)
	}
	defer tx.Rollback()

	if _, err := loadAccount(ctx, tx, accountID, ""); err != nil {
		return nil, 0, err
	}
	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.operations WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, classify("failed to count operations", err)
	}
	start, end := pageBounds(total, page, size)
	if start == end {
		return []models.Operation{}, total, nil
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM bank.operations WHERE account_id = $1
		 ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`,
		accountID, end-start, start)
	if err != nil {
		return nil, 0, classify("failed to query operations", err)
	}
	ops, err := collectOperations(rows)
	if err != nil {
		return nil, 0, err
	}
	return ops, total, nil
}

// ListOperations returns every operation of the account, newest first
func (r *PostgresStore) ListOperations(ctx context.Context, accountID string) ([]models.Operation, error) {
	if _, err := r.LoadAccount(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM bank.operations WHERE account_id = $1 ORDER BY created_at DESC, seq DESC`,
		accountID)
	if err != nil {
		return nil, classify("failed to query operations", err)
	}
	return collectOperations(rows)
}

func collectOperations(rows *sql.Rows) ([]models.Operation, error) {
	defer rows.Close()
	out := make([]models.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, classify("failed to scan operation", err)
		}
		out = append(out, op)
	}
	return out, classify("failed to iterate operations", rows.Err())
}

// Stats aggregates dashboard counters
func (r *PostgresStore) Stats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{
		AccountTypeCounts: map[models.AccountType]int64{models.CurrentAccount: 0, models.SavingAccount: 0},
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM bank.customers), (SELECT COUNT(*) FROM bank.operations)`).
		Scan(&stats.TotalCustomers, &stats.TotalOperations)
	if err != nil {
		return nil, classify("failed to count", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM bank.accounts GROUP BY type`)
	if err != nil {
		return nil, classify("failed to count accounts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t models.AccountType
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, classify("failed to scan account count", err)
		}
		stats.AccountTypeCounts[t] = n
		stats.TotalAccounts += n
	}
	return stats, classify("failed to iterate account counts", rows.Err())
}

// PruneRequests deletes idempotency keys older than before
func (r *PostgresStore) PruneRequests(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bank.ledger_requests WHERE created_at < $1`, before)
	if err != nil {
		return 0, classify("failed to prune requests", err)
	}
	return res.RowsAffected()
}

// Atomically locks the accounts with SELECT ... FOR UPDATE in ascending id
// order and runs fn inside one SQL transaction.
func (r *PostgresStore) Atomically(ctx context.Context, accountIDs []string, fn func(tx Tx) error) error {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify("failed to begin", err)
	}
	defer sqlTx.Rollback()

	rows, err := sqlTx.QueryContext(ctx, `SELECT id FROM bank.accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return classify("failed to lock accounts", err)
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return classify("failed to lock accounts", err)
	}
	rows.Close()

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		return err
	}
	return classify("failed to commit", sqlTx.Commit())
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) LoadAccount(ctx context.Context, id string) (*models.Account, error) {
	return loadAccount(ctx, t.tx, id, " FOR UPDATE")
}

func (t *postgresTx) SaveAccount(ctx context.Context, a *models.Account) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bank.accounts SET balance = $2, status = $3, over_draft = $4, interest_rate = $5 WHERE id = $1`,
		a.ID, a.Balance, a.Status, a.OverDraft, a.InterestRate)
	if err != nil {
		return classify("failed to save account", err)
	}
	return expectRow(res, models.ErrAccountNotFound)
}

func (t *postgresTx) AppendOperation(ctx context.Context, op *models.Operation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bank.operations (id, account_id, type, amount, description, balance_after, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		op.ID, op.AccountID, op.Type, op.Amount, op.Description, op.BalanceAfter, op.RequestID, op.CreatedAt)
	return classify("failed to append operation", err)
}

func (t *postgresTx) LookupRequest(ctx context.Context, requestID string) ([]models.Operation, bool, error) {
	var seen bool
	err := t.tx.QueryRowContext(ctx, `SELECT true FROM bank.ledger_requests WHERE request_id = $1`, requestID).Scan(&seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("failed to look up request", err)
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM bank.operations WHERE request_id = $1 ORDER BY seq`, requestID)
	if err != nil {
		return nil, false, classify("failed to query request operations", err)
	}
	ops, err := collectOperations(rows)
	if err != nil {
		return nil, false, err
	}
	return ops, true, nil
}

func (t *postgresTx) RecordRequest(ctx context.Context, requestID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bank.ledger_requests (request_id, created_at) VALUES ($1, $2)`, requestID, at)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("request %s already recorded: %w", requestID, models.ErrInvalidTransfer)
	}
	return classify("failed to record request", err)
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("failed to read result", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// PostgresUserStore keeps login accounts in bank.users
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore initializes a user store on an open database handle
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// FindUser retrieves a user by username
func (r *PostgresUserStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var roles []string
	err := r.db.QueryRowContext(ctx,
		`SELECT username, password_hash, roles FROM bank.users WHERE username = $1`, username).
		Scan(&user.Username, &user.PasswordHash, pq.Array(&roles))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, classify("failed to find user", err)
	}
	for _, role := range roles {
		user.Roles = append(user.Roles, models.Role(role))
	}
	return user, nil
}

// SaveUser creates or replaces a user
func (r *PostgresUserStore) SaveUser(ctx context.Context, u *models.User) error {
	roles := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		roles[i] = string(role)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bank.users (username, password_hash, roles)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, roles = EXCLUDED.roles`,
		u.Username, u.PasswordHash, pq.Array(roles))
	return classify("failed to save user", err)
}

// UpdatePasswordHash replaces a user's stored password hash
func (r *PostgresUserStore) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bank.users SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return classify("failed to update password", err)
	}
	return expectRow(res, models.ErrUserNotFound)
}

var (
	_ Store     = (*PostgresStore)(nil)
	_ UserStore = (*PostgresUserStore)(nil)
)
