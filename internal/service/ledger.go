package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

// DefaultStoreTimeout bounds every store interaction of a mutation
const DefaultStoreTimeout = 5 * time.Second

// Ledger executes balance mutations and appends their operations
type Ledger struct {
	store   repository.Store
	log     *logrus.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewLedger initializes a ledger engine
func NewLedger(store repository.Store, log *logrus.Logger, now func() time.Time, timeout time.Duration) *Ledger {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Ledger{store: store, log: log, now: now, timeout: timeout}
}

// TransferRequest describes a transfer between two accounts. RequestID
// makes retries idempotent; an empty one is replaced by a fresh UUID.
type TransferRequest struct {
	RequestID   string
	Source      string
	Destination string
	Amount      decimal.Decimal
	Description string
}

// atomically runs fn against the store under a fresh deadline that does
// not inherit the caller's cancellation, so a disconnecting client cannot
// interrupt a commit halfway.
func atomically(ctx context.Context, store repository.Store, timeout time.Duration, ids []string,
	fn func(ctx context.Context, tx repository.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	err := store.Atomically(ctx, ids, func(tx repository.Tx) error { return fn(ctx, tx) })
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%v: %w", err, models.ErrStoreUnavailable)
	}
	return err
}

func (l *Ledger) atomically(ctx context.Context, ids []string, fn func(ctx context.Context, tx repository.Tx) error) error {
	return atomically(ctx, l.store, l.timeout, ids, fn)
}

func (l *Ledger) newOperation(a *models.Account, kind models.OperationType, amount decimal.Decimal, description, requestID string, at time.Time) models.Operation {
	return models.Operation{
		ID:           uuid.NewString(),
		AccountID:    a.ID,
		Type:         kind,
		Amount:       amount,
		Description:  description,
		BalanceAfter: a.Balance,
		RequestID:    requestID,
		CreatedAt:    at,
	}
}

func loadActive(ctx context.Context, tx repository.Tx, id string) (*models.Account, error) {
	a, err := tx.LoadAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusActive {
		return nil, fmt.Errorf("account %s is %s: %w", id, a.Status, models.ErrAccountNotActive)
	}
	return a, nil
}

// Debit withdraws amount from an account
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Operation, error) {
	return l.single(ctx, accountID, models.OperationDebit, amount, description, (*models.Account).Debit)
}

// Credit deposits amount into an account
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*models.Operation, error) {
	return l.single(ctx, accountID, models.OperationCredit, amount, description, (*models.Account).Credit)
}

func (l *Ledger) single(ctx context.Context, accountID string, kind models.OperationType, amount decimal.Decimal, description string,
	apply func(*models.Account, decimal.Decimal) error) (*models.Operation, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	var op models.Operation
	err := l.atomically(ctx, []string{accountID}, func(ctx context.Context, tx repository.Tx) error {
		a, err := loadActive(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := apply(a, amount); err != nil {
			return err
		}
		op = l.newOperation(a, kind, amount, description, "", l.now())
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.AppendOperation(ctx, &op)
	})
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"account": accountID,
		"kind":    kind,
		"amount":  amount.String(),
		"balance": op.BalanceAfter.String(),
	}).Info("Operation committed")
	return &op, nil
}

// Transfer moves money between two distinct accounts. Both legs and
// their operations commit together or not at all.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", models.ErrInvalidTransfer)
	}
	if req.Source == req.Destination {
		return nil, fmt.Errorf("source and destination are the same account: %w", models.ErrInvalidTransfer)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	result := &models.TransferResult{RequestID: req.RequestID}
	err := l.atomically(ctx, []string{req.Source, req.Destination}, func(ctx context.Context, tx repository.Tx) error {
		prior, seen, err := tx.LookupRequest(ctx, req.RequestID)
		if err != nil {
			return err
		}
		if seen {
			return replay(result, req, prior)
		}

		src, err := loadActive(ctx, tx, req.Source)
		if err != nil {
			return err
		}
		dst, err := loadActive(ctx, tx, req.Destination)
		if err != nil {
			return err
		}
		if err := src.Debit(req.Amount); err != nil {
			return err
		}
		if err := dst.Credit(req.Amount); err != nil {
			return err
		}

		outDesc, inDesc := req.Description, req.Description
		if req.Description == "" {
			outDesc = "Transfer to " + dst.ID
			inDesc = "Transfer from " + src.ID
		}
		now := l.now()
		result.Out = l.newOperation(src, models.OperationTransferOut, req.Amount, outDesc, req.RequestID, now)
		result.In = l.newOperation(dst, models.OperationTransferIn, req.Amount, inDesc, req.RequestID, now)

		if err := tx.SaveAccount(ctx, src); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, dst); err != nil {
			return err
		}
		if err := tx.AppendOperation(ctx, &result.Out); err != nil {
			return err
		}
		if err := tx.AppendOperation(ctx, &result.In); err != nil {
			return err
		}
		return tx.RecordRequest(ctx, req.RequestID, now)
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		l.log.WithField("request", req.RequestID).Info("Transfer replayed")
		return result, nil
	}
	l.log.WithFields(logrus.Fields{
		"from":    req.Source,
		"to":      req.Destination,
		"amount":  req.Amount.String(),
		"request": req.RequestID,
	}).Info("Transfer committed")
	return result, nil
}

// replay fills result from the legs committed under the same request id.
// A request id belongs to the account pair it was first used with.
func replay(result *models.TransferResult, req TransferRequest, prior []models.Operation) error {
	for _, op := range prior {
		switch op.Type {
		case models.OperationTransferOut:
			result.Out = op
		case models.OperationTransferIn:
			result.In = op
		}
	}
	if result.Out.ID == "" || result.In.ID == "" {
		return fmt.Errorf("request %s was recorded without both transfer legs: %w", result.RequestID, models.ErrInvalidTransfer)
	}
	if result.Out.AccountID != req.Source || result.In.AccountID != req.Destination {
		return fmt.Errorf("request %s was already used for %s -> %s: %w",
			result.RequestID, result.Out.AccountID, result.In.AccountID, models.ErrInvalidTransfer)
	}
	result.Replayed = true
	return nil
}
