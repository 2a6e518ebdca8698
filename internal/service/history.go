package service

import (
	"context"
	"fmt"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

// History serves read-only views of account operations
type History struct {
	store repository.Store
}

// NewHistory initializes a history query
func NewHistory(store repository.Store) *History {
	return &History{store: store}
}

// Page returns one page of operations, newest first
func (h *History) Page(ctx context.Context, accountID string, page, size int) (*models.HistoryPage, error) {
	if page < 0 || size <= 0 {
		return nil, fmt.Errorf("page %d size %d: %w", page, size, models.ErrInvalidArgument)
	}
	a, err := h.store.LoadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ops, total, err := h.store.QueryOperations(ctx, accountID, page, size)
	if err != nil {
		return nil, err
	}
	return &models.HistoryPage{
		AccountID:   a.ID,
		Balance:     a.Balance,
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  totalPages(total, size),
		Operations:  ops,
	}, nil
}

// All returns every operation of the account, newest first
func (h *History) All(ctx context.Context, accountID string) ([]models.Operation, error) {
	return h.store.ListOperations(ctx, accountID)
}

func totalPages(total, size int) int {
	n := total / size
	if total%size != 0 {
		n++
	}
	return n
}
