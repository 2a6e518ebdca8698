package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationType is the kind of ledger entry
type OperationType string

const (
	OperationDebit       OperationType = "DEBIT"
	OperationCredit      OperationType = "CREDIT"
	OperationTransferOut OperationType = "TRANSFER_OUT"
	OperationTransferIn  OperationType = "TRANSFER_IN"
)

// Operation is an immutable ledger entry
type Operation struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         OperationType   `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RequestID    string          `json:"request_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryPage is one page of an account's operations, newest first
type HistoryPage struct {
	AccountID   string          `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
	CurrentPage int             `json:"current_page"`
	PageSize    int             `json:"page_size"`
	TotalPages  int             `json:"total_pages"`
	Operations  []Operation     `json:"operations"`
}

// TransferResult holds both legs of a committed transfer
type TransferResult struct {
	RequestID string    `json:"request_id"`
	Out       Operation `json:"out"`
	In        Operation `json:"in"`
	Replayed  bool      `json:"replayed"`
}
