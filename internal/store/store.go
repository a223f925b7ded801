package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// TransactionType distinguishes money leaving and entering a user's accounts.
type TransactionType string

const (
	TransactionTypeExpense TransactionType = "expense"
	TransactionTypeIncome  TransactionType = "income"
)

// UnknownCategory is the display name used when a transaction has no category.
const UnknownCategory = "Unknown"

// Record is a transaction row as returned by a backing store, before normalization.
// Nullable columns stay nullable here; the Loader decides how to fill them.
type Record struct {
	ID           int64
	UserID       int64
	Amount       decimal.NullDecimal
	CategoryID   int64
	CategoryName *string
	Date         time.Time
	Type         string
}

// Transaction is the normalized, read-only view of a transaction used by the
// anomaly and forecast pipelines.
type Transaction struct {
	ID           int64           `json:"id"`
	Amount       float64         `json:"amount"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Date         time.Time       `json:"transaction_date"`
	Type         TransactionType `json:"transaction_type"`
}

// IsExpense reports whether the transaction is an expense.
func (t Transaction) IsExpense() bool {
	return t.Type == TransactionTypeExpense
}

// Source defines the read operation every transaction backend must provide.
type Source interface {
	// ListTransactions returns the user's transactions dated within [startDate, endDate].
	ListTransactions(ctx context.Context, userID int64, startDate, endDate time.Time) ([]Record, error)
}

// WrapStoreError wraps a backend error with the operation that failed.
func WrapStoreError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, err)
}
