package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const listTransactionsSQL = `
SELECT t.id, t.user_id, t.amount, COALESCE(t.category_id, 0), c.name, t.transaction_date, t.transaction_type
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id
WHERE t.user_id = $1 AND t.transaction_date BETWEEN $2 AND $3
ORDER BY t.transaction_date ASC, t.id ASC`

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements Source on top of the relational transactions table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListTransactions joins transactions to their categories for the user and date range.
func (s *PostgresStore) ListTransactions(ctx context.Context, userID int64, startDate, endDate time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx, listTransactionsSQL, userID, startDate, endDate)
	if err != nil {
		return nil, WrapStoreError("query transactions", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.UserID, &rec.Amount, &rec.CategoryID, &rec.CategoryName, &rec.Date, &rec.Type)
		return rec, err
	})
	if err != nil {
		return nil, WrapStoreError("scan transactions", err)
	}
	return records, nil
}
