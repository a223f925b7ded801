package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/observability"
	"go.uber.org/zap"
)

// TransactionLoader is the read contract consumed by the anomaly and forecast pipelines.
type TransactionLoader interface {
	Load(ctx context.Context, userID int64, startDate, endDate time.Time) []Transaction
}

// Loader fetches transactions from a Source and normalizes them.
// Backend failures are logged and degrade to an empty result.
type Loader struct {
	source  Source
	backend string
	logger  *zap.Logger
}

// NewLoader creates a loader over source. backend labels log lines and metrics.
func NewLoader(source Source, backend string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:  source,
		backend: backend,
		logger:  logger.With(zap.String("component", "loader"), zap.String("backend", backend)),
	}
}

// Load returns the user's expense and income transactions dated within
// [startDate, endDate] (date precision, both ends inclusive), ordered by date then ID.
func (l *Loader) Load(ctx context.Context, userID int64, startDate, endDate time.Time) []Transaction {
	start := DateOf(startDate)
	end := DateOf(endDate).AddDate(0, 0, 1).Add(-time.Nanosecond)

	records, err := l.source.ListTransactions(ctx, userID, start, end)
	if err != nil {
		l.logger.Warn("load_transactions_failed",
			zap.Int64("user_id", userID),
			zap.Time("start_date", start),
			zap.Time("end_date", end),
			zap.Error(err))
		observability.LoaderErrors.WithLabelValues(l.backend).Inc()
		return []Transaction{}
	}

	transactions := make([]Transaction, 0, len(records))
	for _, rec := range records {
		tx, ok := Normalize(rec)
		if !ok {
			continue
		}
		transactions = append(transactions, tx)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		if !transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].Date.Before(transactions[j].Date)
		}
		return transactions[i].ID < transactions[j].ID
	})

	l.logger.Debug("transactions_loaded",
		zap.Int64("user_id", userID),
		zap.Int("n_records", len(records)),
		zap.Int("n_transactions", len(transactions)))
	return transactions
}

// Normalize converts a raw record into a Transaction. It reports false for
// records whose type is neither expense nor income.
func Normalize(rec Record) (Transaction, bool) {
	txType := TransactionType(strings.ToLower(strings.TrimSpace(rec.Type)))
	if txType == "" {
		txType = TransactionTypeExpense
	}
	if txType != TransactionTypeExpense && txType != TransactionTypeIncome {
		return Transaction{}, false
	}

	amount := 0.0
	if rec.Amount.Valid {
		amount = rec.Amount.Decimal.InexactFloat64()
	}
	if amount < 0 {
		amount = 0
	}

	category := UnknownCategory
	if rec.CategoryName != nil && strings.TrimSpace(*rec.CategoryName) != "" {
		category = strings.TrimSpace(*rec.CategoryName)
	}

	return Transaction{
		ID:           rec.ID,
		Amount:       amount,
		CategoryID:   rec.CategoryID,
		CategoryName: category,
		Date:         DateOf(rec.Date),
		Type:         txType,
	}, true
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
