package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const transactionsCollection = "transactions"

// firestoreTransaction mirrors a document in the transactions collection.
// NOTE: Field names are PascalCase since documents are written from Go structs without tags.
type firestoreTransaction struct {
	Id           int64
	UserId       int64
	Amount       *float64
	CategoryId   int64
	CategoryName *string
	Date         time.Time
	Type         string
}

// FirestoreStore implements the Source interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

// ListTransactions queries the user's transactions within the inclusive date range.
func (s *FirestoreStore) ListTransactions(ctx context.Context, userID int64, startDate, endDate time.Time) ([]Record, error) {
	// Firestore requires OrderBy on the range field first; ID ordering is applied after the fetch.
	query := s.client.Collection(transactionsCollection).
		Where("UserId", "==", userID).
		Where("Date", ">=", startDate).
		Where("Date", "<=", endDate).
		OrderBy("Date", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []Record
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, WrapStoreError("list transactions", err)
		}

		var tx firestoreTransaction
		if err := doc.DataTo(&tx); err != nil {
			return nil, fmt.Errorf("failed to parse transaction %s: %w", doc.Ref.ID, err)
		}
		records = append(records, tx.toRecord())
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (t firestoreTransaction) toRecord() Record {
	rec := Record{
		ID:           t.Id,
		UserID:       t.UserId,
		CategoryID:   t.CategoryId,
		CategoryName: t.CategoryName,
		Date:         t.Date,
		Type:         t.Type,
	}
	if t.Amount != nil {
		rec.Amount = decimal.NewNullDecimal(decimal.NewFromFloat(*t.Amount))
	}
	return rec
}
