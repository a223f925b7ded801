package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Source with in-memory storage
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[int64][]Record // keyed by user ID
	nextID       int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[int64][]Record),
	}
}

// AddTransaction stores a record for its user, assigning an ID when none is set.
func (m *MemoryStore) AddTransaction(ctx context.Context, rec Record) Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == 0 {
		m.nextID++
		rec.ID = m.nextID
	} else if rec.ID > m.nextID {
		m.nextID = rec.ID
	}

	m.transactions[rec.UserID] = append(m.transactions[rec.UserID], rec)
	return rec
}

// ListTransactions returns the user's records dated within the inclusive range,
// ordered by date then ID.
func (m *MemoryStore) ListTransactions(ctx context.Context, userID int64, startDate, endDate time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Record
	for _, rec := range m.transactions[userID] {
		if rec.Date.Before(startDate) || rec.Date.After(endDate) {
			continue
		}
		result = append(result, rec)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}
