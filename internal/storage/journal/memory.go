package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// Memory keeps entries in process. Used by tests and the dev profile.
type Memory struct {
	mu      sync.RWMutex
	entries []domain.JournalEntry
	byID    map[string]int
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int), now: time.Now}
}

func (m *Memory) Append(_ context.Context, e *domain.JournalEntry) error {
	if err := prepare(e, m.now()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[e.ID]; dup {
		return errDuplicate(e.ID)
	}
	m.byID[e.ID] = len(m.entries)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]domain.JournalEntry, error) {
	m.mu.RLock()
	out := make([]domain.JournalEntry, 0)
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (domain.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return domain.JournalEntry{}, ErrNotFound
	}
	return m.entries[i], nil
}

func (m *Memory) Balance(_ context.Context, userID, symbol string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, e := range m.entries {
		if e.UserID == userID && e.Symbol == symbol {
			total = total.Add(e.SignedAmount())
		}
	}
	return total, nil
}

func (m *Memory) Close() error { return nil }

func sortNewestFirst(entries []domain.JournalEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}
