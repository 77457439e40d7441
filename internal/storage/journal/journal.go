// Package journal is the append-only off-chain trade log. Balances derived
// from it are the sum of buys minus the sum of sells per user and symbol.
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/pkg/id"
)

var ErrNotFound = errors.New("journal entry not found")

// Store persists journal entries. Implementations never update or delete.
type Store interface {
	// Append assigns ID and CreatedAt when empty and writes the entry.
	Append(ctx context.Context, e *domain.JournalEntry) error
	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.JournalEntry, error)
	Get(ctx context.Context, id string) (domain.JournalEntry, error)
	// Balance is Σbuy − Σsell for the user and symbol.
	Balance(ctx context.Context, userID, symbol string) (decimal.Decimal, error)
	Close() error
}

// Open builds a store for driver: memory, sqlite or postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn)
	default:
		return nil, errors.Errorf("unknown journal driver %q", driver)
	}
}

func prepare(e *domain.JournalEntry, now time.Time) error {
	if e.UserID == "" {
		return errors.New("journal entry without user id")
	}
	if !e.Type.IsValid() {
		return errors.Errorf("invalid trade type %q", e.Type)
	}
	if !e.Amount.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidAmount, "journal amount %s", e.Amount)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.ID == "" {
		e.ID = id.At(e.CreatedAt)
	}
	return nil
}
