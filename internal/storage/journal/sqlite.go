package journal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// SQLiteSchema stores decimals as text so no precision is lost.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	asset_symbol TEXT NOT NULL,
	amount TEXT NOT NULL,
	price TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
	external_tx_ref TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_journal_user_symbol ON journal_entries(user_id, asset_symbol);
`

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// one writer at a time for sqlite
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Append(ctx context.Context, e *domain.JournalEntry) error {
	if err := prepare(e, s.now()); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		(id, user_id, asset_symbol, amount, price, type, external_tx_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Symbol, e.Amount.String(), e.Price.String(),
		string(e.Type), nullable(e.TxRef), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert journal entry %s", e.ID)
	}
	return nil
}

func (s *SQLite) ListByUser(ctx context.Context, userID string) ([]domain.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, asset_symbol, amount, price, type, external_tx_ref, created_at
		FROM journal_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query journal entries")
	}
	defer rows.Close()

	out := make([]domain.JournalEntry, 0)
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate journal entries")
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, asset_symbol, amount, price, type, external_tx_ref, created_at
		FROM journal_entries WHERE id = ?`, id)
	e, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JournalEntry{}, ErrNotFound
	}
	return e, err
}

// Balance sums in Go: sqlite arithmetic on text columns would go through REAL.
func (s *SQLite) Balance(ctx context.Context, userID, symbol string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount, type FROM journal_entries
		WHERE user_id = ? AND asset_symbol = ?`, userID, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "query journal balance")
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amountStr, typ string
		if err := rows.Scan(&amountStr, &typ); err != nil {
			return decimal.Zero, errors.Wrap(err, "scan journal balance")
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse amount %q", amountStr)
		}
		if domain.TradeType(typ) == domain.TradeTypeSell {
			amount = amount.Neg()
		}
		total = total.Add(amount)
	}
	return total, errors.Wrap(rows.Err(), "iterate journal balance")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (domain.JournalEntry, error) {
	var (
		e                   domain.JournalEntry
		amountStr, priceStr string
		typ                 string
		txRef               sql.NullString
		createdAt           int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Symbol, &amountStr, &priceStr, &typ, &txRef, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, errors.Wrap(err, "scan journal entry")
	}
	return finish(e, amountStr, priceStr, typ, txRef.String, time.Unix(0, createdAt))
}

func finish(e domain.JournalEntry, amountStr, priceStr, typ, txRef string, createdAt time.Time) (domain.JournalEntry, error) {
	var err error
	if e.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return e, errors.Wrapf(err, "parse amount %q", amountStr)
	}
	if e.Price, err = decimal.NewFromString(priceStr); err != nil {
		return e, errors.Wrapf(err, "parse price %q", priceStr)
	}
	e.Type = domain.TradeType(typ)
	e.TxRef = txRef
	e.CreatedAt = createdAt.UTC()
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func errDuplicate(id string) error {
	return errors.Errorf("journal entry %s already exists", id)
}
