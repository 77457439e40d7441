package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// PostgresSchema describes the table the production journal expects. It is
// applied by the database owner, not by this service.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	asset_symbol TEXT NOT NULL,
	amount NUMERIC(36, 18) NOT NULL CHECK (amount > 0),
	price NUMERIC(36, 18) NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
	external_tx_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, created_at DESC);
`

type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return NewPostgresFromPool(pool), nil
}

func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (p *Postgres) Append(ctx context.Context, e *domain.JournalEntry) error {
	if err := prepare(e, p.now()); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO journal_entries
		(id, user_id, asset_symbol, amount, price, type, external_tx_ref, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)`,
		e.ID, e.UserID, e.Symbol, e.Amount.String(), e.Price.String(),
		string(e.Type), nullable(e.TxRef), e.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert journal entry %s", e.ID)
	}
	return nil
}

func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]domain.JournalEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, asset_symbol, amount::text, price::text, type, external_tx_ref, created_at
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query journal entries")
	}
	defer rows.Close()

	out := make([]domain.JournalEntry, 0)
	for rows.Next() {
		e, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate journal entries")
}

func (p *Postgres) Get(ctx context.Context, id string) (domain.JournalEntry, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, user_id, asset_symbol, amount::text, price::text, type, external_tx_ref, created_at
		FROM journal_entries WHERE id = $1`, id)
	e, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JournalEntry{}, ErrNotFound
	}
	return e, err
}

func (p *Postgres) Balance(ctx context.Context, userID, symbol string) (decimal.Decimal, error) {
	var totalStr string
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'sell' THEN -amount ELSE amount END), 0)::text
		FROM journal_entries
		WHERE user_id = $1 AND asset_symbol = $2`, userID, symbol).Scan(&totalStr)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "query journal balance")
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse balance %q", totalStr)
	}
	return total, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (domain.JournalEntry, error) {
	var (
		e                   domain.JournalEntry
		amountStr, priceStr string
		typ                 string
		txRef               *string
		createdAt           time.Time
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Symbol, &amountStr, &priceStr, &typ, &txRef, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, err
		}
		return e, errors.Wrap(err, "scan journal entry")
	}
	ref := ""
	if txRef != nil {
		ref = *txRef
	}
	return finish(e, amountStr, priceStr, typ, ref, createdAt)
}
