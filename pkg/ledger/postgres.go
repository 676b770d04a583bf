package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/draftbase/credits/pkg/pg"
)

// PostgresStore is the authoritative Store backed by PostgreSQL. Per-user
// serialization relies on SELECT ... FOR UPDATE row locks; idempotency of
// externally-referenced transactions relies on a partial unique index on
// (user_id, external_payment_ref, kind).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgxpool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credit_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return errors.Join(ErrFailedToApplyTransaction, err)
	}
	return nil
}

func (s *PostgresStore) Account(ctx context.Context, userID uuid.UUID) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, balance::text, last_free_grant_at, pending_conversion_value::text, created_at, updated_at
		FROM credit_accounts
		WHERE user_id = $1`, userID)
	return scanAccount(row)
}

func (s *PostgresStore) Update(ctx context.Context, userID uuid.UUID, fn UpdateFunc) (*Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lazy account creation inside the same transaction so the row lock
	// below always has a row to take.
	if _, err := tx.Exec(ctx,
		`INSERT INTO credit_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}

	row := tx.QueryRow(ctx, `
		SELECT user_id, balance::text, last_free_grant_at, pending_conversion_value::text, created_at, updated_at
		FROM credit_accounts
		WHERE user_id = $1
		FOR UPDATE`, userID)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	mut, err := fn(*acc)
	if err != nil {
		return nil, err
	}
	if mut == nil || (mut.Transaction == nil && mut.GrantStampedAt == nil) {
		if err := tx.Commit(ctx); err != nil {
			return nil, errors.Join(ErrFailedToApplyTransaction, err)
		}
		return acc, nil
	}

	if mut.Transaction != nil {
		t := mut.Transaction
		_, err = tx.Exec(ctx, `
			INSERT INTO credit_transactions (id, user_id, amount, kind, description, external_payment_ref, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			t.ID, t.UserID, t.Amount.String(), string(t.Kind), t.Description, t.ExternalPaymentRef, t.CreatedAt)
		if err != nil {
			if pg.IsDuplicateKeyError(err) {
				return nil, ErrDuplicateExternalRef
			}
			return nil, errors.Join(ErrFailedToApplyTransaction, err)
		}

		acc.Balance = acc.Balance.Add(t.Amount)
	}
	if mut.GrantStampedAt != nil {
		acc.LastFreeGrantAt = mut.GrantStampedAt
	}
	acc.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE credit_accounts
		SET balance = $2, last_free_grant_at = $3, updated_at = $4
		WHERE user_id = $1`,
		userID, acc.Balance.String(), acc.LastFreeGrantAt, acc.UpdatedAt)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	return acc, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, amount::text, kind, description, COALESCE(external_payment_ref, ''), created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			t      Transaction
			amount string
			kind   string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &kind, &t.Description, &t.ExternalPaymentRef, &t.CreatedAt); err != nil {
			return nil, errors.Join(ErrFailedToApplyTransaction, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Join(ErrFailedToApplyTransaction, err)
		}
		t.Kind = Kind(kind)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	return txs, nil
}

func (s *PostgresStore) SumAmounts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM credit_transactions WHERE user_id = $1`,
		userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, errors.Join(ErrFailedToApplyTransaction, err)
	}
	return decimal.NewFromString(sum)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acc     Account
		balance string
		pending *string
	)
	err := row.Scan(&acc.UserID, &balance, &acc.LastFreeGrantAt, &pending, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, errors.Join(ErrFailedToApplyTransaction, err)
	}
	if pending != nil {
		v, err := decimal.NewFromString(*pending)
		if err != nil {
			return nil, errors.Join(ErrFailedToApplyTransaction, err)
		}
		acc.PendingConversionValue = &v
	}
	return &acc, nil
}
