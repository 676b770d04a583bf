package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mutation describes the state change an UpdateFunc wants applied to a
// locked account. A nil Transaction with a nil GrantStampedAt is a no-op.
type Mutation struct {
	// Transaction is appended to the ledger; its amount is added to the
	// account balance in the same atomic unit.
	Transaction *Transaction

	// GrantStampedAt, when set, updates the account's last free grant
	// timestamp together with the appended transaction.
	GrantStampedAt *time.Time
}

// UpdateFunc decides, given the current account state under lock, which
// mutation to apply. Returning (nil, nil) leaves the account untouched.
// The function must be side-effect free: stores may retry it.
type UpdateFunc func(acc Account) (*Mutation, error)

// Store persists accounts and their append-only transaction log.
//
// Update serializes all mutations per user: implementations must hold a
// row-level lock (or equivalent) across the read of the account, the
// evaluation of fn, the transaction append, and the balance update, so
// check-then-act sequences like debits and free grants cannot race.
type Store interface {
	// EnsureAccount creates a zero-balance account if none exists. Idempotent.
	EnsureAccount(ctx context.Context, userID uuid.UUID) error

	// Account returns the account row, or ErrAccountNotFound.
	Account(ctx context.Context, userID uuid.UUID) (*Account, error)

	// Update runs fn against the locked account (creating it first if
	// needed), applies the returned mutation atomically, and returns the
	// post-mutation account state. Errors from fn abort with no change.
	// A transaction whose (user, external ref, kind) already exists fails
	// with ErrDuplicateExternalRef and no change.
	Update(ctx context.Context, userID uuid.UUID, fn UpdateFunc) (*Account, error)

	// Transactions returns the user's ledger rows, newest first.
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error)

	// SumAmounts returns the sum of all transaction amounts for the user.
	// Used by audits to verify the balance invariant.
	SumAmounts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}
