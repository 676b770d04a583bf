package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config controls the free credit replenishment policy.
type Config struct {
	GrantAmount   decimal.Decimal `env:"FREE_GRANT_AMOUNT" envDefault:"1"`     // GrantAmount is the balance the free grant tops the account up to.
	GrantCooldown time.Duration   `env:"FREE_GRANT_COOLDOWN" envDefault:"24h"` // GrantCooldown is the minimum time between free grants.
}

const freeGrantDescription = "daily free credit"

// Service is the authoritative credit ledger. All balance mutations go
// through it; callers on different users proceed fully in parallel while
// mutations on one user are serialized by the store.
type Service struct {
	store Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger supplies a structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the ledger service.
// Panics on a nil store to fail fast during initialization.
func NewService(store Store, cfg Config, opts ...ServiceOption) *Service {
	if store == nil {
		panic("ledger: Store is required")
	}
	if cfg.GrantAmount.IsZero() {
		cfg.GrantAmount = decimal.NewFromInt(1)
	}
	if cfg.GrantCooldown <= 0 {
		cfg.GrantCooldown = 24 * time.Hour
	}

	s := &Service{
		store: store,
		cfg:   cfg,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAccount creates a zero-balance account if the user has none.
func (s *Service) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	return s.store.EnsureAccount(ctx, userID)
}

// Snapshot applies the free grant policy and returns the resulting
// account state from the same atomic unit, so the balance and any
// auxiliary fields on the row are consistent with each other.
//
// The policy runs inline on every read rather than in a background job:
// when the balance is below the grant amount and the cooldown has elapsed
// (or no grant was ever made), the account is topped up to exactly the
// grant amount with a free_grant transaction, and the grant timestamp is
// stamped together with it.
func (s *Service) Snapshot(ctx context.Context, userID uuid.UUID) (*Account, error) {
	now := s.now().UTC()

	var granted decimal.Decimal
	acc, err := s.store.Update(ctx, userID, func(acc Account) (*Mutation, error) {
		granted = decimal.Zero
		if acc.Balance.GreaterThanOrEqual(s.cfg.GrantAmount) {
			return nil, nil
		}
		if acc.LastFreeGrantAt != nil && now.Sub(*acc.LastFreeGrantAt) < s.cfg.GrantCooldown {
			return nil, nil
		}

		// Top up to the grant amount. A transiently negative balance is
		// tolerated: the grant is larger so the result is still exact.
		granted = s.cfg.GrantAmount.Sub(acc.Balance)
		return &Mutation{
			Transaction: &Transaction{
				ID:          uuid.New(),
				UserID:      userID,
				Amount:      granted,
				Kind:        KindFreeGrant,
				Description: freeGrantDescription,
				CreatedAt:   now,
			},
			GrantStampedAt: &now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if granted.IsPositive() {
		s.log.InfoContext(ctx, "free credit granted",
			"user_id", userID, "amount", granted.String(), "balance", acc.Balance.String())
	}
	return acc, nil
}

// Balance applies the free grant policy and returns the current balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	acc, err := s.Snapshot(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// Account returns the account row without triggering replenishment,
// creating it first if the user was never seen.
func (s *Service) Account(ctx context.Context, userID uuid.UUID) (*Account, error) {
	if err := s.store.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Account(ctx, userID)
}

// Credit appends a positive transaction and returns the new balance.
// With a non-empty externalRef the append is idempotent per
// (user, externalRef, kind): a replay fails with ErrDuplicateExternalRef
// and leaves the balance unchanged.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, kind Kind, description, externalRef string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !kind.Valid() {
		return decimal.Zero, ErrInvalidKind
	}

	signed := amount
	if kind == KindRefund {
		// Refunds return money to the customer, so credits come back off
		// the balance.
		signed = amount.Neg()
	}

	acc, err := s.store.Update(ctx, userID, func(Account) (*Mutation, error) {
		return &Mutation{
			Transaction: &Transaction{
				ID:                 uuid.New(),
				UserID:             userID,
				Amount:             signed,
				Kind:               kind,
				Description:        description,
				ExternalPaymentRef: externalRef,
				CreatedAt:          s.now().UTC(),
			},
		}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// Refund reverses a purchase: amount credits come back off the balance
// as a refund transaction. Idempotent per (user, externalRef) like any
// externally referenced append.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, externalRef string) (decimal.Decimal, error) {
	return s.Credit(ctx, userID, amount, KindRefund, description, externalRef)
}

// Debit withdraws credits for usage and returns the new balance. The
// funds check and the write happen under the same per-user lock, so two
// concurrent debits cannot both succeed past the last available credit.
// Fails with ErrInsufficientFunds and no state change when the balance
// does not cover the amount.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	acc, err := s.store.Update(ctx, userID, func(acc Account) (*Mutation, error) {
		if acc.Balance.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}
		return &Mutation{
			Transaction: &Transaction{
				ID:          uuid.New(),
				UserID:      userID,
				Amount:      amount.Neg(),
				Kind:        KindUsage,
				Description: description,
				CreatedAt:   s.now().UTC(),
			},
		}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// Transactions returns the user's ledger history, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Transactions(ctx, userID, limit, offset)
}

// Audit verifies the balance invariant for a user: the stored balance
// must equal the sum of all transaction amounts.
func (s *Service) Audit(ctx context.Context, userID uuid.UUID) error {
	acc, err := s.store.Account(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := s.store.SumAmounts(ctx, userID)
	if err != nil {
		return err
	}
	if !acc.Balance.Equal(sum) {
		return errors.Join(ErrFailedToApplyTransaction,
			errors.New("balance does not equal transaction sum for user "+userID.String()))
	}
	return nil
}
