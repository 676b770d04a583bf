package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store for tests and local development.
// It enforces the same semantics as the PostgreSQL store: per-user
// serialization and at-most-once appends per (user, external ref, kind).
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	txs      map[uuid.UUID][]Transaction
	refs     map[refKey]struct{}
}

type refKey struct {
	userID uuid.UUID
	ref    string
	kind   Kind
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*Account),
		txs:      make(map[uuid.UUID][]Transaction),
		refs:     make(map[refKey]struct{}),
	}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(userID)
	return nil
}

func (s *MemoryStore) ensureLocked(userID uuid.UUID) *Account {
	if acc, ok := s.accounts[userID]; ok {
		return acc
	}
	now := time.Now().UTC()
	acc := &Account{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[userID] = acc
	return acc
}

func (s *MemoryStore) Account(_ context.Context, userID uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, userID uuid.UUID, fn UpdateFunc) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.ensureLocked(userID)

	mut, err := fn(*acc)
	if err != nil {
		return nil, err
	}
	if mut == nil || (mut.Transaction == nil && mut.GrantStampedAt == nil) {
		cp := *acc
		return &cp, nil
	}

	if t := mut.Transaction; t != nil {
		if t.ExternalPaymentRef != "" {
			key := refKey{userID: userID, ref: t.ExternalPaymentRef, kind: t.Kind}
			if _, exists := s.refs[key]; exists {
				return nil, ErrDuplicateExternalRef
			}
			s.refs[key] = struct{}{}
		}
		s.txs[userID] = append(s.txs[userID], *t)
		acc.Balance = acc.Balance.Add(t.Amount)
	}
	if mut.GrantStampedAt != nil {
		acc.LastFreeGrantAt = mut.GrantStampedAt
	}
	acc.UpdatedAt = time.Now().UTC()

	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) Transactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Transaction, len(s.txs[userID]))
	copy(all, s.txs[userID])
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (s *MemoryStore) SumAmounts(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, t := range s.txs[userID] {
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}
