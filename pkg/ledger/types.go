package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindPurchase  Kind = "purchase"
	KindUsage     Kind = "usage"
	KindRefund    Kind = "refund"
	KindFreeGrant Kind = "free_grant"
)

// Valid reports whether k is one of the known transaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindUsage, KindRefund, KindFreeGrant:
		return true
	}
	return false
}

// Account holds the current credit balance for a single user.
// Accounts are created lazily on first touch and never deleted.
type Account struct {
	UserID                 uuid.UUID
	Balance                decimal.Decimal
	LastFreeGrantAt        *time.Time
	PendingConversionValue *decimal.Decimal
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Transaction is a single append-only ledger row. The sum of all
// transaction amounts for a user always equals the account balance.
type Transaction struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Amount             decimal.Decimal // signed: debits are negative
	Kind               Kind
	Description        string
	ExternalPaymentRef string // processor payment reference, empty when not applicable
	CreatedAt          time.Time
}
