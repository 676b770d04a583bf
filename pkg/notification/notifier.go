package notification

import (
	"context"

	"github.com/shopspring/decimal"
)

// Receipt describes a completed credit purchase.
type Receipt struct {
	UserID     string
	Email      string
	PackageID  string
	Credits    decimal.Decimal
	PaymentRef string
}

// Notifier delivers purchase receipts. Delivery is a secondary effect:
// the ledger credit has already committed when a Notifier runs, and a
// delivery failure is logged but never unwinds the credit.
type Notifier interface {
	PurchaseReceipt(ctx context.Context, receipt Receipt) error
}

// NopNotifier discards all notifications. Used when no mail transport is
// configured.
type NopNotifier struct{}

func (NopNotifier) PurchaseReceipt(context.Context, Receipt) error { return nil }
