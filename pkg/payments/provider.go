package payments

import (
	"context"
)

// Metadata keys embedded in checkout sessions. The webhook relies on
// these for reconciliation: no local row exists before payment completes,
// so the session metadata is the only channel back to the user.
const (
	MetaUserID    = "user_id"
	MetaPackageID = "package_id"
	MetaCredits   = "credits"
)

// EventType is the closed set of normalized payment events. Provider
// implementations map their own event names onto these; anything else
// becomes EventUnhandled and is acknowledged without effect.
type EventType string

const (
	EventPaymentCompleted      EventType = "payment_completed"
	EventAsyncPaymentSucceeded EventType = "async_payment_succeeded"
	EventAsyncPaymentFailed    EventType = "async_payment_failed"
	EventRefund                EventType = "refund"
	EventUnhandled             EventType = "unhandled"
)

// Event is a normalized, signature-verified webhook notification.
type Event struct {
	ID           string            // provider event id, used as the idempotency key
	Type         EventType         // normalized type
	ProviderType string            // original provider event name, for audit entries
	PaymentRef   string            // provider payment reference, becomes the ledger's external ref
	Paid         bool              // whether the payment is in a paid/settled state
	Email        string            // payer email when the provider exposes it, for receipts
	Metadata     map[string]string // reconciliation metadata from the checkout session
}

// CheckoutParams describes a purchase intent for a credit package.
type CheckoutParams struct {
	UserID      string
	PackageID   string
	Credits     string // decimal string, carried verbatim in metadata
	PriceRef    string // provider-side price id; inline pricing is used when empty
	PriceCents  int64
	Currency    string
	ProductName string
	CustomerID  string // provider customer id, optional
	Email       string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is a processor-hosted, time-bounded purchase intent.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider abstracts the external payment processor. Implementations use
// the official SDKs with bounded request timeouts; all methods that reach
// the processor's API may block on network I/O.
type Provider interface {
	// Name identifies the provider in logs and audit entries.
	Name() string

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// FindOrCreateCustomer resolves the processor-side customer record by
	// the deterministic user id key, creating one when missing. Returns
	// the provider customer id.
	FindOrCreateCustomer(ctx context.Context, userID, email string) (string, error)

	// CreateCheckoutSession creates a hosted checkout session carrying the
	// reconciliation metadata.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// ParseWebhook verifies the signature against the raw body and returns
	// the normalized event. Verification failures return
	// ErrSignatureVerificationFailed and must not be retried by the sender.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}
