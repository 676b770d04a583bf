package credits

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/ledger"
	"github.com/draftbase/credits/pkg/notification"
	"github.com/draftbase/credits/pkg/payments"
)

// Config holds checkout configuration.
type Config struct {
	SuccessURL  string `env:"CHECKOUT_SUCCESS_URL,required"`                   // SuccessURL is where the processor redirects after payment.
	CancelURL   string `env:"CHECKOUT_CANCEL_URL,required"`                    // CancelURL is where the processor redirects on abandonment.
	ProductName string `env:"CHECKOUT_PRODUCT_NAME" envDefault:"Site credits"` // ProductName labels inline-priced line items.
}

// Ledger is the slice of the credit ledger the webhook handler needs.
type Ledger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, kind ledger.Kind, description, externalRef string) (decimal.Decimal, error)
	Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, externalRef string) (decimal.Decimal, error)
}

// Service initiates checkouts and reconciles payment webhooks against
// the ledger.
type Service struct {
	ledger   Ledger
	events   eventlog.Store
	provider payments.Provider
	notifier notification.Notifier
	catalog  map[string]Package
	cfg      Config
	log      *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithCatalog replaces the default package catalog.
func WithCatalog(catalog map[string]Package) ServiceOption {
	return func(s *Service) {
		if len(catalog) > 0 {
			s.catalog = catalog
		}
	}
}

// WithNotifier sets the receipt notifier. Defaults to NopNotifier.
func WithNotifier(n notification.Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
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

// NewService creates the credits service.
// Panics on nil required dependencies to fail fast during initialization.
func NewService(ledgerSvc Ledger, events eventlog.Store, provider payments.Provider, cfg Config, opts ...ServiceOption) *Service {
	if ledgerSvc == nil {
		panic("credits: Ledger is required")
	}
	if events == nil {
		panic("credits: eventlog.Store is required")
	}
	if provider == nil {
		panic("credits: payments.Provider is required")
	}

	s := &Service{
		ledger:   ledgerSvc,
		events:   events,
		provider: provider,
		notifier: notification.NopNotifier{},
		catalog:  DefaultCatalog(),
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the purchasable packages.
func (s *Service) Catalog() map[string]Package {
	out := make(map[string]Package, len(s.catalog))
	for id, p := range s.catalog {
		out[id] = p
	}
	return out
}

// Checkout is the created purchase intent returned to the caller.
type Checkout struct {
	SessionID string
	URL       string
}

const checkoutEventType = "checkout_attempt"

// InitiateCheckout validates the requested package and creates a hosted
// checkout session with the processor. The session metadata carries
// {user id, package id, credits}; no local purchase row is persisted
// before payment completes, so that metadata is the webhook's only
// reconciliation channel.
//
// Every attempt, success or failure, lands in the processing log. A
// failed customer lookup is non-fatal: checkout proceeds without a bound
// customer record.
func (s *Service) InitiateCheckout(ctx context.Context, userID uuid.UUID, packageID, email string) (*Checkout, error) {
	if userID == uuid.Nil {
		return nil, E(KindAuth, "missing_user", ErrMissingUserID)
	}
	pkg, ok := s.catalog[packageID]
	if !ok {
		return nil, E(KindValidation, "unknown_package", ErrUnknownPackage, "package_id", packageID)
	}

	customerID, err := s.provider.FindOrCreateCustomer(ctx, userID.String(), email)
	if err != nil {
		// Non-fatal: the webhook reconciles through session metadata, not
		// the customer record.
		s.log.WarnContext(ctx, "customer lookup failed, continuing without bound customer",
			"provider", s.provider.Name(), "user_id", userID, "error", err)
		customerID = ""
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutParams{
		UserID:      userID.String(),
		PackageID:   pkg.ID,
		Credits:     pkg.Credits.String(),
		PriceRef:    pkg.PriceRef,
		PriceCents:  pkg.PriceCents,
		Currency:    pkg.Currency,
		ProductName: s.cfg.ProductName + " - " + pkg.Name,
		CustomerID:  customerID,
		Email:       email,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})

	meta := map[string]string{
		payments.MetaUserID:    userID.String(),
		payments.MetaPackageID: pkg.ID,
		payments.MetaCredits:   pkg.Credits.String(),
	}
	if err != nil {
		s.recordEntry(ctx, eventlog.Entry{
			EventID:   "chk_" + uuid.NewString(),
			EventType: checkoutEventType,
			Status:    eventlog.StatusError,
			Message:   "session creation failed: " + err.Error(),
			Metadata:  meta,
		})
		return nil, E(KindTransient, "checkout_failed", err, "package_id", pkg.ID)
	}

	s.recordEntry(ctx, eventlog.Entry{
		EventID:   session.ID,
		EventType: checkoutEventType,
		Status:    eventlog.StatusSuccess,
		Message:   "session created",
		Metadata:  meta,
	})

	s.log.InfoContext(ctx, "checkout session created",
		"provider", s.provider.Name(), "user_id", userID, "package_id", pkg.ID, "session_id", session.ID)

	return &Checkout{SessionID: session.ID, URL: session.URL}, nil
}

// recordEntry writes an audit entry, logging instead of failing when the
// log store is unavailable. Observability must not break the money path.
func (s *Service) recordEntry(ctx context.Context, entry eventlog.Entry) {
	if err := s.events.Upsert(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "failed to record processing log entry",
			"event_id", entry.EventID, "event_type", entry.EventType, "error", err)
	}
}

// SignatureHeader is the HTTP header the active provider signs webhook
// deliveries with.
func (s *Service) SignatureHeader() string {
	return s.provider.SignatureHeader()
}

// RecentEvents exposes the processing log for operators.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]eventlog.Entry, error) {
	return s.events.Recent(ctx, limit)
}
