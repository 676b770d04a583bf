package billing

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/draftbase/credits/pkg/credits"
	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/ledger"
)

// LedgerService is the slice of the ledger the HTTP layer consumes.
// Snapshot returns the account after applying the free grant policy, so
// the balance response is built from a single consistent read.
type LedgerService interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*ledger.Account, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ledger.Transaction, error)
}

// CreditsService is the slice of the checkout/webhook service the HTTP
// layer consumes.
type CreditsService interface {
	Catalog() map[string]credits.Package
	InitiateCheckout(ctx context.Context, userID uuid.UUID, packageID, email string) (*credits.Checkout, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*credits.WebhookResult, error)
	SignatureHeader() string
	RecentEvents(ctx context.Context, limit int) ([]eventlog.Entry, error)
}

// RouterOptions configures the billing module router.
type RouterOptions struct {
	Ledger  LedgerService
	Credits CreditsService
	Logger  *slog.Logger

	// AllowedOrigins configures CORS for browser callers. Empty disables
	// cross-origin access.
	AllowedOrigins []string
}

// Router mounts the billing HTTP surface:
//
//	GET  /credits/balance        current balance (triggers free replenishment)
//	GET  /credits/transactions   paginated ledger history, newest first
//	POST /credits/debit          consume credits, 402 on insufficient funds
//	GET  /checkout/packages      purchasable package catalog
//	POST /checkout               create a hosted checkout session
//	POST /webhooks/payments      payment processor notifications
//	GET  /webhooks/events        recent processing log entries (operators)
func Router(opts RouterOptions) chi.Router {
	if opts.Ledger == nil {
		panic("billing: LedgerService is required")
	}
	if opts.Credits == nil {
		panic("billing: CreditsService is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &handlers{ledger: opts.Ledger, credits: opts.Credits, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Route("/credits", func(cr chi.Router) {
		cr.Get("/balance", h.getBalance)
		cr.Get("/transactions", h.listTransactions)
		cr.Post("/debit", h.debit)
	})
	r.Get("/checkout/packages", h.listPackages)
	r.Post("/checkout", h.createCheckout)
	r.Post("/webhooks/payments", h.paymentWebhook)
	r.Get("/webhooks/events", h.listEvents)

	return r
}
