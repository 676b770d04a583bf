package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe provider. Keys are
// optional at parse time so deployments can run on the Paddle provider
// alone; the constructor validates whichever provider is selected.
type StripeConfig struct {
	SecretKey      string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET"`
	RequestTimeout time.Duration `env:"STRIPE_REQUEST_TIMEOUT" envDefault:"10s"`
}

// StripeProvider implements Provider against Stripe Checkout.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProvider creates a Stripe payment provider with a bounded
// HTTP client timeout on all outbound calls.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	backends := stripe.NewBackends(&http.Client{Timeout: config.RequestTimeout})
	api := client.New(config.SecretKey, backends)

	return &StripeProvider{api: api, config: config}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// FindOrCreateCustomer looks the customer up by the user id stored in
// customer metadata, creating the record when no match exists.
func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", MetaUserID, userID),
			Context: ctx,
		},
	}
	iter := p.api.Customers.Search(searchParams)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}

	createParams := &stripe.CustomerParams{}
	createParams.Context = ctx
	if email != "" {
		createParams.Email = stripe.String(email)
	}
	createParams.AddMetadata(MetaUserID, userID)

	cus, err := p.api.Customers.New(createParams)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return cus.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode.
// The reconciliation metadata is the only link back to the user: no local
// purchase row exists until the webhook arrives.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if params.PriceRef != "" {
		item.Price = stripe.String(params.PriceRef)
	} else {
		item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(params.Currency),
			UnitAmount: stripe.Int64(params.PriceCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(params.ProductName),
			},
		}
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.UserID),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{item},
	}
	sessionParams.Context = ctx
	sessionParams.AddMetadata(MetaUserID, params.UserID)
	sessionParams.AddMetadata(MetaPackageID, params.PackageID)
	sessionParams.AddMetadata(MetaCredits, params.Credits)
	// Session metadata stays on the session object. Refund events arrive
	// on the charge, which only carries metadata set through the payment
	// intent, so the same keys go there too.
	sessionParams.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: map[string]string{
			MetaUserID:    params.UserID,
			MetaPackageID: params.PackageID,
			MetaCredits:   params.Credits,
		},
	}
	if params.CustomerID != "" {
		sessionParams.Customer = stripe.String(params.CustomerID)
	} else if params.Email != "" {
		sessionParams.CustomerEmail = stripe.String(params.Email)
	}

	sess, err := p.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw body
// and maps checkout session events onto the normalized set.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
	if err != nil {
		return nil, errors.Join(ErrSignatureVerificationFailed, err)
	}

	event := &Event{
		ID:           stripeEvent.ID,
		ProviderType: string(stripeEvent.Type),
		Metadata:     map[string]string{},
	}

	switch stripeEvent.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		if stripeEvent.Type == stripe.EventTypeCheckoutSessionCompleted {
			event.Type = EventPaymentCompleted
		} else {
			event.Type = EventAsyncPaymentSucceeded
		}
		event.Paid = sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
		event.Metadata = sess.Metadata
		if sess.CustomerDetails != nil {
			event.Email = sess.CustomerDetails.Email
		}
		event.PaymentRef = sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			event.PaymentRef = sess.PaymentIntent.ID
		}

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		event.Type = EventAsyncPaymentFailed
		event.Metadata = sess.Metadata
		event.PaymentRef = sess.ID

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(stripeEvent.Data.Raw, &ch); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		event.Type = EventRefund
		event.Metadata = ch.Metadata
		event.PaymentRef = ch.ID
		if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			event.PaymentRef = ch.PaymentIntent.ID
		}

	default:
		event.Type = EventUnhandled
	}

	return event, nil
}
