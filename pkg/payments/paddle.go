package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider against Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a Paddle payment provider. Extra SDK options
// are passed through, mainly so tests can point the client at a local
// server.
func NewPaddleProvider(config PaddleConfig, opts ...paddle.Option) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey, opts...)
	case "production", "":
		client, err = paddle.New(config.APIKey, opts...)
	default:
		return nil, ErrInvalidEnvironment
	}
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

// FindOrCreateCustomer creates the Paddle customer record carrying the
// user id in custom data. Paddle has no metadata search, so an existing
// record surfaces as a conflict from the API; the caller treats customer
// binding failures as non-fatal either way.
func (p *PaddleProvider) FindOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      email,
		CustomData: paddle.CustomData{MetaUserID: userID},
	})
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a Paddle transaction with a hosted
// checkout, carrying the reconciliation metadata as custom data.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceRef,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			MetaUserID:    params.UserID,
			MetaPackageID: params.PackageID,
			MetaCredits:   params.Credits,
		},
	}
	if params.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(params.SuccessURL)}
	}
	if params.CustomerID != "" {
		req.CustomerID = paddle.PtrTo(params.CustomerID)
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: transaction.ID, URL: *transaction.Checkout.URL}, nil
}

// ParseWebhook verifies the Paddle-Signature header and maps transaction
// events onto the normalized set.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	// The SDK verifier works on http.Request, so rebuild one around the
	// raw body it was computed over.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureVerificationFailed, err)
	}
	if !valid {
		return nil, ErrSignatureVerificationFailed
	}

	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	event := &Event{
		ID:           paddleEvent.EventID,
		ProviderType: paddleEvent.EventType,
		Metadata:     map[string]string{},
	}

	switch paddleEvent.EventType {
	case "transaction.completed":
		event.Type = EventPaymentCompleted
	case "transaction.paid":
		event.Type = EventAsyncPaymentSucceeded
	case "transaction.payment_failed":
		event.Type = EventAsyncPaymentFailed
	case "adjustment.created":
		return p.refundEvent(ctx, event, paddleEvent.Data)
	default:
		event.Type = EventUnhandled
		return event, nil
	}

	if id, ok := paddleEvent.Data["id"].(string); ok {
		event.PaymentRef = id
	}
	if status, ok := paddleEvent.Data["status"].(string); ok {
		event.Paid = status == "completed" || status == "paid"
	}
	if customData, ok := paddleEvent.Data["custom_data"].(map[string]any); ok {
		for k, v := range customData {
			if s, ok := v.(string); ok {
				event.Metadata[k] = s
			}
		}
	}
	return event, nil
}

// refundEvent maps an adjustment onto the normalized refund event.
// Adjustments carry no custom data of their own, so the reconciliation
// metadata is recovered from the adjusted transaction. A failed lookup
// surfaces as ErrProviderUnavailable so the delivery gets retried.
func (p *PaddleProvider) refundEvent(ctx context.Context, event *Event, data map[string]any) (*Event, error) {
	action, _ := data["action"].(string)
	if action != "refund" && action != "chargeback" {
		event.Type = EventUnhandled
		return event, nil
	}

	event.Type = EventRefund
	if id, ok := data["id"].(string); ok {
		event.PaymentRef = id
	}

	txID, _ := data["transaction_id"].(string)
	if txID == "" {
		return event, nil
	}
	transaction, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: txID})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	for k, v := range transaction.CustomData {
		if s, ok := v.(string); ok {
			event.Metadata[k] = s
		}
	}
	return event, nil
}
